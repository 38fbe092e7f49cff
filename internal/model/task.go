package model

import "time"

// Task is a time-bound item the user wants to be reminded about.
// IsReminded and IsCalled only ever move from false to true.
type Task struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	Description   string    `gorm:"type:text;not null" json:"task_description"`
	OriginalInput string    `gorm:"type:text;not null" json:"original_input"`
	DueAt         time.Time `gorm:"index;not null" json:"scheduled_time"`
	IsCompleted   bool      `gorm:"default:false" json:"is_completed"`
	IsReminded    bool      `gorm:"default:false" json:"is_reminded"`
	IsCalled      bool      `gorm:"default:false" json:"is_called"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
