package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"personal-assistant/internal/model"
)

// TaskFilter narrows List results. Zero values mean "no constraint".
type TaskFilter struct {
	Completed *bool
	DueFrom   time.Time // inclusive
	DueTo     time.Time // exclusive
	Limit     int
	Newest    bool // order by due time descending
}

// TaskRepository handles CRUD for tasks.
// Timestamps are written in UTC so SQLite's text comparison orders them correctly.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	task.DueAt = task.DueAt.UTC()
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// FindByID returns the task only when it belongs to userID.
func (r *TaskRepository) FindByID(ctx context.Context, userID string, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Get returns the task regardless of owner.
func (r *TaskRepository) Get(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context, userID string, filter TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Completed != nil {
		q = q.Where("is_completed = ?", *filter.Completed)
	}
	if !filter.DueFrom.IsZero() {
		q = q.Where("due_at >= ?", filter.DueFrom.UTC())
	}
	if !filter.DueTo.IsZero() {
		q = q.Where("due_at < ?", filter.DueTo.UTC())
	}
	if filter.Newest {
		q = q.Order("due_at DESC")
	} else {
		q = q.Order("due_at ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var tasks []model.Task
	if err := q.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListUpcoming returns incomplete tasks of userID due strictly after now.
func (r *TaskRepository) ListUpcoming(ctx context.Context, userID string, now time.Time, limit int) ([]model.Task, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ? AND due_at > ?", userID, false, now.UTC()).
		Order("due_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tasks []model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return tasks, nil
}

// ListPending returns every incomplete task, of any user, due after now.
func (r *TaskRepository) ListPending(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("is_completed = ? AND due_at > ?", false, now.UTC()).
		Order("due_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return tasks, nil
}

// Update saves description, input and due time. Notification flags are left alone.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]interface{}{
			"description":    task.Description,
			"original_input": task.OriginalInput,
			"due_at":         task.DueAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Update("is_completed", true)
	if res.Error != nil {
		return fmt.Errorf("complete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	task.IsCompleted = true
	return nil
}

// MarkReminded sets is_reminded only if it is still false and the task is open.
// It reports whether the row changed.
func (r *TaskRepository) MarkReminded(ctx context.Context, taskID uint) (bool, error) {
	return r.setFlag(ctx, taskID, "is_reminded")
}

// MarkCalled sets is_called only if it is still false and the task is open.
func (r *TaskRepository) MarkCalled(ctx context.Context, taskID uint) (bool, error) {
	return r.setFlag(ctx, taskID, "is_called")
}

func (r *TaskRepository) setFlag(ctx context.Context, taskID uint, column string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND is_completed = ? AND "+column+" = ?", taskID, false, false).
		Update(column, true)
	if res.Error != nil {
		return false, fmt.Errorf("set %s: %w", column, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a task for the given user.
func (r *TaskRepository) Delete(ctx context.Context, userID string, taskID uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Ping checks the underlying connection.
func (r *TaskRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
