package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"personal-assistant/internal/model"
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("oracle: OpenAI API key is not set")

var errEmptyResponse = errors.New("oracle: empty completion")

// Config holds the OpenAI settings.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	OwnerName string
	Location  *time.Location
	// MaxRetries covers transient failures. Zero disables retries.
	MaxRetries int
}

// OpenAI answers intent questions with chat completions and transcribes
// voice notes with Whisper.
type OpenAI struct {
	client  openai.Client
	enabled bool
	model   string
	owner   string
	loc     *time.Location
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT3_5Turbo
	}
	if strings.TrimSpace(cfg.OwnerName) == "" {
		cfg.OwnerName = "the user"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))

	enabled := strings.TrimSpace(cfg.APIKey) != ""
	if !enabled {
		logger.Warn("OpenAI API key not set, oracle disabled")
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		enabled: enabled,
		model:   cfg.Model,
		owner:   cfg.OwnerName,
		loc:     cfg.Location,
		logger:  logger.Named("oracle"),
	}
}

// Enabled reports whether an API key was configured.
func (o *OpenAI) Enabled() bool { return o.enabled }

type prompt struct {
	system      string
	user        string
	temperature float64
	maxTokens   int64
}

func (o *OpenAI) complete(ctx context.Context, p prompt) (string, error) {
	if !o.enabled {
		return "", ErrNotConfigured
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.system),
			openai.UserMessage(p.user),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(p.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// Classify reports whether text asks to create a new task.
func (o *OpenAI) Classify(ctx context.Context, text string) (bool, error) {
	answer, err := o.complete(ctx, classifyPrompt(text))
	if err != nil {
		return false, err
	}
	label := strings.ToUpper(strings.Trim(answer, " .\"'\n"))
	o.logger.Debug("classified", zap.String("label", label))
	return label == "TASK", nil
}

// ExtractTask pulls a description and due time out of text. A zero DueAt
// means the model returned no usable time.
func (o *OpenAI) ExtractTask(ctx context.Context, text string, now time.Time) (model.TaskDraft, error) {
	answer, err := o.complete(ctx, extractPrompt(text, now.In(o.loc)))
	if err != nil {
		return model.TaskDraft{}, err
	}
	draft, err := parseDraft(answer, o.loc)
	if err != nil {
		return model.TaskDraft{}, err
	}
	if draft.DueAt.IsZero() {
		o.logger.Warn("extraction returned no usable time", zap.String("raw", answer))
	}
	return draft, nil
}

// Summarize answers a question about the given tasks.
func (o *OpenAI) Summarize(ctx context.Context, query string, tasks []model.Task) (string, error) {
	return o.complete(ctx, summarizePrompt(query, model.TaskLines(tasks, o.loc)))
}

// DailySummary writes the check-in message for a slot.
func (o *OpenAI) DailySummary(ctx context.Context, slot string, tasks []model.Task) (string, error) {
	return o.complete(ctx, dailyPrompt(o.owner, slot, model.Digest(tasks, o.loc)))
}

// Chat replies to a message that is neither a task nor a query.
func (o *OpenAI) Chat(ctx context.Context, text string) (string, error) {
	return o.complete(ctx, chatPrompt(o.owner, text))
}

// Transcribe converts an audio file to English text with Whisper.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !o.enabled {
		return "", ErrNotConfigured
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     f,
		Model:    openai.AudioModelWhisper1,
		Language: openai.String("en"),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Ping checks that the configured model is reachable with the current key.
func (o *OpenAI) Ping(ctx context.Context) error {
	if !o.enabled {
		return ErrNotConfigured
	}
	if _, err := o.client.Models.Get(ctx, o.model); err != nil {
		return fmt.Errorf("get model %s: %w", o.model, err)
	}
	return nil
}
