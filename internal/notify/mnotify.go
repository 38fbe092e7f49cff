package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://api.mnotify.com/api"
	defaultCampaign = "Task Reminder Call"
	balanceTimeout  = 10 * time.Second
)

// ErrNotConfigured is returned when the API key or recipient is missing.
var ErrNotConfigured = errors.New("notify: mNotify key or recipient not set")

// Config holds the mNotify account and recipient.
type Config struct {
	APIKey        string
	BaseURL       string
	Recipient     string
	Sender        string
	RecordingPath string
	Lead          time.Duration
	SMSTimeout    time.Duration
	VoiceTimeout  time.Duration
}

// Mnotify sends SMS and voice calls to the single configured phone number.
type Mnotify struct {
	cfg    Config
	client *fasthttp.Client
	logger *zap.Logger
}

func NewMnotify(cfg Config, logger *zap.Logger) *Mnotify {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Sender == "" {
		cfg.Sender = "Reminder"
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 15 * time.Minute
	}
	if cfg.SMSTimeout <= 0 {
		cfg.SMSTimeout = 30 * time.Second
	}
	if cfg.VoiceTimeout <= 0 {
		cfg.VoiceTimeout = 60 * time.Second
	}
	return &Mnotify{
		cfg:    cfg,
		client: &fasthttp.Client{Name: "personal-assistant"},
		logger: logger.Named("mnotify"),
	}
}

// Configured reports whether sends can be attempted.
func (m *Mnotify) Configured() bool {
	return m.cfg.APIKey != "" && m.cfg.Recipient != ""
}

// SendSMS texts the recipient.
func (m *Mnotify) SendSMS(ctx context.Context, text string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	payload, err := smsPayload(m.cfg.Recipient, m.cfg.Sender, text)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(m.endpoint("sms/quick"))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := m.do(ctx, req, m.cfg.SMSTimeout); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	m.logger.Info("sms sent", zap.Int("chars", len(text)))
	return nil
}

// SendReminder texts the pre-due reminder for a task.
func (m *Mnotify) SendReminder(ctx context.Context, description, whenText string) error {
	return m.SendSMS(ctx, ReminderText(description, whenText, m.cfg.Lead))
}

// ReminderText renders the reminder SMS body.
func ReminderText(description, whenText string, lead time.Duration) string {
	return fmt.Sprintf("⏰ Reminder: %s is scheduled for %s (in %d minutes)!", description, whenText, int(lead/time.Minute))
}

// PlaceVoiceCall uploads the configured recording as a voice campaign.
func (m *Mnotify) PlaceVoiceCall(ctx context.Context, campaign string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(campaign) == "" {
		campaign = defaultCampaign
	}

	body, contentType, err := voiceForm(m.cfg.Recipient, campaign, m.cfg.RecordingPath)
	if err != nil {
		return fmt.Errorf("place voice call: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(m.endpoint("voice/quick"))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.SetBody(body)

	if err := m.do(ctx, req, m.cfg.VoiceTimeout); err != nil {
		return fmt.Errorf("place voice call: %w", err)
	}
	m.logger.Info("voice call placed", zap.String("campaign", campaign))
	return nil
}

// Balance fetches the account balance response. It doubles as the health check.
func (m *Mnotify) Balance(ctx context.Context) (string, error) {
	if m.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(m.endpoint("balance"))
	req.Header.SetMethod(fasthttp.MethodGet)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	if err := m.roundTrip(ctx, req, resp, balanceTimeout); err != nil {
		return "", fmt.Errorf("balance: %w", err)
	}
	return string(resp.Body()), nil
}

func (m *Mnotify) endpoint(path string) string {
	return fmt.Sprintf("%s/%s?key=%s", m.cfg.BaseURL, path, url.QueryEscape(m.cfg.APIKey))
}

func (m *Mnotify) do(ctx context.Context, req *fasthttp.Request, timeout time.Duration) error {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	return m.roundTrip(ctx, req, resp, timeout)
}

// roundTrip sends req and treats non-2xx statuses and "status":"error" bodies as failures.
func (m *Mnotify) roundTrip(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.client.DoDeadline(req, resp, deadline); err != nil {
		return err
	}

	body := resp.Body()
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("mnotify returned %d: %s", code, truncate(body))
	}
	if gjson.ValidBytes(body) {
		if status := gjson.GetBytes(body, "status").String(); strings.EqualFold(status, "error") {
			return fmt.Errorf("mnotify error: %s", gjson.GetBytes(body, "message").String())
		}
	}
	return nil
}

func smsPayload(recipient, sender, message string) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	for _, set := range []struct {
		path  string
		value any
	}{
		{"recipient", []string{recipient}},
		{"sender", sender},
		{"message", message},
		{"is_schedule", false},
		{"schedule_date", ""},
	} {
		if payload, err = sjson.SetBytes(payload, set.path, set.value); err != nil {
			return nil, fmt.Errorf("build sms payload: %w", err)
		}
	}
	return payload, nil
}

func voiceForm(recipient, campaign, recordingPath string) ([]byte, string, error) {
	f, err := os.Open(recordingPath)
	if err != nil {
		return nil, "", fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"campaign", campaign},
		{"recipient[]", recipient},
		{"voice_id", ""},
		{"is_schedule", "false"},
		{"schedule_date", ""},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("file", filepath.Base(recordingPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read recording: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
