package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/retry"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// maxMessageLength is Telegram's limit for one message.
const maxMessageLength = 4096

// TelegramChannel posts notifications to a chat with inline action buttons.
type TelegramChannel struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	retry   retry.Config
}

// NewTelegramChannel creates a channel for a bot token and chat.
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		token:   token,
		chatID:  chatID,
		apiBase: DefaultTelegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
		retry:   retry.DefaultConfig(),
	}
}

// WithAPIBase points the channel at another Bot API endpoint.
func (t *TelegramChannel) WithAPIBase(base string) *TelegramChannel {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type sendMessageRequest struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup struct {
		InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
	} `json:"reply_markup"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// TelegramError is a failed Bot API call.
type TelegramError struct {
	Method     string
	StatusCode int
	Message    string
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.StatusCode, e.Message)
}

var buttonLabels = map[Action]string{
	ActionApprove:    "✅ Approve",
	ActionRegenerate: "🔄 Regenerate",
	ActionCancel:     "❌ Cancel",
}

// Notify sends the preview with one button per action.
func (t *TelegramChannel) Notify(ctx context.Context, n Notification) error {
	var text strings.Builder
	fmt.Fprintf(&text, "Step %s is ready for review\n\n%s", n.Step, n.Text)
	for _, l := range n.Links {
		text.WriteString("\n" + l)
	}

	req := sendMessageRequest{ChatID: t.chatID, Text: truncateRunes(text.String(), maxMessageLength)}
	row := make([]inlineButton, 0, len(n.Actions))
	for _, a := range n.Actions {
		row = append(row, inlineButton{Text: buttonLabels[a], CallbackData: CallbackData(a, n.JobID, n.Step)})
	}
	req.ReplyMarkup.InlineKeyboard = [][]inlineButton{row}

	return t.call(ctx, "sendMessage", req)
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (t *TelegramChannel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.call(ctx, "answerCallbackQuery", map[string]string{
		"callback_query_id": callbackID,
		"text":              text,
	})
}

func (t *TelegramChannel) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)

	return retry.Do(ctx, t.retry, classifyTelegram, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var parsed apiResponse
		_ = json.Unmarshal(data, &parsed)
		if resp.StatusCode != http.StatusOK || !parsed.OK {
			return &TelegramError{Method: method, StatusCode: resp.StatusCode, Message: parsed.Description}
		}
		return nil
	})
}

// classifyTelegram retries network failures, rate limits, and server errors.
func classifyTelegram(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var te *TelegramError
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusTooManyRequests || te.StatusCode >= 500
	}
	return true
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// CallbackData encodes a button as {action}_{job_id}_{step}; regenerate is shortened to regen.
func CallbackData(a Action, jobID, step string) string {
	prefix := string(a)
	if a == ActionRegenerate {
		prefix = "regen"
	}
	return prefix + "_" + jobID + "_" + step
}

// ParseCallbackData decodes button data. The step is empty for the legacy
// cancel_{job_id} form.
func ParseCallbackData(data string) (Action, string, string, error) {
	prefix, rest, ok := strings.Cut(data, "_")
	if !ok || rest == "" {
		return "", "", "", fmt.Errorf("malformed callback data: %q", data)
	}
	action, err := ParseAction(prefix)
	if err != nil {
		return "", "", "", err
	}

	if i := strings.LastIndex(rest, "_"); i > 0 {
		if step, err := steps.Parse(rest[i+1:]); err == nil {
			return action, rest[:i], string(step), nil
		}
	}
	if action != ActionCancel {
		return "", "", "", fmt.Errorf("callback data %q has no step", data)
	}
	return action, rest, "", nil
}

// Update is the subset of a Bot API update the webhook consumes.
type Update struct {
	UpdateID      int            `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	From struct {
		ID       int64  `json:"id"`
		Username string `json:"username,omitempty"`
	} `json:"from"`
}
