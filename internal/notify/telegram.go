package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/premarket-labs/spreadbot/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSink delivers alerts to a Telegram chat via the Bot API. Sends are
// rate limited; tokens can be muted at runtime to silence noisy listings. In
// dry-run mode messages are logged instead of sent.
type TelegramSink struct {
	token   string
	chatID  string
	prefix  string
	dryRun  bool
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu    sync.Mutex
	muted map[string]struct{}
}

// TelegramOptions configures a TelegramSink.
type TelegramOptions struct {
	Token         string
	ChatID        string
	AlertPrefix   string
	RatePerMinute float64 // <= 0 disables limiting
	DryRun        bool
	BaseURL       string // overridable for tests; default Telegram API
}

// NewTelegramSink creates a sink for the given bot token and chat.
func NewTelegramSink(opts TelegramOptions, logger *slog.Logger) *TelegramSink {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerMinute/60.0), 1)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &TelegramSink{
		token:   opts.Token,
		chatID:  opts.ChatID,
		prefix:  opts.AlertPrefix,
		dryRun:  opts.DryRun,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "telegram_sink")),
		muted:   make(map[string]struct{}),
	}
}

// Mute silences alerts for token. Returns false if it was already muted.
func (t *TelegramSink) Mute(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToUpper(token)
	if _, ok := t.muted[key]; ok {
		return false
	}
	t.muted[key] = struct{}{}
	return true
}

// Unmute re-enables alerts for token. Returns false if it was not muted.
func (t *TelegramSink) Unmute(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToUpper(token)
	if _, ok := t.muted[key]; !ok {
		return false
	}
	delete(t.muted, key)
	return true
}

// MutedTokens returns the currently muted tokens.
func (t *TelegramSink) MutedTokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := make([]string, 0, len(t.muted))
	for token := range t.muted {
		tokens = append(tokens, token)
	}
	return tokens
}

func (t *TelegramSink) isMuted(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.muted[strings.ToUpper(token)]
	return ok
}

// Deliver formats and sends the alert, waiting on the rate limiter first.
func (t *TelegramSink) Deliver(ctx context.Context, alert domain.Alert, links map[string]string) error {
	core := alert.Core()
	if t.isMuted(core.Token) {
		t.logger.InfoContext(ctx, "skipping muted token", slog.String("token", core.Token))
		return nil
	}

	message := FormatAlert(alert, t.prefix, links)

	if t.dryRun {
		t.logger.InfoContext(ctx, "dry-run alert", slog.String("message", message))
		return nil
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.send(ctx, message)
}

func (t *TelegramSink) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

var _ domain.AlertSink = (*TelegramSink)(nil)
