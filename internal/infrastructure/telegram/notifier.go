package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

// DefaultAPIBaseURL is the public Bot API endpoint.
const DefaultAPIBaseURL = "https://api.telegram.org"

// Notifier sends ad notifications to the owner's chat via bot API.
type Notifier struct {
	botToken   string
	apiBaseURL string
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the bot token; an empty apiBaseURL selects the public API.
func NewNotifier(botToken, apiBaseURL string) *Notifier {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return &Notifier{
		botToken:   botToken,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// FormatMessage renders the chat text for a newly discovered ad.
func FormatMessage(n domain.Notification) string {
	return fmt.Sprintf("🆕 Новое объявление (%s)\n\n%s\nЦена: %s\n%s\n\nОбнаружено: %s UTC",
		n.SearchName,
		n.Ad.Title,
		n.Ad.Price,
		n.Ad.URL,
		n.DiscoveredAt.UTC().Format("2006-01-02 15:04"),
	)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Deliver posts a plain-text message to the owner with link previews disabled.
func (n *Notifier) Deliver(ctx context.Context, msg domain.Notification) error {
	if n.botToken == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBaseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(msg.OwnerID, 10))
	form.Set("text", FormatMessage(msg))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload apiResponse
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK || !payload.OK {
		if payload.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, payload.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, msg domain.Notification) error {
	n.logger.Info("notification (dry run)",
		"owner", msg.OwnerID,
		"ad_id", msg.Ad.ID,
		"text", FormatMessage(msg),
	)
	return nil
}
