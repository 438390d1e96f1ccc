package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/config"
	"github.com/Ktl-XV/account-monitor/internal/metrics"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

// Notifier delivers a rendered notification. Delivery is at-most-once:
// failures are logged by the caller and never retried, because re-running a
// block would duplicate its successful notifications.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}

// New returns the ntfy transport, or the logging notifier when disabled.
func New(global config.Global, logger *zap.Logger) Notifier {
	if global.NtfyDisabled {
		return NewLogNotifier(logger)
	}
	return NewNtfy(global.NtfyURL, global.NtfyTopic, global.NtfyToken, logger)
}

// Startup is the boot message confirming how many accounts were bootstrapped.
func Startup(accounts int) model.Notification {
	return model.Notification{
		ChainName: "Account Monitor",
		Body:      fmt.Sprintf("Account Monitor started, %d accounts configured", accounts),
	}
}

// NtfyClient posts plain-text notifications to an ntfy-compatible server.
type NtfyClient struct {
	url    string
	topic  string
	token  string
	client *http.Client
	logger *zap.Logger
}

// NewNtfy builds the ntfy transport.
func NewNtfy(url, topic, token string, logger *zap.Logger) *NtfyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NtfyClient{
		url:    strings.TrimRight(url, "/"),
		topic:  topic,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Send posts the notification body with Title, Click and Tags headers.
func (c *NtfyClient) Send(ctx context.Context, n model.Notification) error {
	endpoint := fmt.Sprintf("%s/%s", c.url, c.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(n.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if n.ChainName != "" {
		req.Header.Set("Title", n.ChainName)
	}
	if n.Link != "" {
		req.Header.Set("Click", n.Link)
	}
	if tag := directionTag(n.Direction); tag != "" {
		req.Header.Set("Tags", tag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}

	metrics.NotificationsSent.WithLabelValues(n.ChainName).Inc()
	return nil
}

func directionTag(d model.Direction) string {
	switch d {
	case model.DirectionIn:
		return "arrow_down"
	case model.DirectionOut:
		return "arrow_up"
	case model.DirectionSelf:
		return "repeat"
	default:
		return ""
	}
}

// LogNotifier writes the notification body to the structured log instead of
// delivering it. The body is identical to what ntfy would have received.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds the disabled-mode notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the notification at info level.
func (l *LogNotifier) Send(_ context.Context, n model.Notification) error {
	l.logger.Info("notification",
		zap.String("title", n.ChainName),
		zap.String("body", n.Body),
		zap.String("link", n.Link),
		zap.String("direction", string(n.Direction)),
	)
	metrics.NotificationsSent.WithLabelValues(n.ChainName).Inc()
	return nil
}
