package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"valor/internal/types"
)

// DiscordClient posts messages to a single channel webhook.
type DiscordClient struct {
	base       *BaseClient
	webhookURL string
	logger     *slog.Logger
}

func NewDiscordClient(httpClient *http.Client, webhookURL string, logger *slog.Logger) *DiscordClient {
	base := NewBaseClient(httpClient, "discord", RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	})
	return NewDiscordClientWithBase(base, webhookURL, logger)
}

func NewDiscordClientWithBase(base *BaseClient, webhookURL string, logger *slog.Logger) *DiscordClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordClient{base: base, webhookURL: webhookURL, logger: logger}
}

// Post executes the webhook. Discord answers 204 No Content, or 200 when
// ?wait=true is set on the URL.
func (d *DiscordClient) Post(ctx context.Context, msg DiscordMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal discord payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build discord request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("discord webhook failed (%d): %s", resp.StatusCode, text),
			nil,
		)
	}
	return nil
}

var _ DiscordPoster = (*DiscordClient)(nil)
