package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/realtime"
)

// HTTPError is a non-2xx gateway response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client implements the engine's store contract against the Trellis
// gateway REST API, for deployments where the engine runs outside the
// gateway process (the `trellis chat` client). Transient failures (429,
// 5xx, transport errors) are retried with a capped exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a gateway client. A nil httpClient gets a 15 s timeout
// default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8795"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// FindOrCreateConversation implements realtime.Store.
func (c *Client) FindOrCreateConversation(ctx context.Context, userID, expertID string) (*models.Conversation, error) {
	body := map[string]string{"user_id": userID, "expert_id": expertID}
	var conv models.Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/v1/conversations", body, &conv); err != nil {
		return nil, fmt.Errorf("store: client: find-or-create conversation: %w", err)
	}
	return &conv, nil
}

// LoadMessages implements realtime.Store.
func (c *Client) LoadMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	path := fmt.Sprintf("/v1/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("store: client: load messages: %w", err)
	}
	return msgs, nil
}

// CreateMessage implements realtime.Store.
func (c *Client) CreateMessage(ctx context.Context, req realtime.NewMessage) (*models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/v1/conversations/%s/messages", url.PathEscape(req.ConversationID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, fmt.Errorf("store: client: create message: %w", err)
	}
	return &msg, nil
}

// IsIntakeSent implements realtime.Store.
func (c *Client) IsIntakeSent(ctx context.Context, conversationID string) (bool, error) {
	var out struct {
		Sent bool `json:"sent"`
	}
	path := fmt.Sprintf("/v1/conversations/%s/intake", url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, fmt.Errorf("store: client: intake flag: %w", err)
	}
	return out.Sent, nil
}

// MarkIntakeSent implements realtime.Store.
func (c *Client) MarkIntakeSent(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/v1/conversations/%s/intake", url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("store: client: mark intake sent: %w", err)
	}
	return nil
}

// LatestDiagnosis returns the user's newest diagnosis report via the
// gateway, or nil when none exists.
func (c *Client) LatestDiagnosis(ctx context.Context, userID string) (*models.DiagnosisReport, error) {
	var report models.DiagnosisReport
	path := "/v1/diagnoses/latest?user_id=" + url.QueryEscape(userID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &report)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("store: client: latest diagnosis: %w", err)
	}
	return &report, nil
}

// Payload implements realtime.IntakeSource over the gateway, so remote
// clients can drive the one-time handoff.
func (c *Client) Payload(ctx context.Context, userID string) (*realtime.IntakePayload, error) {
	report, err := c.LatestDiagnosis(ctx, userID)
	if err != nil || report == nil {
		return nil, err
	}
	return &realtime.IntakePayload{
		Body:          formatIntakeBody(report),
		AttachmentURL: report.ImageURL,
	}, nil
}

// doJSON performs one JSON request with bounded retry on transient
// failures, honoring Retry-After when the gateway sends one. Retries are
// not idempotent for POSTs: a response lost after the gateway committed
// means the retry writes a second row with its own id, which the
// identifier dedup rule cannot collapse.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{StatusCode: resp.StatusCode, Message: errPayload.Error}
	}
}

// retryDelay returns the wait before the given attempt: Retry-After when
// provided, otherwise exponential from baseDelay capped at maxDelay.
func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
