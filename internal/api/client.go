package api

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

	"github.com/google/uuid"

	"github.com/ayush/tipfinity/internal/models"
)

// RequestIDHeader carries a per-call correlation id.
const RequestIDHeader = "X-Request-Id"

// Envelope is the normalized wrapper every backend response uses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Unwrap returns the payload, or a RemoteError when the envelope reports failure.
func (e Envelope[T]) Unwrap(op string) (T, error) {
	var zero T
	if !e.Success {
		msg := e.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return zero, &RemoteError{Op: op, Status: http.StatusOK, Message: msg}
	}
	if e.Data == nil {
		return zero, nil
	}
	return *e.Data, nil
}

// Client calls the tipping backend over HTTP. It holds no state beyond its
// configuration and never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (Envelope[models.Health], error) {
	return do[models.Health](ctx, c, http.MethodGet, "/health", nil)
}

// CreateCreator calls POST /creators.
func (c *Client) CreateCreator(ctx context.Context, in models.CreateCreatorInput) (Envelope[models.Created], error) {
	return do[models.Created](ctx, c, http.MethodPost, "/creators", in)
}

// ListCreators calls GET /creators.
func (c *Client) ListCreators(ctx context.Context) (Envelope[[]models.Creator], error) {
	return do[[]models.Creator](ctx, c, http.MethodGet, "/creators", nil)
}

// GetCreator calls GET /creator/{id}.
func (c *Client) GetCreator(ctx context.Context, id int64) (Envelope[models.Creator], error) {
	return do[models.Creator](ctx, c, http.MethodGet, "/creator/"+idPath(id), nil)
}

// UpdateCreator calls PUT /creator/{id}.
func (c *Client) UpdateCreator(ctx context.Context, id int64, in models.UpdateCreatorInput) (Envelope[models.Updated], error) {
	return do[models.Updated](ctx, c, http.MethodPut, "/creator/"+idPath(id), in)
}

// DeleteCreator calls DELETE /creator/{id}.
func (c *Client) DeleteCreator(ctx context.Context, id int64) (Envelope[models.Deleted], error) {
	return do[models.Deleted](ctx, c, http.MethodDelete, "/creator/"+idPath(id), nil)
}

// UsernameAvailable calls GET /username/{username}/available.
func (c *Client) UsernameAvailable(ctx context.Context, username string) (Envelope[models.Availability], error) {
	return do[models.Availability](ctx, c, http.MethodGet, "/username/"+url.PathEscape(username)+"/available", nil)
}

// LinkWallet calls POST /wallet/link.
func (c *Client) LinkWallet(ctx context.Context, in models.WalletLinkRequest) (Envelope[models.WalletLinkResult], error) {
	return do[models.WalletLinkResult](ctx, c, http.MethodPost, "/wallet/link", in)
}

// CreateTip calls POST /tips.
func (c *Client) CreateTip(ctx context.Context, in models.CreateTipInput) (Envelope[models.Created], error) {
	return do[models.Created](ctx, c, http.MethodPost, "/tips", in)
}

// TipsForCreator calls GET /tips/creator/{id}.
func (c *Client) TipsForCreator(ctx context.Context, creatorID int64) (Envelope[[]models.Tip], error) {
	return do[[]models.Tip](ctx, c, http.MethodGet, "/tips/creator/"+idPath(creatorID), nil)
}

// RecentTips calls GET /tips/recent.
func (c *Client) RecentTips(ctx context.Context) (Envelope[[]models.Tip], error) {
	return do[[]models.Tip](ctx, c, http.MethodGet, "/tips/recent", nil)
}

// ForwardWebhook calls POST /webhooks/tip with an already validated event.
func (c *Client) ForwardWebhook(ctx context.Context, ev WebhookEvent) (Envelope[json.RawMessage], error) {
	return do[json.RawMessage](ctx, c, http.MethodPost, "/webhooks/tip", webhookWire{Type: ev.EventType(), Data: ev})
}

func idPath(id int64) string {
	return strconv.FormatInt(id, 10)
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (Envelope[T], error) {
	var env Envelope[T]
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return env, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return env, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := checkResp(resp, op); err != nil {
		return env, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return env, &RemoteError{Op: op, Status: resp.StatusCode, Message: "empty response body"}
		}
		return env, &RemoteError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return env, nil
}

// checkResp turns a non-2xx response into a RemoteError. The body's message
// (or error) is preferred over a status-derived one.
func checkResp(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &env) == nil {
		msg = strings.TrimSpace(env.Message)
		if msg == "" {
			msg = strings.TrimSpace(env.Error)
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}
	return &RemoteError{Op: op, Status: resp.StatusCode, Message: msg}
}
