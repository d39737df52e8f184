package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AximoxAI/orbital/internal/wire"
)

// ErrHistoryLoad marks a failed history fetch, distinguishable from an
// empty history (which is a nil error and an empty slice).
var ErrHistoryLoad = errors.New("history load failed")

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type ClientOptions struct {
	BaseURL string
	// Token is the bearer token obtained by an external collaborator;
	// this client only attaches it.
	Token   string
	Timeout time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("history base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Messages fetches the raw, pre-normalization message history for a task.
func (c *Client) Messages(ctx context.Context, taskID string) ([]wire.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrHistoryLoad)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := strings.TrimSpace(taskID)
	if id == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrHistoryLoad)
	}

	endpoint := c.baseURL + "/tasks/" + url.PathEscape(id) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryLoad, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrHistoryLoad, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out []wire.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrHistoryLoad, err)
	}
	return out, nil
}
