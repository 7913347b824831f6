package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"sofia/pkg/domain"
	"sofia/pkg/syncqueue"
)

const (
	DefaultSyncInterval = 30 * time.Second
	defaultTimeout      = 30 * time.Second

	apiQueueFile  = "offline_api_queue.json"
	dataQueueFile = "offline_queue.json"
)

// ErrAuthRequired is returned for 401 responses. The stored token is cleared.
var ErrAuthRequired = syncqueue.ErrAuthRequired

// NetworkError wraps a transport failure: no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Config configures a Client. BaseURL includes the API prefix, e.g.
// http://localhost:10000/api. StateDir holds the offline queue files; empty
// keeps the queues in memory.
type Config struct {
	BaseURL      string
	StateDir     string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	SyncInterval time.Duration
}

// Client talks to the Sofia API and buffers writes while offline.
type Client struct {
	rest     *resty.Client
	logger   *slog.Logger
	interval time.Duration

	apiQueue  *syncqueue.Queue
	dataQueue *syncqueue.Queue

	mu    sync.RWMutex
	token string
	user  *domain.User

	online  atomic.Bool
	trigger chan struct{}
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New().SetTimeout(defaultTimeout)
	}
	rc.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	var apiStore, dataStore syncqueue.Persister
	if cfg.StateDir != "" {
		apiStore = syncqueue.NewFilePersister(filepath.Join(cfg.StateDir, apiQueueFile))
		dataStore = syncqueue.NewFilePersister(filepath.Join(cfg.StateDir, dataQueueFile))
	} else {
		apiStore = &syncqueue.MemoryPersister{}
		dataStore = &syncqueue.MemoryPersister{}
	}

	dataQueue := syncqueue.New("data", dataStore,
		syncqueue.WithLogger(logger),
		syncqueue.WithDropOn(func(err error) bool {
			return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrUnknownDataType)
		}),
	)

	c := &Client{
		rest:      rc,
		logger:    logger,
		interval:  interval,
		apiQueue:  syncqueue.New("api", apiStore, syncqueue.WithLogger(logger)),
		dataQueue: dataQueue,
		trigger:   make(chan struct{}, 1),
	}
	c.online.Store(true)
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// CurrentUser returns the user from the last successful authentication.
func (c *Client) CurrentUser() (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return domain.User{}, false
	}
	return *c.user, true
}

func (c *Client) IsAuthenticated() bool {
	return c.Token() != ""
}

func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.user = nil
}

// Call performs one request and decodes a JSON response into out when out is
// non-nil. A []byte body is sent as-is.
func (c *Client) Call(ctx context.Context, method, endpoint string, body, out any) error {
	req := c.rest.R().SetContext(ctx).SetError(&errorBody{})
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	if body != nil && method != http.MethodGet {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, endpoint)
	return c.classify(ctx, resp, err)
}

func (c *Client) upload(ctx context.Context, filename, contentType string, r io.Reader, out any) error {
	req := c.rest.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		SetMultipartField("document", filename, contentType, r).
		SetResult(out)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	resp, err := req.Post("/documents/upload")
	return c.classify(ctx, resp, err)
}

func (c *Client) classify(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Err: err}
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.SetToken("")
		return ErrAuthRequired
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Error
		}
		return apiErr
	}
	return nil
}
