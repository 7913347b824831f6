package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sofia/pkg/syncqueue"
)

const StatusQueuedOffline = "queued_offline"

var ErrUnknownDataType = errors.New("unknown offline data type")

// Data mutation types for SaveData.
const (
	DataAboutMe     = "aboutMe"
	DataChapter     = "chapter"
	DataGoal        = "goal"
	DataFeedback    = "feedback"
	DataSafetyEvent = "safetyEvent"
)

type route struct {
	method   string
	endpoint string
}

var dataRoutes = map[string]route{
	DataAboutMe:     {http.MethodPut, "/users/about-me"},
	DataChapter:     {http.MethodPost, "/story-chapters"},
	DataGoal:        {http.MethodPost, "/goals"},
	DataFeedback:    {http.MethodPost, "/feedback"},
	DataSafetyEvent: {http.MethodPost, "/safety-events"},
}

// Queued is returned in place of a response when a call was buffered.
type Queued struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	QueueLength int    `json:"queueLength"`
}

type QueueStatus struct {
	APIRequests int `json:"apiRequests"`
	DataItems   int `json:"dataItems"`
	Total       int `json:"total"`
}

type SyncReport struct {
	API  syncqueue.Report `json:"api"`
	Data syncqueue.Report `json:"data"`
}

// SetOnline records connectivity. Going from offline to online schedules a sync.
func (c *Client) SetOnline(online bool) {
	was := c.online.Swap(online)
	if online && !was {
		c.scheduleSync()
	}
}

func (c *Client) Online() bool {
	return c.online.Load()
}

func (c *Client) scheduleSync() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// CallWithOfflineSupport performs the call, or queues it when offline or when
// the transport fails. A queued call returns a non-nil *Queued and no error.
func (c *Client) CallWithOfflineSupport(ctx context.Context, method, endpoint string, body, out any) (*Queued, error) {
	if c.online.Load() {
		err := c.Call(ctx, method, endpoint, body, out)
		var netErr *NetworkError
		if err == nil || !errors.As(err, &netErr) {
			return nil, err
		}
	}

	entry := syncqueue.Entry{Endpoint: endpoint, Method: method}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode queued payload: %w", err)
		}
		entry.Payload = payload
	}
	n, err := c.apiQueue.Enqueue(entry)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "request queued for offline sync",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
	)
	return &Queued{
		Status:      StatusQueuedOffline,
		Message:     "Request queued for when connection is restored",
		QueueLength: n,
	}, nil
}

// SaveData sends a data mutation. Failures other than transport failures
// (which land in the API queue) are kept in the data queue for the next sync.
func (c *Client) SaveData(ctx context.Context, dataType string, data any) error {
	r, ok := dataRoutes[dataType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataType, dataType)
	}
	_, err := c.CallWithOfflineSupport(ctx, r.method, r.endpoint, data, nil)
	if err == nil {
		return nil
	}
	c.logger.WarnContext(ctx, "save failed, queued for sync",
		slog.String("type", dataType),
		slog.String("error", err.Error()),
	)
	payload, mErr := json.Marshal(data)
	if mErr != nil {
		return fmt.Errorf("encode queued data: %w", mErr)
	}
	_, qErr := c.dataQueue.Enqueue(syncqueue.Entry{Type: dataType, Payload: payload})
	return qErr
}

func (c *Client) QueueStatus() (QueueStatus, error) {
	api, err := c.apiQueue.Len()
	if err != nil {
		return QueueStatus{}, err
	}
	data, err := c.dataQueue.Len()
	if err != nil {
		return QueueStatus{}, err
	}
	return QueueStatus{APIRequests: api, DataItems: data, Total: api + data}, nil
}

// Sync replays the API queue and then the data queue.
func (c *Client) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	apiReport, err := c.apiQueue.Replay(ctx, c.replayCall)
	if err != nil {
		return report, fmt.Errorf("replay api queue: %w", err)
	}
	report.API = apiReport

	dataReport, err := c.dataQueue.Replay(ctx, c.replayData)
	if err != nil {
		return report, fmt.Errorf("replay data queue: %w", err)
	}
	report.Data = dataReport
	return report, nil
}

func (c *Client) replayCall(ctx context.Context, e syncqueue.Entry) error {
	var body any
	if len(e.Payload) > 0 {
		body = []byte(e.Payload)
	}
	return c.Call(ctx, e.Method, e.Endpoint, body, nil)
}

func (c *Client) replayData(ctx context.Context, e syncqueue.Entry) error {
	r, ok := dataRoutes[e.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataType, e.Type)
	}
	var body any
	if len(e.Payload) > 0 {
		body = []byte(e.Payload)
	}
	return c.Call(ctx, r.method, r.endpoint, body, nil)
}

// Run syncs on reconnect, after authentication, and every sync interval while
// items are queued. It returns when ctx is done.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			c.syncIfOnline(ctx, "triggered")
		case <-ticker.C:
			status, err := c.QueueStatus()
			if err == nil && status.Total > 0 {
				c.syncIfOnline(ctx, "periodic")
			}
		}
	}
}

func (c *Client) syncIfOnline(ctx context.Context, reason string) {
	if !c.online.Load() {
		return
	}
	report, err := c.Sync(ctx)
	if errors.Is(err, syncqueue.ErrReplayInProgress) {
		return
	}
	if err != nil {
		c.logger.WarnContext(ctx, "offline sync failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.InfoContext(ctx, "offline sync complete",
		slog.String("reason", reason),
		slog.Int("processed", report.API.Processed+report.Data.Processed),
		slog.Int("remaining", report.API.Remaining+report.Data.Remaining),
	)
}
