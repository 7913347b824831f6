package clinical

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"sofia/pkg/domain"
)

const (
	AlertTypeSafetyTrigger = "safety_trigger"

	defaultTimeout = 10 * time.Second
)

// NewAlert builds the alert raised for a high or critical safety event.
func NewAlert(id string, ev domain.SafetyEvent, now time.Time) domain.ClinicalAlert {
	return domain.ClinicalAlert{
		ID:            id,
		UserID:        ev.UserID,
		SafetyEventID: ev.ID,
		AlertType:     AlertTypeSafetyTrigger,
		Priority:      ev.Severity,
		Message:       "User requires immediate clinical attention. Context: " + ev.Context,
		Context:       ev.Context,
		CreatedAt:     now,
	}
}

// Notifier forwards a raised alert to clinicians.
type Notifier interface {
	Notify(ctx context.Context, alert domain.ClinicalAlert) error
}

type webhookPayload struct {
	AlertID   string          `json:"alertId"`
	UserID    string          `json:"userId"`
	Priority  domain.Severity `json:"priority"`
	Context   string          `json:"context"`
	Timestamp string          `json:"timestamp"`
}

// WebhookNotifier posts alerts as JSON to an external clinician system.
type WebhookNotifier struct {
	client     *resty.Client
	url        string
	now        func() time.Time
	retryCount int
	retryWait  time.Duration
}

type Option func(*WebhookNotifier)

func WithHTTPClient(hc *http.Client) Option {
	return func(n *WebhookNotifier) {
		if hc != nil {
			n.client = resty.NewWithClient(hc)
		}
	}
}

// WithRetries retries transport errors and 5xx responses count more times.
func WithRetries(count int, wait time.Duration) Option {
	return func(n *WebhookNotifier) {
		n.retryCount = count
		n.retryWait = wait
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *WebhookNotifier) { n.now = now }
}

// NewWebhookNotifier returns nil when url is blank, which callers treat as
// "no webhook configured".
func NewWebhookNotifier(url string, opts ...Option) *WebhookNotifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	n := &WebhookNotifier{
		client: resty.New(),
		url:    url,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.client.
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if n.retryCount > 0 {
		n.client.
			SetRetryCount(n.retryCount).
			SetRetryWaitTime(n.retryWait).
			SetRetryMaxWaitTime(n.retryWait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
			})
	}
	return n
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert domain.ClinicalAlert) error {
	if n == nil {
		return nil
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			AlertID:   alert.ID,
			UserID:    alert.UserID,
			Priority:  alert.Priority,
			Context:   alert.Context,
			Timestamp: n.now().UTC().Format(time.RFC3339Nano),
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post clinician webhook: %w", err)
	}
	if resp.IsError() {
		return errors.New("clinician webhook returned " + resp.Status())
	}
	return nil
}
