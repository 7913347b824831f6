package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"sofia/pkg/clinical"
	"sofia/pkg/domain"
	"sofia/pkg/store"
)

type SafetyEventInput struct {
	SessionID   string          `json:"sessionId"`
	TriggerType string          `json:"triggerType"`
	Severity    domain.Severity `json:"severity"`
	Keywords    []string        `json:"keywords"`
	Context     string          `json:"context"`
}

// CreateSafetyEvent stores a safety event. High and critical events also raise a
// clinical alert and notify the clinician webhook; webhook failures are only logged.
func (a *App) CreateSafetyEvent(ctx context.Context, user domain.User, in SafetyEventInput) (domain.SafetyEvent, error) {
	if strings.TrimSpace(in.TriggerType) == "" {
		return domain.SafetyEvent{}, domain.Validation("triggerType is required")
	}
	severity := domain.Severity(strings.ToLower(strings.TrimSpace(string(in.Severity))))
	if severity.Rank() == 0 {
		return domain.SafetyEvent{}, domain.Validation("severity must be low, medium, high or critical")
	}

	now := a.timestamp()
	ev := domain.SafetyEvent{
		ID:                a.newID(),
		UserID:            user.ID,
		SessionID:         in.SessionID,
		TriggerType:       in.TriggerType,
		Severity:          severity,
		Keywords:          nonNil(in.Keywords),
		Context:           in.Context,
		ClinicianNotified: severity.RequiresClinician(),
		CreatedAt:         now,
	}
	if err := a.store.CreateSafetyEvent(ctx, ev); err != nil {
		return domain.SafetyEvent{}, domain.Dependency("failed to create safety event", err)
	}
	if !ev.ClinicianNotified {
		return ev, nil
	}

	alert := clinical.NewAlert(a.newID(), ev, now)
	alert.UserName = user.Name
	if err := a.store.CreateClinicalAlert(ctx, alert); err != nil {
		return domain.SafetyEvent{}, domain.Dependency("failed to raise clinical alert", err)
	}
	a.metrics.IncClinicalAlerts(string(alert.Priority))
	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, alert); err != nil {
			a.logger.ErrorContext(ctx, "clinician webhook failed",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return ev, nil
}

func (a *App) PendingClinicalAlerts(ctx context.Context) ([]domain.ClinicalAlert, error) {
	alerts, err := a.store.ListPendingClinicalAlerts(ctx)
	if err != nil {
		return nil, domain.Dependency("failed to fetch clinical alerts", err)
	}
	return alerts, nil
}

// AcknowledgeClinicalAlert marks an alert as handled by the given admin.
func (a *App) AcknowledgeClinicalAlert(ctx context.Context, admin domain.User, alertID string) (domain.ClinicalAlert, error) {
	alert, err := a.store.AcknowledgeClinicalAlert(ctx, alertID, admin.ID, a.timestamp())
	if errors.Is(err, store.ErrNotFound) {
		return domain.ClinicalAlert{}, domain.NotFound("clinical alert not found")
	}
	if err != nil {
		return domain.ClinicalAlert{}, domain.Dependency("failed to acknowledge clinical alert", err)
	}
	return alert, nil
}

// AuditTrail returns a user's audit entries, newest first.
func (a *App) AuditTrail(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	if f.Limit <= 0 {
		f.Limit = store.DefaultAuditLimit
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return nil, domain.Validation("endDate must not be before startDate")
	}
	entries, err := a.store.ListAuditTrail(ctx, f)
	if err != nil {
		return nil, domain.Dependency("failed to fetch audit trail", err)
	}
	return entries, nil
}
