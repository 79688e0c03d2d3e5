// Package monitoring turns a finished run into operator alerts delivered
// by webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSourceFailureRate AlertType = "source_failure_rate"
	AlertSourceBlocked     AlertType = "source_blocked"
	AlertNoLeads           AlertType = "no_leads"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a run summary against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			JitterFraction: 0.25,
			OnRetry:        resilience.RetryLogger("monitoring", "webhook"),
		},
	}
}

// Evaluate checks the run against thresholds and returns any alerts.
func (a *Alerter) Evaluate(r *model.RunResult) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	t := r.Summary.Totals
	if t.Sources == 0 {
		return nil
	}

	rate := float64(t.SourcesFailed) / float64(t.Sources)
	if t.SourcesFailed > 0 && rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSourceFailureRate,
			Severity: "high",
			RunID:    r.RunID,
			Message: fmt.Sprintf(
				"Source failure rate %.1f%% exceeds threshold %.1f%% (%d of %d sources failed)",
				rate*100, a.cfg.FailureRateThreshold*100, t.SourcesFailed, t.Sources,
			),
			Details: map[string]any{
				"failure_rate": rate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       t.SourcesFailed,
				"sources":      t.Sources,
			},
			Timestamp: now,
		})
	}

	var blocked []string
	for _, s := range r.Summary.Sources {
		if s.Status == model.StatusBlocked {
			blocked = append(blocked, s.Source)
		}
	}
	if len(blocked) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertSourceBlocked,
			Severity:  "medium",
			RunID:     r.RunID,
			Message:   fmt.Sprintf("%d source(s) blocked by bot detection", len(blocked)),
			Details:   map[string]any{"sources": blocked},
			Timestamp: now,
		})
	}

	if t.Leads == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertNoLeads,
			Severity:  "high",
			RunID:     r.RunID,
			Message:   fmt.Sprintf("Run produced no leads from %d source(s)", t.Sources),
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// Notify evaluates r and sends whatever it triggers.
func (a *Alerter) Notify(ctx context.Context, r *model.RunResult) int {
	alerts := a.Evaluate(r)
	for _, al := range alerts {
		zap.L().Warn("monitoring: alert", zap.String("type", string(al.Type)), zap.String("message", al.Message))
	}
	return a.SendAlerts(ctx, alerts)
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
