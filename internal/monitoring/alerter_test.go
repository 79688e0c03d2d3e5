package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
)

func runWith(leads int, stats ...model.SourceStats) *model.RunResult {
	r := &model.RunResult{RunID: "run-1"}
	for _, s := range stats {
		r.Summary.Sources = append(r.Summary.Sources, s)
		r.Summary.Totals.Add(s)
	}
	r.Summary.Totals.Leads = leads
	return r
}

var (
	okSource      = model.SourceStats{Source: "axis_direct", Status: model.StatusOK, Leads: 3}
	blockedSource = model.SourceStats{Source: "moneycontrol", Status: model.StatusBlocked, Failure: model.FailureBlocked}
	quietSource   = model.SourceStats{Source: "sharekhan", Status: model.StatusOK, Failure: model.FailureNoCandidates}
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	alerts := a.Evaluate(runWith(3, okSource, okSource, quietSource))
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_EmptyRun(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})
	assert.Empty(t, a.Evaluate(&model.RunResult{}))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	alerts := a.Evaluate(runWith(3, okSource, quietSource, quietSource))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourceFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, "run-1", alerts[0].RunID)
	assert.Contains(t, alerts[0].Message, "66.7%")
	assert.Contains(t, alerts[0].Message, "2 of 3")
}

func TestAlerter_Evaluate_Blocked(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.9})

	alerts := a.Evaluate(runWith(3, okSource, blockedSource))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourceBlocked, alerts[0].Type)
	assert.Equal(t, []string{"moneycontrol"}, alerts[0].Details["sources"])
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1})

	alerts := a.Evaluate(runWith(0, blockedSource, quietSource))
	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.Len(t, alerts, 3)
	assert.True(t, types[AlertSourceFailureRate])
	assert.True(t, types[AlertSourceBlocked])
	assert.True(t, types[AlertNoLeads])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertSourceFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertNoLeads, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertNoLeads, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func fastAlerter(url string) *Alerter {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: url})
	a.retry.InitialBackoff = time.Millisecond
	a.retry.MaxBackoff = time.Millisecond
	return a
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sent := fastAlerter(ts.URL).SendAlerts(context.Background(), []Alert{{Type: AlertNoLeads, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_SendAlerts_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sent := fastAlerter(ts.URL).SendAlerts(context.Background(), []Alert{{Type: AlertNoLeads, Message: "test"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	sent := fastAlerter(ts.URL).SendAlerts(context.Background(), []Alert{{Type: AlertNoLeads, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_Notify(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.5})

	assert.Equal(t, 0, a.Notify(context.Background(), runWith(3, okSource)))
	// Failure rate, blocked source and no leads.
	assert.Equal(t, 3, a.Notify(context.Background(), runWith(0, blockedSource)))
	assert.Equal(t, int32(3), received.Load())
}
