package ntfy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/domain"
)

func TestNotifierSend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/market-alerts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("title"); got != "SIGNIFICANT NEGATIVE IMPACT 📉" {
			t.Errorf("unexpected title %q", got)
		}
		if got := r.URL.Query().Get("tags"); got != "chart_with_downwards_trend,negative" {
			t.Errorf("unexpected tags %q", got)
		}
		if got := r.Header.Get("Priority"); got != "high" {
			t.Errorf("unexpected priority %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tk" {
			t.Errorf("unexpected auth %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "User: @realDonaldTrump" {
			t.Errorf("unexpected body %q", body)
		}
	}))
	defer srv.Close()

	n := NewNotifier(config.NtfyConfig{Server: srv.URL + "/", Topic: "market-alerts", Token: "tk"})
	err := n.Send(context.Background(), domain.Alert{
		Title:    "SIGNIFICANT NEGATIVE IMPACT 📉",
		Body:     "User: @realDonaldTrump",
		Priority: "high",
		Tags:     []string{"chart_with_downwards_trend", "negative"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.Destination() != srv.URL+"/market-alerts" {
		t.Fatalf("unexpected destination %s", n.Destination())
	}
}

func TestNotifierDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewNotifier(config.NtfyConfig{Server: srv.URL, Topic: "t"})
	if err := n.Send(context.Background(), domain.Alert{Body: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNotifierMisconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier(config.NtfyConfig{})
	if err := n.Send(context.Background(), domain.Alert{Body: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}
