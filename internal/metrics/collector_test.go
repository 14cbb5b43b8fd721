package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()
	c.Envelope("telegram")
	c.Envelope("telegram")
	c.WebhookResponse("telegram", 200)
	c.Stage("cache", "hit")

	if got := testutil.ToFloat64(c.envelopes.WithLabelValues("telegram")); got != 2 {
		t.Errorf("expected 2 envelopes, got %v", got)
	}
	if got := testutil.ToFloat64(c.responses.WithLabelValues("telegram", "200")); got != 1 {
		t.Errorf("expected 1 response, got %v", got)
	}
	if got := testutil.ToFloat64(c.stages.WithLabelValues("cache", "hit")); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.Envelope("x")
	c.WebhookResponse("x", 500)
	c.DispatchError("http")
	c.Stage("memory", "empty")
	c.BrainDuration(time.Second)
	c.SocketClients(3)
	if c.Uptime() != 0 {
		t.Error("nil collector should report zero uptime")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SocketClients(4)
	c.BrainDuration(150 * time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"agentgate_socket_clients 4",
		"agentgate_brain_duration_seconds_count 1",
		"agentgate_uptime_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
