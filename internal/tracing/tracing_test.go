package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/nextlevelbuilder/wabot/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupRejectsBadConfig(t *testing.T) {
	if _, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true}); err == nil {
		t.Error("expected error without endpoint")
	}
	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", Protocol: "carrier-pigeon"}
	if _, err := Setup(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestSetupHTTPExportsSpans(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" && r.Method == http.MethodPost {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "http",
		Endpoint: srv.URL + "/v1/traces",
		Insecure: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, span := Tracer().Start(context.Background(), "test")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if hits.Load() == 0 {
		t.Error("no spans exported")
	}
}
