package extcall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/commands"
)

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	var out struct{ Echo string }
	err := New(time.Second).DoJSON(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: map[string]string{"Authorization": "Bearer k"},
		Body:   map[string]string{"q": "hi"},
	}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Echo != "hi" {
		t.Errorf("echo = %q", out.Echo)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, "busy"},
		{http.StatusUnauthorized, "credentials"},
		{http.StatusNotFound, "found nothing"},
		{http.StatusBadGateway, "unavailable"},
		{http.StatusTeapot, "HTTP 418"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := New(time.Second).Do(context.Background(), Request{URL: srv.URL})
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.Status != tt.status {
				t.Fatalf("err = %v", err)
			}
			if httpErr.RetryAfter != 3*time.Second {
				t.Errorf("RetryAfter = %v", httpErr.RetryAfter)
			}

			op, ok := commands.AsOperational(Translate("weather", err))
			if !ok || !strings.Contains(op.Message, tt.want) || !strings.HasPrefix(op.Message, "weather") {
				t.Errorf("translated = %+v", op)
			}
		})
	}
}

func TestTimeoutIsOperational(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(50*time.Millisecond).Do(context.Background(), Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected timeout")
	}
	op, ok := commands.AsOperational(Translate("ai", err))
	if !ok || !strings.Contains(op.Message, "timed out") {
		t.Errorf("translated = %v", Translate("ai", err))
	}
}

func TestTranslatePassesThrough(t *testing.T) {
	if Translate("x", nil) != nil {
		t.Error("nil must stay nil")
	}
	plain := errors.New("decode response: bad json")
	if Translate("x", plain) != plain {
		t.Error("non-upstream error must pass through")
	}
	op := commands.Operational("already friendly")
	if Translate("x", op) != op {
		t.Error("operational error must pass through")
	}
}
