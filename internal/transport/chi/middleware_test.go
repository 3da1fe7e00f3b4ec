package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
)

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"implicit ok", 0, zapcore.InfoLevel},
		{"not found", http.StatusNotFound, zapcore.WarnLevel},
		{"unavailable", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			r := chi.NewRouter()
			r.Use(chiMiddleware.RequestID)
			r.Use(AccessLog(zap.New(core)))
			r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
				logpkg.FromContext(r.Context()).Info("inside handler")
				if tc.status != 0 {
					w.WriteHeader(tc.status)
				}
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prod-42", http.NoBody))

			if rr.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID not echoed")
			}
			inner := logs.FilterMessage("inside handler").All()
			if len(inner) != 1 || inner[0].ContextMap()["request_id"] == "" {
				t.Errorf("handler must log through the request logger: %+v", inner)
			}

			lines := logs.FilterMessage("http_request").All()
			if len(lines) != 1 {
				t.Fatalf("expected one access line, got %d", len(lines))
			}
			e := lines[0]
			if e.Level != tc.level {
				t.Errorf("level = %v, want %v", e.Level, tc.level)
			}
			fields := e.ContextMap()
			if fields["route"] != "/products/{id}" || fields["path"] != "/products/prod-42" {
				t.Errorf("route=%v path=%v", fields["route"], fields["path"])
			}
			want := tc.status
			if want == 0 {
				want = http.StatusOK
			}
			if fields["status"] != int64(want) {
				t.Errorf("status field = %v, want %d", fields["status"], want)
			}
		})
	}
}
