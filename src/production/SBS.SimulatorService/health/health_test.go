package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	metrics "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Metrics"
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
	publisher "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Publisher"
)

type stubSink struct {
	connected bool
	err       error
}

func (s *stubSink) Name() string { return "stub" }
func (s *stubSink) Publish(context.Context, publisher.Message) error {
	return s.err
}
func (s *stubSink) IsConnected() bool { return s.connected }
func (s *stubSink) Close() error      { return nil }

func testReading() sbsmodels.Reading {
	return sbsmodels.Reading{DeviceValue: 80, DeviceParameter: sbsmodels.Flow, DeviceID: "SBS01", MessageID: "sess-0", SessionID: "sess"}
}

func newRouter(pub *publisher.Publisher, collectors *metrics.Collectors) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewController(pub, collectors, "sess").RegisterRoutes(r)
	return r
}

func get(t *testing.T, r http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: decode %q: %v", path, w.Body.String(), err)
	}
	return w.Code, body
}

func TestHealthLive(t *testing.T) {
	collectors := metrics.NewCollectors()
	r := newRouter(publisher.New(publisher.Options{Collectors: collectors}), collectors)
	code, body := get(t, r, "/health/live")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("live = %d %v", code, body)
	}
}

func TestHealthReadySimulation(t *testing.T) {
	collectors := metrics.NewCollectors()
	r := newRouter(publisher.New(publisher.Options{Collectors: collectors}), collectors)
	code, body := get(t, r, "/health/ready")
	if code != http.StatusOK || body["mode"] != "simulation" || body["session_id"] != "sess" {
		t.Errorf("ready = %d %v", code, body)
	}
}

func TestHealthReadyLive(t *testing.T) {
	collectors := metrics.NewCollectors()
	sink := &stubSink{connected: true, err: errors.New("down")}
	breaker := publisher.NewCircuitBreaker(1, time.Hour, nil)
	pub := publisher.New(publisher.Options{Sink: publisher.NewBreakerSink(sink, breaker), Collectors: collectors})
	r := newRouter(pub, collectors)

	code, body := get(t, r, "/health/ready")
	if code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready = %d %v", code, body)
	}

	// one failure opens the breaker
	pub.Publish(context.Background(), "/sbs/devicedata/flow", testReading())
	code, body = get(t, r, "/health/ready")
	if code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Fatalf("ready after failure = %d %v", code, body)
	}
	cb, ok := body["circuit_breaker"].(map[string]interface{})
	if !ok || cb["state"] != "open" {
		t.Errorf("circuit_breaker = %v", body["circuit_breaker"])
	}
}

func TestHealthReadyDisconnected(t *testing.T) {
	collectors := metrics.NewCollectors()
	pub := publisher.New(publisher.Options{Sink: &stubSink{}, Collectors: collectors})
	code, _ := get(t, newRouter(pub, collectors), "/health/ready")
	if code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collectors := metrics.NewCollectors()
	pub := publisher.New(publisher.Options{Collectors: collectors})
	pub.Publish(context.Background(), "/sbs/devicedata/flow", testReading())

	w := httptest.NewRecorder()
	newRouter(pub, collectors).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `sbs_messages_published_total{parameter="Flow"} 1`) {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	collectors := metrics.NewCollectors()
	r := gin.New()
	r.Use(cors.New(corsConfig([]string{"http://dashboard.local"})))
	NewController(publisher.New(publisher.Options{Collectors: collectors}), collectors, "sess").RegisterRoutes(r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin code = %d, want 403", w.Code)
	}
}
