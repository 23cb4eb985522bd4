package observability

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordTransition("submit", "ok")
	m.RecordTaskCreated()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"taskflow_task_transitions_total", "taskflow_tasks_created_total"} {
		if !found[name] {
			t.Errorf("Expected metric %s to be registered", name)
		}
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransition("reject", "ok")
	m.RecordTransition("reject", "ok")
	m.RecordTransition("reject", "precondition_failed")
	m.RecordDenial("review_tasks")
	m.RecordCacheLookup("identity", true)
	m.RecordCacheLookup("identity", false)
	m.RecordInvalidation("role")
	m.RecordNotification("task.assigned", "error")
	m.ObserveStorage("save", "filesystem", time.Now(), errors.New("disk full"))
	m.UpdateDBStats(sql.DBStats{OpenConnections: 4, InUse: 1})

	if got := testutil.ToFloat64(m.TaskTransitionsTotal.WithLabelValues("reject", "ok")); got != 2 {
		t.Errorf("Expected 2 successful rejects, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthzDenialsTotal.WithLabelValues("review_tasks")); got != 1 {
		t.Errorf("Expected 1 denial, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("identity")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.StorageOperationsTotal.WithLabelValues("save", "filesystem", "error")); got != 1 {
		t.Errorf("Expected 1 storage error, got %v", got)
	}
	if got := testutil.ToFloat64(m.DBConnectionsOpen); got != 4 {
		t.Errorf("Expected 4 open connections, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition("start", "ok")
	m.RecordTaskCreated()
	m.RecordDenial("x")
	m.RecordLogin("ok")
	m.RecordCacheLookup("identity", true)
	m.RecordInvalidation("user")
	m.RecordNotification("e", "ok")
	m.ObserveStorage("save", "s3", time.Now(), nil)
	m.UpdateDBStats(sql.DBStats{})
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}).Methods("GET")

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest("GET", "/tasks/"+id, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/tasks/{id}", "404")); got != 3 {
		t.Errorf("Expected 3 requests under the route template, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordLogin("locked")

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `taskflow_login_attempts_total{result="locked"} 1`) {
		t.Errorf("Expected login counter in output, got:\n%s", rec.Body.String())
	}
}
