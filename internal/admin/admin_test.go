package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s00inx/staticd/internal/config"
	"github.com/s00inx/staticd/server/engine"
)

type fixedStats engine.StatsSnapshot

func (f fixedStats) Snapshot() engine.StatsSnapshot {
	return engine.StatsSnapshot(f)
}

func testHandler() *Handler {
	s := config.Default()
	s.Directory = "/srv/www"
	return NewHandler(s, fixedStats{Accepted: 10, Served: 8, NotFound: 2}, func() string { return "127.0.0.1:15282" })
}

func TestEndpoints(t *testing.T) {
	r := testHandler().Router()

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"health", "/health", http.StatusOK},
		{"status", "/api/status", http.StatusOK},
		{"unknown", "/api/nothing", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.endpoint, nil))

			if w.Code != tc.expectedStatus {
				t.Errorf("status %d, want %d", w.Code, tc.expectedStatus)
			}
		})
	}
}

func TestStatusBody(t *testing.T) {
	r := testHandler().Router()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json %q: %v", w.Body.String(), err)
	}

	if resp.Status != "running" || resp.Listen != "127.0.0.1:15282" {
		t.Errorf("status = %q, listen = %q", resp.Status, resp.Listen)
	}
	if resp.Directory != "/srv/www" || resp.Workers != 3 {
		t.Errorf("directory = %q, workers = %d", resp.Directory, resp.Workers)
	}
	if resp.Stats.Accepted != 10 || resp.Stats.Served != 8 || resp.Stats.NotFound != 2 {
		t.Errorf("stats = %+v", resp.Stats)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	l := logrus.New()
	l.SetOutput(io.Discard)
	srv := NewServer("", testHandler(), logrus.NewEntry(l))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
}
