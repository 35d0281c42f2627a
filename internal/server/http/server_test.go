package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/rzbill/strom/internal/config"
	"github.com/rzbill/strom/internal/persistence"
	"github.com/rzbill/strom/internal/runtime"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Persistence = "memory"
	cfg.DataDir = t.TempDir()
	cfg.Streams = []cfgpkg.StreamConfig{{Name: "orders"}}
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	srv := httptest.NewServer(New(rt, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestPublishAndTail(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/streams/orders/publish", "application/json", strings.NewReader(`{"sku":"x"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	var pos persistence.IdxTs
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	resp.Body.Close()
	if pos.Index != 0 || pos.Us == 0 {
		t.Fatalf("position %+v", pos)
	}

	resp, err = http.Get(srv.URL + "/v1/streams/orders?nowait=1&json=js")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := strings.TrimSpace(string(body)); got != `{"sku":"x"}` {
		t.Fatalf("tail body %q", got)
	}

	resp, err = http.Get(srv.URL + "/v1/streams/orders?sizeonly=1")
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Current-Stream-Size"); got != "1" {
		t.Fatalf("size header %q", got)
	}
}

func TestPublishRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/streams/orders/publish", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestReadsDoNotAutoCreateStreams(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/streams/ghost?sizeonly=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestPublishAutoCreatesStream(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/streams/audit/publish", "application/json", strings.NewReader(`1`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/streams")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list struct {
		Streams []string `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	found := false
	for _, name := range list.Streams {
		if name == "audit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("auto-created stream missing from %v", list.Streams)
	}
}

func TestInvalidStreamNameRejected(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/streams/Not%20Valid/publish", "application/json", strings.NewReader(`1`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}
