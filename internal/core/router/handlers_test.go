package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry/codec"
	"github.com/mohammed-shakir/osm-geometry-store/internal/logger"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[geometry.ElementKey]geometry.Geometry
	err     error
	cleaned int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[geometry.ElementKey]geometry.Geometry{}}
}

func (f *fakeStore) Get(_ context.Context, k geometry.ElementKey) (geometry.Geometry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	g, ok := f.rows[k]
	return g, ok, nil
}

func (f *fakeStore) Put(_ context.Context, k geometry.ElementKey, g geometry.Geometry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows[k] = g
	return nil
}

func (f *fakeStore) PutAll(ctx context.Context, entries []geometrystore.Entry) error {
	for _, e := range entries {
		if err := f.Put(ctx, e.Key, e.Geometry); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) GetAllKeys(_ context.Context, bbox geometry.BoundingBox) ([]geometry.ElementKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []geometry.ElementKey
	for k, g := range f.rows {
		if bbox.Contains(g.Center()) {
			out = append(out, k)
		}
	}
	return out, f.err
}

func (f *fakeStore) Delete(_ context.Context, k geometry.ElementKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[k]
	delete(f.rows, k)
	return ok, f.err
}

func (f *fakeStore) DeleteUnreferenced(context.Context) (int64, error) {
	return f.cleaned, f.err
}

func newTestServer(t *testing.T, fs *fakeStore) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(fs, logger.Discard()).Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, hdr ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPutThenGet_Feature(t *testing.T) {
	fs := newFakeStore()
	srv := newTestServer(t, fs)

	body := `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"center":[0.5,0.5]}}`
	if resp := do(t, http.MethodPut, srv.URL+"/geometries/way/7", body); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put status=%d", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, srv.URL+"/geometries/way/7", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type=%q", ct)
	}
	var f struct {
		ID         string         `json:"id"`
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.ID != "way/7" || f.Properties["kind"] != "polygons" || f.Properties["shape"] != "area" {
		t.Fatalf("feature=%+v", f)
	}
	if f.Geometry["type"] != "MultiPolygon" {
		t.Fatalf("geometry type=%v", f.Geometry["type"])
	}
}

func TestGet_ETagAndNotModified(t *testing.T) {
	fs := newFakeStore()
	fs.rows[geometry.NewElementKey(osm.TypeNode, 1)] = geometry.NewPoint(52, 13)
	srv := newTestServer(t, fs)

	resp := do(t, http.MethodGet, srv.URL+"/geometries/node/1", "")
	etag := resp.Header.Get("ETag")
	if resp.StatusCode != http.StatusOK || etag == "" {
		t.Fatalf("status=%d etag=%q", resp.StatusCode, etag)
	}
	resp = do(t, http.MethodGet, srv.URL+"/geometries/node/1", "", "If-None-Match", etag)
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("status=%d want 304", resp.StatusCode)
	}
	for _, inm := range []string{`"other", ` + etag, "W/" + etag, "*"} {
		resp = do(t, http.MethodGet, srv.URL+"/geometries/node/1", "", "If-None-Match", inm)
		if resp.StatusCode != http.StatusNotModified {
			t.Fatalf("If-None-Match %q: status=%d want 304", inm, resp.StatusCode)
		}
	}
	resp = do(t, http.MethodGet, srv.URL+"/geometries/node/1", "", "If-None-Match", `"other", W/"nope"`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("non-matching list: status=%d want 200", resp.StatusCode)
	}
}

func TestGet_NotFoundAndBadRequest(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	if resp := do(t, http.MethodGet, srv.URL+"/geometries/way/404", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/geometries/area/1", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, srv.URL+"/geometries/way/1", `{"type":"MultiLineString","coordinates":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}
}

func TestDelete(t *testing.T) {
	fs := newFakeStore()
	fs.rows[geometry.NewElementKey(osm.TypeWay, 3)] = geometry.NewPoint(0, 0)
	srv := newTestServer(t, fs)

	if resp := do(t, http.MethodDelete, srv.URL+"/geometries/way/3", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/geometries/way/3", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}

func TestKeys_BBox(t *testing.T) {
	fs := newFakeStore()
	fs.rows[geometry.NewElementKey(osm.TypeNode, 1)] = geometry.NewPoint(0, 179)
	fs.rows[geometry.NewElementKey(osm.TypeNode, 2)] = geometry.NewPoint(0, 0)
	srv := newTestServer(t, fs)

	resp := do(t, http.MethodGet, srv.URL+"/geometries?bbox=175,-10,-175,10", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out keysResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || out.Keys[0] != "node/1" {
		t.Fatalf("out=%+v", out)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/geometries", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing bbox status=%d", resp.StatusCode)
	}
}

func TestCleanup(t *testing.T) {
	fs := newFakeStore()
	fs.cleaned = 4
	srv := newTestServer(t, fs)

	resp := do(t, http.MethodPost, srv.URL+"/geometries/cleanup", "")
	var out map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || out["deleted"] != 4 {
		t.Fatalf("status=%d out=%v", resp.StatusCode, out)
	}
}

func TestStoreErrors_MapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&geometrystore.StorageError{Op: "get", Err: fmt.Errorf("conn refused")}, http.StatusServiceUnavailable},
		{fmt.Errorf("geometry way/1: %w", codec.ErrCorruptGeometry), http.StatusInternalServerError},
		{fmt.Errorf("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		fs := newFakeStore()
		fs.err = tc.err
		srv := newTestServer(t, fs)
		if resp := do(t, http.MethodGet, srv.URL+"/geometries/way/1", ""); resp.StatusCode != tc.want {
			t.Fatalf("%v: status=%d want %d", tc.err, resp.StatusCode, tc.want)
		}
	}
}
