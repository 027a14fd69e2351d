// Package router exposes the geometry store over HTTP as GeoJSON.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/osm-geometry-store/internal/core/observability"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry/codec"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

const maxBodyBytes = 8 << 20

type Handlers struct {
	store  geometrystore.Store
	logger *slog.Logger
}

func New(store geometrystore.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, logger: logger}
}

// Mount registers the geometry routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/geometries", h.instrument("/geometries", h.handleKeys))
	r.Post("/geometries/cleanup", h.instrument("/geometries/cleanup", h.handleCleanup))
	r.Get("/geometries/{type}/{id}", h.instrument("/geometries/{type}/{id}", h.handleGet))
	r.Put("/geometries/{type}/{id}", h.instrument("/geometries/{type}/{id}", h.handlePut))
	r.Delete("/geometries/{type}/{id}", h.instrument("/geometries/{type}/{id}", h.handleDelete))
}

func (h *Handlers) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, ok, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.storeError(w, r, "get", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no geometry for %s", key))
		return
	}

	etag, err := etagOf(g)
	if err == nil {
		w.Header().Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeBody(w, http.StatusOK, "application/geo+json", toFeature(key, g))
}

func (h *Handlers) handlePut(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	g, err := parseFeature(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Put(r.Context(), key, g); err != nil {
		h.storeError(w, r, "put", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.store.Delete(r.Context(), key)
	if err != nil {
		h.storeError(w, r, "delete", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no geometry for %s", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keysResponse struct {
	BBox  string   `json:"bbox"`
	Count int      `json:"count"`
	Keys  []string `json:"keys"`
}

func (h *Handlers) handleKeys(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("bbox")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: bbox")
		return
	}
	bbox, err := parseBBOX(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid bbox: %v", err))
		return
	}

	keys, err := h.store.GetAllKeys(r.Context(), bbox)
	if err != nil {
		h.storeError(w, r, "get_all_keys", err)
		return
	}
	out := keysResponse{BBox: bbox.String(), Count: len(keys), Keys: make([]string, len(keys))}
	for i, k := range keys {
		out.Keys[i] = k.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteUnreferenced(r.Context())
	if err != nil {
		h.storeError(w, r, "cleanup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, geometry.ErrInvalidGeometry):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, codec.ErrCorruptGeometry):
		h.logger.ErrorContext(r.Context(), "corrupt geometry", "op", op, "err", err)
		writeError(w, http.StatusInternalServerError, "stored geometry is corrupt")
		return
	case errors.Is(err, geometrystore.ErrStorage):
		h.logger.ErrorContext(r.Context(), "storage failure", "op", op, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func toFeature(key geometry.ElementKey, g geometry.Geometry) *geojson.Feature {
	f := geojson.NewFeature(geometry.ToOrb(g))
	f.ID = key.String()
	c := g.Center()
	f.Properties["element_type"] = string(key.Type)
	f.Properties["element_id"] = key.ID
	f.Properties["kind"] = g.Kind().String()
	f.Properties["shape"] = string(geometry.Classify(key, g))
	f.Properties["center"] = []float64{c.Lon(), c.Lat()}
	return f
}

// etagMatches applies the weak comparison If-None-Match uses: any listed
// tag equal to etag once W/ prefixes are dropped, or "*".
func etagMatches(header, etag string) bool {
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || (tag != "" && strings.TrimPrefix(tag, "W/") == want) {
			return true
		}
	}
	return false
}

func etagOf(g geometry.Geometry) (string, error) {
	enc, err := codec.Encode(g)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(codec.Pack(enc))), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, status, "application/json", v)
}

func writeBody(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
