package redisstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get k1 got=%q ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing ok=%v err=%v", ok, err)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k1"); ok {
		t.Fatalf("k1 still present after Del")
	}
	if err := rc.Del(ctx); err != nil {
		t.Fatalf("Del without keys: %v", err)
	}
}

func TestTTLExpiry_GetMissesExpired(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)

	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected ttl-key to be absent after expiry; ok=%v err=%v", ok, err)
	}
}

func TestDelPrefix_RemovesOnlyMatchingKeys(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		if err := rc.Set(ctx, fmt.Sprintf("geom:WAY:%d", i), []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := rc.Set(ctx, "other:1", []byte("y"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	n, err := rc.DelPrefix(ctx, "geom:")
	if err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if n != 1200 {
		t.Fatalf("removed=%d want 1200", n)
	}
	if !mr.Exists("other:1") {
		t.Fatalf("unrelated key was removed")
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestMetrics_Incremented(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	_ = rc.Set(ctx, "m1", []byte("x"), time.Minute)
	_, _, _ = rc.Get(ctx, "m1")
	_ = rc.Del(ctx, "m1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, op := range []string{"set", "get", "del"} {
		if !strings.Contains(body, `cache_op_total{op="`+op+`",outcome="ok"}`) {
			t.Fatalf("missing cache_op_total for %s; got:\n%s", op, body)
		}
	}
	if !strings.Contains(body, `redis_operation_duration_seconds_bucket{op="set"`) {
		t.Fatalf("missing redis_operation_duration_seconds histogram; got:\n%s", body)
	}
}

func TestDelPrefix_RemovesEveryKeyAcrossScanPages(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	keys := make([]string, 0, 2600)
	for i := 0; i < 2600; i++ {
		keys = append(keys, fmt.Sprintf("geom:NODE:%d", i))
	}
	if err := rc.SetAll(ctx, keys, []byte("x"), time.Minute); err != nil {
		t.Fatalf("SetAll: %v", err)
	}

	n, err := rc.DelPrefix(ctx, "geom:")
	if err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if n != len(keys) {
		t.Fatalf("removed=%d want %d", n, len(keys))
	}
	if left := mr.Keys(); len(left) != 0 {
		t.Fatalf("%d keys survived, first %q", len(left), left[0])
	}
}

func TestSetNX_OnlyWritesAbsentKey(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "k", []byte("first"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX ok=%v err=%v", ok, err)
	}
	ok, err = rc.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX ok=%v err=%v", ok, err)
	}
	if v, _ := mr.Get("k"); v != "first" {
		t.Fatalf("value=%q want first", v)
	}
}

func TestSetAll_AppliesTTLToEveryKey(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.SetAll(ctx, []string{"a", "b"}, []byte("v"), 5*time.Second); err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if ttl := mr.TTL(k); ttl != 5*time.Second {
			t.Fatalf("%s ttl=%v want 5s", k, ttl)
		}
	}
	if err := rc.SetAll(ctx, nil, []byte("v"), time.Second); err != nil {
		t.Fatalf("SetAll with no keys: %v", err)
	}
}
