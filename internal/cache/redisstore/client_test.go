package redisstore

import (
	"context"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newMini(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rc, err := New(ctx, mr.Addr(), WithPoolSize(4), WithReadTimeout(time.Second), WithWriteTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestSetGetMGetDel(t *testing.T) {
	_, rc := newMini(t)
	ctx := context.Background()

	for k, v := range map[string]string{"legend:a": "1", "legend:b": "2"} {
		if err := rc.Set(ctx, k, []byte(v), time.Minute); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	v, found, err := rc.Get(ctx, "legend:a")
	if err != nil || !found || string(v) != "1" {
		t.Fatalf("Get hit: v=%q found=%v err=%v", v, found, err)
	}
	if v, found, err = rc.Get(ctx, "legend:none"); err != nil || found || v != nil {
		t.Fatalf("Get miss: v=%q found=%v err=%v", v, found, err)
	}

	got, err := rc.MGet(ctx, []string{"legend:a", "legend:none", "legend:b"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["legend:a"]) != "1" || string(got["legend:b"]) != "2" {
		t.Fatalf("MGet=%q", got)
	}
	if got, err := rc.MGet(ctx, nil); err != nil || len(got) != 0 {
		t.Fatalf("empty MGet=%v err=%v", got, err)
	}

	if err := rc.Del(ctx, "legend:a", "legend:b"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if got, _ := rc.MGet(ctx, []string{"legend:a", "legend:b"}); len(got) != 0 {
		t.Fatalf("after Del MGet=%q", got)
	}
}

func TestMSetWithTTL_ExpiresTogether(t *testing.T) {
	mr, rc := newMini(t)
	ctx := context.Background()

	err := rc.MSetWithTTL(ctx, map[string][]byte{
		"legend:x": []byte("x"),
		"legend:y": []byte("y"),
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("MSetWithTTL: %v", err)
	}
	ttl, ok, err := rc.TTL(ctx, "legend:x")
	if err != nil || !ok || ttl != 2*time.Second {
		t.Fatalf("TTL=%v ok=%v err=%v", ttl, ok, err)
	}

	mr.FastForward(3 * time.Second)
	got, err := rc.MGet(ctx, []string{"legend:x", "legend:y"})
	if err != nil || len(got) != 0 {
		t.Fatalf("after expiry MGet=%q err=%v", got, err)
	}
	if _, ok, err := rc.TTL(ctx, "legend:x"); err != nil || ok {
		t.Fatalf("TTL of expired key ok=%v err=%v", ok, err)
	}
}

func TestScan_MatchesPattern(t *testing.T) {
	mr, rc := newMini(t)
	_ = mr.Set("legend:a", "1")
	_ = mr.Set("legend:b", "2")
	_ = mr.Set("other:c", "3")

	got, err := rc.Scan(context.Background(), "legend:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"legend:a", "legend:b"}) {
		t.Fatalf("Scan=%v", got)
	}
}

func TestCanceledContext_FailsEveryOp(t *testing.T) {
	_, rc := newMini(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatal("expected error on Set")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatal("expected error on Get")
	}
	if _, err := rc.MGet(ctx, []string{"k"}); err == nil {
		t.Fatal("expected error on MGet")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatal("expected error on Del")
	}
	if _, err := rc.Scan(ctx, "*"); err == nil {
		t.Fatal("expected error on Scan")
	}
}
