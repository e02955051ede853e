package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/philverify/feedwatch/dbopen"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(db, opts...), clock
}

func TestCache_HitWithinTTL(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreResult(ctx, "text:abc", []byte(`{"verdict":"Credible"}`), "some claim", "Credible", 82); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := s.Lookup(ctx, "text:abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatal("fresh entry: got miss, want hit")
	}
	if string(got) != `{"verdict":"Credible"}` {
		t.Fatalf("cached result: got %s", got)
	}
}

func TestCache_ExpiredEntryEvictedOnRead(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreResult(ctx, "text:abc", []byte(`{}`), "p", "Unverified", 50); err != nil {
		t.Fatalf("store: %v", err)
	}
	clock.advance(DefaultTTL + time.Minute)

	if _, ok, err := s.Lookup(ctx, "text:abc"); err != nil || ok {
		t.Fatalf("expired lookup: got ok=%v err=%v, want miss", ok, err)
	}
	// The read path evicted the row entirely.
	if _, ok, err := s.Lookup(ctx, "text:abc"); err != nil || ok {
		t.Fatalf("post-evict lookup: got ok=%v err=%v, want miss", ok, err)
	}
}

func TestCache_MissUnknownKey(t *testing.T) {
	s, _ := newTestStore(t)
	if _, ok, err := s.Lookup(context.Background(), "url:never"); err != nil || ok {
		t.Fatalf("unknown key: got ok=%v err=%v, want miss", ok, err)
	}
}

func TestHistory_BoundedNewestFirst(t *testing.T) {
	s, clock := newTestStore(t, WithHistoryLimit(5))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		fp := fmt.Sprintf("text:%d", i)
		if err := s.StoreResult(ctx, fp, []byte(`{}`), fmt.Sprintf("claim %d", i), "Credible", float64(i)); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
		clock.advance(time.Second)
	}

	rows, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("history length: got %d, want 5", len(rows))
	}
	if rows[0].Fingerprint != "text:7" || rows[4].Fingerprint != "text:3" {
		t.Fatalf("history order: got %s..%s, want text:7..text:3",
			rows[0].Fingerprint, rows[4].Fingerprint)
	}
}

func TestHistory_DuplicateMovesToFront(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"text:a", "text:b", "text:c"} {
		if err := s.StoreResult(ctx, fp, []byte(`{}`), fp, "Unverified", 40); err != nil {
			t.Fatalf("store %s: %v", fp, err)
		}
		clock.advance(time.Second)
	}
	// Re-verify the oldest.
	if err := s.StoreResult(ctx, "text:a", []byte(`{}`), "text:a", "Credible", 70); err != nil {
		t.Fatalf("re-store: %v", err)
	}

	rows, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("history length: got %d, want 3 (no duplicate)", len(rows))
	}
	if rows[0].Fingerprint != "text:a" {
		t.Fatalf("front entry: got %s, want text:a", rows[0].Fingerprint)
	}
	if rows[0].Verdict != "Credible" {
		t.Fatalf("refreshed verdict: got %s, want Credible", rows[0].Verdict)
	}
}

func TestSettings_DefaultsSeededOnFirstRead(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	defaults := SettingsRow{APIBase: "http://localhost:8000", AutoScan: true}

	got, err := s.GetSettings(ctx, defaults)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != defaults {
		t.Fatalf("settings: got %+v, want defaults", got)
	}
}

func TestSettings_SaveAndVersionBump(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSettings(ctx, SettingsRow{APIBase: "http://localhost:8000", AutoScan: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	v1, err := s.SettingsVersion(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	clock.advance(time.Second)
	if err := s.SaveSettings(ctx, SettingsRow{APIBase: "https://api.example.com", AutoScan: false}); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	v2, err := s.SettingsVersion(ctx)
	if err != nil {
		t.Fatalf("version 2: %v", err)
	}
	if v2 <= v1 {
		t.Fatalf("version after save: got %d, want > %d", v2, v1)
	}

	got, err := s.GetSettings(ctx, SettingsRow{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.APIBase != "https://api.example.com" || got.AutoScan {
		t.Fatalf("settings: got %+v", got)
	}
}
