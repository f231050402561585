package embed_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foliumapp/ragcore/pkg/embed"
	"github.com/foliumapp/ragcore/pkg/errs"
)

// mockProvider implements embed.Provider for testing, returning
// deterministic vectors derived from text length and counting calls so
// tests can assert on cache behavior.
type mockProvider struct {
	calls   int64
	failN   int64 // fail the first failN calls with a non-terminal error
	termErr bool  // if set, every call fails with a terminal error
}

func (m *mockProvider) FetchOne(model, text string) ([]float32, error) {
	n := atomic.AddInt64(&m.calls, 1)
	if m.termErr {
		return nil, errs.New("mock.FetchOne", errs.AuthForbidden, errors.New("denied"))
	}
	if n <= m.failN {
		return nil, errs.New("mock.FetchOne", errs.ProviderUnavailable, errors.New("transient"))
	}
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(len(text)%10) / 10.0
	}
	return vec, nil
}

func newTestService(t *testing.T, p embed.Provider) *embed.Service {
	t.Helper()
	cfg := embed.DefaultConfig()
	cfg.CacheRoot = t.TempDir()
	cfg.Dimension = 8
	cfg.BaseBackoff = time.Millisecond
	svc, err := embed.NewService(cfg, p)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestService_Embed_CachesAcrossCalls(t *testing.T) {
	p := &mockProvider{}
	svc := newTestService(t, p)
	ctx := context.Background()

	v1, err := svc.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := svc.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed (cached): %v", err)
	}
	if len(v1) != len(v2) {
		t.Fatalf("expected equal-length vectors, got %d and %d", len(v1), len(v2))
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", p.calls)
	}

	stats := svc.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestService_Embed_DiskTierSurvivesMemoryClear(t *testing.T) {
	p := &mockProvider{}
	svc := newTestService(t, p)
	ctx := context.Background()

	if _, err := svc.Embed(ctx, "persisted text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	svc.ClearMemoryCache()

	if _, err := svc.Embed(ctx, "persisted text"); err != nil {
		t.Fatalf("Embed after clear: %v", err)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Fatalf("expected disk tier to avoid a second provider call, got %d calls", p.calls)
	}
	if svc.Stats().DiskHits != 1 {
		t.Fatalf("expected one disk hit, got %+v", svc.Stats())
	}
}

func TestService_Embed_RetriesNonTerminalErrors(t *testing.T) {
	p := &mockProvider{failN: 2}
	svc := newTestService(t, p)

	vec, err := svc.Embed(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected vector of length 8, got %d", len(vec))
	}
	if atomic.LoadInt64(&p.calls) != 3 {
		t.Fatalf("expected 2 failures + 1 success = 3 calls, got %d", p.calls)
	}
}

func TestService_Embed_TerminalErrorAbortsImmediately(t *testing.T) {
	p := &mockProvider{termErr: true}
	svc := newTestService(t, p)

	_, err := svc.Embed(context.Background(), "forbidden")
	if !errs.Is(err, errs.AuthForbidden) {
		t.Fatalf("expected AuthForbidden, got %v", err)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Fatalf("expected no retries for a terminal error, got %d calls", p.calls)
	}
}

func TestService_EmbedBatch_PreservesOrder(t *testing.T) {
	p := &mockProvider{}
	svc := newTestService(t, p)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "f"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if v == nil {
			t.Fatalf("vector at index %d is nil", i)
		}
	}
}

func TestStats_HitRate(t *testing.T) {
	s := embed.Stats{Hits: 3, DiskHits: 2, Misses: 5}
	got := s.HitRate()
	want := 5.0 / 8.0
	if got != want {
		t.Fatalf("HitRate() = %v, want %v", got, want)
	}
}

func TestStats_HitRate_NoLookups(t *testing.T) {
	s := embed.Stats{}
	if got := s.HitRate(); got != 0 {
		t.Fatalf("HitRate() with no lookups = %v, want 0", got)
	}
}
