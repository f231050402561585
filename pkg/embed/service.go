package embed

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foliumapp/ragcore/pkg/errs"
)

// Config controls the embedding service's cache sizing and provider
// throughput: embeddingDimension, interBatchPause, batchSize for
// throughput, and cacheMaxSize, cacheTTL for cache sizing.
type Config struct {
	Dimension       int
	Model           string
	CacheRoot       string
	CacheMaxSize    int
	CacheTTL        time.Duration
	BatchSize       int
	InterBatchPause time.Duration
	MaxRetries      int
	BaseBackoff     time.Duration
}

// DefaultConfig returns typical production defaults.
func DefaultConfig() Config {
	return Config{
		Dimension:       1536,
		CacheMaxSize:    10000,
		CacheTTL:        7 * 24 * time.Hour,
		BatchSize:       5,
		InterBatchPause: 50 * time.Millisecond,
		MaxRetries:      3,
		BaseBackoff:     200 * time.Millisecond,
	}
}

// Stats is the observability surface the embedding service maintains: hits, misses, and
// diskHits let a caller compute hit-rate as (hits+diskHits)/(hits+misses).
type Stats struct {
	Hits     int64
	Misses   int64
	DiskHits int64
}

// HitRate returns (hits+diskHits)/(hits+misses), or 0 if no lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits+s.DiskHits) / float64(total)
}

// Service is the embedding service: deterministic cache key, two-tier
// cache, bounded-parallelism batch fetch, and provider error
// classification with a retry policy over terminal/non-terminal kinds.
type Service struct {
	cfg      Config
	provider Provider
	mem      *memCache
	disk     *diskCache
	remote   *remoteMirror

	hits     int64
	misses   int64
	diskHits int64
}

// WithRemoteCache attaches an optional process-external mirror (pkg/redis)
// consulted after the disk tier and before the provider. Passing a nil
// cache is a no-op, so callers that don't run a shared cache can skip
// this entirely.
func (s *Service) WithRemoteCache(cache RemoteCache, ttl time.Duration) *Service {
	s.remote = newRemoteMirror(cache, ttl)
	return s
}

// NewService constructs a Service. cacheRoot is the directory backing the
// disk tier (created if absent).
func NewService(cfg Config, provider Provider) (*Service, error) {
	if cfg.CacheMaxSize <= 0 {
		cfg.CacheMaxSize = DefaultConfig().CacheMaxSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultConfig().BaseBackoff
	}

	disk, err := newDiskCache(cfg.CacheRoot, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		provider: provider,
		mem:      newMemCache(cfg.CacheMaxSize, cfg.CacheTTL),
		disk:     disk,
	}, nil
}

// Embed returns the vector for text, consulting memory then disk then
// the provider, in that order, back-filling the faster tiers on a hit
// from a slower one.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(text)

	if vec, ok := s.mem.get(key); ok {
		atomic.AddInt64(&s.hits, 1)
		return vec, nil
	}

	if vec, ok := s.disk.get(key, s.cfg.Dimension); ok {
		atomic.AddInt64(&s.diskHits, 1)
		s.mem.put(key, vec)
		return vec, nil
	}

	if s.remote != nil {
		if vec, ok := s.remote.get(ctx, key, s.cfg.Dimension); ok {
			atomic.AddInt64(&s.diskHits, 1)
			s.mem.put(key, vec)
			if err := s.disk.put(key, vec); err != nil {
				return vec, errs.New("embed.Embed", errs.EmbeddingFailed, err)
			}
			return vec, nil
		}
	}

	atomic.AddInt64(&s.misses, 1)

	vec, err := s.fetchWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mem.put(key, vec)
	if err := s.disk.put(key, vec); err != nil {
		return vec, errs.New("embed.Embed", errs.EmbeddingFailed, err)
	}
	if s.remote != nil {
		_ = s.remote.put(ctx, key, vec)
	}
	return vec, nil
}

// EmbedBatch embeds texts in fixed-size slices (cfg.BatchSize), running
// requests within a slice concurrently via errgroup, restoring input
// order before returning. Between slices it sleeps InterBatchPause,
// itself cancellable by ctx.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	batch := s.cfg.BatchSize

	for start := 0; start < len(texts); start += batch {
		end := start + batch
		if end > len(texts) {
			end = len(texts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				vec, err := s.Embed(gctx, texts[i])
				if err != nil {
					return err
				}
				results[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.InterBatchPause):
			}
		}
	}

	return results, nil
}

// fetchWithRetry wraps a single provider fetch with exponential backoff,
// per §4.3/§7: terminal kinds (AuthForbidden, ParseFailed) abort
// immediately; all others are retried up to MaxRetries times.
func (s *Service) fetchWithRetry(ctx context.Context, text string) ([]float32, error) {
	backoff := s.cfg.BaseBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		vec, err := s.provider.FetchOne(s.cfg.Model, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		var e *errs.Error
		if kindOf(err, &e) && e.Kind.Terminal() {
			return nil, err
		}
		if attempt == s.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

func kindOf(err error, out **errs.Error) bool {
	if e, ok := err.(*errs.Error); ok {
		*out = e
		return true
	}
	return false
}

// Stats returns a snapshot of the hit/miss/diskHit counters.
func (s *Service) Stats() Stats {
	return Stats{
		Hits:     atomic.LoadInt64(&s.hits),
		Misses:   atomic.LoadInt64(&s.misses),
		DiskHits: atomic.LoadInt64(&s.diskHits),
	}
}

// MemSize returns the current number of entries in the memory tier.
func (s *Service) MemSize() int { return s.mem.len() }

// MemCap returns the configured memory-tier capacity.
func (s *Service) MemCap() int { return s.cfg.CacheMaxSize }

// ClearMemoryCache empties the memory tier (I3 admin surface). It does
// not touch the disk tier.
func (s *Service) ClearMemoryCache() { s.mem.clear() }

// CleanupDiskCache removes disk-cache entries older than olderThan (I3 /
// §4.3 "disk-cache cleanup... may be scheduled at startup").
func (s *Service) CleanupDiskCache(olderThan time.Duration) (int, error) {
	return s.disk.cleanup(olderThan)
}
