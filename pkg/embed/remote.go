package embed

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// RemoteCache is the optional, process-external mirror of the disk tier
// (pkg/redis), shared across engine instances so a vector embedded by one
// process is visible to another without re-calling the provider. It is
// consulted after the disk tier and before the provider, and a hit backs
// fills both faster tiers. A nil RemoteCache disables the tier entirely —
// Service works identically to a disk-only two-tier cache without one.
type RemoteCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error
}

// remoteMirror adapts a RemoteCache to vector get/put, using the same
// raw little-endian float32 encoding as the disk tier so a value written
// by one tier is byte-identical to the other.
type remoteMirror struct {
	cache RemoteCache
	ttl   time.Duration
}

func newRemoteMirror(cache RemoteCache, ttl time.Duration) *remoteMirror {
	if cache == nil {
		return nil
	}
	return &remoteMirror{cache: cache, ttl: ttl}
}

func (r *remoteMirror) get(ctx context.Context, key string, dim int) ([]float32, bool) {
	data, ok, err := r.cache.GetBytes(ctx, "embedding:"+key)
	if err != nil || !ok {
		return nil, false
	}
	if dim > 0 && len(data) != dim*4 {
		return nil, false
	}
	if len(data)%4 != 0 {
		return nil, false
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, true
}

func (r *remoteMirror) put(ctx context.Context, key string, vector []float32) error {
	data := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(data[i*4:i*4+4], math.Float32bits(f))
	}
	return r.cache.SetBytes(ctx, "embedding:"+key, data, r.ttl)
}
