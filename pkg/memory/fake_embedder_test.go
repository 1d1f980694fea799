package memory

import (
	"context"
	"hash/fnv"

	"github.com/coretask-core/coretask/pkg/embedclient"
)

// fakeEmbedder produces a deterministic, unit-ish vector from the input
// text's hash so that identical strings embed identically and unrelated
// strings are near-orthogonal — good enough to exercise threshold logic
// without a real embedding model.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) (embedclient.Vector, error) {
	var v embedclient.Vector
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed%2000)-1000) / 1000
	}
	// Normalize.
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v, nil
	}
	inv := float32(1) / sqrt32(norm)
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}

func sqrt32(x float32) float32 {
	// Newton's method, a handful of iterations is plenty for test vectors.
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 12; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
