// Package retrieval implements the vector/text retrieval interface the
// core consumes as an external service (spec §4.10): vector_search,
// text_search, and a reciprocal-rank-fusion hybrid_search over the two.
package retrieval

import (
	"context"
	"sort"

	"github.com/coretask-core/coretask/pkg/embedclient"
)

// Hit is one scored retrieval result. Doc is opaque to this package; the
// EntityStore caller type-asserts it back to the concrete entity.
type Hit struct {
	Doc   interface{}
	Score float32
}

// VectorSearcher ranks candidates by cosine similarity to a query
// embedding.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, queryVec embedclient.Vector, k int) ([]Hit, error)
}

// TextSearcher ranks candidates by full-text relevance to a query string.
type TextSearcher interface {
	TextSearch(ctx context.Context, query string, k int) ([]Hit, error)
}

// docKey identifies a Hit's underlying document for rank fusion. Callers
// supply it since Doc is opaque here.
type DocKeyFunc func(doc interface{}) string

// DefaultVectorWeight and DefaultTextWeight are the hybrid_search blend
// weights from spec §4.10.
const (
	DefaultVectorWeight = 0.6
	DefaultTextWeight   = 0.4
)

// HybridSearch fuses vector and text hits by weighted reciprocal rank
// fusion: each hit's contribution is weight / (60 + rank), summed across
// the two lists and keyed by keyFn. This is rank-based, not score-based,
// so it tolerates the two searches using incomparable score scales.
func HybridSearch(vectorHits, textHits []Hit, keyFn DocKeyFunc, vectorWeight, textWeight float64) []Hit {
	if vectorWeight == 0 && textWeight == 0 {
		vectorWeight, textWeight = DefaultVectorWeight, DefaultTextWeight
	}

	const rrfK = 60.0
	fused := make(map[string]float64)
	docs := make(map[string]interface{})

	accumulate := func(hits []Hit, weight float64) {
		for rank, h := range hits {
			key := keyFn(h.Doc)
			fused[key] += weight / (rrfK + float64(rank+1))
			docs[key] = h.Doc
		}
	}
	accumulate(vectorHits, vectorWeight)
	accumulate(textHits, textWeight)

	results := make([]Hit, 0, len(fused))
	for key, score := range fused {
		results = append(results, Hit{Doc: docs[key], Score: float32(score)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
