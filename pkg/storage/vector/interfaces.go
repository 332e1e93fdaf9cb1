// Package vector stores and searches product embeddings for the
// hybrid matching engine. Two backends exist: a pgvector-backed store
// (HNSW, cosine ops) for production and an in-memory store for tests
// and deployments without pgvector.
package vector

import (
	"context"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// SimilarProduct is one vector-search hit.
type SimilarProduct struct {
	ProductID  uuid.UUID
	Cosine     float64 // raw cosine in [-1, 1]
	Similarity float64 // (1 + cosine) / 2, clamped to [0, 1]
}

// EmbeddingStore persists product embeddings and answers similarity
// queries. All operations are tenant-scoped.
type EmbeddingStore interface {
	// Upsert stores or replaces the embedding for (tenant, product,
	// model).
	Upsert(ctx context.Context, emb domain.ProductEmbedding) error

	// Get returns the stored embedding, or nil when absent.
	Get(ctx context.Context, tenantID, productID uuid.UUID, model string) (*domain.ProductEmbedding, error)

	// HasEmbeddings reports whether any embedding exists for the
	// tenant and model; matching uses it to decide whether the vector
	// stage runs at all.
	HasEmbeddings(ctx context.Context, tenantID uuid.UUID, model string) (bool, error)

	// SearchSimilar returns the topK products most similar to the
	// query vector, best first.
	SearchSimilar(ctx context.Context, tenantID uuid.UUID, model string, query []float32, topK int) ([]SimilarProduct, error)

	// DeleteForProduct removes all models' embeddings of a product.
	DeleteForProduct(ctx context.Context, tenantID, productID uuid.UUID) error
}

// ClampSimilarity maps a raw cosine to [0, 1] via (1 + cosine) / 2.
func ClampSimilarity(cosine float64) float64 {
	s := (1 + cosine) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
