package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
)

// PostgresVectorStore is the pgvector-backed EmbeddingStore. The
// product_embedding table carries an HNSW index with vector_cosine_ops
// on the embedding column; <=> below is pgvector's cosine distance.
type PostgresVectorStore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresVectorStore builds the store over an existing pool.
func NewPostgresVectorStore(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresVectorStore {
	return &PostgresVectorStore{pool: pool, log: logger}
}

// Upsert implements EmbeddingStore.
func (s *PostgresVectorStore) Upsert(ctx context.Context, emb domain.ProductEmbedding) error {
	if emb.ID == uuid.Nil {
		emb.ID = uuid.New()
	}

	const q = `
		INSERT INTO product_embedding
			(id, tenant_id, product_id, model, embedding, text_hash, sourced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (tenant_id, product_id, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text_hash = EXCLUDED.text_hash,
			sourced_at = EXCLUDED.sourced_at,
			updated_at = now()`

	_, err := s.pool.Exec(ctx, q,
		emb.ID, emb.TenantID, emb.ProductID, emb.Model,
		pgvector.NewVector(emb.Embedding), emb.TextHash, emb.SourcedAt)
	if err != nil {
		return sharederrors.FailedToWithDetails("upsert product embedding", "vectordb", emb.ProductID.String(), err)
	}
	return nil
}

// Get implements EmbeddingStore.
func (s *PostgresVectorStore) Get(ctx context.Context, tenantID, productID uuid.UUID, model string) (*domain.ProductEmbedding, error) {
	const q = `
		SELECT id, tenant_id, product_id, model, embedding, text_hash, sourced_at, created_at, updated_at
		FROM product_embedding
		WHERE tenant_id = $1 AND product_id = $2 AND model = $3`

	var emb domain.ProductEmbedding
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, q, tenantID, productID, model).Scan(
		&emb.ID, &emb.TenantID, &emb.ProductID, &emb.Model,
		&vec, &emb.TextHash, &emb.SourcedAt, &emb.CreatedAt, &emb.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load product embedding", "vectordb", productID.String(), err)
	}
	emb.Embedding = vec.Slice()
	return &emb, nil
}

// HasEmbeddings implements EmbeddingStore.
func (s *PostgresVectorStore) HasEmbeddings(ctx context.Context, tenantID uuid.UUID, model string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM product_embedding WHERE tenant_id = $1 AND model = $2)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, tenantID, model).Scan(&exists); err != nil {
		return false, sharederrors.FailedToWithDetails("check embeddings exist", "vectordb", tenantID.String(), err)
	}
	return exists, nil
}

// SearchSimilar implements EmbeddingStore.
func (s *PostgresVectorStore) SearchSimilar(ctx context.Context, tenantID uuid.UUID, model string, query []float32, topK int) ([]SimilarProduct, error) {
	if topK <= 0 {
		return nil, nil
	}

	const q = `
		SELECT product_id, 1 - (embedding <=> $3) AS cosine
		FROM product_embedding
		WHERE tenant_id = $1 AND model = $2
		ORDER BY embedding <=> $3
		LIMIT $4`

	rows, err := s.pool.Query(ctx, q, tenantID, model, pgvector.NewVector(query), topK)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("vector similarity search", "vectordb", tenantID.String(), err)
	}
	defer rows.Close()

	var hits []SimilarProduct
	for rows.Next() {
		var hit SimilarProduct
		if err := rows.Scan(&hit.ProductID, &hit.Cosine); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		hit.Similarity = ClampSimilarity(hit.Cosine)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// DeleteForProduct implements EmbeddingStore.
func (s *PostgresVectorStore) DeleteForProduct(ctx context.Context, tenantID, productID uuid.UUID) error {
	const q = `DELETE FROM product_embedding WHERE tenant_id = $1 AND product_id = $2`
	if _, err := s.pool.Exec(ctx, q, tenantID, productID); err != nil {
		return sharederrors.FailedToWithDetails("delete product embeddings", "vectordb", productID.String(), err)
	}
	return nil
}
