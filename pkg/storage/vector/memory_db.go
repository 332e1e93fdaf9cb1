package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/shared/mathutil"
)

// MemoryVectorStore is an in-process EmbeddingStore. Search is a
// linear scan; fine for tests and small catalogs.
type MemoryVectorStore struct {
	mu         sync.RWMutex
	embeddings map[string]domain.ProductEmbedding // key: tenant|product|model
	log        *logrus.Logger
}

// NewMemoryVectorStore builds an empty store. A nil logger is
// replaced with a quiet default.
func NewMemoryVectorStore(logger *logrus.Logger) *MemoryVectorStore {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &MemoryVectorStore{
		embeddings: make(map[string]domain.ProductEmbedding),
		log:        logger,
	}
}

func storeKey(tenantID, productID uuid.UUID, model string) string {
	return tenantID.String() + "|" + productID.String() + "|" + model
}

// Upsert implements EmbeddingStore.
func (s *MemoryVectorStore) Upsert(ctx context.Context, emb domain.ProductEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emb.ID == uuid.Nil {
		emb.ID = uuid.New()
	}
	emb.Embedding = append([]float32(nil), emb.Embedding...)
	s.embeddings[storeKey(emb.TenantID, emb.ProductID, emb.Model)] = emb
	return nil
}

// Get implements EmbeddingStore.
func (s *MemoryVectorStore) Get(ctx context.Context, tenantID, productID uuid.UUID, model string) (*domain.ProductEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[storeKey(tenantID, productID, model)]
	if !ok {
		return nil, nil
	}
	found := emb
	return &found, nil
}

// HasEmbeddings implements EmbeddingStore.
func (s *MemoryVectorStore) HasEmbeddings(ctx context.Context, tenantID uuid.UUID, model string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, emb := range s.embeddings {
		if emb.TenantID == tenantID && emb.Model == model {
			return true, nil
		}
	}
	return false, nil
}

// SearchSimilar implements EmbeddingStore.
func (s *MemoryVectorStore) SearchSimilar(ctx context.Context, tenantID uuid.UUID, model string, query []float32, topK int) ([]SimilarProduct, error) {
	if topK <= 0 {
		return nil, nil
	}

	q := toFloat64(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SimilarProduct
	for _, emb := range s.embeddings {
		if emb.TenantID != tenantID || emb.Model != model {
			continue
		}
		cosine := mathutil.CosineSimilarity(q, toFloat64(emb.Embedding))
		hits = append(hits, SimilarProduct{
			ProductID:  emb.ProductID,
			Cosine:     cosine,
			Similarity: ClampSimilarity(cosine),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteForProduct implements EmbeddingStore.
func (s *MemoryVectorStore) DeleteForProduct(ctx context.Context, tenantID, productID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, emb := range s.embeddings {
		if emb.TenantID == tenantID && emb.ProductID == productID {
			delete(s.embeddings, key)
		}
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
