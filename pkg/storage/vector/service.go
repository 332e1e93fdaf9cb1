package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// EnsureStatus reports what EnsureProductEmbedding did.
type EnsureStatus string

const (
	EnsureCreated EnsureStatus = "created"
	EnsureUpdated EnsureStatus = "updated"
	EnsureSkipped EnsureStatus = "skipped"
)

// TenantEmbedder is the slice of the gated embedder the service needs.
type TenantEmbedder interface {
	EmbedText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, text string) (*ai.EmbeddingResult, error)
	Model() string
}

// ProductEmbeddingService keeps product embeddings current. Dedup is
// by canonical-text hash: unchanged text short-circuits to skipped.
type ProductEmbeddingService struct {
	store    EmbeddingStore
	embedder TenantEmbedder
	log      *logrus.Logger
	now      func() time.Time
}

// NewProductEmbeddingService builds the service.
func NewProductEmbeddingService(store EmbeddingStore, embedder TenantEmbedder, logger *logrus.Logger) *ProductEmbeddingService {
	return &ProductEmbeddingService{store: store, embedder: embedder, log: logger, now: time.Now}
}

// WithClock overrides the service's clock.
func (s *ProductEmbeddingService) WithClock(now func() time.Time) *ProductEmbeddingService {
	s.now = now
	return s
}

// CanonicalProductText renders the text that gets embedded for a
// product: SKU, name, description, base UoM, and sorted attributes.
// The same product state always yields the same text, which is what
// makes the hash-based dedup sound.
func CanonicalProductText(p domain.Product) string {
	var sb strings.Builder
	sb.WriteString(p.InternalSKU)
	if p.Name != "" {
		sb.WriteString(" | ")
		sb.WriteString(p.Name)
	}
	if p.Description != "" {
		sb.WriteString(" | ")
		sb.WriteString(p.Description)
	}
	if p.BaseUoM != "" {
		sb.WriteString(" | ")
		sb.WriteString(string(p.BaseUoM))
	}
	if len(p.Attributes) > 0 {
		keys := make([]string, 0, len(p.Attributes))
		for k := range p.Attributes {
			keys = append(keys, k)
		}
		sortStrings(keys)
		for _, k := range keys {
			sb.WriteString(" | ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(p.Attributes[k])
		}
	}
	return sb.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// TextHash returns the SHA-256 of a canonical text as hex.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EnsureProductEmbedding embeds the product unless an embedding with
// the same text hash already exists (and force is false).
func (s *ProductEmbeddingService) EnsureProductEmbedding(ctx context.Context, settings domain.TenantSettings, product domain.Product, force bool) (EnsureStatus, error) {
	text := CanonicalProductText(product)
	hash := TextHash(text)
	model := s.embedder.Model()

	existing, err := s.store.Get(ctx, product.TenantID, product.ID, model)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.TextHash == hash && !force {
		return EnsureSkipped, nil
	}

	result, err := s.embedder.EmbedText(ctx, product.TenantID, settings, text)
	if err != nil {
		return "", err
	}

	emb := domain.ProductEmbedding{
		TenantID:  product.TenantID,
		ProductID: product.ID,
		Model:     model,
		Embedding: result.Vectors[0],
		TextHash:  hash,
		SourcedAt: s.now().UTC(),
	}
	if existing != nil {
		emb.ID = existing.ID
	}
	if err := s.store.Upsert(ctx, emb); err != nil {
		return "", err
	}

	if existing != nil {
		return EnsureUpdated, nil
	}
	return EnsureCreated, nil
}
