package vector_test

import (
	"context"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/storage/vector"
)

// countingEmbedder wraps the local embedder and counts real calls.
type countingEmbedder struct {
	local *vector.LocalEmbeddingService
	calls int
}

func (c *countingEmbedder) EmbedText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, text string) (*ai.EmbeddingResult, error) {
	c.calls++
	return c.local.EmbedText(ctx, text)
}

func (c *countingEmbedder) Model() string { return c.local.Model() }

var _ = Describe("ProductEmbeddingService", func() {
	var (
		ctx      context.Context
		store    *vector.MemoryVectorStore
		embedder *countingEmbedder
		service  *vector.ProductEmbeddingService
		product  domain.Product
		settings domain.TenantSettings
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := logrus.New()
		logger.SetLevel(logrus.FatalLevel)

		store = vector.NewMemoryVectorStore(logger)
		embedder = &countingEmbedder{local: vector.NewLocalEmbeddingService(64, logger)}
		service = vector.NewProductEmbeddingService(store, embedder, logger)

		product = domain.Product{
			ID:          uuid.New(),
			TenantID:    uuid.New(),
			InternalSKU: "INT-777",
			Name:        "Kabel NYM-J 3x1,5",
			Description: "Installationsleitung",
			BaseUoM:     domain.UoMMeter,
			Active:      true,
		}
		settings = domain.TenantSettings{}
	})

	It("should create an embedding on first run", func() {
		status, err := service.EnsureProductEmbedding(ctx, settings, product, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(vector.EnsureCreated))
		Expect(embedder.calls).To(Equal(1))

		stored, err := store.Get(ctx, product.TenantID, product.ID, embedder.Model())
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).NotTo(BeNil())
		Expect(stored.TextHash).To(HaveLen(64))
	})

	It("should skip when the product text is unchanged, on every later run", func() {
		_, err := service.EnsureProductEmbedding(ctx, settings, product, false)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			status, err := service.EnsureProductEmbedding(ctx, settings, product, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(vector.EnsureSkipped))
		}
		Expect(embedder.calls).To(Equal(1))
	})

	It("should update when the product text changed", func() {
		_, err := service.EnsureProductEmbedding(ctx, settings, product, false)
		Expect(err).NotTo(HaveOccurred())

		product.Description = "Installationsleitung, grau"
		status, err := service.EnsureProductEmbedding(ctx, settings, product, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(vector.EnsureUpdated))
		Expect(embedder.calls).To(Equal(2))
	})

	It("should recompute when forced despite unchanged text", func() {
		_, err := service.EnsureProductEmbedding(ctx, settings, product, false)
		Expect(err).NotTo(HaveOccurred())

		status, err := service.EnsureProductEmbedding(ctx, settings, product, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(vector.EnsureUpdated))
		Expect(embedder.calls).To(Equal(2))
	})
})

var _ = Describe("CanonicalProductText", func() {
	It("should be deterministic for the same product", func() {
		p := domain.Product{
			InternalSKU: "INT-1",
			Name:        "Widget",
			BaseUoM:     domain.UoMPiece,
			Attributes:  map[string]string{"color": "red", "size": "L", "brand": "acme"},
		}
		first := vector.CanonicalProductText(p)
		for i := 0; i < 10; i++ {
			Expect(vector.CanonicalProductText(p)).To(Equal(first))
		}
	})

	It("should sort attributes so map order never changes the hash", func() {
		p := domain.Product{InternalSKU: "INT-1", Attributes: map[string]string{"b": "2", "a": "1", "c": "3"}}
		text := vector.CanonicalProductText(p)
		Expect(strings.Index(text, "a=1")).To(BeNumerically("<", strings.Index(text, "b=2")))
		Expect(strings.Index(text, "b=2")).To(BeNumerically("<", strings.Index(text, "c=3")))
	})

	It("should include the fields matching searches on", func() {
		p := domain.Product{InternalSKU: "INT-9", Name: "Cable", Description: "3x1.5", BaseUoM: domain.UoMMeter}
		text := vector.CanonicalProductText(p)
		Expect(text).To(ContainSubstring("INT-9"))
		Expect(text).To(ContainSubstring("Cable"))
		Expect(text).To(ContainSubstring("3x1.5"))
		Expect(text).To(ContainSubstring("M"))
	})
})

var _ = Describe("LocalEmbeddingService", func() {
	var logger *logrus.Logger

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
	})

	It("should default the dimension when non-positive", func() {
		Expect(vector.NewLocalEmbeddingService(0, logger).GetEmbeddingDimension()).To(Equal(384))
		Expect(vector.NewLocalEmbeddingService(-5, logger).GetEmbeddingDimension()).To(Equal(384))
		Expect(vector.NewLocalEmbeddingService(512, logger).GetEmbeddingDimension()).To(Equal(512))
	})

	It("should produce L2-normalized deterministic vectors", func() {
		service := vector.NewLocalEmbeddingService(128, logger)

		a, err := service.EmbedText(context.Background(), "kabel nym-j 3x1,5")
		Expect(err).NotTo(HaveOccurred())
		b, err := service.EmbedText(context.Background(), "kabel nym-j 3x1,5")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Vectors[0]).To(Equal(b.Vectors[0]))

		var sumSquares float64
		for _, v := range a.Vectors[0] {
			sumSquares += float64(v) * float64(v)
		}
		Expect(sumSquares).To(BeNumerically("~", 1.0, 1e-5))
	})

	It("should reject empty input", func() {
		service := vector.NewLocalEmbeddingService(128, logger)
		_, err := service.EmbedText(context.Background(), "   ")
		Expect(err).To(HaveOccurred())
	})

	It("should reject oversized batches", func() {
		service := vector.NewLocalEmbeddingService(8, logger)
		texts := make([]string, ai.MaxEmbedBatch+1)
		for i := range texts {
			texts[i] = "x"
		}
		_, err := service.EmbedBatch(context.Background(), texts)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Factory", func() {
	var logger *logrus.Logger

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
	})

	It("should return the memory store when disabled", func() {
		factory := vector.NewFactory(&vector.Config{Enabled: false}, nil, logger)
		store, err := factory.CreateStore()
		Expect(err).NotTo(HaveOccurred())
		Expect(store).NotTo(BeNil())
	})

	It("should handle nil parameters gracefully", func() {
		factory := vector.NewFactory(nil, nil, nil)
		store, err := factory.CreateStore()
		Expect(err).NotTo(HaveOccurred())
		Expect(store).NotTo(BeNil())
	})

	It("should fail pgvector without a pool", func() {
		factory := vector.NewFactory(&vector.Config{Enabled: true, Backend: "pgvector"}, nil, logger)
		_, err := factory.CreateStore()
		Expect(err).To(HaveOccurred())
	})

	It("should fall back to memory on unknown backends", func() {
		factory := vector.NewFactory(&vector.Config{Enabled: true, Backend: "quantum"}, nil, logger)
		store, err := factory.CreateStore()
		Expect(err).NotTo(HaveOccurred())
		Expect(store).NotTo(BeNil())
	})
})
