package vector_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/storage/vector"
)

var _ = Describe("MemoryVectorStore", func() {
	var (
		store    *vector.MemoryVectorStore
		ctx      context.Context
		tenantID uuid.UUID
		logger   *logrus.Logger
	)

	const model = "local-hash-v1"

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
		store = vector.NewMemoryVectorStore(logger)
		ctx = context.Background()
		tenantID = uuid.New()
	})

	embed := func(productID uuid.UUID, vec []float32) domain.ProductEmbedding {
		return domain.ProductEmbedding{
			TenantID:  tenantID,
			ProductID: productID,
			Model:     model,
			Embedding: vec,
			TextHash:  "hash",
			SourcedAt: time.Now().UTC(),
		}
	}

	Describe("Upsert and Get", func() {
		It("should store and return an embedding", func() {
			productID := uuid.New()
			Expect(store.Upsert(ctx, embed(productID, []float32{1, 0, 0}))).To(Succeed())

			got, err := store.Get(ctx, tenantID, productID, model)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.Embedding).To(Equal([]float32{1, 0, 0}))
		})

		It("should replace an existing embedding for the same key", func() {
			productID := uuid.New()
			Expect(store.Upsert(ctx, embed(productID, []float32{1, 0, 0}))).To(Succeed())
			Expect(store.Upsert(ctx, embed(productID, []float32{0, 1, 0}))).To(Succeed())

			got, err := store.Get(ctx, tenantID, productID, model)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Embedding).To(Equal([]float32{0, 1, 0}))
		})

		It("should return nil for a missing embedding", func() {
			got, err := store.Get(ctx, tenantID, uuid.New(), model)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})
	})

	Describe("HasEmbeddings", func() {
		It("should report presence per tenant and model", func() {
			Expect(store.Upsert(ctx, embed(uuid.New(), []float32{1, 0, 0}))).To(Succeed())

			has, err := store.HasEmbeddings(ctx, tenantID, model)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())

			has, err = store.HasEmbeddings(ctx, tenantID, "other-model")
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())

			has, err = store.HasEmbeddings(ctx, uuid.New(), model)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())
		})
	})

	Describe("SearchSimilar", func() {
		var exact, close, far uuid.UUID

		BeforeEach(func() {
			exact = uuid.New()
			close = uuid.New()
			far = uuid.New()

			Expect(store.Upsert(ctx, embed(exact, []float32{1, 0, 0}))).To(Succeed())
			Expect(store.Upsert(ctx, embed(close, []float32{0.9, 0.1, 0}))).To(Succeed())
			Expect(store.Upsert(ctx, embed(far, []float32{0, 0, 1}))).To(Succeed())
		})

		It("should rank by cosine similarity, best first", func() {
			hits, err := store.SearchSimilar(ctx, tenantID, model, []float32{1, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
			Expect(hits[0].ProductID).To(Equal(exact))
			Expect(hits[1].ProductID).To(Equal(close))
			Expect(hits[2].ProductID).To(Equal(far))
			Expect(hits[0].Similarity).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("should honor topK", func() {
			hits, err := store.SearchSimilar(ctx, tenantID, model, []float32{1, 0, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
		})

		It("should keep similarity within [0, 1]", func() {
			opposite := uuid.New()
			Expect(store.Upsert(ctx, embed(opposite, []float32{-1, 0, 0}))).To(Succeed())

			hits, err := store.SearchSimilar(ctx, tenantID, model, []float32{1, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			for _, hit := range hits {
				Expect(hit.Similarity).To(BeNumerically(">=", 0))
				Expect(hit.Similarity).To(BeNumerically("<=", 1))
			}
		})

		It("should not see other tenants' embeddings", func() {
			hits, err := store.SearchSimilar(ctx, uuid.New(), model, []float32{1, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Describe("DeleteForProduct", func() {
		It("should remove every model's embedding for the product", func() {
			productID := uuid.New()
			e1 := embed(productID, []float32{1, 0, 0})
			e2 := embed(productID, []float32{0, 1, 0})
			e2.Model = "second-model"
			Expect(store.Upsert(ctx, e1)).To(Succeed())
			Expect(store.Upsert(ctx, e2)).To(Succeed())

			Expect(store.DeleteForProduct(ctx, tenantID, productID)).To(Succeed())

			got, err := store.Get(ctx, tenantID, productID, model)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
			got, err = store.Get(ctx, tenantID, productID, "second-model")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})
	})
})

var _ = Describe("ClampSimilarity", func() {
	It("should map cosine to [0, 1]", func() {
		Expect(vector.ClampSimilarity(1)).To(BeNumerically("~", 1.0, 1e-9))
		Expect(vector.ClampSimilarity(0)).To(BeNumerically("~", 0.5, 1e-9))
		Expect(vector.ClampSimilarity(-1)).To(BeNumerically("~", 0.0, 1e-9))
	})
})
