package matching_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/matching"
)

// recordingFeedback captures feedback events.
type recordingFeedback struct {
	mu     sync.Mutex
	events []domain.FeedbackEvent
}

func (r *recordingFeedback) Record(ctx context.Context, event domain.FeedbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

var _ = Describe("Learner", func() {
	var (
		ctx      context.Context
		store    *matching.MemoryMappings
		feedback *recordingFeedback
		learner  *matching.Learner
		tenantID uuid.UUID
		customer uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := logrus.New()
		logger.SetLevel(logrus.FatalLevel)

		store = matching.NewMemoryMappings(nil)
		feedback = &recordingFeedback{}
		learner = matching.NewLearner(store, feedback, logger)
		tenantID = uuid.New()
		customer = uuid.New()
	})

	decision := func(internalSKU string) matching.Decision {
		return matching.Decision{
			TenantID:      tenantID,
			CustomerID:    customer,
			NormalizedSKU: "XYZ-99",
			InternalSKU:   internalSKU,
			Actor:         "sam",
		}
	}

	Describe("Confirm", func() {
		It("should create a CONFIRMED mapping on first confirmation", func() {
			mapping, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			Expect(mapping.Status).To(Equal(domain.MappingConfirmed))
			Expect(mapping.SupportCount).To(Equal(1))
			Expect(mapping.LastUsedAt).NotTo(BeNil())

			// The matching engine's step-1 lookup now hits it.
			found, err := store.FindConfirmed(ctx, tenantID, customer, "XYZ-99")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.InternalSKU).To(Equal("INT-777"))

			Expect(feedback.events).To(HaveLen(1))
			Expect(feedback.events[0].Kind).To(Equal(domain.FeedbackMappingConfirmed))
			Expect(feedback.events[0].MappingID).NotTo(BeNil())
		})

		It("should bump the support counter on repeated confirmation", func() {
			_, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())
			mapping, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			Expect(mapping.SupportCount).To(Equal(2))
			Expect(feedback.events).To(HaveLen(2))
		})

		It("should promote a SUGGESTED mapping to CONFIRMED", func() {
			suggested := domain.SKUMapping{
				ID: uuid.New(), TenantID: tenantID, CustomerID: customer,
				NormalizedSKU: "XYZ-99", InternalSKU: "INT-777",
				Status: domain.MappingSuggested,
			}
			Expect(store.Save(ctx, &suggested)).To(Succeed())

			mapping, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())
			Expect(mapping.ID).To(Equal(suggested.ID))
			Expect(mapping.Status).To(Equal(domain.MappingConfirmed))
		})

		It("should deprecate the old mapping when the product changes", func() {
			first, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			second, err := learner.Confirm(ctx, decision("INT-888"))
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).NotTo(Equal(first.ID))
			Expect(second.InternalSKU).To(Equal("INT-888"))
			Expect(second.Status).To(Equal(domain.MappingConfirmed))

			// Only the new link is live.
			found, err := store.FindConfirmed(ctx, tenantID, customer, "XYZ-99")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.InternalSKU).To(Equal("INT-888"))
		})
	})

	Describe("Reject", func() {
		It("should record a REJECTED mapping so the pairing is remembered", func() {
			mapping, err := learner.Reject(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			Expect(mapping.Status).To(Equal(domain.MappingRejected))
			Expect(mapping.RejectCount).To(Equal(1))

			found, err := store.FindConfirmed(ctx, tenantID, customer, "XYZ-99")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil(), "a rejected pairing must never auto-apply")

			Expect(feedback.events).To(HaveLen(1))
			Expect(feedback.events[0].Kind).To(Equal(domain.FeedbackMappingRejected))
		})

		It("should demote a previously confirmed mapping", func() {
			_, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			mapping, err := learner.Reject(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			Expect(mapping.Status).To(Equal(domain.MappingRejected))
			Expect(mapping.RejectCount).To(Equal(1))
			Expect(mapping.SupportCount).To(Equal(1), "history survives the demotion")

			found, err := store.FindConfirmed(ctx, tenantID, customer, "XYZ-99")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("should let a later confirmation override a rejection", func() {
			_, err := learner.Reject(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())

			mapping, err := learner.Confirm(ctx, decision("INT-777"))
			Expect(err).NotTo(HaveOccurred())
			Expect(mapping.Status).To(Equal(domain.MappingConfirmed))
			Expect(mapping.SupportCount).To(Equal(1))
		})
	})
})
