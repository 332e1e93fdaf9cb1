package erpexport_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/erpexport"
	"github.com/aliuyar1234/orderflow/pkg/objectstore"
)

func TestERPExport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ERP Export Suite")
}

// recordingAckHandler captures OnAck invocations.
type recordingAckHandler struct {
	calls []string
}

func (h *recordingAckHandler) OnAck(ctx context.Context, tenantID, draftID uuid.UUID, acked bool, erpOrderID string) error {
	status := "FAILED"
	if acked {
		status = "ACKED"
	}
	h.calls = append(h.calls, draftID.String()+"|"+status+"|"+erpOrderID)
	return nil
}

func buildDraft(tenantID uuid.UUID) *domain.DraftOrder {
	qty := decimal.NewFromInt(10)
	price := domain.Micros(1_230_000)
	uom := domain.UoMMeter
	orderDate := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
	approvedAt := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

	return &domain.DraftOrder{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		Status:              domain.DraftApproved,
		Version:             4,
		ExternalOrderNumber: "PO-2025-001",
		OrderDate:           &orderDate,
		ApprovedAt:          &approvedAt,
		Currency:            "EUR",
		Lines: []domain.DraftOrderLine{{
			ID: uuid.New(), LineNo: 1, InternalSKU: "INT-777",
			CustomerSKURaw: "ABC-123", Description: "Kabel NYM-J 3x1,5",
			Qty: &qty, UoM: &uom, UnitPriceMicros: &price,
		}},
	}
}

var _ = Describe("Connector", func() {
	var (
		ctx       context.Context
		connector *erpexport.Connector
		exports   *erpexport.MemoryExportStore
		archive   *objectstore.MemoryStore
		tenant    domain.Tenant
		customer  domain.Customer
		conn      domain.ERPConnection
		dropzone  domain.DropzoneConfig
		draft     *domain.DraftOrder
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := logrus.New()
		logger.SetLevel(logrus.FatalLevel)

		exports = erpexport.NewMemoryExportStore()
		archive = objectstore.NewMemoryStore()
		connector = erpexport.NewConnector(archive, exports, logger)

		tenant = domain.Tenant{ID: uuid.New(), Name: "Demo GmbH", Slug: "demo"}
		customer = domain.Customer{ID: uuid.New(), TenantID: tenant.ID, Name: "Acme", ERPCustomerNumber: "K-1001"}
		conn = domain.ERPConnection{ID: uuid.New(), TenantID: tenant.ID, Kind: domain.ConnectorDropzoneJSONV1, Status: domain.ConnectionActive}
		dropzone = domain.DropzoneConfig{ExportPath: filepath.Join(GinkgoT().TempDir(), "dropzone")}

		draft = buildDraft(tenant.ID)
	})

	It("should drop one file, archive one object, and record SENT", func() {
		export, err := connector.Export(ctx, draft, tenant, &customer, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())

		Expect(export.Status).To(Equal(domain.ExportSent))
		Expect(export.StorageKey).NotTo(BeEmpty())
		Expect(export.DropzonePath).To(HaveSuffix(".json"))

		// Exactly one file, no .tmp leftovers.
		entries, err := os.ReadDir(dropzone.ExportPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).NotTo(HaveSuffix(".tmp"))
		Expect(entries[0].Name()).To(HavePrefix("sales_order_" + draft.ID.String()))

		// The payload is the canonical export document.
		raw, err := os.ReadFile(export.DropzonePath)
		Expect(err).NotTo(HaveOccurred())
		var doc erpexport.ExportDocument
		Expect(json.Unmarshal(raw, &doc)).To(Succeed())
		Expect(doc.FormatVersion).To(Equal("orderflow_export_json_v1"))
		Expect(doc.Order.DraftOrderID).To(Equal(draft.ID.String()))
		Expect(doc.Order.Customer.ERPCustomerNumber).To(Equal("K-1001"))
		Expect(doc.Lines).To(HaveLen(1))
		Expect(doc.Lines[0].Qty).To(Equal("10"))
		Expect(doc.Lines[0].UnitPrice).To(Equal("1.23"))
		Expect(doc.Lines[0].UoM).To(Equal("M"))
	})

	It("should be idempotent per (tenant, draft, version)", func() {
		first, err := connector.Export(ctx, draft, tenant, &customer, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())

		second, err := connector.Export(ctx, draft, tenant, &customer, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())

		Expect(second.ID).To(Equal(first.ID))
		Expect(exports.All()).To(HaveLen(1))

		entries, err := os.ReadDir(dropzone.ExportPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1), "no second file may appear")
	})

	It("should create a new export for a new draft version", func() {
		_, err := connector.Export(ctx, draft, tenant, &customer, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())

		draft.Version = 5
		_, err = connector.Export(ctx, draft, tenant, &customer, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())

		Expect(exports.All()).To(HaveLen(2))
	})

	It("should record FAILED with the error verbatim when the dropzone is unwritable", func() {
		blocked := filepath.Join(GinkgoT().TempDir(), "blocked")
		Expect(os.WriteFile(blocked, []byte("a plain file, not a directory"), 0o644)).To(Succeed())

		_, err := connector.Export(ctx, draft, tenant, &customer, conn, domain.DropzoneConfig{
			ExportPath: filepath.Join(blocked, "sub"),
		})
		Expect(err).To(HaveOccurred())

		all := exports.All()
		Expect(all).To(HaveLen(1))
		Expect(all[0].Status).To(Equal(domain.ExportFailed))
		Expect(all[0].ErrorDetail).NotTo(BeEmpty())
	})
})

var _ = Describe("Poller", func() {
	var (
		ctx       context.Context
		connector *erpexport.Connector
		poller    *erpexport.Poller
		exports   *erpexport.MemoryExportStore
		handler   *recordingAckHandler
		tenant    domain.Tenant
		conn      domain.ERPConnection
		dropzone  domain.DropzoneConfig
		draft     *domain.DraftOrder
		export    *domain.ERPExport
	)

	writeAck := func(draftID uuid.UUID, kind string, payload string) string {
		name := kind + "_sales_order_" + draftID.String() + "_20250105120000_deadbeef.json"
		Expect(os.MkdirAll(dropzone.AckPath, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dropzone.AckPath, name), []byte(payload), 0o644)).To(Succeed())
		return name
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger := logrus.New()
		logger.SetLevel(logrus.FatalLevel)

		exports = erpexport.NewMemoryExportStore()
		connector = erpexport.NewConnector(objectstore.NewMemoryStore(), exports, logger)
		handler = &recordingAckHandler{}
		poller = erpexport.NewPoller(exports, handler, logger)

		tenant = domain.Tenant{ID: uuid.New(), Slug: "demo"}
		conn = domain.ERPConnection{ID: uuid.New(), TenantID: tenant.ID, Kind: domain.ConnectorDropzoneJSONV1}
		root := GinkgoT().TempDir()
		dropzone = domain.DropzoneConfig{
			ExportPath: filepath.Join(root, "in"),
			AckPath:    filepath.Join(root, "out"),
		}

		draft = buildDraft(tenant.ID)
		var err error
		export, err = connector.Export(ctx, draft, tenant, nil, conn, dropzone)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should apply an ACKED file and move it to processed", func() {
		name := writeAck(draft.ID, "ack", `{"status": "ACKED", "erp_order_id": "SO-2025-000123"}`)

		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Applied).To(BeTrue())
		Expect(results[0].Status).To(Equal(domain.ExportAcked))

		stored, err := exports.FindByIdempotencyKey(ctx, tenant.ID, export.IdempotencyKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(domain.ExportAcked))
		Expect(stored.ERPReference).To(Equal("SO-2025-000123"))

		_, err = os.Stat(filepath.Join(dropzone.AckPath, "processed", name))
		Expect(err).NotTo(HaveOccurred(), "file must move to processed/")

		Expect(handler.calls).To(HaveLen(1))
		Expect(handler.calls[0]).To(ContainSubstring("ACKED|SO-2025-000123"))
	})

	It("should apply an error file as FAILED", func() {
		writeAck(draft.ID, "error", `{"status": "FAILED", "error_code": "E42", "message": "unknown customer"}`)

		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(domain.ExportFailed))

		stored, _ := exports.FindByIdempotencyKey(ctx, tenant.ID, export.IdempotencyKey)
		Expect(stored.ErrorDetail).To(ContainSubstring("E42"))
	})

	It("should be idempotent when the same ack arrives twice", func() {
		writeAck(draft.ID, "ack", `{"status": "ACKED", "erp_order_id": "SO-1"}`)
		_, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())

		// The same file appears again (ERP re-delivered it).
		writeAck(draft.ID, "ack", `{"status": "ACKED", "erp_order_id": "SO-1"}`)
		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())

		Expect(results).To(HaveLen(1))
		Expect(results[0].Applied).To(BeFalse())
		Expect(results[0].Skipped).To(ContainSubstring("no matching SENT export"))
		Expect(handler.calls).To(HaveLen(1), "the terminal transition happens once")
	})

	It("should move unparsable files to error/", func() {
		name := writeAck(draft.ID, "ack", `{not json`)

		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Applied).To(BeFalse())

		_, err = os.Stat(filepath.Join(dropzone.AckPath, "error", name))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should ignore files that do not match the ack pattern", func() {
		Expect(os.MkdirAll(dropzone.AckPath, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dropzone.AckPath, "README.txt"), []byte("hi"), 0o644)).To(Succeed())

		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("should handle a late ack with no matching export as a warning no-op", func() {
		stranger := uuid.New()
		name := writeAck(stranger, "ack", `{"status": "ACKED"}`)

		results, err := poller.PollOnce(ctx, tenant.ID, dropzone)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Applied).To(BeFalse())
		Expect(results[0].Skipped).To(ContainSubstring("no matching SENT export"))

		_, err = os.Stat(filepath.Join(dropzone.AckPath, "processed", name))
		Expect(err).NotTo(HaveOccurred(), "handled files never reprocess")
	})

	It("should ignore an empty ack path", func() {
		results, err := poller.PollOnce(ctx, tenant.ID, domain.DropzoneConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})

var _ = Describe("IdempotencyKey", func() {
	It("should be stable and version-sensitive", func() {
		tenantID := uuid.New()
		draftID := uuid.New()

		a := erpexport.IdempotencyKey(tenantID, draftID, 3)
		b := erpexport.IdempotencyKey(tenantID, draftID, 3)
		c := erpexport.IdempotencyKey(tenantID, draftID, 4)

		Expect(a).To(Equal(b))
		Expect(a).NotTo(Equal(c))
		Expect(a).To(HaveLen(64))
	})
})

var _ = Describe("ack filename pattern", func() {
	It("should match only the documented shape", func() {
		draftID := strings.ToLower(uuid.New().String())
		Expect("ack_sales_order_" + draftID + "_20250105120000_deadbeef.json").To(
			MatchRegexp(`^(ack|error)_sales_order_([0-9a-f-]+)_\d+_[0-9a-f]+\.json$`))
		Expect("ack_sales_order_" + draftID + "_20250105120000_deadbeef.json.tmp").NotTo(
			MatchRegexp(`^(ack|error)_sales_order_([0-9a-f-]+)_\d+_[0-9a-f]+\.json$`))
	})
})
