// Package pipeline glues the processing stages together: a stored
// document flows through extraction, customer detection, line
// matching, draft creation, and validation; an approved draft flows
// through export and the ack loop. Each public method doubles as a
// worker task handler body.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/customerdetect"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/draftorder"
	"github.com/aliuyar1234/orderflow/pkg/erpexport"
	"github.com/aliuyar1234/orderflow/pkg/extraction"
	"github.com/aliuyar1234/orderflow/pkg/matching"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/objectstore"
	"github.com/aliuyar1234/orderflow/pkg/storage/vector"
	"github.com/aliuyar1234/orderflow/pkg/validation"
)

// TenantSource loads tenants and their settings.
type TenantSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error)
}

// DocumentStore persists documents.
type DocumentStore interface {
	Get(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.Document, error)
	SetStatus(ctx context.Context, tenantID, documentID uuid.UUID, from, to domain.DocumentStatus, errorDetail string) error
}

// RunStore persists extraction runs.
type RunStore interface {
	Create(ctx context.Context, run domain.ExtractionRun) error
}

// CustomerSource loads the tenant's customer catalog.
type CustomerSource interface {
	ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]domain.Customer, error)
	ListContacts(ctx context.Context, tenantID uuid.UUID) ([]domain.CustomerContact, error)
	GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*domain.Customer, error)
}

// ProductSource lists products for validation caches and embedding
// rebuilds.
type ProductSource interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]domain.Product, error)
	GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*domain.Product, error)
}

// MessageSource loads inbound messages and the documents an external
// receiver already split out of them.
type MessageSource interface {
	GetMessage(ctx context.Context, tenantID, messageID uuid.UUID) (*domain.InboundMessage, error)
	ListMessageDocuments(ctx context.Context, tenantID, messageID uuid.UUID) ([]domain.Document, error)
	SetMessageStatus(ctx context.Context, tenantID, messageID uuid.UUID, status domain.MessageStatus, errorDetail string) error
}

// ConnectionSource loads ERP connections with decrypted dropzone
// configuration.
type ConnectionSource interface {
	GetActive(ctx context.Context, tenantID uuid.UUID, kind domain.ConnectorKind) (*domain.ERPConnection, *domain.DropzoneConfig, error)
	Get(ctx context.Context, tenantID, connectionID uuid.UUID) (*domain.ERPConnection, *domain.DropzoneConfig, error)
}

// Pipeline owns the stage glue.
type Pipeline struct {
	tenants     TenantSource
	documents   DocumentStore
	messages    MessageSource
	runs        RunStore
	customers   CustomerSource
	products    ProductSource
	connections ConnectionSource
	drafts      *draftorder.Service
	store       objectstore.Store
	router      *extraction.Router
	detector    *customerdetect.Detector
	matcher     *matching.Engine
	learner     *matching.Learner
	validator   *validation.Engine
	prices      matching.PriceSource
	embeddings  *vector.ProductEmbeddingService
	connector   *erpexport.Connector
	poller      *erpexport.Poller
	log         *logrus.Logger
	now         func() time.Time
}

// Config bundles the pipeline dependencies.
type Config struct {
	Tenants     TenantSource
	Documents   DocumentStore
	Messages    MessageSource
	Runs        RunStore
	Customers   CustomerSource
	Products    ProductSource
	Connections ConnectionSource
	Drafts      *draftorder.Service
	Store       objectstore.Store
	Router      *extraction.Router
	Detector    *customerdetect.Detector
	Matcher     *matching.Engine
	Learner     *matching.Learner
	Validator   *validation.Engine
	Prices      matching.PriceSource
	Embeddings  *vector.ProductEmbeddingService
	Connector   *erpexport.Connector
	Poller      *erpexport.Poller
	Logger      *logrus.Logger
}

// WithPoller installs the ack poller after construction; the poller
// needs the pipeline as its ack handler, so the two are wired in two
// steps.
func (p *Pipeline) WithPoller(poller *erpexport.Poller) *Pipeline {
	p.poller = poller
	return p
}

// New builds a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		tenants:     cfg.Tenants,
		documents:   cfg.Documents,
		messages:    cfg.Messages,
		runs:        cfg.Runs,
		customers:   cfg.Customers,
		products:    cfg.Products,
		connections: cfg.Connections,
		drafts:      cfg.Drafts,
		store:       cfg.Store,
		router:      cfg.Router,
		detector:    cfg.Detector,
		matcher:     cfg.Matcher,
		learner:     cfg.Learner,
		validator:   cfg.Validator,
		prices:      cfg.Prices,
		embeddings:  cfg.Embeddings,
		connector:   cfg.Connector,
		poller:      cfg.Poller,
		log:         cfg.Logger,
		now:         time.Now,
	}
}

// ExtractDocument runs the extraction stage for one stored document
// and carries the result through matching and validation into a draft.
func (p *Pipeline) ExtractDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "tenant %s not found", tenantID)
	}
	settings := tenant.Settings.Normalized()

	doc, err := p.documents.Get(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "document %s not found", documentID)
	}

	if err := p.documents.SetStatus(ctx, tenantID, documentID, doc.Status, domain.DocumentProcessing, ""); err != nil {
		return err
	}

	data, err := p.readObject(ctx, doc.StorageKey)
	if err != nil {
		return p.failDocument(ctx, tenantID, documentID, err)
	}

	customers, err := p.customers.ListCustomers(ctx, tenantID)
	if err != nil {
		return err
	}
	knownNumbers := make([]string, 0, len(customers))
	for _, c := range customers {
		if c.ERPCustomerNumber != "" {
			knownNumbers = append(knownNumbers, c.ERPCustomerNumber)
		}
	}

	result, err := p.router.Extract(ctx, extraction.Input{
		TenantID:             tenantID,
		Settings:             settings,
		DocumentID:           documentID,
		Filename:             doc.Filename,
		MimeType:             doc.MimeType,
		Data:                 data,
		SenderEmail:          doc.SenderEmail,
		DefaultCurrency:      settings.DefaultCurrency,
		KnownCustomerNumbers: knownNumbers,
	})
	if err != nil {
		return p.failDocument(ctx, tenantID, documentID, err)
	}

	run := p.buildRun(tenantID, documentID, doc, result)
	if result.Failed() {
		if createErr := p.runs.Create(ctx, run); createErr != nil {
			p.log.WithError(createErr).Warn("extraction run write failed")
		}
		metrics.RecordDocumentProcessed(string(domain.DocumentFailed))
		return p.failDocument(ctx, tenantID, documentID,
			apperrors.Newf(apperrors.ErrorTypeLLMInvalidResponse, "extraction produced no output: %s", result.ErrorCode))
	}

	if key := p.archiveResult(ctx, tenantID, result.Output); key != "" {
		run.ResultStorageKey = key
	}
	if err := p.runs.Create(ctx, run); err != nil {
		p.log.WithError(err).Warn("extraction run write failed")
	}

	draft, err := p.buildDraft(ctx, tenantID, settings, doc, run, result.Output)
	if err != nil {
		return p.failDocument(ctx, tenantID, documentID, err)
	}

	if err := p.documents.SetStatus(ctx, tenantID, documentID, domain.DocumentProcessing, domain.DocumentExtracted, ""); err != nil {
		return err
	}
	metrics.RecordDocumentProcessed(string(domain.DocumentExtracted))

	p.log.WithFields(logrus.Fields{
		"component":   "pipeline",
		"tenant_id":   tenantID.String(),
		"document_id": documentID.String(),
		"draft_id":    draft.ID.String(),
		"method":      string(result.Method),
		"lines":       len(draft.Lines),
	}).Info("document extracted into draft")
	return nil
}

func (p *Pipeline) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.store.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (p *Pipeline) failDocument(ctx context.Context, tenantID, documentID uuid.UUID, cause error) error {
	if err := p.documents.SetStatus(ctx, tenantID, documentID, domain.DocumentProcessing, domain.DocumentFailed, cause.Error()); err != nil {
		p.log.WithError(err).Warn("document failure transition failed")
	}
	return cause
}

func (p *Pipeline) buildRun(tenantID, documentID uuid.UUID, doc *domain.Document, result *extraction.Result) domain.ExtractionRun {
	completed := p.now().UTC()
	run := domain.ExtractionRun{
		ID:                uuid.New(),
		TenantID:          tenantID,
		DocumentID:        documentID,
		Method:            result.Method,
		ExtractorVersion:  result.ExtractorVersion,
		InputHash:         doc.ContentHash,
		TextCoverageRatio: result.TextCoverageRatio,
		RuntimeMS:         result.Runtime.Milliseconds(),
		ErrorCode:         result.ErrorCode,
		ErrorDetail:       result.ErrorDetail,
		CompletedAt:       &completed,
	}
	if result.Output != nil {
		run.Confidence = result.Output.Confidence.Overall
		run.Warnings = result.Output.Warnings
	}
	return run
}

func (p *Pipeline) archiveResult(ctx context.Context, tenantID uuid.UUID, out *domain.CanonicalOutput) string {
	data, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	info, err := p.store.Store(ctx, tenantID, "extraction-result.json", "application/json", data)
	if err != nil {
		p.log.WithError(err).Warn("extraction result archive failed")
		return ""
	}
	return info.Key
}

// buildDraft turns canonical output into a draft with detected
// customer, matched lines, and a first validation pass.
func (p *Pipeline) buildDraft(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, doc *domain.Document, run domain.ExtractionRun, out *domain.CanonicalOutput) (*domain.DraftOrder, error) {
	customers, err := p.customers.ListCustomers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	contacts, err := p.customers.ListContacts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	detection := p.detector.Detect(customerdetect.Input{
		FromEmail: doc.SenderEmail,
		LLMHint:   out.Order.CustomerHint,
	}, customers, contacts, settings)

	draft := &domain.DraftOrder{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		DocumentID:           &doc.ID,
		ExtractionRunID:      &run.ID,
		ExternalOrderNumber:  out.Order.ExternalOrderNumber,
		Currency:             out.Order.Currency,
		Notes:                out.Order.Notes,
		ShipTo:               out.Order.ShipTo,
		Status:               domain.DraftNew,
		ExtractionConfidence: out.Confidence.Overall,
	}
	if draft.Currency == "" {
		draft.Currency = settings.DefaultCurrency
	}
	if d := parseDate(out.Order.OrderDate); d != nil {
		draft.OrderDate = d
	}
	if d := parseDate(out.Order.RequestedDeliveryDate); d != nil {
		draft.RequestedDelivery = d
	}
	if detection.Selected != nil {
		customerID := detection.Selected.CustomerID
		draft.CustomerID = &customerID
		draft.CustomerConfidence = detection.Selected.Aggregate
	}

	var matchSum float64
	for _, line := range out.Lines {
		draftLine := domain.DraftOrderLine{
			ID:             uuid.New(),
			TenantID:       tenantID,
			DraftID:        draft.ID,
			LineNo:         line.LineNo,
			CustomerSKURaw: line.CustomerSKURaw,
			NormalizedSKU:  domain.NormalizeSKU(line.CustomerSKURaw),
			Description:    line.ProductDescription,
			Currency:       line.Currency,
			MatchStatus:    domain.MatchUnmatched,
		}
		if line.Qty != nil {
			qty := *line.Qty
			draftLine.Qty = &qty
		}
		if line.UoM != "" {
			uom := domain.UoM(line.UoM)
			draftLine.UoM = &uom
		}
		if line.UnitPrice != nil {
			price := domain.MicrosFromDecimal(*line.UnitPrice)
			draftLine.UnitPriceMicros = &price
		}
		if d := parseDate(line.RequestedDeliveryDate); d != nil {
			draftLine.RequestedDelivery = d
		}

		p.matchDraftLine(ctx, settings, draft, &draftLine)
		matchSum += draftLine.MatchConfidence
		draft.Lines = append(draft.Lines, draftLine)
	}
	if len(draft.Lines) > 0 {
		draft.MatchingConfidence = matchSum / float64(len(draft.Lines))
	}
	draft.OverallConfidence = combineConfidences(draft)

	if err := p.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}

	// NEW -> EXTRACTED -> MATCHED, then validate and set the gate.
	updated, err := p.drafts.Transition(ctx, tenantID, draft.ID, draft.Version, domain.DraftExtracted)
	if err != nil {
		return nil, err
	}
	updated, err = p.drafts.Transition(ctx, tenantID, draft.ID, updated.Version, domain.DraftMatched)
	if err != nil {
		return nil, err
	}

	ready, err := p.Validate(ctx, tenantID, updated)
	if err != nil {
		return nil, err
	}
	updated, err = p.drafts.SetReady(ctx, tenantID, draft.ID, updated.Version, ready)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// matchDraftLine matches one line fail-open: an engine failure records
// the line as unmatched and never fails the draft.
func (p *Pipeline) matchDraftLine(ctx context.Context, settings domain.TenantSettings, draft *domain.DraftOrder, line *domain.DraftOrderLine) {
	customerID := uuid.Nil
	if draft.CustomerID != nil {
		customerID = *draft.CustomerID
	}

	result, err := p.matcher.MatchLine(ctx, matching.LineInput{
		TenantID:      draft.TenantID,
		CustomerID:    customerID,
		Settings:      settings,
		RawSKU:        line.CustomerSKURaw,
		NormalizedSKU: line.NormalizedSKU,
		Description:   line.Description,
		UoM:           line.UoM,
		Qty:           line.Qty,
		UnitPrice:     line.UnitPriceMicros,
		Currency:      line.Currency,
		OrderDate:     draft.OrderDate,
	})
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"component": "pipeline",
			"draft_id":  draft.ID.String(),
			"line_no":   line.LineNo,
			"error":     err.Error(),
		}).Warn("line match failed, leaving unmatched")
		line.MatchStatus = domain.MatchUnmatched
		return
	}

	line.MatchStatus = result.Status
	line.MatchMethod = result.Method
	line.MatchConfidence = result.Confidence
	line.Candidates = result.Candidates
	if result.Applied != nil {
		productID := result.Applied.ID
		line.ProductID = &productID
		line.InternalSKU = result.Applied.InternalSKU
	}
}

// Validate rebuilds the per-run caches and runs the validation engine.
func (p *Pipeline) Validate(ctx context.Context, tenantID uuid.UUID, draft *domain.DraftOrder) (domain.ReadyCheck, error) {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return domain.ReadyCheck{}, err
	}
	settings := tenant.Settings.Normalized()

	products, err := p.products.ListActive(ctx, tenantID)
	if err != nil {
		return domain.ReadyCheck{}, err
	}
	bySKU := make(map[string]domain.Product, len(products))
	for _, product := range products {
		bySKU[product.InternalSKU] = product
	}

	var pricesFor func(string) []domain.CustomerPrice
	if draft.CustomerID != nil && p.prices != nil {
		customerID := *draft.CustomerID
		currency := draft.Currency
		pricesFor = func(internalSKU string) []domain.CustomerPrice {
			tiers, err := p.prices.TiersFor(ctx, tenantID, customerID, internalSKU, currency)
			if err != nil {
				return nil
			}
			return tiers
		}
	}

	return p.validator.Validate(ctx, draft, validation.Deps{
		ProductsBySKU: bySKU,
		PricesForSKU:  pricesFor,
		Settings:      settings,
	})
}

// ConfirmLineMatch applies the user's accepted product to a line,
// teaches the mapping table, and re-runs validation so the ready gate
// follows. Returns the updated draft.
func (p *Pipeline) ConfirmLineMatch(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, lineNo int, internalSKU, actor string) (*domain.DraftOrder, error) {
	product, err := p.productBySKU(ctx, tenantID, internalSKU)
	if err != nil {
		return nil, err
	}

	draft, err := p.drafts.ApplyLineMatch(ctx, tenantID, draftID, expectedVersion, lineNo, *product, actor)
	if err != nil {
		return nil, err
	}

	line := lineByNo(draft, lineNo)
	if p.learner != nil && draft.CustomerID != nil && line != nil && line.NormalizedSKU != "" {
		if _, err := p.learner.Confirm(ctx, matching.Decision{
			TenantID:      tenantID,
			CustomerID:    *draft.CustomerID,
			NormalizedSKU: line.NormalizedSKU,
			InternalSKU:   internalSKU,
			Actor:         actor,
			DraftID:       &draftID,
			LineID:        &line.ID,
		}); err != nil {
			p.log.WithError(err).Warn("mapping confirm failed; line edit kept")
		}
	}

	return p.revalidate(ctx, tenantID, draft)
}

// RejectLineMatch clears a wrong suggestion from a line and records
// the rejection so the same pairing is not re-learned.
func (p *Pipeline) RejectLineMatch(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, lineNo int, actor string) (*domain.DraftOrder, error) {
	before, err := p.drafts.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	rejected := lineByNo(before, lineNo)

	draft, err := p.drafts.ClearLineMatch(ctx, tenantID, draftID, expectedVersion, lineNo, actor)
	if err != nil {
		return nil, err
	}

	if p.learner != nil && draft.CustomerID != nil && rejected != nil &&
		rejected.NormalizedSKU != "" && rejected.InternalSKU != "" {
		if _, err := p.learner.Reject(ctx, matching.Decision{
			TenantID:      tenantID,
			CustomerID:    *draft.CustomerID,
			NormalizedSKU: rejected.NormalizedSKU,
			InternalSKU:   rejected.InternalSKU,
			Actor:         actor,
			DraftID:       &draftID,
			LineID:        &rejected.ID,
		}); err != nil {
			p.log.WithError(err).Warn("mapping reject failed; line edit kept")
		}
	}

	return p.revalidate(ctx, tenantID, draft)
}

func (p *Pipeline) productBySKU(ctx context.Context, tenantID uuid.UUID, internalSKU string) (*domain.Product, error) {
	products, err := p.products.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].InternalSKU == internalSKU {
			return &products[i], nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "product %s not found", internalSKU)
}

func (p *Pipeline) revalidate(ctx context.Context, tenantID uuid.UUID, draft *domain.DraftOrder) (*domain.DraftOrder, error) {
	ready, err := p.Validate(ctx, tenantID, draft)
	if err != nil {
		return nil, err
	}
	return p.drafts.SetReady(ctx, tenantID, draft.ID, draft.Version, ready)
}

func lineByNo(draft *domain.DraftOrder, lineNo int) *domain.DraftOrderLine {
	for i := range draft.Lines {
		if draft.Lines[i].LineNo == lineNo {
			return &draft.Lines[i]
		}
	}
	return nil
}

// ExportDraft exports one approved draft through the tenant's active
// dropzone connection.
func (p *Pipeline) ExportDraft(ctx context.Context, tenantID, draftID uuid.UUID, draftVersion int64) error {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	draft, err := p.drafts.Get(ctx, tenantID, draftID)
	if err != nil {
		return err
	}
	if draftVersion > 0 && draft.Version != draftVersion {
		// A newer version exists; the task that enqueued this export
		// is stale. The newer approval enqueues its own export.
		return nil
	}

	conn, dropzone, err := p.connections.GetActive(ctx, tenantID, domain.ConnectorDropzoneJSONV1)
	if err != nil {
		return err
	}
	if conn == nil || dropzone == nil {
		return apperrors.New(apperrors.ErrorTypeNotFound, "no active dropzone connection")
	}

	var customer *domain.Customer
	if draft.CustomerID != nil {
		customer, err = p.customers.GetCustomer(ctx, tenantID, *draft.CustomerID)
		if err != nil {
			return err
		}
	}

	if _, err := p.connector.Export(ctx, draft, *tenant, customer, *conn, *dropzone); err != nil {
		return err
	}

	_, err = p.drafts.MarkPushed(ctx, tenantID, draftID, draft.Version, "")
	if apperrors.IsType(err, apperrors.ErrorTypeIllegalStateTransition) {
		// Already pushed by a previous attempt; the idempotency key
		// made the export itself a no-op.
		return nil
	}
	return err
}

// PollAcks runs one ack-poll cycle for a connection.
func (p *Pipeline) PollAcks(ctx context.Context, tenantID, connectionID uuid.UUID) error {
	conn, dropzone, err := p.connections.Get(ctx, tenantID, connectionID)
	if err != nil {
		return err
	}
	if conn == nil || dropzone == nil || dropzone.AckPath == "" {
		return nil
	}
	_, err = p.poller.PollOnce(ctx, tenantID, *dropzone)
	return err
}

// ProcessInboundMessage marks a message handled and returns the
// documents that still need extraction; the caller enqueues one
// extraction task per document. A message with no documents is
// processed successfully with nothing to do.
func (p *Pipeline) ProcessInboundMessage(ctx context.Context, tenantID, messageID uuid.UUID) ([]domain.Document, error) {
	if p.messages == nil {
		return nil, apperrors.New(apperrors.ErrorTypeInternal, "no message source configured")
	}

	message, err := p.messages.GetMessage(ctx, tenantID, messageID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "message %s not found", messageID)
	}

	docs, err := p.messages.ListMessageDocuments(ctx, tenantID, messageID)
	if err != nil {
		return nil, err
	}

	var pending []domain.Document
	for _, doc := range docs {
		if doc.Status == domain.DocumentStored {
			pending = append(pending, doc)
		}
	}

	if err := p.messages.SetMessageStatus(ctx, tenantID, messageID, domain.MessageProcessed, ""); err != nil {
		return nil, err
	}
	return pending, nil
}

// OnAck implements erpexport.AckHandler: the draft follows its export
// record into the terminal state.
func (p *Pipeline) OnAck(ctx context.Context, tenantID, draftID uuid.UUID, acked bool, erpOrderID string) error {
	draft, err := p.drafts.Get(ctx, tenantID, draftID)
	if err != nil {
		return err
	}
	_, err = p.drafts.ApplyAck(ctx, tenantID, draftID, draft.Version, acked, erpOrderID)
	if apperrors.IsType(err, apperrors.ErrorTypeIllegalStateTransition) {
		// The draft already reached a terminal state; the export
		// record is the source of truth and was updated by the poller.
		return nil
	}
	return err
}

// EmbedProduct ensures one product's embedding is current.
func (p *Pipeline) EmbedProduct(ctx context.Context, tenantID, productID uuid.UUID, force bool) (vector.EnsureStatus, error) {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	product, err := p.products.GetByID(ctx, tenantID, productID)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", apperrors.Newf(apperrors.ErrorTypeNotFound, "product %s not found", productID)
	}
	return p.embeddings.EnsureProductEmbedding(ctx, tenant.Settings.Normalized(), *product, force)
}

// RebuildEmbeddings re-embeds the tenant's whole active catalog.
func (p *Pipeline) RebuildEmbeddings(ctx context.Context, tenantID uuid.UUID, force bool) (int, error) {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	products, err := p.products.ListActive(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	settings := tenant.Settings.Normalized()
	embedded := 0
	for _, product := range products {
		status, err := p.embeddings.EnsureProductEmbedding(ctx, settings, product, force)
		if err != nil {
			return embedded, fmt.Errorf("product %s: %w", product.InternalSKU, err)
		}
		if status != vector.EnsureSkipped {
			embedded++
		}
	}
	return embedded, nil
}

func parseDate(iso string) *time.Time {
	if iso == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func combineConfidences(draft *domain.DraftOrder) float64 {
	// Extraction carries the most information; customer and matching
	// share the remainder.
	overall := 0.5*draft.ExtractionConfidence + 0.25*draft.CustomerConfidence + 0.25*draft.MatchingConfidence
	if overall > 1 {
		return 1
	}
	if overall < 0 {
		return 0
	}
	return overall
}
