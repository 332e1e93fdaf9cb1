// Package matching resolves customer-supplied item identifiers to
// internal catalog products by combining the learned mapping table,
// lexical trigram similarity, and dense vector similarity, with
// unit-of-measure and price penalties on every candidate.
package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/storage/vector"
)

// Scoring constants from the hybrid formula.
const (
	mappingConfidence = 0.99
	triSKUWeight      = 1.0
	triDescWeight     = 0.7
	hybridTriWeight   = 0.62
	hybridEmbWeight   = 0.38
	lexicalThreshold  = 0.3
	searchLimit       = 30
	reviewCandidates  = 5

	uomPenaltyMissing      = 0.9
	uomPenaltyIncompatible = 0.2

	pricePenaltyNear = 0.85
	pricePenaltyFar  = 0.65
)

// ScoredProduct is a catalog product with a lexical similarity score.
type ScoredProduct struct {
	Product domain.Product
	Score   float64
}

// MappingLookup finds confirmed SKU mappings.
type MappingLookup interface {
	FindConfirmed(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error)
}

// Catalog answers lexical product searches.
type Catalog interface {
	// SearchBySKU returns products whose internal SKU is trigram-similar
	// to the query, above the threshold, best first.
	SearchBySKU(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]ScoredProduct, error)

	// SearchByText searches name and description.
	SearchByText(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]ScoredProduct, error)

	// GetByIDs loads products by id.
	GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error)

	// GetBySKU loads one product by internal SKU, nil when absent.
	GetBySKU(ctx context.Context, tenantID uuid.UUID, internalSKU string) (*domain.Product, error)
}

// PriceSource loads customer price tiers.
type PriceSource interface {
	TiersFor(ctx context.Context, tenantID, customerID uuid.UUID, internalSKU, currency string) ([]domain.CustomerPrice, error)
}

// QueryEmbedder embeds the match query text.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, text string) ([]float32, error)
}

// LineInput is one line to match.
type LineInput struct {
	TenantID      uuid.UUID
	CustomerID    uuid.UUID
	Settings      domain.TenantSettings
	RawSKU        string
	NormalizedSKU string
	Description   string
	UoM           *domain.UoM
	Qty           *decimal.Decimal
	UnitPrice     *domain.Micros
	Currency      string
	OrderDate     *time.Time
}

// Result is the outcome of matching one line.
type Result struct {
	Status     domain.MatchStatus
	Method     domain.MatchMethod
	Confidence float64
	Applied    *domain.Product
	Candidates []domain.MatchCandidate
}

// Engine runs the hybrid matching pipeline.
type Engine struct {
	mappings MappingLookup
	catalog  Catalog
	prices   PriceSource
	vectors  vector.EmbeddingStore
	embedder QueryEmbedder
	log      *logrus.Logger
	now      func() time.Time
}

// NewEngine builds an Engine. vectors and embedder may be nil; the
// vector stage is then skipped.
func NewEngine(mappings MappingLookup, catalog Catalog, prices PriceSource, vectors vector.EmbeddingStore, embedder QueryEmbedder, logger *logrus.Logger) *Engine {
	return &Engine{
		mappings: mappings,
		catalog:  catalog,
		prices:   prices,
		vectors:  vectors,
		embedder: embedder,
		log:      logger,
		now:      time.Now,
	}
}

// WithClock overrides the engine's clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// MatchLine runs the full pipeline for one line.
func (e *Engine) MatchLine(ctx context.Context, input LineInput) (*Result, error) {
	if input.NormalizedSKU == "" && input.RawSKU != "" {
		input.NormalizedSKU = domain.NormalizeSKU(input.RawSKU)
	}

	// Step 1: confirmed mapping short-circuits everything.
	if result, err := e.tryConfirmedMapping(ctx, input); err != nil {
		return nil, err
	} else if result != nil {
		metrics.RecordMatch(string(result.Status))
		return result, nil
	}

	candidates, err := e.collectCandidates(ctx, input)
	if err != nil {
		return nil, err
	}

	result := e.score(ctx, input, candidates)
	metrics.RecordMatch(string(result.Status))
	return result, nil
}

func (e *Engine) tryConfirmedMapping(ctx context.Context, input LineInput) (*Result, error) {
	if input.NormalizedSKU == "" || input.CustomerID == uuid.Nil {
		return nil, nil
	}

	mapping, err := e.mappings.FindConfirmed(ctx, input.TenantID, input.CustomerID, input.NormalizedSKU)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, nil
	}

	product, err := e.catalog.GetBySKU(ctx, input.TenantID, mapping.InternalSKU)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		// A confirmed mapping to a retired product falls through to
		// the hybrid search.
		return nil, nil
	}

	candidate := domain.MatchCandidate{
		ProductID:   product.ID,
		InternalSKU: product.InternalSKU,
		Name:        product.Name,
		Confidence:  mappingConfidence,
		Method:      domain.MethodExactMapping,
		UoMPenalty:  1,
		PricePen:    1,
	}
	return &Result{
		Status:     domain.MatchMatched,
		Method:     domain.MethodExactMapping,
		Confidence: mappingConfidence,
		Applied:    product,
		Candidates: []domain.MatchCandidate{candidate},
	}, nil
}

// rawCandidate accumulates per-product scores across search stages.
type rawCandidate struct {
	product domain.Product
	triSKU  float64
	triDesc float64
	emb     float64
}

func (e *Engine) collectCandidates(ctx context.Context, input LineInput) (map[uuid.UUID]*rawCandidate, error) {
	candidates := make(map[uuid.UUID]*rawCandidate)
	upsert := func(p domain.Product) *rawCandidate {
		c, ok := candidates[p.ID]
		if !ok {
			c = &rawCandidate{product: p}
			candidates[p.ID] = c
		}
		return c
	}

	// Lexical over internal SKU.
	if input.NormalizedSKU != "" {
		hits, err := e.catalog.SearchBySKU(ctx, input.TenantID, input.NormalizedSKU, lexicalThreshold, searchLimit)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			upsert(hit.Product).triSKU = hit.Score
		}
	}

	// Lexical over name/description.
	if input.Description != "" {
		hits, err := e.catalog.SearchByText(ctx, input.TenantID, input.Description, lexicalThreshold, searchLimit)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			c := upsert(hit.Product)
			if hit.Score > c.triDesc {
				c.triDesc = hit.Score
			}
		}
	}

	// Dense vectors, when the tenant has embeddings for the model.
	if err := e.addVectorCandidates(ctx, input, candidates, upsert); err != nil {
		// The vector stage degrades, never fails the line.
		e.log.WithFields(logrus.Fields{
			"component": "matching",
			"tenant_id": input.TenantID.String(),
			"error":     err.Error(),
		}).Warn("vector search unavailable, continuing lexical-only")
	}

	return candidates, nil
}

func (e *Engine) addVectorCandidates(ctx context.Context, input LineInput, candidates map[uuid.UUID]*rawCandidate, upsert func(domain.Product) *rawCandidate) error {
	if e.vectors == nil || e.embedder == nil {
		return nil
	}

	settings := input.Settings.Normalized()
	model := settings.EmbeddingModel
	if model == "" {
		return nil
	}

	has, err := e.vectors.HasEmbeddings(ctx, input.TenantID, model)
	if err != nil || !has {
		return err
	}

	queryText := buildQueryText(input)
	if queryText == "" {
		return nil
	}

	queryVec, err := e.embedder.EmbedText(ctx, input.TenantID, input.Settings, queryText)
	if err != nil {
		return err
	}

	hits, err := e.vectors.SearchSimilar(ctx, input.TenantID, model, queryVec, searchLimit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return nil
	}

	// Load products the lexical stages did not already surface.
	var missing []uuid.UUID
	for _, hit := range hits {
		if _, ok := candidates[hit.ProductID]; !ok {
			missing = append(missing, hit.ProductID)
		}
	}
	loaded := map[uuid.UUID]domain.Product{}
	if len(missing) > 0 {
		loaded, err = e.catalog.GetByIDs(ctx, input.TenantID, missing)
		if err != nil {
			return err
		}
	}

	for _, hit := range hits {
		if c, ok := candidates[hit.ProductID]; ok {
			c.emb = hit.Similarity
			continue
		}
		if p, ok := loaded[hit.ProductID]; ok {
			upsert(p).emb = hit.Similarity
		}
	}
	return nil
}

// buildQueryText renders the canonical embedding query for a line.
func buildQueryText(input LineInput) string {
	parts := make([]string, 0, 3)
	if input.NormalizedSKU != "" {
		parts = append(parts, input.NormalizedSKU)
	}
	if input.Description != "" {
		parts = append(parts, input.Description)
	}
	if input.UoM != nil {
		parts = append(parts, string(*input.UoM))
	}
	return strings.Join(parts, " | ")
}

func (e *Engine) score(ctx context.Context, input LineInput, candidates map[uuid.UUID]*rawCandidate) *Result {
	settings := input.Settings.Normalized()

	scored := make([]domain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.product.Active {
			continue
		}

		sTri := c.triSKU * triSKUWeight
		if d := c.triDesc * triDescWeight; d > sTri {
			sTri = d
		}
		hybrid := hybridTriWeight*sTri + hybridEmbWeight*c.emb

		pUoM := e.uomPenalty(input.UoM, c.product)
		pPrice := e.pricePenalty(ctx, input, c.product.InternalSKU, settings)

		confidence := hybrid * pUoM * pPrice
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		scored = append(scored, domain.MatchCandidate{
			ProductID:   c.product.ID,
			InternalSKU: c.product.InternalSKU,
			Name:        c.product.Name,
			Confidence:  confidence,
			Method:      domain.MethodHybrid,
			TriScore:    sTri,
			EmbScore:    c.emb,
			UoMPenalty:  pUoM,
			PricePen:    pPrice,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].InternalSKU < scored[j].InternalSKU
	})

	if len(scored) == 0 {
		return &Result{Status: domain.MatchUnmatched, Method: domain.MethodHybrid}
	}

	top1 := scored[0]
	gap := top1.Confidence
	if len(scored) > 1 {
		gap = top1.Confidence - scored[1].Confidence
	}

	if len(scored) > reviewCandidates {
		scored = scored[:reviewCandidates]
	}

	if top1.Confidence >= settings.AutoApplyThreshold && gap >= settings.AutoApplyGap {
		product := candidates[top1.ProductID].product
		return &Result{
			Status:     domain.MatchSuggested,
			Method:     domain.MethodHybrid,
			Confidence: top1.Confidence,
			Applied:    &product,
			Candidates: scored,
		}
	}

	return &Result{
		Status:     domain.MatchUnmatched,
		Method:     domain.MethodHybrid,
		Confidence: top1.Confidence,
		Candidates: scored,
	}
}

func (e *Engine) uomPenalty(lineUoM *domain.UoM, product domain.Product) float64 {
	if lineUoM == nil || *lineUoM == "" {
		return uomPenaltyMissing
	}
	if product.ConvertsFrom(*lineUoM) {
		return 1
	}
	return uomPenaltyIncompatible
}

func (e *Engine) pricePenalty(ctx context.Context, input LineInput, internalSKU string, settings domain.TenantSettings) float64 {
	if input.UnitPrice == nil || input.Qty == nil || e.prices == nil || input.CustomerID == uuid.Nil {
		return 1
	}

	currency := input.Currency
	if currency == "" {
		currency = settings.DefaultCurrency
	}

	tiers, err := e.prices.TiersFor(ctx, input.TenantID, input.CustomerID, internalSKU, currency)
	if err != nil || len(tiers) == 0 {
		return 1
	}

	at := e.now().UTC()
	if input.OrderDate != nil {
		at = *input.OrderDate
	}
	tier := domain.SelectPriceTier(tiers, *input.Qty, at)
	if tier == nil {
		return 1
	}

	deviation := input.UnitPrice.RelativeDeviation(tier.UnitPriceMicros)
	tolerance := settings.PriceTolerancePercent / 100

	switch {
	case deviation <= tolerance:
		return 1
	case deviation <= 2*tolerance:
		return pricePenaltyNear
	default:
		return pricePenaltyFar
	}
}
