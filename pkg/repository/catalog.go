// Package repository holds the SQL-backed implementations of the
// lookup interfaces the matching engine and the AI cost ledger
// consume. Queries go through sqlx; lexical similarity uses pg_trgm's
// similarity() with a GIN trigram index on internal_sku and on
// (name || ' ' || description).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/matching"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
	"github.com/aliuyar1234/orderflow/pkg/shared/sqlutil"
)

// SQLCatalog implements matching.Catalog, matching.MappingLookup, and
// matching.PriceSource over one sqlx handle.
type SQLCatalog struct {
	db *sqlx.DB
}

// NewSQLCatalog builds the catalog.
func NewSQLCatalog(db *sqlx.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

type productRow struct {
	ID          uuid.UUID      `db:"id"`
	TenantID    uuid.UUID      `db:"tenant_id"`
	InternalSKU string         `db:"internal_sku"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	BaseUoM     string         `db:"base_uom"`
	Conversions []byte         `db:"uom_conversions"`
	Attributes  []byte         `db:"attributes"`
	Active      bool           `db:"active"`
	Score       float64        `db:"score"`
}

func (r productRow) toDomain() domain.Product {
	p := domain.Product{
		ID:          r.ID,
		TenantID:    r.TenantID,
		InternalSKU: r.InternalSKU,
		Name:        r.Name,
		BaseUoM:     domain.UoM(r.BaseUoM),
		Active:      r.Active,
	}
	if desc := sqlutil.FromNullString(r.Description); desc != nil {
		p.Description = *desc
	}
	if len(r.Conversions) > 0 {
		var raw map[string]string
		if err := json.Unmarshal(r.Conversions, &raw); err == nil {
			p.UoMConversions = make(map[domain.UoM]decimal.Decimal, len(raw))
			for uom, factor := range raw {
				if d, err := decimal.NewFromString(factor); err == nil {
					p.UoMConversions[domain.UoM(uom)] = d
				}
			}
		}
	}
	if len(r.Attributes) > 0 {
		_ = json.Unmarshal(r.Attributes, &p.Attributes)
	}
	return p
}

const productColumns = `id, tenant_id, internal_sku, name, description, base_uom, uom_conversions, attributes, active`

// SearchBySKU implements matching.Catalog.
func (c *SQLCatalog) SearchBySKU(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]matching.ScoredProduct, error) {
	const q = `
		SELECT ` + productColumns + `, similarity(internal_sku, $2) AS score
		FROM product
		WHERE tenant_id = $1 AND active AND similarity(internal_sku, $2) >= $3
		ORDER BY score DESC
		LIMIT $4`
	return c.searchScored(ctx, q, tenantID, query, threshold, limit)
}

// SearchByText implements matching.Catalog.
func (c *SQLCatalog) SearchByText(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]matching.ScoredProduct, error) {
	const q = `
		SELECT ` + productColumns + `, similarity(name || ' ' || coalesce(description, ''), $2) AS score
		FROM product
		WHERE tenant_id = $1 AND active AND similarity(name || ' ' || coalesce(description, ''), $2) >= $3
		ORDER BY score DESC
		LIMIT $4`
	return c.searchScored(ctx, q, tenantID, query, threshold, limit)
}

func (c *SQLCatalog) searchScored(ctx context.Context, query string, tenantID uuid.UUID, text string, threshold float64, limit int) ([]matching.ScoredProduct, error) {
	var rows []productRow
	if err := c.db.SelectContext(ctx, &rows, query, tenantID, text, threshold, limit); err != nil {
		return nil, sharederrors.DatabaseError("search products", err)
	}

	result := make([]matching.ScoredProduct, 0, len(rows))
	for _, row := range rows {
		result = append(result, matching.ScoredProduct{Product: row.toDomain(), Score: row.Score})
	}
	return result, nil
}

// GetByIDs implements matching.Catalog.
func (c *SQLCatalog) GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]domain.Product{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+productColumns+`, 0 AS score
		FROM product
		WHERE tenant_id = ? AND id IN (?)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	query = c.db.Rebind(query)

	var rows []productRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, sharederrors.DatabaseError("load products by id", err)
	}

	result := make(map[uuid.UUID]domain.Product, len(rows))
	for _, row := range rows {
		result[row.ID] = row.toDomain()
	}
	return result, nil
}

// GetBySKU implements matching.Catalog.
func (c *SQLCatalog) GetBySKU(ctx context.Context, tenantID uuid.UUID, internalSKU string) (*domain.Product, error) {
	const q = `
		SELECT ` + productColumns + `, 0 AS score
		FROM product
		WHERE tenant_id = $1 AND internal_sku = $2`

	var row productRow
	err := c.db.GetContext(ctx, &row, q, tenantID, internalSKU)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load product by sku", err)
	}
	product := row.toDomain()
	return &product, nil
}

type mappingRow struct {
	ID            uuid.UUID    `db:"id"`
	TenantID      uuid.UUID    `db:"tenant_id"`
	CustomerID    uuid.UUID    `db:"customer_id"`
	NormalizedSKU string       `db:"normalized_sku"`
	InternalSKU   string       `db:"internal_sku"`
	Status        string       `db:"status"`
	SupportCount  int          `db:"support_count"`
	RejectCount   int          `db:"reject_count"`
	LastUsedAt    sql.NullTime `db:"last_used_at"`
}

func (r mappingRow) toDomain() domain.SKUMapping {
	return domain.SKUMapping{
		ID:            r.ID,
		TenantID:      r.TenantID,
		CustomerID:    r.CustomerID,
		NormalizedSKU: r.NormalizedSKU,
		InternalSKU:   r.InternalSKU,
		Status:        domain.MappingStatus(r.Status),
		SupportCount:  r.SupportCount,
		RejectCount:   r.RejectCount,
		LastUsedAt:    sqlutil.FromNullTime(r.LastUsedAt),
	}
}

// FindConfirmed implements matching.MappingLookup.
func (c *SQLCatalog) FindConfirmed(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error) {
	const q = `
		SELECT id, tenant_id, customer_id, normalized_sku, internal_sku, status,
		       support_count, reject_count, last_used_at
		FROM sku_mapping
		WHERE tenant_id = $1 AND customer_id = $2 AND normalized_sku = $3 AND status = 'CONFIRMED'`

	var row mappingRow
	err := c.db.GetContext(ctx, &row, q, tenantID, customerID, normalizedSKU)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load confirmed mapping", err)
	}
	mapping := row.toDomain()
	return &mapping, nil
}

// TiersFor implements matching.PriceSource.
func (c *SQLCatalog) TiersFor(ctx context.Context, tenantID, customerID uuid.UUID, internalSKU, currency string) ([]domain.CustomerPrice, error) {
	const q = `
		SELECT id, tenant_id, customer_id, internal_sku, currency, uom,
		       min_qty, unit_price_micros, valid_from, valid_to
		FROM customer_price
		WHERE tenant_id = $1 AND customer_id = $2 AND internal_sku = $3 AND upper(currency) = upper($4)
		ORDER BY min_qty`

	var rows []struct {
		ID              uuid.UUID       `db:"id"`
		TenantID        uuid.UUID       `db:"tenant_id"`
		CustomerID      uuid.UUID       `db:"customer_id"`
		InternalSKU     string          `db:"internal_sku"`
		Currency        string          `db:"currency"`
		UoM             string          `db:"uom"`
		MinQty          decimal.Decimal `db:"min_qty"`
		UnitPriceMicros int64           `db:"unit_price_micros"`
		ValidFrom       sql.NullTime    `db:"valid_from"`
		ValidTo         sql.NullTime    `db:"valid_to"`
	}
	if err := c.db.SelectContext(ctx, &rows, q, tenantID, customerID, internalSKU, currency); err != nil {
		return nil, sharederrors.DatabaseError("load price tiers", err)
	}

	tiers := make([]domain.CustomerPrice, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, domain.CustomerPrice{
			ID:              row.ID,
			TenantID:        row.TenantID,
			CustomerID:      row.CustomerID,
			InternalSKU:     row.InternalSKU,
			Currency:        row.Currency,
			UoM:             domain.UoM(row.UoM),
			MinQty:          row.MinQty,
			UnitPriceMicros: domain.Micros(row.UnitPriceMicros),
			ValidFrom:       sqlutil.FromNullTime(row.ValidFrom),
			ValidTo:         sqlutil.FromNullTime(row.ValidTo),
		})
	}
	return tiers, nil
}

// Find implements matching.MappingStore: the strongest live mapping
// for the key, DEPRECATED rows excluded.
func (c *SQLCatalog) Find(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error) {
	const q = `
		SELECT id, tenant_id, customer_id, normalized_sku, internal_sku, status,
		       support_count, reject_count, last_used_at
		FROM sku_mapping
		WHERE tenant_id = $1 AND customer_id = $2 AND normalized_sku = $3 AND status <> 'DEPRECATED'
		ORDER BY CASE status WHEN 'CONFIRMED' THEN 3 WHEN 'SUGGESTED' THEN 2 ELSE 1 END DESC
		LIMIT 1`

	var row mappingRow
	err := c.db.GetContext(ctx, &row, q, tenantID, customerID, normalizedSKU)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load mapping", err)
	}
	mapping := row.toDomain()
	return &mapping, nil
}

// Save implements matching.MappingStore: one row per mapping id,
// created or updated in place.
func (c *SQLCatalog) Save(ctx context.Context, mapping *domain.SKUMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}

	const q = `
		INSERT INTO sku_mapping
			(id, tenant_id, customer_id, normalized_sku, internal_sku, status,
			 support_count, reject_count, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			internal_sku = EXCLUDED.internal_sku,
			status = EXCLUDED.status,
			support_count = EXCLUDED.support_count,
			reject_count = EXCLUDED.reject_count,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = now()`

	_, err := c.db.ExecContext(ctx, q,
		mapping.ID, mapping.TenantID, mapping.CustomerID, mapping.NormalizedSKU,
		mapping.InternalSKU, string(mapping.Status), mapping.SupportCount,
		mapping.RejectCount, sqlutil.ToNullTime(mapping.LastUsedAt))
	if err != nil {
		return sharederrors.DatabaseError("save mapping", err)
	}
	return nil
}

// TouchMappingUsed stamps last_used_at on a mapping after a hit.
func (c *SQLCatalog) TouchMappingUsed(ctx context.Context, tenantID, mappingID uuid.UUID, at time.Time) error {
	const q = `UPDATE sku_mapping SET last_used_at = $3, updated_at = now() WHERE tenant_id = $1 AND id = $2`
	if _, err := c.db.ExecContext(ctx, q, tenantID, mappingID, at); err != nil {
		return sharederrors.DatabaseError("touch mapping", err)
	}
	return nil
}
