package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
	"github.com/aliuyar1234/orderflow/pkg/shared/sqlutil"
)

// SQLDrafts implements draftorder.Store and draftorder.FeedbackSink.
// The draft and its lines are written in one transaction; the version
// check on the header row serializes concurrent mutations.
type SQLDrafts struct {
	db *sqlx.DB
}

// NewSQLDrafts builds the store.
func NewSQLDrafts(db *sqlx.DB) *SQLDrafts { return &SQLDrafts{db: db} }

type draftRow struct {
	ID                   uuid.UUID       `db:"id"`
	TenantID             uuid.UUID       `db:"tenant_id"`
	CustomerID           sql.NullString  `db:"customer_id"`
	DocumentID           sql.NullString  `db:"document_id"`
	ExtractionRunID      sql.NullString  `db:"extraction_run_id"`
	ExternalOrderNumber  sql.NullString  `db:"external_order_number"`
	OrderDate            sql.NullTime    `db:"order_date"`
	RequestedDelivery    sql.NullTime    `db:"requested_delivery"`
	Currency             sql.NullString  `db:"currency"`
	ShipTo               []byte          `db:"ship_to"`
	BillTo               []byte          `db:"bill_to"`
	Notes                sql.NullString  `db:"notes"`
	Status               string          `db:"status"`
	Version              int64           `db:"version"`
	ApprovedBy           sql.NullString  `db:"approved_by"`
	ApprovedAt           sql.NullTime    `db:"approved_at"`
	ERPReference         sql.NullString  `db:"erp_reference"`
	PushedAt             sql.NullTime    `db:"pushed_at"`
	DeletedAt            sql.NullTime    `db:"deleted_at"`
	Ready                []byte          `db:"ready_check"`
	OverallConfidence    float64         `db:"overall_confidence"`
	ExtractionConfidence float64         `db:"extraction_confidence"`
	CustomerConfidence   float64         `db:"customer_confidence"`
	MatchingConfidence   float64         `db:"matching_confidence"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

const draftColumns = `id, tenant_id, customer_id, document_id, extraction_run_id,
	external_order_number, order_date, requested_delivery, currency, ship_to, bill_to,
	notes, status, version, approved_by, approved_at, erp_reference, pushed_at,
	deleted_at, ready_check, overall_confidence, extraction_confidence,
	customer_confidence, matching_confidence, created_at, updated_at`

func nullUUIDValue(v sql.NullString) *uuid.UUID {
	s := sqlutil.FromNullString(v)
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func (r draftRow) toDomain() *domain.DraftOrder {
	draft := &domain.DraftOrder{
		ID:                   r.ID,
		TenantID:             r.TenantID,
		CustomerID:           nullUUIDValue(r.CustomerID),
		DocumentID:           nullUUIDValue(r.DocumentID),
		ExtractionRunID:      nullUUIDValue(r.ExtractionRunID),
		OrderDate:            sqlutil.FromNullTime(r.OrderDate),
		RequestedDelivery:    sqlutil.FromNullTime(r.RequestedDelivery),
		Status:               domain.DraftStatus(r.Status),
		Version:              r.Version,
		ApprovedAt:           sqlutil.FromNullTime(r.ApprovedAt),
		PushedAt:             sqlutil.FromNullTime(r.PushedAt),
		DeletedAt:            sqlutil.FromNullTime(r.DeletedAt),
		OverallConfidence:    r.OverallConfidence,
		ExtractionConfidence: r.ExtractionConfidence,
		CustomerConfidence:   r.CustomerConfidence,
		MatchingConfidence:   r.MatchingConfidence,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	for dst, src := range map[*string]sql.NullString{
		&draft.ExternalOrderNumber: r.ExternalOrderNumber,
		&draft.Currency:            r.Currency,
		&draft.Notes:               r.Notes,
		&draft.ApprovedBy:          r.ApprovedBy,
		&draft.ERPReference:        r.ERPReference,
	} {
		if v := sqlutil.FromNullString(src); v != nil {
			*dst = *v
		}
	}
	if len(r.ShipTo) > 0 {
		_ = json.Unmarshal(r.ShipTo, &draft.ShipTo)
	}
	if len(r.BillTo) > 0 {
		_ = json.Unmarshal(r.BillTo, &draft.BillTo)
	}
	if len(r.Ready) > 0 {
		_ = json.Unmarshal(r.Ready, &draft.Ready)
	}
	return draft
}

// Get implements draftorder.Store.
func (s *SQLDrafts) Get(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.DraftOrder, error) {
	const q = `SELECT ` + draftColumns + ` FROM draft_order WHERE tenant_id = $1 AND id = $2`

	var row draftRow
	err := s.db.GetContext(ctx, &row, q, tenantID, draftID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load draft", err)
	}
	draft := row.toDomain()

	lines, err := s.loadLines(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	draft.Lines = lines
	return draft, nil
}

type lineRow struct {
	ID                uuid.UUID           `db:"id"`
	TenantID          uuid.UUID           `db:"tenant_id"`
	DraftID           uuid.UUID           `db:"draft_id"`
	LineNo            int                 `db:"line_no"`
	ProductID         sql.NullString      `db:"product_id"`
	InternalSKU       sql.NullString      `db:"internal_sku"`
	CustomerSKURaw    sql.NullString      `db:"customer_sku_raw"`
	NormalizedSKU     sql.NullString      `db:"normalized_sku"`
	Description       sql.NullString      `db:"description"`
	Qty               decimal.NullDecimal `db:"qty"`
	UoM               sql.NullString      `db:"uom"`
	UnitPriceMicros   sql.NullInt64       `db:"unit_price_micros"`
	Currency          sql.NullString      `db:"currency"`
	RequestedDelivery sql.NullTime        `db:"requested_delivery"`
	MatchStatus       string              `db:"match_status"`
	MatchMethod       sql.NullString      `db:"match_method"`
	MatchConfidence   float64             `db:"match_confidence"`
	Candidates        []byte              `db:"candidates"`
	Notes             sql.NullString      `db:"notes"`
}

func (s *SQLDrafts) loadLines(ctx context.Context, tenantID, draftID uuid.UUID) ([]domain.DraftOrderLine, error) {
	const q = `
		SELECT id, tenant_id, draft_id, line_no, product_id, internal_sku,
		       customer_sku_raw, normalized_sku, description, qty, uom,
		       unit_price_micros, currency, requested_delivery, match_status,
		       match_method, match_confidence, candidates, notes
		FROM draft_order_line
		WHERE tenant_id = $1 AND draft_id = $2
		ORDER BY line_no`

	var rows []lineRow
	if err := s.db.SelectContext(ctx, &rows, q, tenantID, draftID); err != nil {
		return nil, sharederrors.DatabaseError("load draft lines", err)
	}

	lines := make([]domain.DraftOrderLine, 0, len(rows))
	for _, row := range rows {
		line := domain.DraftOrderLine{
			ID:                row.ID,
			TenantID:          row.TenantID,
			DraftID:           row.DraftID,
			LineNo:            row.LineNo,
			ProductID:         nullUUIDValue(row.ProductID),
			RequestedDelivery: sqlutil.FromNullTime(row.RequestedDelivery),
			MatchStatus:       domain.MatchStatus(row.MatchStatus),
			MatchConfidence:   row.MatchConfidence,
		}
		for dst, src := range map[*string]sql.NullString{
			&line.InternalSKU:    row.InternalSKU,
			&line.CustomerSKURaw: row.CustomerSKURaw,
			&line.NormalizedSKU:  row.NormalizedSKU,
			&line.Description:    row.Description,
			&line.Currency:       row.Currency,
			&line.Notes:          row.Notes,
		} {
			if v := sqlutil.FromNullString(src); v != nil {
				*dst = *v
			}
		}
		if row.Qty.Valid {
			qty := row.Qty.Decimal
			line.Qty = &qty
		}
		if v := sqlutil.FromNullString(row.UoM); v != nil {
			uom := domain.UoM(*v)
			line.UoM = &uom
		}
		if v := sqlutil.FromNullInt64(row.UnitPriceMicros); v != nil {
			price := domain.Micros(*v)
			line.UnitPriceMicros = &price
		}
		if v := sqlutil.FromNullString(row.MatchMethod); v != nil {
			line.MatchMethod = domain.MatchMethod(*v)
		}
		if len(row.Candidates) > 0 {
			_ = json.Unmarshal(row.Candidates, &line.Candidates)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Create implements draftorder.Store.
func (s *SQLDrafts) Create(ctx context.Context, draft *domain.DraftOrder) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Version == 0 {
		draft.Version = 1
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sharederrors.DatabaseError("begin draft create", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertHeader(ctx, tx, draft); err != nil {
		return err
	}
	if err := s.insertLines(ctx, tx, draft); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return sharederrors.DatabaseError("commit draft create", err)
	}
	return nil
}

func (s *SQLDrafts) insertHeader(ctx context.Context, tx *sqlx.Tx, draft *domain.DraftOrder) error {
	shipTo, _ := json.Marshal(draft.ShipTo)
	billTo, _ := json.Marshal(draft.BillTo)
	ready, _ := json.Marshal(draft.Ready)

	const q = `
		INSERT INTO draft_order (` + draftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, now(), now())`

	_, err := tx.ExecContext(ctx, q,
		draft.ID, draft.TenantID, sqlutil.ToNullUUID(draft.CustomerID),
		sqlutil.ToNullUUID(draft.DocumentID), sqlutil.ToNullUUID(draft.ExtractionRunID),
		sqlutil.ToNullStringValue(draft.ExternalOrderNumber), sqlutil.ToNullTime(draft.OrderDate),
		sqlutil.ToNullTime(draft.RequestedDelivery), sqlutil.ToNullStringValue(draft.Currency),
		shipTo, billTo, sqlutil.ToNullStringValue(draft.Notes), string(draft.Status), draft.Version,
		sqlutil.ToNullStringValue(draft.ApprovedBy), sqlutil.ToNullTime(draft.ApprovedAt),
		sqlutil.ToNullStringValue(draft.ERPReference), sqlutil.ToNullTime(draft.PushedAt),
		sqlutil.ToNullTime(draft.DeletedAt), ready, draft.OverallConfidence,
		draft.ExtractionConfidence, draft.CustomerConfidence, draft.MatchingConfidence)
	if err != nil {
		return sharederrors.DatabaseError("insert draft", err)
	}
	return nil
}

func (s *SQLDrafts) insertLines(ctx context.Context, tx *sqlx.Tx, draft *domain.DraftOrder) error {
	const q = `
		INSERT INTO draft_order_line
			(id, tenant_id, draft_id, line_no, product_id, internal_sku,
			 customer_sku_raw, normalized_sku, description, qty, uom,
			 unit_price_micros, currency, requested_delivery, match_status,
			 match_method, match_confidence, candidates, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())`

	for i := range draft.Lines {
		line := &draft.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.DraftID = draft.ID
		line.TenantID = draft.TenantID

		candidates, _ := json.Marshal(line.Candidates)
		var qty interface{}
		if line.Qty != nil {
			qty = line.Qty.String()
		}
		var price sql.NullInt64
		if line.UnitPriceMicros != nil {
			v := int64(*line.UnitPriceMicros)
			price = sql.NullInt64{Int64: v, Valid: true}
		}
		var uom sql.NullString
		if line.UoM != nil {
			uom = sqlutil.ToNullStringValue(string(*line.UoM))
		}

		_, err := tx.ExecContext(ctx, q,
			line.ID, line.TenantID, line.DraftID, line.LineNo,
			sqlutil.ToNullUUID(line.ProductID), sqlutil.ToNullStringValue(line.InternalSKU),
			sqlutil.ToNullStringValue(line.CustomerSKURaw), sqlutil.ToNullStringValue(line.NormalizedSKU),
			sqlutil.ToNullStringValue(line.Description), qty, uom, price,
			sqlutil.ToNullStringValue(line.Currency), sqlutil.ToNullTime(line.RequestedDelivery),
			string(line.MatchStatus), sqlutil.ToNullStringValue(string(line.MatchMethod)),
			line.MatchConfidence, candidates, sqlutil.ToNullStringValue(line.Notes))
		if err != nil {
			return sharederrors.DatabaseError("insert draft line", err)
		}
	}
	return nil
}

// Save implements draftorder.Store: header update guarded by the
// version check, lines replaced in the same transaction.
func (s *SQLDrafts) Save(ctx context.Context, draft *domain.DraftOrder, expectedVersion int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sharederrors.DatabaseError("begin draft save", err)
	}
	defer func() { _ = tx.Rollback() }()

	shipTo, _ := json.Marshal(draft.ShipTo)
	billTo, _ := json.Marshal(draft.BillTo)
	ready, _ := json.Marshal(draft.Ready)

	const q = `
		UPDATE draft_order SET
			customer_id = $3, external_order_number = $4, order_date = $5,
			requested_delivery = $6, currency = $7, ship_to = $8, bill_to = $9,
			notes = $10, status = $11, version = version + 1, approved_by = $12,
			approved_at = $13, erp_reference = $14, pushed_at = $15, deleted_at = $16,
			ready_check = $17, overall_confidence = $18, extraction_confidence = $19,
			customer_confidence = $20, matching_confidence = $21, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND version = $22`

	result, err := tx.ExecContext(ctx, q,
		draft.TenantID, draft.ID, sqlutil.ToNullUUID(draft.CustomerID),
		sqlutil.ToNullStringValue(draft.ExternalOrderNumber), sqlutil.ToNullTime(draft.OrderDate),
		sqlutil.ToNullTime(draft.RequestedDelivery), sqlutil.ToNullStringValue(draft.Currency),
		shipTo, billTo, sqlutil.ToNullStringValue(draft.Notes), string(draft.Status),
		sqlutil.ToNullStringValue(draft.ApprovedBy), sqlutil.ToNullTime(draft.ApprovedAt),
		sqlutil.ToNullStringValue(draft.ERPReference), sqlutil.ToNullTime(draft.PushedAt),
		sqlutil.ToNullTime(draft.DeletedAt), ready, draft.OverallConfidence,
		draft.ExtractionConfidence, draft.CustomerConfidence, draft.MatchingConfidence,
		expectedVersion)
	if err != nil {
		return sharederrors.DatabaseError("update draft", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeVersionConflict,
			"draft %s changed concurrently (expected version %d)", draft.ID, expectedVersion)
	}
	draft.Version = expectedVersion + 1

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM draft_order_line WHERE tenant_id = $1 AND draft_id = $2`,
		draft.TenantID, draft.ID); err != nil {
		return sharederrors.DatabaseError("replace draft lines", err)
	}
	if err := s.insertLines(ctx, tx, draft); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return sharederrors.DatabaseError("commit draft save", err)
	}
	return nil
}

// Record implements draftorder.FeedbackSink; the table is append-only.
func (s *SQLDrafts) Record(ctx context.Context, event domain.FeedbackEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload, _ := json.Marshal(event.Payload)

	const q = `
		INSERT INTO feedback_event
			(id, tenant_id, kind, actor, draft_id, line_id, mapping_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`

	_, err := s.db.ExecContext(ctx, q,
		event.ID, event.TenantID, string(event.Kind), sqlutil.ToNullStringValue(event.Actor),
		sqlutil.ToNullUUID(event.DraftID), sqlutil.ToNullUUID(event.LineID),
		sqlutil.ToNullUUID(event.MappingID), payload)
	if err != nil {
		return sharederrors.DatabaseError("append feedback event", err)
	}
	return nil
}

// SQLIssues implements validation.IssueStore.
type SQLIssues struct {
	db *sqlx.DB
}

// NewSQLIssues builds the store.
func NewSQLIssues(db *sqlx.DB) *SQLIssues { return &SQLIssues{db: db} }

// ListForDraft implements validation.IssueStore.
func (s *SQLIssues) ListForDraft(ctx context.Context, tenantID, draftID uuid.UUID) ([]domain.ValidationIssue, error) {
	const q = `
		SELECT id, tenant_id, draft_id, line_id, issue_type, severity, status,
		       message, details, resolved_by, resolved_at, created_at, updated_at
		FROM validation_issue
		WHERE tenant_id = $1 AND draft_id = $2`

	var rows []struct {
		ID         uuid.UUID      `db:"id"`
		TenantID   uuid.UUID      `db:"tenant_id"`
		DraftID    uuid.UUID      `db:"draft_id"`
		LineID     sql.NullString `db:"line_id"`
		IssueType  string         `db:"issue_type"`
		Severity   string         `db:"severity"`
		Status     string         `db:"status"`
		Message    string         `db:"message"`
		Details    []byte         `db:"details"`
		ResolvedBy sql.NullString `db:"resolved_by"`
		ResolvedAt sql.NullTime   `db:"resolved_at"`
		CreatedAt  time.Time      `db:"created_at"`
		UpdatedAt  time.Time      `db:"updated_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, tenantID, draftID); err != nil {
		return nil, sharederrors.DatabaseError("list validation issues", err)
	}

	issues := make([]domain.ValidationIssue, 0, len(rows))
	for _, row := range rows {
		issue := domain.ValidationIssue{
			ID: row.ID, TenantID: row.TenantID, DraftID: row.DraftID,
			LineID: nullUUIDValue(row.LineID), Type: row.IssueType,
			Severity: domain.IssueSeverity(row.Severity), Status: domain.IssueStatus(row.Status),
			Message: row.Message, ResolvedAt: sqlutil.FromNullTime(row.ResolvedAt),
			CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		}
		if v := sqlutil.FromNullString(row.ResolvedBy); v != nil {
			issue.ResolvedBy = *v
		}
		if len(row.Details) > 0 {
			_ = json.Unmarshal(row.Details, &issue.Details)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// Create implements validation.IssueStore.
func (s *SQLIssues) Create(ctx context.Context, issue domain.ValidationIssue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	details, _ := json.Marshal(issue.Details)

	const q = `
		INSERT INTO validation_issue
			(id, tenant_id, draft_id, line_id, issue_type, severity, status,
			 message, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`

	_, err := s.db.ExecContext(ctx, q,
		issue.ID, issue.TenantID, issue.DraftID, sqlutil.ToNullUUID(issue.LineID),
		issue.Type, string(issue.Severity), string(issue.Status), issue.Message, details)
	if err != nil {
		return sharederrors.DatabaseError("insert validation issue", err)
	}
	return nil
}

// SetStatus implements validation.IssueStore.
func (s *SQLIssues) SetStatus(ctx context.Context, tenantID, issueID uuid.UUID, status domain.IssueStatus, actor string) error {
	const q = `
		UPDATE validation_issue
		SET status = $3,
		    resolved_by = CASE WHEN $3 IN ('RESOLVED', 'OVERRIDDEN') THEN nullif($4, '') ELSE resolved_by END,
		    resolved_at = CASE WHEN $3 IN ('RESOLVED', 'OVERRIDDEN') THEN now() ELSE resolved_at END,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, q, tenantID, issueID, string(status), actor)
	if err != nil {
		return sharederrors.DatabaseError("update validation issue", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "issue %s not found", issueID)
	}
	return nil
}

// SQLExports implements erpexport.ExportStore. The unique index on
// (tenant_id, idempotency_key) is the invariant CreateUnique leans on.
type SQLExports struct {
	db *sqlx.DB
}

// NewSQLExports builds the store.
func NewSQLExports(db *sqlx.DB) *SQLExports { return &SQLExports{db: db} }

type exportRow struct {
	ID             uuid.UUID      `db:"id"`
	TenantID       uuid.UUID      `db:"tenant_id"`
	DraftID        uuid.UUID      `db:"draft_id"`
	DraftVersion   int64          `db:"draft_version"`
	ConnectionID   uuid.UUID      `db:"connection_id"`
	StorageKey     sql.NullString `db:"storage_key"`
	DropzonePath   sql.NullString `db:"dropzone_path"`
	Status         string         `db:"status"`
	ERPReference   sql.NullString `db:"erp_reference"`
	IdempotencyKey string         `db:"idempotency_key"`
	ErrorDetail    sql.NullString `db:"error_detail"`
	RetryCount     int            `db:"retry_count"`
	LatencyMS      int64          `db:"latency_ms"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const exportColumns = `id, tenant_id, draft_id, draft_version, connection_id, storage_key,
	dropzone_path, status, erp_reference, idempotency_key, error_detail,
	retry_count, latency_ms, created_at, updated_at`

func (r exportRow) toDomain() domain.ERPExport {
	export := domain.ERPExport{
		ID: r.ID, TenantID: r.TenantID, DraftID: r.DraftID, DraftVersion: r.DraftVersion,
		ConnectionID: r.ConnectionID, Status: domain.ExportStatus(r.Status),
		IdempotencyKey: r.IdempotencyKey, RetryCount: r.RetryCount, LatencyMS: r.LatencyMS,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	for dst, src := range map[*string]sql.NullString{
		&export.StorageKey:   r.StorageKey,
		&export.DropzonePath: r.DropzonePath,
		&export.ERPReference: r.ERPReference,
		&export.ErrorDetail:  r.ErrorDetail,
	} {
		if v := sqlutil.FromNullString(src); v != nil {
			*dst = *v
		}
	}
	return export
}

// CreateUnique implements erpexport.ExportStore.
func (s *SQLExports) CreateUnique(ctx context.Context, export domain.ERPExport) error {
	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}

	const q = `
		INSERT INTO erp_export (` + exportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`

	result, err := s.db.ExecContext(ctx, q,
		export.ID, export.TenantID, export.DraftID, export.DraftVersion, export.ConnectionID,
		sqlutil.ToNullStringValue(export.StorageKey), sqlutil.ToNullStringValue(export.DropzonePath),
		string(export.Status), sqlutil.ToNullStringValue(export.ERPReference), export.IdempotencyKey,
		sqlutil.ToNullStringValue(export.ErrorDetail), export.RetryCount, export.LatencyMS)
	if err != nil {
		return sharederrors.DatabaseError("insert erp export", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeVersionConflict,
			"export with idempotency key %s already exists", export.IdempotencyKey)
	}
	return nil
}

// FindByIdempotencyKey implements erpexport.ExportStore.
func (s *SQLExports) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*domain.ERPExport, error) {
	const q = `SELECT ` + exportColumns + ` FROM erp_export WHERE tenant_id = $1 AND idempotency_key = $2`

	var row exportRow
	err := s.db.GetContext(ctx, &row, q, tenantID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load export by key", err)
	}
	export := row.toDomain()
	return &export, nil
}

// FindLatestSent implements erpexport.ExportStore.
func (s *SQLExports) FindLatestSent(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.ERPExport, error) {
	const q = `
		SELECT ` + exportColumns + `
		FROM erp_export
		WHERE tenant_id = $1 AND draft_id = $2 AND status = 'SENT'
		ORDER BY created_at DESC
		LIMIT 1`

	var row exportRow
	err := s.db.GetContext(ctx, &row, q, tenantID, draftID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load latest sent export", err)
	}
	export := row.toDomain()
	return &export, nil
}

// Update implements erpexport.ExportStore.
func (s *SQLExports) Update(ctx context.Context, export domain.ERPExport) error {
	const q = `
		UPDATE erp_export
		SET status = $3, erp_reference = $4, error_detail = $5, retry_count = $6, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, q,
		export.TenantID, export.ID, string(export.Status),
		sqlutil.ToNullStringValue(export.ERPReference), sqlutil.ToNullStringValue(export.ErrorDetail),
		export.RetryCount)
	if err != nil {
		return sharederrors.DatabaseError("update erp export", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "export %s not found", export.ID)
	}
	return nil
}
