package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
	"github.com/aliuyar1234/orderflow/pkg/shared/sqlutil"
)

// SQLLedger implements ai.Ledger over the ai_call_log table. Writes
// are independent commits; the table is append-only.
type SQLLedger struct {
	db *sqlx.DB
}

// NewSQLLedger builds the ledger.
func NewSQLLedger(db *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Record implements ai.Ledger.
func (l *SQLLedger) Record(ctx context.Context, entry domain.AICallLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO ai_call_log
			(id, tenant_id, call_type, provider, model, input_hash,
			 input_tokens, output_tokens, latency_ms, cost_micros,
			 status, error_detail, result_key, document_id, draft_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := l.db.ExecContext(ctx, q,
		entry.ID, entry.TenantID, string(entry.CallType), entry.Provider, entry.Model,
		entry.InputHash, entry.InputTokens, entry.OutputTokens, entry.LatencyMS,
		int64(entry.CostMicros), string(entry.Status),
		sqlutil.ToNullStringValue(entry.ErrorDetail), sqlutil.ToNullStringValue(entry.ResultKey),
		sqlutil.ToNullUUID(entry.DocumentID), sqlutil.ToNullUUID(entry.DraftID), entry.CreatedAt)
	if err != nil {
		return sharederrors.DatabaseError("append ai call log", err)
	}
	return nil
}

// FindRecent implements ai.Ledger.
func (l *SQLLedger) FindRecent(ctx context.Context, tenantID uuid.UUID, inputHash string, notBefore time.Time) (*domain.AICallLog, error) {
	const q = `
		SELECT id, tenant_id, call_type, provider, model, input_hash,
		       input_tokens, output_tokens, latency_ms, cost_micros,
		       status, error_detail, result_key, created_at
		FROM ai_call_log
		WHERE tenant_id = $1 AND input_hash = $2 AND status = 'SUCCEEDED' AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`

	var row struct {
		ID           uuid.UUID      `db:"id"`
		TenantID     uuid.UUID      `db:"tenant_id"`
		CallType     string         `db:"call_type"`
		Provider     string         `db:"provider"`
		Model        string         `db:"model"`
		InputHash    string         `db:"input_hash"`
		InputTokens  int            `db:"input_tokens"`
		OutputTokens int            `db:"output_tokens"`
		LatencyMS    int64          `db:"latency_ms"`
		CostMicros   int64          `db:"cost_micros"`
		Status       string         `db:"status"`
		ErrorDetail  sql.NullString `db:"error_detail"`
		ResultKey    sql.NullString `db:"result_key"`
		CreatedAt    time.Time      `db:"created_at"`
	}
	err := l.db.GetContext(ctx, &row, q, tenantID, inputHash, notBefore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("lookup ai call", err)
	}

	entry := domain.AICallLog{
		ID:           row.ID,
		TenantID:     row.TenantID,
		CallType:     domain.AICallType(row.CallType),
		Provider:     row.Provider,
		Model:        row.Model,
		InputHash:    row.InputHash,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		LatencyMS:    row.LatencyMS,
		CostMicros:   domain.Micros(row.CostMicros),
		Status:       domain.AICallStatus(row.Status),
		CreatedAt:    row.CreatedAt,
	}
	if v := sqlutil.FromNullString(row.ErrorDetail); v != nil {
		entry.ErrorDetail = *v
	}
	if v := sqlutil.FromNullString(row.ResultKey); v != nil {
		entry.ResultKey = *v
	}
	return &entry, nil
}

// SpentSince implements ai.Ledger.
func (l *SQLLedger) SpentSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (domain.Micros, error) {
	const q = `
		SELECT coalesce(sum(cost_micros), 0)
		FROM ai_call_log
		WHERE tenant_id = $1 AND created_at >= $2`

	var total int64
	if err := l.db.GetContext(ctx, &total, q, tenantID, since); err != nil {
		return 0, sharederrors.DatabaseError("sum ai spend", err)
	}
	return domain.Micros(total), nil
}
