package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/draftorder"
	"github.com/aliuyar1234/orderflow/pkg/erpexport/secretbox"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
	"github.com/aliuyar1234/orderflow/pkg/shared/sqlutil"
)

// SQLTenants implements pipeline.TenantSource.
type SQLTenants struct {
	db *sqlx.DB
}

// NewSQLTenants builds the source.
func NewSQLTenants(db *sqlx.DB) *SQLTenants { return &SQLTenants{db: db} }

// Get loads a tenant with its settings map.
func (s *SQLTenants) Get(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	const q = `SELECT id, name, slug, settings, created_at, updated_at FROM tenant WHERE id = $1`

	var row struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		Slug      string    `db:"slug"`
		Settings  []byte    `db:"settings"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, q, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load tenant", err)
	}

	tenant := domain.Tenant{ID: row.ID, Name: row.Name, Slug: row.Slug, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if len(row.Settings) > 0 {
		_ = json.Unmarshal(row.Settings, &tenant.Settings)
	}
	return &tenant, nil
}

// SQLDocuments implements pipeline.DocumentStore and pipeline.RunStore.
type SQLDocuments struct {
	db *sqlx.DB
}

// NewSQLDocuments builds the store.
func NewSQLDocuments(db *sqlx.DB) *SQLDocuments { return &SQLDocuments{db: db} }

// Get loads one document.
func (s *SQLDocuments) Get(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.Document, error) {
	const q = `
		SELECT id, tenant_id, message_id, filename, mime_type, size_bytes, content_hash,
		       storage_key, source, sender_email, status, error_detail, created_at, updated_at
		FROM document
		WHERE tenant_id = $1 AND id = $2`

	var row struct {
		ID          uuid.UUID      `db:"id"`
		TenantID    uuid.UUID      `db:"tenant_id"`
		MessageID   sql.NullString `db:"message_id"`
		Filename    string         `db:"filename"`
		MimeType    string         `db:"mime_type"`
		SizeBytes   int64          `db:"size_bytes"`
		ContentHash string         `db:"content_hash"`
		StorageKey  string         `db:"storage_key"`
		Source      string         `db:"source"`
		SenderEmail sql.NullString `db:"sender_email"`
		Status      string         `db:"status"`
		ErrorDetail sql.NullString `db:"error_detail"`
		CreatedAt   time.Time      `db:"created_at"`
		UpdatedAt   time.Time      `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, q, tenantID, documentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load document", err)
	}

	doc := domain.Document{
		ID: row.ID, TenantID: row.TenantID, Filename: row.Filename, MimeType: row.MimeType,
		SizeBytes: row.SizeBytes, ContentHash: row.ContentHash, StorageKey: row.StorageKey,
		Source: domain.DocumentSource(row.Source), Status: domain.DocumentStatus(row.Status),
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if v := sqlutil.FromNullString(row.SenderEmail); v != nil {
		doc.SenderEmail = *v
	}
	if v := sqlutil.FromNullString(row.ErrorDetail); v != nil {
		doc.ErrorDetail = *v
	}
	if v := sqlutil.FromNullString(row.MessageID); v != nil {
		if id, err := uuid.Parse(*v); err == nil {
			doc.MessageID = &id
		}
	}
	return &doc, nil
}

// SetStatus applies a guarded status transition. The WHERE clause on
// the prior status makes concurrent transitions from the same state
// safe: only one update wins.
func (s *SQLDocuments) SetStatus(ctx context.Context, tenantID, documentID uuid.UUID, from, to domain.DocumentStatus, errorDetail string) error {
	if err := draftorder.CheckDocumentTransition(from, to); err != nil {
		return err
	}

	const q = `
		UPDATE document
		SET status = $4, error_detail = $5, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $3`

	result, err := s.db.ExecContext(ctx, q, tenantID, documentID, string(from), string(to), sqlutil.ToNullStringValue(errorDetail))
	if err != nil {
		return sharederrors.DatabaseError("document status transition", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeIllegalStateTransition,
			"document %s is no longer %s", documentID, from)
	}
	return nil
}

// Create appends an extraction run.
func (s *SQLDocuments) Create(ctx context.Context, run domain.ExtractionRun) error {
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO extraction_run
			(id, tenant_id, document_id, method, extractor_version, input_hash,
			 result_storage_key, confidence, text_coverage_ratio, runtime_ms,
			 warnings, error_code, error_detail, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())`

	_, err = s.db.ExecContext(ctx, q,
		run.ID, run.TenantID, run.DocumentID, string(run.Method), run.ExtractorVersion,
		run.InputHash, sqlutil.ToNullStringValue(run.ResultStorageKey), run.Confidence,
		run.TextCoverageRatio, run.RuntimeMS, warnings,
		sqlutil.ToNullStringValue(run.ErrorCode), sqlutil.ToNullStringValue(run.ErrorDetail),
		sqlutil.ToNullTime(run.CompletedAt))
	if err != nil {
		return sharederrors.DatabaseError("append extraction run", err)
	}
	return nil
}

// GetMessage implements pipeline.MessageSource.
func (s *SQLDocuments) GetMessage(ctx context.Context, tenantID, messageID uuid.UUID) (*domain.InboundMessage, error) {
	const q = `
		SELECT id, tenant_id, from_email, to_email, subject, raw_storage_key,
		       status, error_detail, received_at, created_at, updated_at
		FROM inbound_message
		WHERE tenant_id = $1 AND id = $2`

	var row struct {
		ID            uuid.UUID      `db:"id"`
		TenantID      uuid.UUID      `db:"tenant_id"`
		FromEmail     string         `db:"from_email"`
		ToEmail       string         `db:"to_email"`
		Subject       sql.NullString `db:"subject"`
		RawStorageKey sql.NullString `db:"raw_storage_key"`
		Status        string         `db:"status"`
		ErrorDetail   sql.NullString `db:"error_detail"`
		ReceivedAt    time.Time      `db:"received_at"`
		CreatedAt     time.Time      `db:"created_at"`
		UpdatedAt     time.Time      `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, q, tenantID, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load inbound message", err)
	}

	message := domain.InboundMessage{
		ID: row.ID, TenantID: row.TenantID, FromEmail: row.FromEmail, ToEmail: row.ToEmail,
		Status: domain.MessageStatus(row.Status), ReceivedAt: row.ReceivedAt,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if v := sqlutil.FromNullString(row.Subject); v != nil {
		message.Subject = *v
	}
	if v := sqlutil.FromNullString(row.RawStorageKey); v != nil {
		message.RawStorageKey = *v
	}
	if v := sqlutil.FromNullString(row.ErrorDetail); v != nil {
		message.ErrorDetail = *v
	}
	return &message, nil
}

// ListMessageDocuments implements pipeline.MessageSource.
func (s *SQLDocuments) ListMessageDocuments(ctx context.Context, tenantID, messageID uuid.UUID) ([]domain.Document, error) {
	const q = `
		SELECT id, content_hash, status
		FROM document
		WHERE tenant_id = $1 AND message_id = $2`

	var rows []struct {
		ID          uuid.UUID `db:"id"`
		ContentHash string    `db:"content_hash"`
		Status      string    `db:"status"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, tenantID, messageID); err != nil {
		return nil, sharederrors.DatabaseError("list message documents", err)
	}

	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, domain.Document{
			ID:          row.ID,
			TenantID:    tenantID,
			ContentHash: row.ContentHash,
			Status:      domain.DocumentStatus(row.Status),
		})
	}
	return docs, nil
}

// SetMessageStatus implements pipeline.MessageSource.
func (s *SQLDocuments) SetMessageStatus(ctx context.Context, tenantID, messageID uuid.UUID, status domain.MessageStatus, errorDetail string) error {
	const q = `
		UPDATE inbound_message
		SET status = $3, error_detail = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`

	result, err := s.db.ExecContext(ctx, q, tenantID, messageID, string(status), sqlutil.ToNullStringValue(errorDetail))
	if err != nil {
		return sharederrors.DatabaseError("update inbound message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "message %s not found", messageID)
	}
	return nil
}

// SQLCustomers implements pipeline.CustomerSource.
type SQLCustomers struct {
	db *sqlx.DB
}

// NewSQLCustomers builds the source.
func NewSQLCustomers(db *sqlx.DB) *SQLCustomers { return &SQLCustomers{db: db} }

type customerRow struct {
	ID                uuid.UUID      `db:"id"`
	TenantID          uuid.UUID      `db:"tenant_id"`
	Name              string         `db:"name"`
	ERPCustomerNumber sql.NullString `db:"erp_customer_number"`
}

func (r customerRow) toDomain() domain.Customer {
	c := domain.Customer{ID: r.ID, TenantID: r.TenantID, Name: r.Name}
	if v := sqlutil.FromNullString(r.ERPCustomerNumber); v != nil {
		c.ERPCustomerNumber = *v
	}
	return c
}

// ListCustomers lists the tenant's customers.
func (s *SQLCustomers) ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]domain.Customer, error) {
	const q = `SELECT id, tenant_id, name, erp_customer_number FROM customer WHERE tenant_id = $1`

	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, sharederrors.DatabaseError("list customers", err)
	}
	result := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// ListContacts lists the tenant's customer contacts.
func (s *SQLCustomers) ListContacts(ctx context.Context, tenantID uuid.UUID) ([]domain.CustomerContact, error) {
	const q = `SELECT id, tenant_id, customer_id, email, name, is_primary FROM customer_contact WHERE tenant_id = $1`

	var rows []struct {
		ID         uuid.UUID `db:"id"`
		TenantID   uuid.UUID `db:"tenant_id"`
		CustomerID uuid.UUID `db:"customer_id"`
		Email      string    `db:"email"`
		Name       string    `db:"name"`
		IsPrimary  bool      `db:"is_primary"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, sharederrors.DatabaseError("list contacts", err)
	}
	result := make([]domain.CustomerContact, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.CustomerContact{
			ID: row.ID, TenantID: row.TenantID, CustomerID: row.CustomerID,
			Email: row.Email, Name: row.Name, IsPrimary: row.IsPrimary,
		})
	}
	return result, nil
}

// GetCustomer loads one customer.
func (s *SQLCustomers) GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*domain.Customer, error) {
	const q = `SELECT id, tenant_id, name, erp_customer_number FROM customer WHERE tenant_id = $1 AND id = $2`

	var row customerRow
	err := s.db.GetContext(ctx, &row, q, tenantID, customerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load customer", err)
	}
	customer := row.toDomain()
	return &customer, nil
}

// ListActive implements pipeline.ProductSource over the catalog.
func (c *SQLCatalog) ListActive(ctx context.Context, tenantID uuid.UUID) ([]domain.Product, error) {
	const q = `SELECT ` + productColumns + `, 0 AS score FROM product WHERE tenant_id = $1 AND active`

	var rows []productRow
	if err := c.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, sharederrors.DatabaseError("list products", err)
	}
	result := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// GetByID implements pipeline.ProductSource.
func (c *SQLCatalog) GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*domain.Product, error) {
	const q = `SELECT ` + productColumns + `, 0 AS score FROM product WHERE tenant_id = $1 AND id = $2`

	var row productRow
	err := c.db.GetContext(ctx, &row, q, tenantID, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.DatabaseError("load product", err)
	}
	product := row.toDomain()
	return &product, nil
}

// SQLConnections implements pipeline.ConnectionSource with secretbox
// decryption of the stored configuration.
type SQLConnections struct {
	db  *sqlx.DB
	box *secretbox.Box
}

// NewSQLConnections builds the source.
func NewSQLConnections(db *sqlx.DB, box *secretbox.Box) *SQLConnections {
	return &SQLConnections{db: db, box: box}
}

type connectionRow struct {
	ID              uuid.UUID    `db:"id"`
	TenantID        uuid.UUID    `db:"tenant_id"`
	Kind            string       `db:"kind"`
	EncryptedConfig []byte       `db:"encrypted_config"`
	Status          string       `db:"status"`
	LastTestedAt    sql.NullTime `db:"last_tested_at"`
}

func (s *SQLConnections) decode(row connectionRow) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	conn := domain.ERPConnection{
		ID: row.ID, TenantID: row.TenantID, Kind: domain.ConnectorKind(row.Kind),
		EncryptedConfig: row.EncryptedConfig, Status: domain.ConnectionStatus(row.Status),
		LastTestedAt: sqlutil.FromNullTime(row.LastTestedAt),
	}

	plaintext, err := s.box.Open(row.EncryptedConfig, []byte(row.ID.String()))
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "connection config decryption failed")
	}
	var dropzone domain.DropzoneConfig
	if err := json.Unmarshal(plaintext, &dropzone); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "connection config is not valid JSON")
	}
	return &conn, &dropzone, nil
}

// GetActive loads the tenant's single ACTIVE connection of a kind.
func (s *SQLConnections) GetActive(ctx context.Context, tenantID uuid.UUID, kind domain.ConnectorKind) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	const q = `
		SELECT id, tenant_id, kind, encrypted_config, status, last_tested_at
		FROM erp_connection
		WHERE tenant_id = $1 AND kind = $2 AND status = 'ACTIVE'`

	var row connectionRow
	err := s.db.GetContext(ctx, &row, q, tenantID, string(kind))
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, sharederrors.DatabaseError("load active connection", err)
	}
	return s.decode(row)
}

// Get loads one connection by id.
func (s *SQLConnections) Get(ctx context.Context, tenantID, connectionID uuid.UUID) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	const q = `
		SELECT id, tenant_id, kind, encrypted_config, status, last_tested_at
		FROM erp_connection
		WHERE tenant_id = $1 AND id = $2`

	var row connectionRow
	err := s.db.GetContext(ctx, &row, q, tenantID, connectionID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, sharederrors.DatabaseError("load connection", err)
	}
	return s.decode(row)
}

// ListActiveDropzones returns every ACTIVE dropzone connection across
// tenants, for the ack-poll scheduler.
func (s *SQLConnections) ListActiveDropzones(ctx context.Context) ([]domain.ERPConnection, error) {
	const q = `
		SELECT id, tenant_id, kind, encrypted_config, status, last_tested_at
		FROM erp_connection
		WHERE kind = $1 AND status = 'ACTIVE'`

	var rows []connectionRow
	if err := s.db.SelectContext(ctx, &rows, q, string(domain.ConnectorDropzoneJSONV1)); err != nil {
		return nil, sharederrors.DatabaseError("list dropzone connections", err)
	}
	result := make([]domain.ERPConnection, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.ERPConnection{
			ID: row.ID, TenantID: row.TenantID, Kind: domain.ConnectorKind(row.Kind),
			EncryptedConfig: row.EncryptedConfig, Status: domain.ConnectionStatus(row.Status),
		})
	}
	return result, nil
}
