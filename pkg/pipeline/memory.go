package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/draftorder"
)

// MemoryFixtures is an in-process implementation of every pipeline
// source interface, for tests.
type MemoryFixtures struct {
	mu          sync.RWMutex
	Tenant      domain.Tenant
	Documents   map[uuid.UUID]*domain.Document
	Runs        []domain.ExtractionRun
	Customers   []domain.Customer
	Contacts    []domain.CustomerContact
	Products    []domain.Product
	Connections map[uuid.UUID]connEntry
}

type connEntry struct {
	conn     domain.ERPConnection
	dropzone domain.DropzoneConfig
}

// NewMemoryFixtures builds empty fixtures for one tenant.
func NewMemoryFixtures(tenant domain.Tenant) *MemoryFixtures {
	return &MemoryFixtures{
		Tenant:      tenant,
		Documents:   make(map[uuid.UUID]*domain.Document),
		Connections: make(map[uuid.UUID]connEntry),
	}
}

// Get implements TenantSource.
func (f *MemoryFixtures) Get(ctx context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	if tenantID != f.Tenant.ID {
		return nil, nil
	}
	tenant := f.Tenant
	return &tenant, nil
}

// AddDocument stores a document fixture.
func (f *MemoryFixtures) AddDocument(doc *domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Documents[doc.ID] = doc
}

// GetDocument implements DocumentStore.Get.
func (f *MemoryFixtures) GetDocument(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	doc, ok := f.Documents[documentID]
	if !ok || doc.TenantID != tenantID {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

// SetStatus implements DocumentStore.SetStatus with the state machine
// enforced.
func (f *MemoryFixtures) SetStatus(ctx context.Context, tenantID, documentID uuid.UUID, from, to domain.DocumentStatus, errorDetail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.Documents[documentID]
	if !ok || doc.TenantID != tenantID {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "document %s not found", documentID)
	}
	if doc.Status != from {
		return apperrors.Newf(apperrors.ErrorTypeIllegalStateTransition,
			"document is %s, expected %s", doc.Status, from)
	}
	if err := draftorder.CheckDocumentTransition(from, to); err != nil {
		return err
	}
	doc.Status = to
	doc.ErrorDetail = errorDetail
	return nil
}

// documentStoreAdapter narrows MemoryFixtures to DocumentStore.
type documentStoreAdapter struct{ f *MemoryFixtures }

func (a documentStoreAdapter) Get(ctx context.Context, tenantID, documentID uuid.UUID) (*domain.Document, error) {
	return a.f.GetDocument(ctx, tenantID, documentID)
}

func (a documentStoreAdapter) SetStatus(ctx context.Context, tenantID, documentID uuid.UUID, from, to domain.DocumentStatus, errorDetail string) error {
	return a.f.SetStatus(ctx, tenantID, documentID, from, to, errorDetail)
}

// DocumentStore returns the DocumentStore view.
func (f *MemoryFixtures) DocumentStore() DocumentStore {
	return documentStoreAdapter{f: f}
}

// Create implements RunStore.
func (f *MemoryFixtures) Create(ctx context.Context, run domain.ExtractionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Runs = append(f.Runs, run)
	return nil
}

// ListCustomers implements CustomerSource.
func (f *MemoryFixtures) ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]domain.Customer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Customer(nil), f.Customers...), nil
}

// ListContacts implements CustomerSource.
func (f *MemoryFixtures) ListContacts(ctx context.Context, tenantID uuid.UUID) ([]domain.CustomerContact, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.CustomerContact(nil), f.Contacts...), nil
}

// GetCustomer implements CustomerSource.
func (f *MemoryFixtures) GetCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*domain.Customer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.Customers {
		if c.ID == customerID && c.TenantID == tenantID {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

// ListActive implements ProductSource.
func (f *MemoryFixtures) ListActive(ctx context.Context, tenantID uuid.UUID) ([]domain.Product, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var result []domain.Product
	for _, p := range f.Products {
		if p.TenantID == tenantID && p.Active {
			result = append(result, p)
		}
	}
	return result, nil
}

// GetByID implements ProductSource.
func (f *MemoryFixtures) GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*domain.Product, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.Products {
		if p.ID == productID && p.TenantID == tenantID {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// AddConnection stores a connection fixture with its decrypted
// dropzone config.
func (f *MemoryFixtures) AddConnection(conn domain.ERPConnection, dropzone domain.DropzoneConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connections[conn.ID] = connEntry{conn: conn, dropzone: dropzone}
}

// GetActive implements ConnectionSource.
func (f *MemoryFixtures) GetActive(ctx context.Context, tenantID uuid.UUID, kind domain.ConnectorKind) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, entry := range f.Connections {
		if entry.conn.TenantID == tenantID && entry.conn.Kind == kind && entry.conn.Status == domain.ConnectionActive {
			conn := entry.conn
			dropzone := entry.dropzone
			return &conn, &dropzone, nil
		}
	}
	return nil, nil, nil
}

// GetConnection implements ConnectionSource.Get.
func (f *MemoryFixtures) GetConnection(ctx context.Context, tenantID, connectionID uuid.UUID) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.Connections[connectionID]
	if !ok || entry.conn.TenantID != tenantID {
		return nil, nil, nil
	}
	conn := entry.conn
	dropzone := entry.dropzone
	return &conn, &dropzone, nil
}

// connectionSourceAdapter narrows MemoryFixtures to ConnectionSource.
type connectionSourceAdapter struct{ f *MemoryFixtures }

func (a connectionSourceAdapter) GetActive(ctx context.Context, tenantID uuid.UUID, kind domain.ConnectorKind) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	return a.f.GetActive(ctx, tenantID, kind)
}

func (a connectionSourceAdapter) Get(ctx context.Context, tenantID, connectionID uuid.UUID) (*domain.ERPConnection, *domain.DropzoneConfig, error) {
	return a.f.GetConnection(ctx, tenantID, connectionID)
}

// ConnectionSource returns the ConnectionSource view.
func (f *MemoryFixtures) ConnectionSource() ConnectionSource {
	return connectionSourceAdapter{f: f}
}
