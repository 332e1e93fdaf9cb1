package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectorKind identifies an ERP connector implementation.
type ConnectorKind string

// ConnectorDropzoneJSONV1 writes JSON files into a watched directory.
const ConnectorDropzoneJSONV1 ConnectorKind = "DROPZONE_JSON_V1"

// ERPConnection is a tenant's outbound ERP configuration. At most one
// ACTIVE connection per (tenant, kind). Config is stored encrypted.
type ERPConnection struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Kind            ConnectorKind
	EncryptedConfig []byte
	Status          ConnectionStatus
	LastTestedAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DropzoneConfig is the decrypted configuration of a
// DROPZONE_JSON_V1 connection.
type DropzoneConfig struct {
	ExportPath string `json:"export_path"`
	AckPath    string `json:"ack_path,omitempty"`
}

// ERPExport is one export attempt of one draft version.
type ERPExport struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	DraftID        uuid.UUID
	DraftVersion   int64
	ConnectionID   uuid.UUID
	StorageKey     string
	DropzonePath   string
	Status         ExportStatus
	ERPReference   string
	IdempotencyKey string
	ErrorDetail    string
	RetryCount     int
	LatencyMS      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AICallLog is one immutable ledger record per provider call.
type AICallLog struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	CallType     AICallType
	Provider     string
	Model        string
	InputHash    string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	CostMicros   Micros
	Status       AICallStatus
	ErrorDetail  string
	ResultKey    string // object-store key of the raw result, for dedup replay
	DocumentID   *uuid.UUID
	DraftID      *uuid.UUID
	CreatedAt    time.Time
}

// FeedbackKind names a user action relevant to the learning loop.
type FeedbackKind string

const (
	FeedbackMappingConfirmed FeedbackKind = "mapping_confirmed"
	FeedbackMappingRejected  FeedbackKind = "mapping_rejected"
	FeedbackLineEdited       FeedbackKind = "line_edited"
	FeedbackDraftApproved    FeedbackKind = "draft_approved"
	FeedbackIssueOverridden  FeedbackKind = "issue_overridden"
)

// FeedbackEvent is one append-only audit record.
type FeedbackEvent struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Kind      FeedbackKind
	Actor     string
	DraftID   *uuid.UUID
	LineID    *uuid.UUID
	MappingID *uuid.UUID
	Payload   map[string]interface{}
	CreatedAt time.Time
}
