package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentSource names where an artifact came from.
type DocumentSource string

const (
	SourceUpload DocumentSource = "upload"
	SourceEmail  DocumentSource = "email"
)

// Document is a content-addressed artifact. Immutable after storage
// except for Status.
type Document struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	MessageID   *uuid.UUID
	Filename    string
	MimeType    string
	SizeBytes   int64
	ContentHash string // SHA-256 hex
	StorageKey  string
	Source      DocumentSource
	SenderEmail string
	Status      DocumentStatus
	ErrorDetail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InboundMessage is an email/upload envelope; one message can produce
// zero or more documents.
type InboundMessage struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	FromEmail     string
	ToEmail       string
	Subject       string
	RawStorageKey string
	Status        MessageStatus
	ErrorDetail   string
	ReceivedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExtractionRun is one extraction attempt on one document. Immutable
// after completion.
type ExtractionRun struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	DocumentID        uuid.UUID
	Method            ExtractionMethod
	ExtractorVersion  string
	InputHash         string
	ResultStorageKey  string
	Confidence        float64
	TextCoverageRatio float64
	RuntimeMS         int64
	Warnings          []Warning
	ErrorCode         string
	ErrorDetail       string
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

// Warning is one coded extraction warning.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
