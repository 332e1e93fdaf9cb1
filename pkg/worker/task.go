// Package worker schedules and executes OrderFlow's background tasks:
// embedding rebuilds, document extraction, inbound message processing,
// draft export, and ack polling. Tasks are values describing intent;
// the orchestrator owns retry, backoff, and idempotency.
package worker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskType names a background task family.
type TaskType string

const (
	TaskEmbedProduct         TaskType = "embed_product"
	TaskRebuildEmbeddings    TaskType = "rebuild_embeddings_for_tenant"
	TaskExtractDocument      TaskType = "extract_document"
	TaskProcessInboundMsg    TaskType = "process_inbound_message"
	TaskExportDraft          TaskType = "export_draft"
	TaskPollAcks             TaskType = "poll_acks"
)

// TaskStatus is a task's queue state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
)

// Task is one unit of background work. Every task is tenant-scoped;
// handlers must filter all queries by TenantID.
type Task struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Type       TaskType        `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	UniqueKey  string          `json:"unique_key,omitempty"`
	Attempts   int             `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	RunAt      time.Time       `json:"run_at"`
	CreatedAt  time.Time       `json:"created_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// NewTask builds a pending task with defaults applied.
func NewTask(tenantID uuid.UUID, taskType TaskType, payload interface{}) (Task, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Task{}, err
		}
		raw = data
	}
	now := time.Now().UTC()
	return Task{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        taskType,
		Payload:     raw,
		Attempts:    0,
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
	}, nil
}

// Payload shapes per task type.

// EmbedProductPayload embeds one product.
type EmbedProductPayload struct {
	ProductID      uuid.UUID `json:"product_id"`
	ForceRecompute bool      `json:"force_recompute"`
}

// RebuildEmbeddingsPayload re-embeds a tenant's whole catalog.
type RebuildEmbeddingsPayload struct {
	ForceRecompute bool `json:"force_recompute"`
}

// ExtractDocumentPayload extracts one stored document.
type ExtractDocumentPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

// ProcessInboundMessagePayload turns an inbound message's attachments
// into documents and extraction tasks.
type ProcessInboundMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

// ExportDraftPayload exports one approved draft.
type ExportDraftPayload struct {
	DraftID      uuid.UUID `json:"draft_id"`
	DraftVersion int64     `json:"draft_version"`
}

// PollAcksPayload polls one connection's ack directory.
type PollAcksPayload struct {
	ConnectionID uuid.UUID `json:"connection_id"`
}
