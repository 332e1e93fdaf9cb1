package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/pkg/pipeline"
)

// RegisterPipelineHandlers binds the pipeline's stage methods to the
// orchestrator's task types. The queue is needed for handlers that
// fan out follow-up tasks (inbound messages enqueue one extraction
// per document).
func RegisterPipelineHandlers(o *Orchestrator, p *pipeline.Pipeline, queue Queue) {
	o.Register(TaskExtractDocument, func(ctx context.Context, task Task) error {
		var payload ExtractDocumentPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid extract payload: %w", err)
		}
		return p.ExtractDocument(ctx, task.TenantID, payload.DocumentID)
	})

	o.Register(TaskProcessInboundMsg, func(ctx context.Context, task Task) error {
		var payload ProcessInboundMessagePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid message payload: %w", err)
		}
		docs, err := p.ProcessInboundMessage(ctx, task.TenantID, payload.MessageID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			extractTask, err := NewTask(task.TenantID, TaskExtractDocument, ExtractDocumentPayload{DocumentID: doc.ID})
			if err != nil {
				return err
			}
			extractTask.UniqueKey = UniqueKeyExtract(task.TenantID, doc.ID, doc.ContentHash)
			if err := queue.Enqueue(ctx, extractTask); err != nil {
				return err
			}
		}
		return nil
	})

	o.Register(TaskExportDraft, func(ctx context.Context, task Task) error {
		var payload ExportDraftPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid export payload: %w", err)
		}
		return p.ExportDraft(ctx, task.TenantID, payload.DraftID, payload.DraftVersion)
	})

	o.Register(TaskPollAcks, func(ctx context.Context, task Task) error {
		var payload PollAcksPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid poll payload: %w", err)
		}
		return p.PollAcks(ctx, task.TenantID, payload.ConnectionID)
	})

	o.Register(TaskEmbedProduct, func(ctx context.Context, task Task) error {
		var payload EmbedProductPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid embed payload: %w", err)
		}
		_, err := p.EmbedProduct(ctx, task.TenantID, payload.ProductID, payload.ForceRecompute)
		return err
	})

	o.Register(TaskRebuildEmbeddings, func(ctx context.Context, task Task) error {
		var payload RebuildEmbeddingsPayload
		if len(task.Payload) > 0 {
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return fmt.Errorf("invalid rebuild payload: %w", err)
			}
		}
		_, err := p.RebuildEmbeddings(ctx, task.TenantID, payload.ForceRecompute)
		return err
	})
}

// UniqueKeyExtract builds the dedup key for an extraction task: the
// same document with the same content hash never queues twice.
func UniqueKeyExtract(tenantID, documentID uuid.UUID, contentHash string) string {
	return fmt.Sprintf("extract|%s|%s|%s", tenantID, documentID, contentHash)
}

// UniqueKeyExport builds the dedup key for an export task from the
// same identity the erp_export idempotency key uses.
func UniqueKeyExport(tenantID, draftID uuid.UUID, draftVersion int64) string {
	return fmt.Sprintf("export|%s|%s|%d", tenantID, draftID, draftVersion)
}

// UniqueKeyEmbed builds the dedup key for an embedding task.
func UniqueKeyEmbed(tenantID, productID uuid.UUID) string {
	return fmt.Sprintf("embed|%s|%s", tenantID, productID)
}
