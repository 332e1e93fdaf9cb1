// Package draftorder owns the draft and document state machines and
// the optimistic-concurrency rules every draft mutation follows.
package draftorder

import (
	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// draftTransitions lists the legal draft status edges.
var draftTransitions = map[domain.DraftStatus][]domain.DraftStatus{
	domain.DraftNew:       {domain.DraftExtracted, domain.DraftFailed},
	domain.DraftExtracted: {domain.DraftMatched, domain.DraftFailed},
	domain.DraftMatched:   {domain.DraftReady, domain.DraftFailed},
	domain.DraftReady:     {domain.DraftApproved, domain.DraftMatched},
	domain.DraftApproved:  {domain.DraftPushed, domain.DraftReady},
	domain.DraftPushed:    {domain.DraftAcked, domain.DraftFailed},
	domain.DraftAcked:     {},
	domain.DraftFailed:    {domain.DraftExtracted},
}

// documentTransitions lists the legal document status edges. FAILED ->
// PROCESSING is the only retry edge; EXTRACTED is terminal success.
var documentTransitions = map[domain.DocumentStatus][]domain.DocumentStatus{
	domain.DocumentUploaded:   {domain.DocumentStored},
	domain.DocumentStored:     {domain.DocumentProcessing},
	domain.DocumentProcessing: {domain.DocumentExtracted, domain.DocumentFailed},
	domain.DocumentExtracted:  {},
	domain.DocumentFailed:     {domain.DocumentProcessing},
}

// CanTransitionDraft reports whether from -> to is a legal draft edge.
func CanTransitionDraft(from, to domain.DraftStatus) bool {
	for _, next := range draftTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckDraftTransition returns an IllegalStateTransition error for an
// illegal draft edge.
func CheckDraftTransition(from, to domain.DraftStatus) error {
	if !CanTransitionDraft(from, to) {
		return apperrors.Newf(apperrors.ErrorTypeIllegalStateTransition,
			"draft cannot move from %s to %s", from, to)
	}
	return nil
}

// CanTransitionDocument reports whether from -> to is a legal document
// edge.
func CanTransitionDocument(from, to domain.DocumentStatus) bool {
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckDocumentTransition returns an IllegalStateTransition error for
// an illegal document edge.
func CheckDocumentTransition(from, to domain.DocumentStatus) error {
	if !CanTransitionDocument(from, to) {
		return apperrors.Newf(apperrors.ErrorTypeIllegalStateTransition,
			"document cannot move from %s to %s", from, to)
	}
	return nil
}
