package erpexport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
)

// ackFileRe matches acknowledgment filenames and captures the kind
// and the draft id.
var ackFileRe = regexp.MustCompile(`^(ack|error)_sales_order_([0-9a-f-]+)_\d+_[0-9a-f]+\.json$`)

// AckFile is the payload the ERP writes back.
type AckFile struct {
	Status      string `json:"status"` // "ACKED" or "FAILED"
	ERPOrderID  string `json:"erp_order_id,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Message     string `json:"message,omitempty"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// AckResult describes what one processed file did.
type AckResult struct {
	File     string
	DraftID  uuid.UUID
	Applied  bool
	Status   domain.ExportStatus
	Skipped  string // reason when not applied
}

// AckHandler receives terminal transitions so the draft state machine
// follows the export record.
type AckHandler interface {
	OnAck(ctx context.Context, tenantID, draftID uuid.UUID, acked bool, erpOrderID string) error
}

// Poller ingests ack and error files from a dropzone's ack directory.
type Poller struct {
	exports ExportStore
	handler AckHandler
	log     *logrus.Logger
}

// NewPoller builds a Poller. handler may be nil.
func NewPoller(exports ExportStore, handler AckHandler, logger *logrus.Logger) *Poller {
	return &Poller{exports: exports, handler: handler, log: logger}
}

// PollOnce processes every pending ack/error file for one connection.
// Re-processing a file whose export is already terminal is a no-op
// (the file still moves to processed/).
func (p *Poller) PollOnce(ctx context.Context, tenantID uuid.UUID, dropzone domain.DropzoneConfig) ([]AckResult, error) {
	if dropzone.AckPath == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dropzone.AckPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var results []AckResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := ackFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		result := p.processFile(ctx, tenantID, dropzone, entry.Name(), m[2])
		results = append(results, result)
	}
	return results, nil
}

func (p *Poller) processFile(ctx context.Context, tenantID uuid.UUID, dropzone domain.DropzoneConfig, filename, draftIDRaw string) AckResult {
	fullPath := filepath.Join(dropzone.AckPath, filename)
	result := AckResult{File: filename}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		result.Skipped = "unreadable: " + err.Error()
		return result
	}

	var ack AckFile
	if err := json.Unmarshal(raw, &ack); err != nil {
		p.log.WithFields(logrus.Fields{
			"component": "erpexport",
			"file":      filename,
		}).Warn("unparsable ack file, moving to error directory")
		p.moveTo(dropzone.AckPath, filename, "error")
		result.Skipped = "unparsable JSON"
		return result
	}

	draftID, err := uuid.Parse(draftIDRaw)
	if err != nil {
		p.moveTo(dropzone.AckPath, filename, "error")
		result.Skipped = "filename carries no valid draft id"
		return result
	}
	result.DraftID = draftID

	export, err := p.exports.FindLatestSent(ctx, tenantID, draftID)
	if err != nil {
		result.Skipped = "export lookup failed: " + err.Error()
		return result
	}
	if export == nil {
		// Late ack after a retry replaced the export, or an ack for a
		// draft this deployment never sent. Handled, not applicable.
		p.log.WithFields(logrus.Fields{
			"component": "erpexport",
			"draft_id":  draftID.String(),
			"file":      filename,
		}).Warn("ack without a matching SENT export")
		p.moveTo(dropzone.AckPath, filename, "processed")
		result.Skipped = "no matching SENT export"
		return result
	}

	acked := ack.Status == "ACKED"
	if acked {
		export.Status = domain.ExportAcked
		export.ERPReference = ack.ERPOrderID
	} else {
		export.Status = domain.ExportFailed
		export.ErrorDetail = ack.ErrorCode + ": " + ack.Message
	}

	if err := p.exports.Update(ctx, *export); err != nil {
		result.Skipped = "export update failed: " + err.Error()
		return result
	}
	metrics.RecordExport(string(export.Status))

	if p.handler != nil {
		if err := p.handler.OnAck(ctx, tenantID, draftID, acked, ack.ERPOrderID); err != nil {
			p.log.WithError(err).WithField("draft_id", draftID.String()).
				Warn("ack handler failed; export record already updated")
		}
	}

	p.moveTo(dropzone.AckPath, filename, "processed")
	result.Applied = true
	result.Status = export.Status
	return result
}

// moveTo relocates a file into {ackPath}/{subdir}/, creating the
// directory when missing. Rename within one filesystem is atomic.
func (p *Poller) moveTo(ackPath, filename, subdir string) {
	destDir := filepath.Join(ackPath, subdir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		p.log.WithError(err).Warn("ack subdirectory create failed")
		return
	}
	if err := os.Rename(filepath.Join(ackPath, filename), filepath.Join(destDir, filename)); err != nil {
		p.log.WithError(err).WithField("file", filename).Warn("ack file move failed")
	}
}

// Watch polls on the interval and additionally on filesystem events in
// the ack directory, so acks apply promptly without a tight loop.
// Blocks until ctx is done.
func (p *Poller) Watch(ctx context.Context, tenantID uuid.UUID, dropzone domain.DropzoneConfig, interval time.Duration) error {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(dropzone.AckPath); addErr == nil {
			events = make(chan fsnotify.Event, 16)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
							select {
							case events <- ev:
							default:
							}
						}
					case <-watcher.Errors:
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-events:
		}
		if _, err := p.PollOnce(ctx, tenantID, dropzone); err != nil {
			p.log.WithError(err).Warn("ack poll failed")
		}
	}
}
