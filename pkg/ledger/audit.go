package ledger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/internal/safegroup"
	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

func (a *Adapter) auditEventType() string {
	return fmt.Sprintf("%s::%s::%s", a.packageID, AuditModule, AuditRecordCreatedEvent)
}

// GetDealAuditRecords returns the audit records of a deal, newest first. It
// scans the most recent audit events for the deal's record ids and then
// fetches each record; records that fail to load are logged and skipped.
func (a *Adapter) GetDealAuditRecords(ctx context.Context, dealID string) ([]model.AuditRecord, error) {
	ctx, span := tracer.Start(ctx, "get-deal-audit-records", trace.WithAttributes(attribute.String("deal.id", dealID)))
	defer span.End()

	if !a.Configured() {
		log.Debugw("ledger package not configured, returning no audit records", "deal", dealID)
		return []model.AuditRecord{}, nil
	}

	ids, err := a.scanAuditRecordIDs(ctx, dealID)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network("ledger.GetDealAuditRecords", err)
	}
	span.SetAttributes(attribute.Int("records.candidates", len(ids)))

	results := safegroup.Map(ctx, a.fanout, ids, a.fetchAuditRecord)
	records := make([]model.AuditRecord, 0, len(ids))
	for i, res := range results {
		if res.Err != nil {
			log.Warnw("skipping audit record", "deal", dealID, "record", ids[i], "error", res.Err)
			continue
		}
		records = append(records, *res.Value)
	}
	if err := ctx.Err(); err != nil {
		return nil, failure.Network("ledger.GetDealAuditRecords", err)
	}
	return records, nil
}

// scanAuditRecordIDs pages through at most eventWindow recent audit events and
// collects the record ids belonging to dealID, newest first.
func (a *Adapter) scanAuditRecordIDs(ctx context.Context, dealID string) ([]string, error) {
	want := model.NormalizeAddress(dealID)
	filter := sui.EventFilter{MoveEventType: a.auditEventType()}

	var (
		ids    []string
		seen   = map[string]struct{}{}
		cursor *sui.EventID
		read   int
	)
	for read < a.eventWindow {
		limit := min(eventPageSize, a.eventWindow-read)
		page, err := a.reader.QueryEvents(ctx, filter, cursor, uint64(limit), true)
		if err != nil {
			return nil, fmt.Errorf("scanning audit events: %w", err)
		}
		read += len(page.Data)
		for _, ev := range page.Data {
			if model.NormalizeAddress(stringField(ev.ParsedJSON, "deal_id", "dealId")) != want {
				continue
			}
			id := stringField(ev.ParsedJSON, "record_id", "recordId", "id")
			if id == "" {
				log.Debugw("audit event without record id", "tx", ev.ID.TxDigest)
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if !page.HasNextPage || page.NextCursor == nil || len(page.Data) == 0 {
			break
		}
		cursor = page.NextCursor
	}
	return ids, nil
}

func (a *Adapter) fetchAuditRecord(ctx context.Context, id string) (*model.AuditRecord, error) {
	obj, err := a.reader.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Content == nil || obj.Content.Fields == nil {
		return nil, fmt.Errorf("audit record %s has no parsed content", id)
	}
	return parseAuditRecord(id, obj.Content.Fields)
}

// GetBlobAuditRecord returns the audit record for one blob of a deal. Any
// failure, and a missing record, yield nil without error.
func (a *Adapter) GetBlobAuditRecord(ctx context.Context, dealID, blobID string) (*model.AuditRecord, error) {
	records, err := a.GetDealAuditRecords(ctx, dealID)
	if err != nil {
		log.Warnw("audit record lookup failed", "deal", dealID, "blob", blobID, "error", err)
		return nil, nil
	}
	for i := range records {
		if records[i].BlobID == blobID {
			return &records[i], nil
		}
	}
	return nil, nil
}
