package ledger

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

// field returns the first present value among keys. Records written by older
// package versions use camelCase names; snake_case always wins when both
// exist.
func field(fields map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]any, keys ...string) string {
	v, ok := field(fields, keys...)
	if !ok {
		return ""
	}
	if inner, ok := sui.MoveOption(v); ok {
		v = inner
	}
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		// UID and ID wrappers: {"id": "0x..."}
		if id, ok := s["id"].(string); ok {
			return id
		}
		if inner, ok := sui.Unwrap(s); ok {
			if id, ok := inner["id"].(string); ok {
				return id
			}
			if b, ok := inner["bytes"].(string); ok {
				return b
			}
		}
	}
	return ""
}

func uintField(fields map[string]any, keys ...string) (uint64, error) {
	v, ok := field(fields, keys...)
	if !ok {
		return 0, nil
	}
	n, err := sui.Uint64(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return n, nil
}

func boolField(fields map[string]any, keys ...string) bool {
	v, ok := field(fields, keys...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// millisField reads a millisecond timestamp. A zero or missing value yields
// the zero time.
func millisField(fields map[string]any, keys ...string) (time.Time, error) {
	ms, err := uintField(fields, keys...)
	if err != nil || ms == 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

func optionalMillis(fields map[string]any, keys ...string) (*time.Time, error) {
	v, ok := field(fields, keys...)
	if !ok {
		return nil, nil
	}
	inner, ok := sui.MoveOption(v)
	if !ok {
		return nil, nil
	}
	ms, err := sui.Uint64(inner)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", keys[0], err)
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t, nil
}

func bytesField(fields map[string]any, keys ...string) ([]byte, error) {
	v, ok := field(fields, keys...)
	if !ok {
		return nil, fmt.Errorf("missing field %s", keys[0])
	}
	switch b := v.(type) {
	case string:
		return base64.StdEncoding.DecodeString(b)
	case []any:
		out := make([]byte, len(b))
		for i, e := range b {
			n, err := sui.Uint64(e)
			if err != nil || n > 255 {
				return nil, fmt.Errorf("field %s: invalid byte at %d", keys[0], i)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("field %s: unexpected encoding %T", keys[0], v)
}

// normalizeBlobReference converts one on-ledger blob reference into the
// model type. It is the only place field-name variants are reconciled.
// A reference without a blob id is reported as not ok.
func normalizeBlobReference(raw any) (model.BlobReference, bool, error) {
	fields, ok := sui.Unwrap(raw)
	if !ok {
		return model.BlobReference{}, false, fmt.Errorf("blob reference is %T, not a struct", raw)
	}
	ref := model.BlobReference{
		BlobID:   stringField(fields, "blob_id", "blobId"),
		PeriodID: stringField(fields, "period_id", "periodId"),
		DataType: stringField(fields, "data_type", "dataType"),
		Uploader: stringField(fields, "uploader", "uploaded_by", "uploadedBy"),
	}
	if ref.BlobID == "" {
		return model.BlobReference{}, false, nil
	}
	var err error
	if ref.Size, err = uintField(fields, "size", "byte_size", "byteSize"); err != nil {
		return model.BlobReference{}, false, err
	}
	if ref.UploadedAt, err = millisField(fields, "uploaded_at", "uploadedAt", "timestamp"); err != nil {
		return model.BlobReference{}, false, err
	}
	return ref, true, nil
}

func parseDeal(id string, fields map[string]any) (*model.Deal, error) {
	deal := &model.Deal{
		ID:       id,
		Buyer:    stringField(fields, "buyer"),
		Seller:   stringField(fields, "seller"),
		Auditor:  stringField(fields, "auditor"),
		Currency: stringField(fields, "currency", "currency_type", "currencyType"),
	}
	if status, ok := field(fields, "status"); ok {
		st, err := parseStatus(status)
		if err != nil {
			return nil, err
		}
		deal.Status = st
	}

	var err error
	if deal.KPITarget, err = uintField(fields, "kpi_target", "kpiTarget"); err != nil {
		return nil, err
	}
	if deal.ContingentConsideration, err = uintField(fields, "contingent_consideration", "contingentConsideration"); err != nil {
		return nil, err
	}
	if deal.OverheadAllocation, err = uintField(fields, "overhead_allocation", "overheadAllocation"); err != nil {
		return nil, err
	}

	refs, _, err := blobReferences(fields)
	if err != nil {
		return nil, err
	}
	deal.Blobs = refs
	return deal, nil
}

func parseStatus(v any) (model.DealStatus, error) {
	if s, ok := v.(string); ok {
		return model.ParseDealStatus(s)
	}
	if inner, ok := sui.Unwrap(v); ok {
		// enum rendered as {"variant": "Active"}
		if variant, ok := inner["variant"].(string); ok {
			return model.ParseDealStatus(variant)
		}
	}
	code, err := sui.Uint64(v)
	if err != nil {
		return "", fmt.Errorf("deal status: %w", err)
	}
	return model.DealStatusFromCode(code)
}

// blobReferences reads the deal's blob list. present is false when the record
// carries no blob list field at all.
func blobReferences(fields map[string]any) (refs []model.BlobReference, present bool, err error) {
	if raw, ok := field(fields, "blobs", "blob_references", "blobReferences"); ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, true, fmt.Errorf("blob list is %T, not a vector", raw)
		}
		for i, item := range list {
			ref, ok, err := normalizeBlobReference(item)
			if err != nil {
				return nil, true, fmt.Errorf("blob reference %d: %w", i, err)
			}
			if ok {
				refs = append(refs, ref)
			}
		}
		return refs, true, nil
	}
	if raw, ok := field(fields, "blob_ids", "blobIds"); ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, true, fmt.Errorf("blob id list is %T, not a vector", raw)
		}
		for _, item := range list {
			if id, ok := item.(string); ok && id != "" {
				refs = append(refs, model.BlobReference{BlobID: id})
			}
		}
		return refs, true, nil
	}
	return nil, false, nil
}

func parseAuditRecord(id string, fields map[string]any) (*model.AuditRecord, error) {
	rec := &model.AuditRecord{
		ID:       id,
		BlobID:   stringField(fields, "blob_id", "blobId"),
		DealID:   stringField(fields, "deal_id", "dealId"),
		PeriodID: stringField(fields, "period_id", "periodId"),
		Uploader: stringField(fields, "uploader", "uploaded_by", "uploadedBy"),
		Audited:  boolField(fields, "audited", "is_audited", "isAudited"),
	}
	if rec.BlobID == "" {
		return nil, fmt.Errorf("audit record %s has no blob id", id)
	}
	var err error
	if rec.UploadedAt, err = millisField(fields, "uploaded_at", "uploadedAt"); err != nil {
		return nil, err
	}
	if auditor := stringField(fields, "auditor", "audited_by", "auditedBy"); auditor != "" {
		rec.Auditor = &auditor
	}
	if rec.AuditedAt, err = optionalMillis(fields, "audited_at", "auditedAt"); err != nil {
		return nil, err
	}
	return rec, nil
}
