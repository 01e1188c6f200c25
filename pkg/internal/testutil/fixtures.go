package testutil

import (
	"fmt"
	"strconv"
)

// PackageID is the ledger package used by fixtures.
const PackageID = "0x00000000000000000000000000000000000000000000000000000000000000aa"

const (
	DealType               = PackageID + "::earnout::Deal"
	AuditRecordType        = PackageID + "::audit::AuditRecord"
	AuditRecordCreatedType = PackageID + "::audit::AuditRecordCreated"
	SystemObjectID         = "0x00000000000000000000000000000000000000000000000000000000000005e5"
)

// Participants of the fixture deal.
type Participants struct {
	Buyer   string
	Seller  string
	Auditor string
}

// PutDeal stores a deal object with the given participants and blob
// reference structs, encoded the way the node renders them.
func (n *LedgerNode) PutDeal(id string, p Participants, blobs ...map[string]any) {
	list := make([]any, 0, len(blobs))
	for _, b := range blobs {
		list = append(list, map[string]any{
			"type":   PackageID + "::earnout::BlobReference",
			"fields": b,
		})
	}
	n.PutObject(id, DealType, map[string]any{
		"id":                       map[string]any{"id": id},
		"buyer":                    p.Buyer,
		"seller":                   p.Seller,
		"auditor":                  p.Auditor,
		"currency":                 "USDC",
		"status":                   float64(1),
		"kpi_target":               "1000000",
		"contingent_consideration": "250000",
		"overhead_allocation":      "1500",
		"blobs":                    list,
	})
}

// PutAuditRecord stores an audit record object and emits its creation event.
func (n *LedgerNode) PutAuditRecord(id, dealID, blobID string, uploadedAtMs uint64) {
	n.PutObject(id, AuditRecordType, map[string]any{
		"id":          map[string]any{"id": id},
		"deal_id":     dealID,
		"blob_id":     blobID,
		"period_id":   "2026-Q3",
		"uploader":    "0xb0",
		"uploaded_at": strconv.FormatUint(uploadedAtMs, 10),
		"audited":     false,
		"auditor":     nil,
		"audited_at":  nil,
	})
	n.EmitEvent(AuditRecordCreatedType, map[string]any{
		"record_id": id,
		"deal_id":   dealID,
		"blob_id":   blobID,
	})
}

// PutSystemObject stores a storage system object at SystemObjectID with its
// state nested the way the live network does.
func (n *LedgerNode) PutSystemObject(epoch, nShards, storagePrice, writePrice uint64) {
	n.PutObject(SystemObjectID, "0x3::system::System", map[string]any{
		"id":      map[string]any{"id": SystemObjectID},
		"version": "2",
		"inner": map[string]any{
			"type": "0x3::system_state_inner::SystemStateInnerV1",
			"fields": map[string]any{
				"committee": map[string]any{
					"type": "0x3::bls_aggregate::BlsCommittee",
					"fields": map[string]any{
						"epoch":    float64(epoch),
						"n_shards": float64(nShards),
					},
				},
				"storage_price_per_unit_size": strconv.FormatUint(storagePrice, 10),
				"write_price_per_unit_size":   strconv.FormatUint(writePrice, 10),
			},
		},
	})
}

// PutKeyServer stores a key server registration object.
func (n *LedgerNode) PutKeyServer(id, url string, publicKey []byte) {
	pk := make([]any, len(publicKey))
	for i, b := range publicKey {
		pk[i] = float64(b)
	}
	n.PutObject(id, "0x5ea1::key_server::KeyServer", map[string]any{
		"id":       map[string]any{"id": id},
		"name":     fmt.Sprintf("server-%s", id[len(id)-2:]),
		"url":      url,
		"key_type": float64(0),
		"pk":       pk,
	})
}
