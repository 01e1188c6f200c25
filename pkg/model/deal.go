package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DealStatus is the lifecycle state of a deal as recorded on the ledger.
type DealStatus string

const (
	DealStatusDraft     DealStatus = "draft"
	DealStatusActive    DealStatus = "active"
	DealStatusCompleted DealStatus = "completed"
	DealStatusCancelled DealStatus = "cancelled"
)

// dealStatuses is indexed by the on-ledger u8 discriminant.
var dealStatuses = []DealStatus{
	DealStatusDraft,
	DealStatusActive,
	DealStatusCompleted,
	DealStatusCancelled,
}

// DealStatusFromCode maps the ledger's numeric status to a DealStatus.
func DealStatusFromCode(code uint64) (DealStatus, error) {
	if code >= uint64(len(dealStatuses)) {
		return "", fmt.Errorf("unknown deal status code %d", code)
	}
	return dealStatuses[code], nil
}

// ParseDealStatus accepts either the status name (any case) or its numeric
// code rendered as a string.
func ParseDealStatus(s string) (DealStatus, error) {
	for _, st := range dealStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	if code, err := strconv.ParseUint(s, 10, 8); err == nil {
		return DealStatusFromCode(code)
	}
	return "", fmt.Errorf("unknown deal status %q", s)
}

// Role is a participant's role in a deal.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleAuditor Role = "auditor"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleBuyer, RoleSeller, RoleAuditor:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Deal is the read-only view of an earnout deal object.
type Deal struct {
	ID       string
	Buyer    string
	Seller   string
	Auditor  string
	Currency string
	Status   DealStatus

	// KPITarget and ContingentConsideration are in the currency's minor unit.
	KPITarget               uint64
	ContingentConsideration uint64
	// OverheadAllocation is a percentage in basis points (1% = 100).
	OverheadAllocation uint64

	Blobs []BlobReference
}

// RoleOf returns the first role address holds in the deal, in the order
// buyer, seller, auditor. Addresses are compared after normalization, so
// "0xAB" and "0xab" match.
func (d Deal) RoleOf(address string) (Role, bool) {
	roles := d.RolesOf(address)
	if len(roles) == 0 {
		return "", false
	}
	return roles[0], true
}

// RolesOf returns every role address holds in the deal, in the order buyer,
// seller, auditor. One address may hold several.
func (d Deal) RolesOf(address string) []Role {
	addr := NormalizeAddress(address)
	if addr == "" {
		return nil
	}
	var roles []Role
	for _, p := range []struct {
		role Role
		addr string
	}{
		{RoleBuyer, d.Buyer},
		{RoleSeller, d.Seller},
		{RoleAuditor, d.Auditor},
	} {
		if NormalizeAddress(p.addr) == addr {
			roles = append(roles, p.role)
		}
	}
	return roles
}

// BlobReference links a stored blob to a deal period.
type BlobReference struct {
	BlobID     string
	PeriodID   string
	DataType   string
	Size       uint64
	Uploader   string
	UploadedAt time.Time
}

// AuditRecord attests that a blob was submitted for audit.
type AuditRecord struct {
	ID         string
	BlobID     string
	DealID     string
	PeriodID   string
	Uploader   string
	UploadedAt time.Time
	Audited    bool
	Auditor    *string
	AuditedAt  *time.Time
}

// NormalizeAddress lowercases an address and ensures a 0x prefix. Empty input
// stays empty.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}
