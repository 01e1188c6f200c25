// Package ledger answers read-only questions about deals, participants and
// audit records from the ledger node.
package ledger

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

var (
	log    = logging.Logger("pkg/ledger")
	tracer = otel.Tracer("pkg/ledger")
)

const (
	// DealModule is the Move module defining the Deal object.
	DealModule = "earnout"
	// AuditModule is the Move module defining audit records and their events.
	AuditModule = "audit"
	// AuditRecordCreatedEvent is emitted when a blob is submitted for audit.
	AuditRecordCreatedEvent = "AuditRecordCreated"

	// DefaultEventWindow bounds how many recent events an audit scan reads.
	DefaultEventWindow = 1000
	eventPageSize      = 50
	defaultFanout      = 8
)

var (
	// ErrNotConfigured reports that no ledger package id is set.
	ErrNotConfigured = errors.New("ledger package not configured")
	// ErrDealNotFound reports that the deal object does not exist.
	ErrDealNotFound = errors.New("deal not found")
)

// Reader is the subset of the ledger node client used by the adapter.
type Reader interface {
	GetObject(ctx context.Context, id string) (*sui.ObjectData, error)
	QueryEvents(ctx context.Context, filter sui.EventFilter, cursor *sui.EventID, limit uint64, descending bool) (sui.EventPage, error)
}

type Adapter struct {
	reader         Reader
	packageID      string
	systemObjectID string
	eventWindow    int
	fanout         int
}

type Option func(*Adapter) error

// WithPackageID sets the package deal and audit objects belong to.
func WithPackageID(id string) Option {
	return func(a *Adapter) error {
		a.packageID = id
		return nil
	}
}

// WithSystemObjectID sets the storage network's system object.
func WithSystemObjectID(id string) Option {
	return func(a *Adapter) error {
		a.systemObjectID = id
		return nil
	}
}

// WithEventWindow overrides how many recent events an audit scan reads.
func WithEventWindow(n int) Option {
	return func(a *Adapter) error {
		if n <= 0 {
			return fmt.Errorf("event window must be positive, got %d", n)
		}
		a.eventWindow = n
		return nil
	}
}

// WithFanout bounds concurrent object fetches.
func WithFanout(n int) Option {
	return func(a *Adapter) error {
		if n <= 0 {
			return fmt.Errorf("fanout must be positive, got %d", n)
		}
		a.fanout = n
		return nil
	}
}

func New(reader Reader, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		reader:      reader,
		eventWindow: DefaultEventWindow,
		fanout:      defaultFanout,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Configured reports whether a ledger package id is set. Without one, blob
// queries return empty results and participant checks are permissive.
func (a *Adapter) Configured() bool {
	return a.packageID != ""
}

func (a *Adapter) PackageID() string {
	return a.packageID
}

// GetDeal fetches and decodes a deal object.
func (a *Adapter) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	ctx, span := tracer.Start(ctx, "get-deal", trace.WithAttributes(attribute.String("deal.id", dealID)))
	defer span.End()

	fields, err := a.dealFields(ctx, dealID)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network("ledger.GetDeal", err)
	}
	deal, err := parseDeal(dealID, fields)
	if err != nil {
		return nil, failure.Network("ledger.GetDeal", fmt.Errorf("decoding deal %s: %w", dealID, err))
	}
	return deal, nil
}

func (a *Adapter) dealFields(ctx context.Context, dealID string) (map[string]any, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	obj, err := a.reader.GetObject(ctx, dealID)
	if err != nil {
		if errors.Is(err, sui.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDealNotFound, dealID)
		}
		return nil, err
	}
	if obj.Content == nil || obj.Content.Fields == nil {
		return nil, fmt.Errorf("deal %s has no parsed content", dealID)
	}
	return obj.Content.Fields, nil
}

// GetDealBlobIDs lists the ids of blobs registered on a deal, in upload order.
// It returns an empty list without error when the package is not configured
// or when the deal record has no blob list.
func (a *Adapter) GetDealBlobIDs(ctx context.Context, dealID string) ([]string, error) {
	refs, err := a.getBlobReferences(ctx, "ledger.GetDealBlobIDs", dealID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.BlobID)
	}
	return ids, nil
}

// GetDealBlobReferences lists the blob references registered on a deal with
// the same empty-result policy as GetDealBlobIDs.
func (a *Adapter) GetDealBlobReferences(ctx context.Context, dealID string) ([]model.BlobReference, error) {
	refs, err := a.getBlobReferences(ctx, "ledger.GetDealBlobReferences", dealID)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []model.BlobReference{}
	}
	return refs, nil
}

func (a *Adapter) getBlobReferences(ctx context.Context, op, dealID string) ([]model.BlobReference, error) {
	ctx, span := tracer.Start(ctx, "get-blob-references", trace.WithAttributes(attribute.String("deal.id", dealID)))
	defer span.End()

	if !a.Configured() {
		log.Debugw("ledger package not configured, returning no blobs", "deal", dealID)
		return nil, nil
	}
	fields, err := a.dealFields(ctx, dealID)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network(op, err)
	}
	refs, present, err := blobReferences(fields)
	if err != nil {
		return nil, failure.Network(op, fmt.Errorf("decoding blobs of deal %s: %w", dealID, err))
	}
	if !present {
		log.Debugw("deal record has no blob list", "deal", dealID)
	}
	return refs, nil
}

// GetParticipantRole resolves the role address holds in a deal.
func (a *Adapter) GetParticipantRole(ctx context.Context, dealID, address string) (model.Role, bool, error) {
	deal, err := a.GetDeal(ctx, dealID)
	if err != nil {
		return "", false, err
	}
	role, ok := deal.RoleOf(address)
	return role, ok, nil
}

// GetParticipantRoles resolves every role address holds in a deal. The
// result is empty for non participants.
func (a *Adapter) GetParticipantRoles(ctx context.Context, dealID, address string) ([]model.Role, error) {
	deal, err := a.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return deal.RolesOf(address), nil
}

// VerifyDealParticipant reports whether address is the buyer, seller or
// auditor of the deal. It is open when no package is configured and closed
// when the query fails; it never returns an error.
func (a *Adapter) VerifyDealParticipant(ctx context.Context, dealID, address string) bool {
	if !a.Configured() {
		log.Debugw("ledger package not configured, allowing participant", "deal", dealID, "address", address)
		return true
	}
	_, ok, err := a.GetParticipantRole(ctx, dealID, address)
	if err != nil {
		log.Warnw("participant check failed, denying", "deal", dealID, "address", address, "error", err)
		return false
	}
	return ok
}
