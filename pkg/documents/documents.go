// Package documents runs the submit and retrieve workflows for deal
// documents: encrypt, store and journal on the way in; authorize, fetch and
// decrypt on the way out. Progress is published on the event bus.
package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/pkg/bus"
	"github.com/earnout-labs/dealvault/pkg/bus/events"
	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/journal"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/seal"
)

var (
	log    = logging.Logger("pkg/documents")
	tracer = otel.Tracer("pkg/documents")
)

// ErrAccessDenied is returned when the requester fails the access check. The
// wrapping error carries the check's reason.
var ErrAccessDenied = errors.New("access denied")

type Encryptor interface {
	Encrypt(ctx context.Context, plaintext []byte, cfg seal.PolicyConfig) (model.EncryptionResult, error)
	Decrypt(ctx context.Context, ciphertext []byte, dealID, userAddress string) ([]byte, error)
}

type BlobStore interface {
	Upload(ctx context.Context, data []byte, md model.UploadMetadata) (model.UploadResult, error)
	Download(ctx context.Context, blobID string) ([]byte, error)
}

type AccessChecker interface {
	VerifyAccess(ctx context.Context, dealID, address string, requiredRole *model.Role) model.AccessResult
}

// Recorder persists completed uploads.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

type Service struct {
	enc     Encryptor
	store   BlobStore
	access  AccessChecker
	journal Recorder
	bus     bus.Publisher
	now     func() time.Time
}

type Option func(*Service)

func WithJournal(r Recorder) Option {
	return func(s *Service) {
		s.journal = r
	}
}

func WithEventBus(b bus.Publisher) Option {
	return func(s *Service) {
		s.bus = b
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(enc Encryptor, store BlobStore, access AccessChecker, opts ...Option) *Service {
	s := &Service{
		enc:    enc,
		store:  store,
		access: access,
		bus:    bus.NoopBus{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Document is a plaintext payload to be filed against a deal period.
type Document struct {
	DealID   string
	PeriodID string
	DataType string
	// Uploader must be a participant of the deal.
	Uploader string
	Data     []byte
}

// Submission describes a stored document.
type Submission struct {
	Upload     model.UploadResult
	Encryption model.EncryptionResult
	// JournalID is empty when no journal is configured.
	JournalID string
}

func (s *Service) publish(dealID string, ev events.DocumentEvent) {
	ev.DealID = dealID
	ev.At = s.now().UTC()
	s.bus.Publish(events.TopicDocument(dealID), ev)
}

func (s *Service) fail(span trace.Span, dealID, blobID string, err error) error {
	span.RecordError(err)
	s.publish(dealID, events.DocumentEvent{BlobID: blobID, Stage: events.StageFailed, Error: err})
	return err
}

func (s *Service) authorize(ctx context.Context, op, dealID, address string, role *model.Role) error {
	res := s.access.VerifyAccess(ctx, dealID, address, role)
	if !res.HasAccess {
		log.Debugw("access denied", "op", op, "deal", dealID, "address", address, "reason", res.Reason)
		return fmt.Errorf("%w: %s", ErrAccessDenied, res.Reason)
	}
	return nil
}

// Submit encrypts doc under the deal's policy, stores the ciphertext and
// records the upload in the journal.
func (s *Service) Submit(ctx context.Context, doc Document) (Submission, error) {
	const op = "documents.Submit"
	ctx, span := tracer.Start(ctx, "submit", trace.WithAttributes(
		attribute.String("deal.id", doc.DealID),
		attribute.Int("document.size", len(doc.Data)),
	))
	defer span.End()

	if doc.DealID == "" {
		return Submission{}, failure.Validation(op, "deal id required")
	}
	if doc.Uploader == "" {
		return Submission{}, failure.Validation(op, "uploader address required")
	}
	if err := s.authorize(ctx, op, doc.DealID, doc.Uploader, nil); err != nil {
		return Submission{}, s.fail(span, doc.DealID, "", err)
	}

	s.publish(doc.DealID, events.DocumentEvent{Stage: events.StageEncrypting, Size: uint64(len(doc.Data))})
	enc, err := s.enc.Encrypt(ctx, doc.Data, seal.PolicyConfig{DealID: doc.DealID})
	if err != nil {
		return Submission{}, s.fail(span, doc.DealID, "", fmt.Errorf("encrypting document: %w", err))
	}

	s.publish(doc.DealID, events.DocumentEvent{Stage: events.StageUploading, Size: uint64(len(enc.Ciphertext))})
	up, err := s.store.Upload(ctx, enc.Ciphertext, model.UploadMetadata{
		DealID:   doc.DealID,
		PeriodID: doc.PeriodID,
		DataType: doc.DataType,
		Uploader: doc.Uploader,
	})
	if err != nil {
		return Submission{}, s.fail(span, doc.DealID, "", fmt.Errorf("uploading document: %w", err))
	}
	span.SetAttributes(attribute.String("blob.id", up.BlobID))

	sub := Submission{Upload: up, Encryption: enc}
	// The ciphertext is stored; keep only its metadata.
	sub.Encryption.Ciphertext = nil

	if s.journal != nil {
		entry, err := s.journal.Record(ctx, journal.Entry{
			BlobID:               up.BlobID,
			DealID:               doc.DealID,
			PeriodID:             doc.PeriodID,
			DataType:             doc.DataType,
			Uploader:             model.NormalizeAddress(doc.Uploader),
			Size:                 up.Size,
			Commitment:           up.Commitment,
			EncryptionCommitment: enc.Commitment,
			PolicyID:             enc.PolicyID,
			StartEpoch:           up.StartEpoch,
			EndEpoch:             up.EndEpoch,
			UploadedAt:           up.UploadedAt,
		})
		if err != nil {
			// A journal failure does not fail the submission.
			log.Errorw("journal write failed", "blobID", up.BlobID, "error", err)
		} else {
			sub.JournalID = entry.ID
		}
	}

	s.publish(doc.DealID, events.DocumentEvent{BlobID: up.BlobID, Stage: events.StageUploaded, Size: up.Size})
	log.Infow("submitted document", "deal", doc.DealID, "blobID", up.BlobID, "period", doc.PeriodID, "type", doc.DataType)
	return sub, nil
}

// Retrieve returns the plaintext of blobID after checking that requester may
// read the deal's documents. role, when non-nil, narrows the check to one
// role.
func (s *Service) Retrieve(ctx context.Context, dealID, blobID, requester string, role *model.Role) ([]byte, error) {
	const op = "documents.Retrieve"
	ctx, span := tracer.Start(ctx, "retrieve", trace.WithAttributes(
		attribute.String("deal.id", dealID),
		attribute.String("blob.id", blobID),
	))
	defer span.End()

	if dealID == "" || blobID == "" {
		return nil, failure.Validation(op, "deal id and blob id required")
	}

	s.publish(dealID, events.DocumentEvent{BlobID: blobID, Stage: events.StageVerifying})
	if err := s.authorize(ctx, op, dealID, requester, role); err != nil {
		return nil, s.fail(span, dealID, blobID, err)
	}

	s.publish(dealID, events.DocumentEvent{BlobID: blobID, Stage: events.StageDownloading})
	ciphertext, err := s.store.Download(ctx, blobID)
	if err != nil {
		return nil, s.fail(span, dealID, blobID, fmt.Errorf("downloading blob %s: %w", blobID, err))
	}

	s.publish(dealID, events.DocumentEvent{BlobID: blobID, Stage: events.StageDecrypting, Size: uint64(len(ciphertext))})
	plaintext, err := s.enc.Decrypt(ctx, ciphertext, dealID, requester)
	if err != nil {
		return nil, s.fail(span, dealID, blobID, fmt.Errorf("decrypting blob %s: %w", blobID, err))
	}

	s.publish(dealID, events.DocumentEvent{BlobID: blobID, Stage: events.StageRetrieved, Size: uint64(len(plaintext))})
	return plaintext, nil
}
