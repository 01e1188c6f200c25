// Package storage stores opaque payloads on the decentralized blob network
// and answers metadata, cost and retention questions about them.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/walrus"
)

var (
	log    = logging.Logger("pkg/storage")
	tracer = otel.Tracer("pkg/storage")
)

const (
	DefaultMaxFileSize = 10 << 20
	DefaultEpochs      = 5
)

// Relay is the storage network client.
type Relay interface {
	CanStore() bool
	Store(ctx context.Context, data []byte, opts walrus.StoreOptions) (walrus.StoreResponse, error)
	Read(ctx context.Context, blobID string) ([]byte, error)
	Metadata(ctx context.Context, blobID string) (walrus.BlobMetadata, error)
}

// NetworkState provides the storage network's live parameters. It must read
// through to the network on every call.
type NetworkState interface {
	SystemState(ctx context.Context) (model.NetworkState, error)
}

type Adapter struct {
	relay       Relay
	network     NetworkState
	maxFileSize uint64
	epochs      uint64
	now         func() time.Time
}

type Option func(*Adapter) error

// WithMaxFileSize sets the exclusive upper bound on payload size.
func WithMaxFileSize(n uint64) Option {
	return func(a *Adapter) error {
		if n == 0 {
			return fmt.Errorf("max file size must be positive")
		}
		a.maxFileSize = n
		return nil
	}
}

// WithEpochs sets the default retention period.
func WithEpochs(n uint64) Option {
	return func(a *Adapter) error {
		if n == 0 {
			return fmt.Errorf("epochs must be positive")
		}
		a.epochs = n
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) error {
		a.now = now
		return nil
	}
}

func New(relay Relay, network NetworkState, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		relay:       relay,
		network:     network,
		maxFileSize: DefaultMaxFileSize,
		epochs:      DefaultEpochs,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Adapter) MaxFileSize() uint64 {
	return a.maxFileSize
}

func (a *Adapter) Epochs() uint64 {
	return a.epochs
}

// Upload stores data for the configured retention period. Payloads at or
// above the maximum size and missing credentials are rejected before any
// network request.
func (a *Adapter) Upload(ctx context.Context, data []byte, md model.UploadMetadata) (model.UploadResult, error) {
	const op = "storage.Upload"
	ctx, span := tracer.Start(ctx, "upload", trace.WithAttributes(
		attribute.Int("blob.size", len(data)),
		attribute.String("deal.id", md.DealID),
	))
	defer span.End()

	if uint64(len(data)) >= a.maxFileSize {
		return model.UploadResult{}, failure.Validation(op, "payload of %d bytes is at or above the maximum of %d bytes", len(data), a.maxFileSize)
	}
	if !a.relay.CanStore() {
		return model.UploadResult{}, failure.Configuration(op, "no signing credential configured")
	}

	state, err := a.network.SystemState(ctx)
	if err != nil {
		span.RecordError(err)
		return model.UploadResult{}, failure.Network(op, fmt.Errorf("reading current epoch: %w", err))
	}

	resp, err := a.relay.Store(ctx, data, walrus.StoreOptions{
		Epochs:     a.epochs,
		Attributes: attributes(md),
	})
	if err != nil {
		span.RecordError(err)
		return model.UploadResult{}, failure.Network(op, err)
	}
	attestation := resp.Attestation()
	if attestation == "" {
		return model.UploadResult{}, failure.Network(op, fmt.Errorf("blob %s stored without an attestation", resp.BlobID()))
	}

	result := model.UploadResult{
		BlobID:     resp.BlobID(),
		Commitment: model.WalrusCommitmentPrefix + attestation,
		Size:       uint64(len(data)),
		StartEpoch: state.Epoch,
		EndEpoch:   state.Epoch + a.epochs,
		UploadedAt: a.now().UTC(),
	}
	log.Infow("uploaded blob", "blobID", result.BlobID, "size", result.Size, "endEpoch", result.EndEpoch, "deal", md.DealID)
	return result, nil
}

func attributes(md model.UploadMetadata) map[string]string {
	attrs := map[string]string{}
	for k, v := range map[string]string{
		"Deal-Id":   md.DealID,
		"Period-Id": md.PeriodID,
		"Data-Type": md.DataType,
		"Uploader":  md.Uploader,
	} {
		if v != "" {
			attrs[k] = v
		}
	}
	return attrs
}

// Download fetches a stored blob.
func (a *Adapter) Download(ctx context.Context, blobID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "download", trace.WithAttributes(attribute.String("blob.id", blobID)))
	defer span.End()

	data, err := a.relay.Read(ctx, blobID)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network("storage.Download", err)
	}
	return data, nil
}

// GetBlobInfo returns the size of a blob and a commitment derived from its
// first primary hash. Hash shapes other than a raw digest yield
// walrus:unknown rather than an error.
func (a *Adapter) GetBlobInfo(ctx context.Context, blobID string) (model.BlobInfo, error) {
	ctx, span := tracer.Start(ctx, "get-blob-info", trace.WithAttributes(attribute.String("blob.id", blobID)))
	defer span.End()

	md, err := a.relay.Metadata(ctx, blobID)
	if err != nil {
		span.RecordError(err)
		return model.BlobInfo{}, failure.Network("storage.GetBlobInfo", err)
	}
	info := model.BlobInfo{BlobID: blobID, Commitment: model.UnknownWalrusCommitment}
	v1 := md.Metadata.V1
	if v1 == nil {
		log.Debugw("blob metadata has no V1 section", "blobID", blobID)
		return info, nil
	}
	info.Size = v1.UnencodedLength
	if len(v1.Hashes) == 0 {
		return info, nil
	}
	digest, err := v1.Hashes[0].PrimaryHash.DigestBytes()
	if err != nil {
		log.Debugw("primary hash is not a digest", "blobID", blobID, "kind", v1.Hashes[0].PrimaryHash.Kind)
		return info, nil
	}
	info.Commitment = model.WalrusCommitmentPrefix + hex.EncodeToString(digest)
	return info, nil
}

// Status compares a previous upload's end epoch with the live epoch.
func (a *Adapter) Status(ctx context.Context, upload model.UploadResult) (model.BlobStatus, error) {
	ctx, span := tracer.Start(ctx, "status", trace.WithAttributes(attribute.String("blob.id", upload.BlobID)))
	defer span.End()

	state, err := a.network.SystemState(ctx)
	if err != nil {
		span.RecordError(err)
		return model.BlobStatus{}, failure.Network("storage.Status", err)
	}
	status := model.BlobStatus{
		BlobID:       upload.BlobID,
		CurrentEpoch: state.Epoch,
		EndEpoch:     upload.EndEpoch,
	}
	if state.Epoch >= upload.EndEpoch {
		status.Expired = true
	} else {
		status.RemainingEpochs = upload.EndEpoch - state.Epoch
	}
	return status, nil
}
