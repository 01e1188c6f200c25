package model

import "time"

const (
	// Sha256CommitmentPrefix prefixes commitments computed locally over
	// ciphertext bytes.
	Sha256CommitmentPrefix = "sha256:"
	// WalrusCommitmentPrefix prefixes commitments attested by the storage
	// network. The two formats are not interchangeable.
	WalrusCommitmentPrefix = "walrus:"
	// UnknownWalrusCommitment is returned when blob metadata carries a hash
	// shape that is not a raw digest.
	UnknownWalrusCommitment = WalrusCommitmentPrefix + "unknown"
)

// EncryptionResult is produced once per plaintext upload.
type EncryptionResult struct {
	Ciphertext []byte
	Commitment string
	PolicyID   string
	CreatedAt  time.Time
}

// UploadMetadata describes the payload being stored. It is forwarded to the
// relay as request attributes and not otherwise interpreted.
type UploadMetadata struct {
	DealID   string
	PeriodID string
	DataType string
	Uploader string
}

// UploadResult is returned from a successful storage upload.
type UploadResult struct {
	BlobID     string
	Commitment string
	Size       uint64
	StartEpoch uint64
	EndEpoch   uint64
	UploadedAt time.Time
}

// BlobInfo is the storage network's view of a stored blob.
type BlobInfo struct {
	BlobID     string
	Size       uint64
	Commitment string
}

// StorageCost is expressed in the storage network's smallest token unit.
type StorageCost struct {
	StorageCost uint64
	WriteCost   uint64
	TotalCost   uint64
}

// BlobStatus reports how a stored blob's retention relates to the live epoch.
type BlobStatus struct {
	BlobID          string
	CurrentEpoch    uint64
	EndEpoch        uint64
	RemainingEpochs uint64
	Expired         bool
}

// AccessResult is the outcome of an access check. A denial is a value, not an
// error.
type AccessResult struct {
	HasAccess bool
	Role      *Role
	Reason    string
}
