package walrus

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// StoreResponse is the publisher's reply to a store request. Exactly one of
// the two fields is set.
type StoreResponse struct {
	NewlyCreated     *NewlyCreated     `json:"newlyCreated,omitempty"`
	AlreadyCertified *AlreadyCertified `json:"alreadyCertified,omitempty"`
}

type NewlyCreated struct {
	BlobObject BlobObject `json:"blobObject"`
	Cost       uint64     `json:"cost"`
}

type BlobObject struct {
	// ID is the certified blob object on the ledger.
	ID              string          `json:"id"`
	BlobID          string          `json:"blobId"`
	Size            uint64          `json:"size"`
	RegisteredEpoch uint64          `json:"registeredEpoch"`
	CertifiedEpoch  *uint64         `json:"certifiedEpoch,omitempty"`
	Storage         StorageResource `json:"storage"`
	Deletable       bool            `json:"deletable"`
}

type StorageResource struct {
	ID          string `json:"id"`
	StartEpoch  uint64 `json:"startEpoch"`
	EndEpoch    uint64 `json:"endEpoch"`
	StorageSize uint64 `json:"storageSize"`
}

type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

type AlreadyCertified struct {
	BlobID   string   `json:"blobId"`
	Event    *EventID `json:"event,omitempty"`
	Object   string   `json:"object,omitempty"`
	EndEpoch uint64   `json:"endEpoch"`
}

// BlobID returns the identifier of the stored blob regardless of which
// branch the publisher answered with.
func (r StoreResponse) BlobID() string {
	switch {
	case r.NewlyCreated != nil:
		return r.NewlyCreated.BlobObject.BlobID
	case r.AlreadyCertified != nil:
		return r.AlreadyCertified.BlobID
	}
	return ""
}

// Attestation returns the network's proof that the blob is certified: the
// certified blob object id, or for blobs certified earlier the object or the
// certifying transaction.
func (r StoreResponse) Attestation() string {
	switch {
	case r.NewlyCreated != nil:
		return r.NewlyCreated.BlobObject.ID
	case r.AlreadyCertified != nil:
		if r.AlreadyCertified.Object != "" {
			return r.AlreadyCertified.Object
		}
		if r.AlreadyCertified.Event != nil {
			return r.AlreadyCertified.Event.TxDigest
		}
	}
	return ""
}

// BlobMetadata is the aggregator's metadata document for a blob.
type BlobMetadata struct {
	BlobID   string            `json:"blobId"`
	Metadata VersionedMetadata `json:"metadata"`
}

type VersionedMetadata struct {
	V1 *MetadataV1 `json:"V1,omitempty"`
}

type MetadataV1 struct {
	EncodingType    string               `json:"encodingType,omitempty"`
	UnencodedLength uint64               `json:"unencodedLength"`
	Hashes          []SliverPairMetadata `json:"hashes"`
}

type SliverPairMetadata struct {
	PrimaryHash   MerkleNode `json:"primaryHash"`
	SecondaryHash MerkleNode `json:"secondaryHash"`
}

const (
	// DigestKind is the discriminant of a MerkleNode carrying a raw digest.
	DigestKind = "Digest"
	// UnknownKind marks a node whose JSON shape was not recognized.
	UnknownKind = "Unknown"
)

// MerkleNode is a tagged union. Only the Digest variant carries bytes; the
// others (for example Empty) are kept as their tag.
type MerkleNode struct {
	Kind   string          `json:"$kind"`
	Digest json.RawMessage `json:"Digest,omitempty"`
}

// UnmarshalJSON accepts the three encodings nodes have been seen in:
// {"$kind":"Digest","Digest":...}, a bare unit variant such as "Empty", and
// the externally tagged {"Digest":...}. Any other value decodes to
// UnknownKind instead of failing the enclosing document.
func (n *MerkleNode) UnmarshalJSON(data []byte) error {
	*n = MerkleNode{Kind: UnknownKind}

	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "" {
			n.Kind = tag
		}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil
	}
	if raw, ok := obj["$kind"]; ok {
		if err := json.Unmarshal(raw, &tag); err == nil && tag != "" {
			n.Kind = tag
		}
	} else if len(obj) == 1 {
		for k := range obj {
			n.Kind = k
		}
	}
	if n.Kind == DigestKind {
		n.Digest = obj[DigestKind]
	}
	return nil
}

// DigestBytes decodes the digest of a Digest node. The node encodes bytes
// either as a base64 string or as an array of numbers.
func (n MerkleNode) DigestBytes() ([]byte, error) {
	if n.Kind != DigestKind {
		return nil, fmt.Errorf("merkle node kind %q carries no digest", n.Kind)
	}
	if len(n.Digest) == 0 {
		return nil, fmt.Errorf("digest node without value")
	}
	var s string
	if err := json.Unmarshal(n.Digest, &s); err == nil {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding digest: %w", err)
		}
		return b, nil
	}
	var nums []uint8
	if err := json.Unmarshal(n.Digest, &nums); err != nil {
		return nil, fmt.Errorf("decoding digest: %w", err)
	}
	return nums, nil
}
