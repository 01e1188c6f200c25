package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/earnout-labs/dealvault/pkg/model"
)

const envelopeVersion = 1

var demInfo = []byte("dealvault/seal/dem/v1")

var errMalformedEnvelope = errors.New("malformed ciphertext envelope")

// Envelope is the serialized form of an encrypted payload. The identity and
// share commitments travel with the ciphertext so that decryption needs no
// state beyond the key servers.
type Envelope struct {
	Version     int              `json:"version"`
	PackageID   string           `json:"packageId"`
	Module      string           `json:"module"`
	Identity    string           `json:"identity"`
	Threshold   int              `json:"threshold"`
	Shares      []EncryptedShare `json:"shares"`
	Commitments [][]byte         `json:"commitments"`
	Nonce       []byte           `json:"nonce"`
	Ciphertext  []byte           `json:"ciphertext"`
}

// ParseEnvelope decodes ciphertext produced by Encrypt.
func ParseEnvelope(ciphertext []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(ciphertext, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedEnvelope, err)
	}
	switch {
	case env.Version != envelopeVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", errMalformedEnvelope, env.Version)
	case env.Identity == "" || env.PackageID == "":
		return nil, fmt.Errorf("%w: missing identity", errMalformedEnvelope)
	case env.Threshold < 1 || env.Threshold > len(env.Shares):
		return nil, fmt.Errorf("%w: threshold %d with %d shares", errMalformedEnvelope, env.Threshold, len(env.Shares))
	case len(env.Commitments) != env.Threshold:
		return nil, fmt.Errorf("%w: %d commitments for threshold %d", errMalformedEnvelope, len(env.Commitments), env.Threshold)
	case len(env.Nonce) != chacha20poly1305.NonceSizeX:
		return nil, fmt.Errorf("%w: bad nonce length %d", errMalformedEnvelope, len(env.Nonce))
	}
	return &env, nil
}

func (e *Envelope) FullID() []byte {
	return FullID(e.PackageID, e.Identity)
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// commitment decodes the polynomial commitments into group elements.
func (e *Envelope) commitment() (secretsharing.SecretCommitment, error) {
	out := make(secretsharing.SecretCommitment, 0, len(e.Commitments))
	for i, raw := range e.Commitments {
		el := group.Ristretto255.NewElement()
		if err := el.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decoding commitment %d: %w", i, err)
		}
		out = append(out, el)
	}
	return out, nil
}

// demKey derives the payload key from the shared secret.
func demKey(secret group.Scalar, fullID []byte) ([]byte, error) {
	raw, err := secret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding secret: %w", err)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, raw, nil, append(append([]byte{}, demInfo...), fullID...))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func sealPayload(key, fullID, plaintext []byte) (nonce, ct []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating aead: %w", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, fullID), nil
}

func openPayload(key []byte, env *Envelope) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating aead: %w", err)
	}
	pt, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.FullID())
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}
	return pt, nil
}

// Commitment returns the sha256: commitment over ciphertext bytes.
func Commitment(ciphertext []byte) (string, error) {
	sum, err := mh.Sum(ciphertext, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing ciphertext: %w", err)
	}
	decoded, err := mh.Decode(sum)
	if err != nil {
		return "", fmt.Errorf("decoding multihash: %w", err)
	}
	return model.Sha256CommitmentPrefix + hex.EncodeToString(decoded.Digest), nil
}
