package sui

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-varint"
	"golang.org/x/crypto/blake2b"
)

const (
	// ed25519Flag is the signature scheme flag for Ed25519 keys.
	ed25519Flag byte = 0x00

	// AddressLength is the length in bytes of a ledger address.
	AddressLength = 32
)

// personalMessageIntent is the intent prefix for personal messages:
// scope PersonalMessage, version V0, app id Sui.
var personalMessageIntent = []byte{3, 0, 0}

var ErrInvalidSignature = errors.New("invalid signature")

// Keypair is an Ed25519 signing credential.
type Keypair struct {
	priv ed25519.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed builds a keypair from a 32 byte Ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// ParseKeypair decodes a base64 credential. Both the bare 32 byte seed and
// the flagged 33 byte form (flag || seed) are accepted.
func ParseKeypair(encoded string) (*Keypair, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return KeypairFromSeed(raw)
	case ed25519.SeedSize + 1:
		if raw[0] != ed25519Flag {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", raw[0])
		}
		return KeypairFromSeed(raw[1:])
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.SeedSize+1, len(raw))
	}
}

// Encode returns the flagged base64 form accepted by ParseKeypair.
func (k *Keypair) Encode() string {
	return base64.StdEncoding.EncodeToString(append([]byte{ed25519Flag}, k.priv.Seed()...))
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.priv
}

// Address returns the ledger address controlled by this keypair.
func (k *Keypair) Address() string {
	return AddressFromPublicKey(k.PublicKey())
}

// AddressFromPublicKey derives an address as blake2b-256(flag || pubkey).
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{ed25519Flag})
	h.Write(pub)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// SignPersonalMessage signs msg with the personal message intent and returns
// the serialized signature base64(flag || sig || pubkey).
func (k *Keypair) SignPersonalMessage(msg []byte) string {
	digest := personalMessageDigest(msg)
	sig := ed25519.Sign(k.priv, digest)
	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, k.PublicKey()...)
	return base64.StdEncoding.EncodeToString(out)
}

// VerifyPersonalMessage checks a serialized signature over msg and returns
// the address of the signer.
func VerifyPersonalMessage(msg []byte, serialized string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: unexpected length %d", ErrInvalidSignature, len(raw))
	}
	if raw[0] != ed25519Flag {
		return "", fmt.Errorf("%w: unsupported scheme flag 0x%02x", ErrInvalidSignature, raw[0])
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])
	if !ed25519.Verify(pub, personalMessageDigest(msg), sig) {
		return "", ErrInvalidSignature
	}
	return AddressFromPublicKey(pub), nil
}

func personalMessageDigest(msg []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(personalMessageIntent)
	// the message is BCS encoded as vector<u8>: ULEB128 length then bytes
	h.Write(varint.ToUvarint(uint64(len(msg))))
	h.Write(msg)
	return h.Sum(nil)
}

// IsValidAddress reports whether addr is a 0x-prefixed hex address of at most
// AddressLength bytes.
func IsValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") {
		return false
	}
	body := addr[2:]
	if len(body) == 0 || len(body) > AddressLength*2 {
		return false
	}
	_, err := hex.DecodeString(padEven(body))
	return err == nil
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}
