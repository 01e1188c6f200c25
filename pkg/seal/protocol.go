package seal

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
)

// Paths served by a key server.
const (
	ServicePath  = "/v1/service"
	FetchKeyPath = "/v1/fetch_key"
)

// ApproveFunction is the policy entry point named in approval requests.
const ApproveFunction = "seal_approve"

// SessionTTL is the lifetime of a decryption session.
const SessionTTL = 10 * time.Minute

var (
	shareInfo    = []byte("dealvault/seal/share/v1")
	responseInfo = []byte("dealvault/seal/response/v1")
)

// Suite is the HPKE suite used to seal shares to key servers and to seal
// released shares back to a session.
var Suite = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)

func kemScheme() kem.Scheme {
	return hpke.KEM_X25519_HKDF_SHA256.Scheme()
}

// GenerateServerKey returns a fresh key server secret and its public key.
func GenerateServerKey() (secret, public []byte, err error) {
	pk, sk, err := kemScheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generating key pair: %w", err)
	}
	if secret, err = sk.MarshalBinary(); err != nil {
		return nil, nil, fmt.Errorf("marshalling secret key: %w", err)
	}
	if public, err = pk.MarshalBinary(); err != nil {
		return nil, nil, fmt.Errorf("marshalling public key: %w", err)
	}
	return secret, public, nil
}

// ParseServerSecret decodes a key server secret and derives its public key.
func ParseServerSecret(secret []byte) (kem.PrivateKey, []byte, error) {
	sk, err := kemScheme().UnmarshalBinaryPrivateKey(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding secret key: %w", err)
	}
	pub, err := sk.Public().MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshalling public key: %w", err)
	}
	return sk, pub, nil
}

// FullID binds an identity to the policy package that governs it.
func FullID(packageID, identity string) []byte {
	return []byte(packageID + "::" + identity)
}

func shareAAD(fullID []byte, server string) []byte {
	return append(append(bytes.Clone(fullID), '|'), server...)
}

func responseAAD(requestID, server string) []byte {
	return []byte(requestID + "|" + server)
}

func sealTo(publicKey, info, aad, plaintext []byte) (enc, ct []byte, err error) {
	pk, err := kemScheme().UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding public key: %w", err)
	}
	sender, err := Suite.NewSender(pk, info)
	if err != nil {
		return nil, nil, fmt.Errorf("creating hpke sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up hpke sender: %w", err)
	}
	ct, err = sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("sealing: %w", err)
	}
	return enc, ct, nil
}

func openWith(sk kem.PrivateKey, info, enc, ct, aad []byte) ([]byte, error) {
	receiver, err := Suite.NewReceiver(sk, info)
	if err != nil {
		return nil, fmt.Errorf("creating hpke receiver: %w", err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("setting up hpke receiver: %w", err)
	}
	pt, err := opener.Open(ct, aad)
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	return pt, nil
}

// OpenShare decrypts a share addressed to the key server holding sk.
func OpenShare(sk kem.PrivateKey, fullID []byte, share EncryptedShare) ([]byte, error) {
	return openWith(sk, shareInfo, share.Encapsulation, share.Sealed, shareAAD(fullID, share.Server))
}

// SealResponse re-encrypts a released share to the session key of a request.
func SealResponse(sessionKey []byte, requestID, server string, value []byte) (FetchKeyResponse, error) {
	enc, ct, err := sealTo(sessionKey, responseInfo, responseAAD(requestID, server), value)
	if err != nil {
		return FetchKeyResponse{}, err
	}
	return FetchKeyResponse{Server: server, Encapsulation: enc, Sealed: ct}, nil
}

// OpenResponse decrypts a released share with the session's HPKE secret.
func OpenResponse(sessionSecret []byte, requestID string, res FetchKeyResponse) ([]byte, error) {
	sk, _, err := ParseServerSecret(sessionSecret)
	if err != nil {
		return nil, err
	}
	return openWith(sk, responseInfo, res.Encapsulation, res.Sealed, responseAAD(requestID, res.Server))
}

// EncryptedShare is one key share sealed to a single key server.
type EncryptedShare struct {
	Server        string `json:"server"`
	Index         []byte `json:"index"`
	Encapsulation []byte `json:"enc"`
	Sealed        []byte `json:"sealed"`
}

// Certificate authorizes a session key to act for User until it expires.
type Certificate struct {
	User           string `json:"user"`
	SessionKey     []byte `json:"sessionVk"`
	CreationTimeMs int64  `json:"creationTimeMs"`
	TTLMin         int    `json:"ttlMin"`
	Signature      string `json:"signature"`
}

// Message is the personal message signed by the certificate's user.
func (c Certificate) Message(packageID string) []byte {
	created := time.UnixMilli(c.CreationTimeMs).UTC().Format(time.RFC3339)
	return fmt.Appendf(nil, "Accessing keys of package %s for %d mins from %s, session key %x", packageID, c.TTLMin, created, c.SessionKey)
}

// Expiry returns the instant after which the certificate is no longer valid.
func (c Certificate) Expiry() time.Time {
	return time.UnixMilli(c.CreationTimeMs).Add(time.Duration(c.TTLMin) * time.Minute)
}

// ApprovalRequest asks a key server to evaluate the policy's approve entry
// point for Identity on behalf of Requester.
type ApprovalRequest struct {
	PackageID   string `json:"packageId"`
	Module      string `json:"module"`
	Function    string `json:"function"`
	Identity    string `json:"identity"`
	DealID      string `json:"dealId"`
	Requester   string `json:"requester"`
	EncKey      []byte `json:"encKey"`
	RequestID   string `json:"requestId"`
	TimestampMs int64  `json:"timestampMs"`
}

// SigningBytes returns the bytes covered by the session key signature.
func (r ApprovalRequest) SigningBytes() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding approval request: %w", err)
	}
	return b, nil
}

// VerifySignature checks sig against the certificate's session key.
func (r ApprovalRequest) VerifySignature(sessionKey, sig []byte) bool {
	if len(sessionKey) != ed25519.PublicKeySize {
		return false
	}
	msg, err := r.SigningBytes()
	if err != nil {
		return false
	}
	return ed25519.Verify(sessionKey, msg, sig)
}

type FetchKeyRequest struct {
	Certificate      Certificate     `json:"certificate"`
	Request          ApprovalRequest `json:"request"`
	RequestSignature []byte          `json:"requestSignature"`
	Share            EncryptedShare  `json:"share"`
}

type FetchKeyResponse struct {
	Server        string `json:"server"`
	Encapsulation []byte `json:"enc"`
	Sealed        []byte `json:"sealed"`
}

type ServiceInfo struct {
	ID        string `json:"id"`
	PublicKey []byte `json:"publicKey"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
