// Package seal encrypts payloads under an on-ledger access policy. The payload
// key is split 2-of-N across key servers; decryption opens a short lived
// session, asks the key servers to release their shares for the deal and
// recombines them once enough verified shares arrive.
package seal

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"
	"github.com/hashicorp/golang-lru/v2/expirable"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

var (
	log    = logging.Logger("pkg/seal")
	tracer = otel.Tracer("pkg/seal")
)

const (
	// Threshold is the number of key shares needed to recover a payload key.
	Threshold = 2

	defaultCacheSize = 256
	defaultTimeout   = 30 * time.Second
)

// PolicyConfig names the deal whose access policy governs a payload.
type PolicyConfig struct {
	DealID string
}

type Adapter struct {
	enabled   bool
	packageID string
	module    string
	signer    *sui.Keypair
	servers   *keyServerSet
	client    *keyServerClient
	cache     *expirable.LRU[string, []byte]
	cacheSize int
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Adapter) error

// WithEnabled toggles encryption and decryption. Enabled by default.
func WithEnabled(enabled bool) Option {
	return func(a *Adapter) error {
		a.enabled = enabled
		return nil
	}
}

// WithPolicy sets the policy package and module.
func WithPolicy(packageID, module string) Option {
	return func(a *Adapter) error {
		if packageID == "" || module == "" {
			return fmt.Errorf("policy package and module are both required")
		}
		a.packageID = packageID
		a.module = module
		return nil
	}
}

// WithKeyServers sets the key server ids and how to resolve them. Resolution
// happens once, on the first encryption or decryption.
func WithKeyServers(ids []string, resolver KeyServerResolver) Option {
	return func(a *Adapter) error {
		a.servers = &keyServerSet{ids: ids, resolver: resolver}
		return nil
	}
}

// WithSigner sets the backend credential that certifies decryption sessions.
func WithSigner(kp *sui.Keypair) Option {
	return func(a *Adapter) error {
		a.signer = kp
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) error {
		a.timeout = d
		return nil
	}
}

// WithCacheSize bounds the number of recovered keys kept in memory.
func WithCacheSize(n int) Option {
	return func(a *Adapter) error {
		if n <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
		a.cacheSize = n
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) error {
		a.now = now
		return nil
	}
}

func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{
		enabled:   true,
		servers:   &keyServerSet{},
		cacheSize: defaultCacheSize,
		timeout:   defaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.client = newKeyServerClient(a.timeout)
	a.cache = expirable.NewLRU[string, []byte](a.cacheSize, nil, SessionTTL)
	return a, nil
}

// PolicyID returns the configured policy as <package>::<module>, or "".
func (a *Adapter) PolicyID() string {
	if a.packageID == "" {
		return ""
	}
	return a.packageID + "::" + a.module
}

func (a *Adapter) Enabled() bool {
	return a.enabled
}

// Encrypt seals plaintext so that only participants of cfg.DealID can
// recover it through the key servers.
func (a *Adapter) Encrypt(ctx context.Context, plaintext []byte, cfg PolicyConfig) (model.EncryptionResult, error) {
	const op = "seal.Encrypt"
	ctx, span := tracer.Start(ctx, "encrypt", trace.WithAttributes(
		attribute.String("deal.id", cfg.DealID),
		attribute.Int("plaintext.size", len(plaintext)),
	))
	defer span.End()

	if !a.enabled {
		return model.EncryptionResult{}, failure.Configuration(op, "encryption is disabled")
	}
	if a.packageID == "" {
		return model.EncryptionResult{}, failure.Configuration(op, "no policy identifier configured")
	}
	if cfg.DealID == "" {
		return model.EncryptionResult{}, failure.Validation(op, "deal id is required")
	}

	servers, err := a.servers.get(ctx)
	if err != nil {
		span.RecordError(err)
		return model.EncryptionResult{}, failure.Network(op, err)
	}

	env, err := a.encrypt(plaintext, cfg.DealID, servers)
	if err != nil {
		span.RecordError(err)
		return model.EncryptionResult{}, err
	}
	ciphertext, err := env.Marshal()
	if err != nil {
		return model.EncryptionResult{}, fmt.Errorf("encoding envelope: %w", err)
	}
	commitment, err := Commitment(ciphertext)
	if err != nil {
		return model.EncryptionResult{}, err
	}

	log.Debugw("encrypted payload", "deal", cfg.DealID, "keyServers", len(servers), "size", len(ciphertext))
	return model.EncryptionResult{
		Ciphertext: ciphertext,
		Commitment: commitment,
		PolicyID:   a.PolicyID(),
		CreatedAt:  a.now().UTC(),
	}, nil
}

func (a *Adapter) encrypt(plaintext []byte, identity string, servers []model.KeyServer) (*Envelope, error) {
	const op = "seal.Encrypt"
	if len(servers) < Threshold {
		return nil, failure.Configuration(op, "threshold %d needs at least %d key servers, have %d", Threshold, Threshold, len(servers))
	}

	fullID := FullID(a.packageID, identity)
	g := group.Ristretto255
	secret := g.RandomScalar(rand.Reader)
	ss := secretsharing.New(rand.Reader, Threshold-1, secret)
	shares := ss.Share(uint(len(servers)))

	env := &Envelope{
		Version:   envelopeVersion,
		PackageID: a.packageID,
		Module:    a.module,
		Identity:  identity,
		Threshold: Threshold,
		Shares:    make([]EncryptedShare, 0, len(servers)),
	}
	for _, el := range ss.CommitSecret() {
		raw, err := el.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding commitment: %w", err)
		}
		env.Commitments = append(env.Commitments, raw)
	}
	for i, server := range servers {
		index, err := shares[i].ID.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding share index: %w", err)
		}
		value, err := shares[i].Value.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding share: %w", err)
		}
		enc, sealed, err := sealTo(server.PublicKey, shareInfo, shareAAD(fullID, server.ObjectID), value)
		if err != nil {
			return nil, fmt.Errorf("sealing share for key server %s: %w", server.ObjectID, err)
		}
		env.Shares = append(env.Shares, EncryptedShare{
			Server:        server.ObjectID,
			Index:         index,
			Encapsulation: enc,
			Sealed:        sealed,
		})
	}

	key, err := demKey(secret, fullID)
	if err != nil {
		return nil, err
	}
	if env.Nonce, env.Ciphertext, err = sealPayload(key, fullID, plaintext); err != nil {
		return nil, err
	}
	return env, nil
}

// Decrypt recovers the plaintext of ciphertext on behalf of userAddress. The
// key servers decide whether userAddress may read dealID.
func (a *Adapter) Decrypt(ctx context.Context, ciphertext []byte, dealID, userAddress string) ([]byte, error) {
	const op = "seal.Decrypt"
	ctx, span := tracer.Start(ctx, "decrypt", trace.WithAttributes(
		attribute.String("deal.id", dealID),
		attribute.String("user", userAddress),
	))
	defer span.End()

	if !a.enabled {
		return nil, failure.Configuration(op, "decryption is disabled")
	}
	if a.signer == nil {
		return nil, failure.Configuration(op, "no backend signing credential configured")
	}

	env, err := ParseEnvelope(ciphertext)
	if err != nil {
		return nil, failure.Validation(op, "%s", err)
	}
	if env.Identity != dealID {
		return nil, failure.Validation(op, "ciphertext is for deal %q, not %q", env.Identity, dealID)
	}
	if a.packageID != "" && env.PackageID != a.packageID {
		return nil, failure.Validation(op, "ciphertext is governed by package %s, expected %s", env.PackageID, a.packageID)
	}

	cacheKey := hex.EncodeToString(env.FullID()) + "|" + model.NormalizeAddress(userAddress)
	if key, ok := a.cache.Get(cacheKey); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		pt, err := openPayload(key, env)
		if err == nil {
			return pt, nil
		}
		a.cache.Remove(cacheKey)
	}

	servers, err := a.servers.get(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network(op, err)
	}
	candidates := matchShares(env, servers)
	if len(candidates) < env.Threshold {
		return nil, failure.Configuration(op, "ciphertext needs %d shares but only %d of its key servers are configured", env.Threshold, len(candidates))
	}

	sess, err := a.openSession(env.PackageID)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	shares, err := a.fetchShares(ctx, sess, env, candidates, userAddress)
	if err != nil {
		span.RecordError(err)
		return nil, failure.Network(op, err)
	}

	secret, err := secretsharing.Recover(uint(env.Threshold-1), shares)
	if err != nil {
		return nil, failure.Validation(op, "recovering key: %s", err)
	}
	key, err := demKey(secret, env.FullID())
	if err != nil {
		return nil, err
	}
	pt, err := openPayload(key, env)
	if err != nil {
		return nil, failure.Validation(op, "ciphertext failed integrity check: %s", err)
	}
	a.cache.Add(cacheKey, key)
	log.Debugw("decrypted payload", "deal", dealID, "user", userAddress)
	return pt, nil
}

type shareTarget struct {
	server model.KeyServer
	share  EncryptedShare
}

// matchShares pairs each envelope share with its configured key server.
func matchShares(env *Envelope, servers []model.KeyServer) []shareTarget {
	byID := make(map[string]model.KeyServer, len(servers))
	for _, s := range servers {
		byID[s.ObjectID] = s
	}
	var out []shareTarget
	for _, share := range env.Shares {
		if s, ok := byID[share.Server]; ok {
			out = append(out, shareTarget{server: s, share: share})
		}
	}
	return out
}

// session is an ephemeral signing key certified by the backend credential and
// an ephemeral HPKE key that released shares are sealed to.
type session struct {
	cert       Certificate
	signingKey ed25519.PrivateKey
	secret     []byte
	public     []byte
}

func (a *Adapter) openSession(packageID string) (*session, error) {
	vk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	secret, public, err := GenerateServerKey()
	if err != nil {
		return nil, err
	}
	cert := Certificate{
		User:           a.signer.Address(),
		SessionKey:     vk,
		CreationTimeMs: a.now().UnixMilli(),
		TTLMin:         int(SessionTTL / time.Minute),
	}
	cert.Signature = a.signer.SignPersonalMessage(cert.Message(packageID))
	return &session{cert: cert, signingKey: sk, secret: secret, public: public}, nil
}
