// Package keyserver serves one key server secret over HTTP. A share sealed to
// this server is released, re-sealed to the caller's session key, only when
// the session certificate and approval request check out and the ledger lists
// the requester as a participant of the deal.
package keyserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/cloudflare/circl/kem"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/seal"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

var (
	log    = logging.Logger("pkg/keyserver")
	tracer = otel.Tracer("pkg/keyserver")
)

// clockSkew is how far in the future a certificate or request may be dated.
const clockSkew = 30 * time.Second

// ParticipantVerifier decides whether an address takes part in a deal.
type ParticipantVerifier interface {
	VerifyDealParticipant(ctx context.Context, dealID, address string) bool
}

type Server struct {
	id        string
	secret    kem.PrivateKey
	publicKey []byte
	verifier  ParticipantVerifier
	packageID string
	trusted   []string
	maxTTL    time.Duration
	now       func() time.Time
	echo      *echo.Echo
}

type Option func(*Server) error

// WithPackageID restricts the server to requests for one policy package.
func WithPackageID(id string) Option {
	return func(s *Server) error {
		s.packageID = id
		return nil
	}
}

// WithTrustedSigners restricts which addresses may certify sessions. Only a
// trusted signer may request shares on behalf of another address; everyone
// else can only ask for their own.
func WithTrustedSigners(addrs ...string) Option {
	return func(s *Server) error {
		for _, a := range addrs {
			s.trusted = append(s.trusted, model.NormalizeAddress(a))
		}
		return nil
	}
}

// WithSessionTTL caps the lifetime a certificate may claim.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("session ttl must be positive")
		}
		s.maxTTL = d
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		s.now = now
		return nil
	}
}

// New creates a key server announcing itself as id.
func New(id string, secret []byte, verifier ParticipantVerifier, opts ...Option) (*Server, error) {
	if id == "" {
		return nil, errors.New("key server id is required")
	}
	if verifier == nil {
		return nil, errors.New("participant verifier is required")
	}
	sk, pub, err := seal.ParseServerSecret(secret)
	if err != nil {
		return nil, err
	}
	s := &Server{
		id:        id,
		secret:    sk,
		publicKey: pub,
		verifier:  verifier,
		maxTTL:    seal.SessionTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())
	e.GET(seal.ServicePath, s.handleService)
	e.POST(seal.FetchKeyPath, s.handleFetchKey)
	s.echo = e
	return s, nil
}

func (s *Server) ID() string {
	return s.id
}

func (s *Server) PublicKey() []byte {
	return s.publicKey
}

// Handler exposes the routes for embedding in another server or a test.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			log.Errorw("shutting down key server", "error", err)
		}
	}()
	log.Infow("key server listening", "addr", addr, "id", s.id)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("closing server: %w", err)
	}
	return nil
}

func (s *Server) handleService(c echo.Context) error {
	return c.JSON(http.StatusOK, seal.ServiceInfo{ID: s.id, PublicKey: s.publicKey})
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string {
	return e.msg
}

func reject(status int, format string, args ...any) error {
	return &requestError{status: status, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) handleFetchKey(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "fetch-key")
	defer span.End()

	var req seal.FetchKeyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, seal.ErrorResponse{Error: "malformed request body"})
	}
	span.SetAttributes(
		attribute.String("deal.id", req.Request.DealID),
		attribute.String("requester", req.Request.Requester),
		attribute.String("request.id", req.Request.RequestID),
	)

	res, err := s.fetchKey(ctx, req)
	if err != nil {
		var rerr *requestError
		if errors.As(err, &rerr) {
			log.Infow("rejected key request", "status", rerr.status, "reason", rerr.msg, "deal", req.Request.DealID, "requester", req.Request.Requester)
			return c.JSON(rerr.status, seal.ErrorResponse{Error: rerr.msg})
		}
		span.RecordError(err)
		log.Errorw("releasing key share", "error", err, "request", req.Request.RequestID)
		return c.JSON(http.StatusInternalServerError, seal.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) fetchKey(ctx context.Context, req seal.FetchKeyRequest) (seal.FetchKeyResponse, error) {
	cert, ar := req.Certificate, req.Request
	now := s.now()

	signer, err := sui.VerifyPersonalMessage(cert.Message(ar.PackageID), cert.Signature)
	if err != nil || signer != model.NormalizeAddress(cert.User) {
		return seal.FetchKeyResponse{}, reject(http.StatusUnauthorized, "invalid certificate signature")
	}
	trusted := slices.Contains(s.trusted, signer)
	if len(s.trusted) > 0 && !trusted {
		return seal.FetchKeyResponse{}, reject(http.StatusForbidden, "certificate signer %s is not trusted", signer)
	}
	if !trusted && model.NormalizeAddress(ar.Requester) != signer {
		return seal.FetchKeyResponse{}, reject(http.StatusForbidden, "certificate signer %s may not request shares for %s", signer, ar.Requester)
	}
	ttl := time.Duration(cert.TTLMin) * time.Minute
	if ttl <= 0 || ttl > s.maxTTL {
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "certificate ttl %s is outside (0, %s]", ttl, s.maxTTL)
	}
	created := time.UnixMilli(cert.CreationTimeMs)
	if created.After(now.Add(clockSkew)) || !now.Before(cert.Expiry()) {
		return seal.FetchKeyResponse{}, reject(http.StatusUnauthorized, "certificate expired or not yet valid")
	}

	if !ar.VerifySignature(cert.SessionKey, req.RequestSignature) {
		return seal.FetchKeyResponse{}, reject(http.StatusUnauthorized, "invalid request signature")
	}
	sent := time.UnixMilli(ar.TimestampMs)
	if sent.After(now.Add(clockSkew)) || now.Sub(sent) > s.maxTTL {
		return seal.FetchKeyResponse{}, reject(http.StatusUnauthorized, "stale request")
	}
	switch {
	case ar.Function != seal.ApproveFunction:
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "unsupported policy function %q", ar.Function)
	case s.packageID != "" && model.NormalizeAddress(ar.PackageID) != model.NormalizeAddress(s.packageID):
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "package %s is not served here", ar.PackageID)
	case ar.Identity == "" || ar.Identity != ar.DealID:
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "identity must name the requested deal")
	case req.Share.Server != s.id:
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "share is addressed to %s", req.Share.Server)
	case ar.RequestID == "":
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "request id is required")
	}

	if !s.verifier.VerifyDealParticipant(ctx, ar.DealID, ar.Requester) {
		return seal.FetchKeyResponse{}, reject(http.StatusForbidden, "%s is not a participant of deal %s", ar.Requester, ar.DealID)
	}

	value, err := seal.OpenShare(s.secret, seal.FullID(ar.PackageID, ar.Identity), req.Share)
	if err != nil {
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "share does not open for this identity")
	}
	res, err := seal.SealResponse(ar.EncKey, ar.RequestID, s.id, value)
	if err != nil {
		return seal.FetchKeyResponse{}, reject(http.StatusBadRequest, "invalid session encryption key")
	}
	log.Debugw("released key share", "deal", ar.DealID, "requester", ar.Requester, "request", ar.RequestID)
	return res, nil
}
