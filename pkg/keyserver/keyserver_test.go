package keyserver_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/internal/testutil"
	"github.com/earnout-labs/dealvault/pkg/keyserver"
	"github.com/earnout-labs/dealvault/pkg/seal"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

const (
	serverID = "0x00000000000000000000000000000000000000000000000000000000000000c1"
	dealID   = "0xd1"
)

type fixture struct {
	server  *keyserver.Server
	backend *sui.Keypair
	share   seal.EncryptedShare
	now     time.Time
}

// newFixture runs a key server that trusts the backend key to certify
// sessions for any requester.
func newFixture(t *testing.T, opts ...keyserver.Option) *fixture {
	t.Helper()
	return buildFixture(t, true, opts...)
}

// newUntrustedFixture runs a key server with no trusted signers, so every
// certificate only speaks for its own address.
func newUntrustedFixture(t *testing.T, opts ...keyserver.Option) *fixture {
	t.Helper()
	return buildFixture(t, false, opts...)
}

func buildFixture(t *testing.T, trustBackend bool, opts ...keyserver.Option) *fixture {
	t.Helper()
	secret, public, err := seal.GenerateServerKey()
	require.NoError(t, err)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	backend, err := sui.GenerateKeypair()
	require.NoError(t, err)

	base := []keyserver.Option{keyserver.WithClock(func() time.Time { return now })}
	if trustBackend {
		base = append(base, keyserver.WithTrustedSigners(backend.Address()))
	}
	srv, err := keyserver.New(serverID, secret, testutil.Members{dealID: {"0xb0", backend.Address()}}, append(base, opts...)...)
	require.NoError(t, err)
	require.Equal(t, public, srv.PublicKey())

	// Both registrations carry this server's key, so the first share opens
	// here.
	enc, err := seal.New(
		seal.WithPolicy(testutil.PackageID, "earnout"),
		seal.WithKeyServers([]string{serverID, "0xother"}, seal.StaticKeyServers{
			{ObjectID: serverID, URL: "http://unused", PublicKey: public},
			{ObjectID: "0xother", URL: "http://unused", PublicKey: public},
		}),
	)
	require.NoError(t, err)
	res, err := enc.Encrypt(t.Context(), []byte("payload"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)
	env, err := seal.ParseEnvelope(res.Ciphertext)
	require.NoError(t, err)

	return &fixture{server: srv, backend: backend, share: env.Shares[0], now: now}
}

type session struct {
	sk     ed25519.PrivateKey
	hpkeSK []byte
	hpkePK []byte
	cert   seal.Certificate
}

func (f *fixture) session(t *testing.T, created time.Time, ttlMin int) *session {
	t.Helper()
	return f.sessionFor(t, f.backend, created, ttlMin)
}

func (f *fixture) sessionFor(t *testing.T, signer *sui.Keypair, created time.Time, ttlMin int) *session {
	t.Helper()
	vk, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hsk, hpk, err := seal.GenerateServerKey()
	require.NoError(t, err)
	cert := seal.Certificate{
		User:           signer.Address(),
		SessionKey:     vk,
		CreationTimeMs: created.UnixMilli(),
		TTLMin:         ttlMin,
	}
	cert.Signature = signer.SignPersonalMessage(cert.Message(testutil.PackageID))
	return &session{sk: sk, hpkeSK: hsk, hpkePK: hpk, cert: cert}
}

func (f *fixture) request(t *testing.T, s *session, requester string) seal.FetchKeyRequest {
	t.Helper()
	ar := seal.ApprovalRequest{
		PackageID:   testutil.PackageID,
		Module:      "earnout",
		Function:    seal.ApproveFunction,
		Identity:    dealID,
		DealID:      dealID,
		Requester:   requester,
		EncKey:      s.hpkePK,
		RequestID:   uuid.NewString(),
		TimestampMs: f.now.UnixMilli(),
	}
	msg, err := ar.SigningBytes()
	require.NoError(t, err)
	return seal.FetchKeyRequest{
		Certificate:      s.cert,
		Request:          ar,
		RequestSignature: ed25519.Sign(s.sk, msg),
		Share:            f.share,
	}
}

func (f *fixture) post(t *testing.T, req seal.FetchKeyRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, seal.FetchKeyPath, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	return w
}

func TestServiceInfo(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, seal.ServicePath, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info seal.ServiceInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, serverID, info.ID)
	require.Equal(t, f.server.PublicKey(), info.PublicKey)
}

func TestFetchKeyReleasesShareToParticipant(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, f.now.Add(-time.Minute), 10)

	req := f.request(t, s, "0xB0")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res seal.FetchKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, serverID, res.Server)

	value, err := seal.OpenResponse(s.hpkeSK, req.Request.RequestID, res)
	require.NoError(t, err)
	require.Len(t, value, 32)

	_, err = seal.OpenResponse(s.hpkeSK, "another-request", res)
	require.Error(t, err)
}

func TestFetchKeyRejections(t *testing.T) {
	f := newFixture(t)

	t.Run("non participant", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		w := f.post(t, f.request(t, s, "0xeve"))
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("expired certificate", func(t *testing.T) {
		s := f.session(t, f.now.Add(-11*time.Minute), 10)
		w := f.post(t, f.request(t, s, "0xb0"))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ttl above limit", func(t *testing.T) {
		s := f.session(t, f.now, 60)
		w := f.post(t, f.request(t, s, "0xb0"))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("forged certificate", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		other, err := sui.GenerateKeypair()
		require.NoError(t, err)
		s.cert.User = other.Address()
		w := f.post(t, f.request(t, s, "0xb0"))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered request", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		req := f.request(t, s, "0xb0")
		req.Request.Requester = "0x5e"
		w := f.post(t, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("share for another server", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		req := f.request(t, s, "0xb0")
		req.Share.Server = "0xother"
		w := f.post(t, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("identity mismatch", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		req := f.request(t, s, "0xb0")
		req.Request.Identity = "0xd2"
		msg, err := req.Request.SigningBytes()
		require.NoError(t, err)
		req.RequestSignature = ed25519.Sign(s.sk, msg)
		w := f.post(t, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("untrusted signer requesting for a participant", func(t *testing.T) {
		other, err := sui.GenerateKeypair()
		require.NoError(t, err)
		s := f.sessionFor(t, other, f.now, 10)
		w := f.post(t, f.request(t, s, "0xb0"))
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, seal.FetchKeyPath, bytes.NewReader([]byte("{")))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTrustedSigners(t *testing.T) {
	f := newUntrustedFixture(t, keyserver.WithTrustedSigners("0x1234"))
	s := f.session(t, f.now, 10)
	w := f.post(t, f.request(t, s, "0xb0"))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.post(t, f.request(t, s, f.backend.Address()))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSelfCertifiedSessions(t *testing.T) {
	f := newUntrustedFixture(t)

	t.Run("participant asking for itself", func(t *testing.T) {
		s := f.session(t, f.now, 10)
		w := f.post(t, f.request(t, s, f.backend.Address()))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("certificate naming another participant", func(t *testing.T) {
		other, err := sui.GenerateKeypair()
		require.NoError(t, err)
		s := f.sessionFor(t, other, f.now, 10)
		w := f.post(t, f.request(t, s, "0xb0"))
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Contains(t, w.Body.String(), "may not request shares")
	})
}

func TestPackageRestriction(t *testing.T) {
	f := newFixture(t, keyserver.WithPackageID("0xbb"))
	s := f.session(t, f.now, 10)
	w := f.post(t, f.request(t, s, "0xb0"))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
