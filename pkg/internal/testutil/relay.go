package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gbrlsnchs/jwt/v3"

	"github.com/earnout-labs/dealvault/pkg/walrus"
)

// Relay is a fake storage network publisher and aggregator in one server.
type Relay struct {
	Server *httptest.Server

	mu         sync.Mutex
	blobs      map[string][]byte
	objects    map[string]string
	epoch      uint64
	hashKind   string
	rawHash    any
	verifier   *jwt.Ed25519
	requests   int
	stores     int
	attributes http.Header
}

func NewRelay(t testing.TB) *Relay {
	t.Helper()
	r := &Relay{
		blobs:    map[string][]byte{},
		objects:  map[string]string{},
		hashKind: walrus.DigestKind,
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Server.Close)
	return r
}

func (r *Relay) URL() url.URL {
	u, _ := url.Parse(r.Server.URL)
	return *u
}

// Requests counts every request the relay has received.
func (r *Relay) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Stores counts accepted store requests.
func (r *Relay) Stores() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores
}

// LastAttributes returns the attribute headers of the most recent store.
func (r *Relay) LastAttributes() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attributes
}

// SetEpoch sets the epoch used as the start of newly stored blobs.
func (r *Relay) SetEpoch(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch = epoch
}

// SetHashKind changes the discriminant reported for blob metadata hashes.
func (r *Relay) SetHashKind(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashKind = kind
}

// SetRawHash makes metadata report v verbatim for every hash, overriding
// SetHashKind.
func (r *Relay) SetRawHash(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rawHash = v
}

// RequireToken makes store requests fail unless they carry a bearer token
// signed by pub.
func (r *Relay) RequireToken(pub ed25519.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifier = jwt.NewEd25519(jwt.Ed25519PublicKey(pub))
}

// BlobIDFor returns the id the relay assigns to data.
func BlobIDFor(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()

	path := strings.TrimPrefix(req.URL.Path, "/v1/blobs")
	switch {
	case req.Method == http.MethodPut && path == "":
		r.store(w, req)
	case req.Method == http.MethodGet && strings.HasSuffix(path, "/metadata"):
		r.metadata(w, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/metadata"))
	case req.Method == http.MethodGet && strings.HasPrefix(path, "/"):
		r.read(w, strings.TrimPrefix(path, "/"))
	default:
		http.NotFound(w, req)
	}
}

func (r *Relay) store(w http.ResponseWriter, req *http.Request) {
	epochs, err := strconv.ParseUint(req.URL.Query().Get("epochs"), 10, 64)
	if err != nil || epochs == 0 {
		http.Error(w, "invalid epochs", http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	verifier := r.verifier
	r.mu.Unlock()
	if verifier != nil {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		var claims walrus.TokenClaims
		if _, err := jwt.Verify([]byte(token), verifier, &claims); err != nil {
			http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
			return
		}
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := BlobIDFor(data)

	attrs := http.Header{}
	for k, v := range req.Header {
		if strings.HasPrefix(k, walrus.AttributeHeaderPrefix) {
			attrs[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores++
	r.attributes = attrs

	var resp walrus.StoreResponse
	if obj, ok := r.objects[id]; ok {
		resp.AlreadyCertified = &walrus.AlreadyCertified{BlobID: id, Object: obj, EndEpoch: r.epoch + epochs}
	} else {
		obj := fmt.Sprintf("0x%064x", len(r.objects)+1)
		r.objects[id] = obj
		r.blobs[id] = data
		certified := r.epoch
		resp.NewlyCreated = &walrus.NewlyCreated{
			BlobObject: walrus.BlobObject{
				ID:              obj,
				BlobID:          id,
				Size:            uint64(len(data)),
				RegisteredEpoch: r.epoch,
				CertifiedEpoch:  &certified,
				Storage: walrus.StorageResource{
					ID:         obj + "00",
					StartEpoch: r.epoch,
					EndEpoch:   r.epoch + epochs,
				},
			},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (r *Relay) read(w http.ResponseWriter, id string) {
	r.mu.Lock()
	data, ok := r.blobs[id]
	r.mu.Unlock()
	if !ok {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (r *Relay) metadata(w http.ResponseWriter, id string) {
	r.mu.Lock()
	data, ok := r.blobs[id]
	kind, raw := r.hashKind, r.rawHash
	r.mu.Unlock()
	if !ok {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}

	var hashes []map[string]any
	for i := range 2 {
		var node any = raw
		if raw == nil {
			n := map[string]any{"$kind": kind}
			if kind == walrus.DigestKind {
				sum := sha256.Sum256(append([]byte{byte(i)}, data...))
				n["Digest"] = base64.StdEncoding.EncodeToString(sum[:])
			}
			node = n
		}
		hashes = append(hashes, map[string]any{"primaryHash": node, "secondaryHash": node})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"blobId": id,
		"metadata": map[string]any{
			"V1": map[string]any{
				"encodingType":    "RS2",
				"unencodedLength": len(data),
				"hashes":          hashes,
			},
		},
	})
}

// PrimaryDigestHex is the hex digest the relay reports as the first primary
// hash of data.
func PrimaryDigestHex(data []byte) string {
	sum := sha256.Sum256(append([]byte{0}, data...))
	return hex.EncodeToString(sum[:])
}
