package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/keyserver"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/seal"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

// Members is a ParticipantVerifier backed by a fixed deal membership table.
type Members map[string][]string

func (m Members) VerifyDealParticipant(_ context.Context, dealID, address string) bool {
	for _, a := range m[dealID] {
		if model.NormalizeAddress(a) == model.NormalizeAddress(address) {
			return true
		}
	}
	return false
}

// KeyServerCluster runs n key servers, each behind its own httptest server.
// Every server trusts Backend to certify sessions on behalf of participants.
type KeyServerCluster struct {
	Servers []*keyserver.Server
	HTTP    []*httptest.Server
	Backend *sui.Keypair

	mu    sync.Mutex
	calls map[string]int
}

// KeyServerID returns the object id fixtures use for the i-th key server.
func KeyServerID(i int) string {
	return fmt.Sprintf("0x%064x", 0xc000+i)
}

func NewKeyServerCluster(t testing.TB, n int, verifier keyserver.ParticipantVerifier, opts ...keyserver.Option) *KeyServerCluster {
	t.Helper()
	backend, err := sui.GenerateKeypair()
	require.NoError(t, err)
	c := &KeyServerCluster{Backend: backend, calls: map[string]int{}}
	opts = append([]keyserver.Option{keyserver.WithTrustedSigners(backend.Address())}, opts...)
	for i := range n {
		secret, _, err := seal.GenerateServerKey()
		require.NoError(t, err)
		id := KeyServerID(i)
		srv, err := keyserver.New(id, secret, verifier, opts...)
		require.NoError(t, err)
		hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.mu.Lock()
			c.calls[id]++
			c.mu.Unlock()
			srv.Handler().ServeHTTP(w, r)
		}))
		t.Cleanup(hs.Close)
		c.Servers = append(c.Servers, srv)
		c.HTTP = append(c.HTTP, hs)
	}
	return c
}

// Registrations returns the key servers as the ledger would describe them.
func (c *KeyServerCluster) Registrations() []model.KeyServer {
	out := make([]model.KeyServer, len(c.Servers))
	for i, s := range c.Servers {
		out[i] = model.KeyServer{
			ObjectID:  s.ID(),
			Name:      fmt.Sprintf("server-%d", i),
			URL:       c.HTTP[i].URL,
			PublicKey: s.PublicKey(),
		}
	}
	return out
}

func (c *KeyServerCluster) IDs() []string {
	ids := make([]string, len(c.Servers))
	for i, s := range c.Servers {
		ids[i] = s.ID()
	}
	return ids
}

// Register stores every key server's registration on the ledger node.
func (c *KeyServerCluster) Register(node *LedgerNode) {
	for _, ks := range c.Registrations() {
		node.PutKeyServer(ks.ObjectID, ks.URL, ks.PublicKey)
	}
}

// Stop closes the i-th key server's listener.
func (c *KeyServerCluster) Stop(i int) {
	c.HTTP[i].Close()
}

// Calls counts requests received by the key server with the given id.
func (c *KeyServerCluster) Calls(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

// TotalCalls counts requests received by every key server.
func (c *KeyServerCluster) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}
