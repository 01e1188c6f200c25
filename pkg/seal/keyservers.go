package seal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/earnout-labs/dealvault/pkg/model"
)

// ErrAccessDenied is returned when a key server refuses to release a share.
var ErrAccessDenied = errors.New("key server denied access")

// KeyServerResolver looks up key server registrations by id.
type KeyServerResolver interface {
	ResolveKeyServers(ctx context.Context, ids []string) ([]model.KeyServer, error)
}

// StaticKeyServers resolves from a fixed in-memory set.
type StaticKeyServers []model.KeyServer

func (s StaticKeyServers) ResolveKeyServers(_ context.Context, ids []string) ([]model.KeyServer, error) {
	out := make([]model.KeyServer, 0, len(ids))
	for _, id := range ids {
		i := -1
		for j, ks := range s {
			if ks.ObjectID == id {
				i = j
				break
			}
		}
		if i < 0 {
			return nil, fmt.Errorf("unknown key server %s", id)
		}
		out = append(out, s[i])
	}
	return out, nil
}

// keyServerSet resolves the configured servers once, on first use. A failed
// resolution is retried on the next call.
type keyServerSet struct {
	ids      []string
	resolver KeyServerResolver

	mu       sync.Mutex
	resolved []model.KeyServer
	done     bool
}

func (s *keyServerSet) get(ctx context.Context) ([]model.KeyServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.resolved, nil
	}
	if len(s.ids) == 0 {
		s.done = true
		return nil, nil
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("no key server resolver for %d key servers", len(s.ids))
	}
	servers, err := s.resolver.ResolveKeyServers(ctx, s.ids)
	if err != nil {
		return nil, fmt.Errorf("resolving key servers: %w", err)
	}
	s.resolved, s.done = servers, true
	return servers, nil
}

type keyServerClient struct {
	http *http.Client
}

func newKeyServerClient(timeout time.Duration) *keyServerClient {
	return &keyServerClient{http: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

func (c *keyServerClient) fetchKey(ctx context.Context, server model.KeyServer, req FetchKeyRequest) (FetchKeyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return FetchKeyResponse{}, fmt.Errorf("encoding request: %w", err)
	}
	endpoint := strings.TrimSuffix(server.URL, "/") + FetchKeyPath
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return FetchKeyResponse{}, fmt.Errorf("creating request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(hreq)
	if err != nil {
		return FetchKeyResponse{}, fmt.Errorf("requesting key share from %s: %w", server.URL, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return FetchKeyResponse{}, fmt.Errorf("reading response from %s: %w", server.URL, err)
	}
	if res.StatusCode != http.StatusOK {
		var e ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if res.StatusCode == http.StatusForbidden {
			return FetchKeyResponse{}, fmt.Errorf("%w: %s", ErrAccessDenied, msg)
		}
		return FetchKeyResponse{}, fmt.Errorf("key server %s returned %d: %s", server.URL, res.StatusCode, msg)
	}

	var out FetchKeyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return FetchKeyResponse{}, fmt.Errorf("decoding response from %s: %w", server.URL, err)
	}
	return out, nil
}
