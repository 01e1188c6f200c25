// Package walrus is an HTTP client for the storage network's publisher and
// aggregator relays.
package walrus

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gbrlsnchs/jwt/v3"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	log    = logging.Logger("pkg/walrus")
	tracer = otel.Tracer("pkg/walrus")
)

// ErrBlobNotFound is returned when the aggregator does not know a blob.
var ErrBlobNotFound = errors.New("blob not found")

// AttributeHeaderPrefix prefixes the request headers carrying upload
// attributes.
const AttributeHeaderPrefix = "X-Blob-Attribute-"

// tokenTTL bounds the lifetime of the publisher auth token minted per store.
const tokenTTL = 5 * time.Minute

// TokenClaims are the claims of the publisher auth token.
type TokenClaims struct {
	jwt.Payload
	Epochs  uint64 `json:"epochs"`
	MaxSize uint64 `json:"max_size"`
}

type Client struct {
	publisher  url.URL
	aggregator url.URL
	httpClient *http.Client
	signer     *jwt.Ed25519
	subject    string
	maxTries   uint
}

type Option func(*Client) error

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) error {
		cl.httpClient = c
		return nil
	}
}

// WithTimeout uses an instrumented HTTP client with the given timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) error {
		cl.httpClient = &http.Client{Timeout: d, Transport: otelhttp.NewTransport(http.DefaultTransport)}
		return nil
	}
}

// WithSigner authenticates store requests with an EdDSA bearer token signed
// by key. subject identifies the uploader, usually its ledger address.
func WithSigner(key ed25519.PrivateKey, subject string) Option {
	return func(cl *Client) error {
		if len(key) != ed25519.PrivateKeySize {
			return fmt.Errorf("invalid ed25519 private key length %d", len(key))
		}
		cl.signer = jwt.NewEd25519(jwt.Ed25519PrivateKey(key))
		cl.subject = subject
		return nil
	}
}

// WithMaxTries bounds attempts for reads. Stores are never retried.
func WithMaxTries(n uint) Option {
	return func(cl *Client) error {
		if n == 0 {
			return fmt.Errorf("max tries must be at least 1")
		}
		cl.maxTries = n
		return nil
	}
}

func New(publisher, aggregator url.URL, opts ...Option) (*Client, error) {
	c := &Client{
		publisher:  publisher,
		aggregator: aggregator,
		maxTries:   3,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CanStore reports whether a signer is configured.
func (c *Client) CanStore() bool {
	return c.signer != nil
}

type StoreOptions struct {
	Epochs     uint64
	Attributes map[string]string
}

// Store uploads data through the publisher.
func (c *Client) Store(ctx context.Context, data []byte, opts StoreOptions) (StoreResponse, error) {
	ctx, span := tracer.Start(ctx, "store", trace.WithAttributes(
		attribute.Int("blob.size", len(data)),
		attribute.Int64("blob.epochs", int64(opts.Epochs)),
	))
	defer span.End()

	if c.signer == nil {
		return StoreResponse{}, fmt.Errorf("storing blob: no signer configured")
	}

	u := c.publisher.JoinPath("v1", "blobs")
	q := u.Query()
	q.Set("epochs", strconv.FormatUint(opts.Epochs, 10))
	u.RawQuery = q.Encode()

	token, err := c.token(opts.Epochs, uint64(len(data)))
	if err != nil {
		return StoreResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(data))
	if err != nil {
		return StoreResponse{}, fmt.Errorf("creating store request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range opts.Attributes {
		req.Header.Set(AttributeHeaderPrefix+k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return StoreResponse{}, fmt.Errorf("storing blob: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StoreResponse{}, fmt.Errorf("reading store response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StoreResponse{}, fmt.Errorf("storing blob: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var out StoreResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return StoreResponse{}, fmt.Errorf("decoding store response: %w", err)
	}
	if out.BlobID() == "" {
		return StoreResponse{}, fmt.Errorf("store response carries no blob id")
	}
	log.Debugw("stored blob", "blobID", out.BlobID(), "size", len(data), "epochs", opts.Epochs)
	return out, nil
}

func (c *Client) token(epochs, size uint64) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Payload: jwt.Payload{
			Subject:        c.subject,
			IssuedAt:       jwt.NumericDate(now),
			ExpirationTime: jwt.NumericDate(now.Add(tokenTTL)),
		},
		Epochs:  epochs,
		MaxSize: size,
	}
	token, err := jwt.Sign(&claims, c.signer)
	if err != nil {
		return "", fmt.Errorf("signing publisher token: %w", err)
	}
	return string(token), nil
}

// Read downloads a blob from the aggregator.
func (c *Client) Read(ctx context.Context, blobID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "read", trace.WithAttributes(attribute.String("blob.id", blobID)))
	defer span.End()

	body, err := c.get(ctx, c.aggregator.JoinPath("v1", "blobs", blobID))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading blob %s: %w", blobID, err)
	}
	return body, nil
}

// Metadata fetches the encoding metadata of a blob.
func (c *Client) Metadata(ctx context.Context, blobID string) (BlobMetadata, error) {
	ctx, span := tracer.Start(ctx, "metadata", trace.WithAttributes(attribute.String("blob.id", blobID)))
	defer span.End()

	body, err := c.get(ctx, c.aggregator.JoinPath("v1", "blobs", blobID, "metadata"))
	if err != nil {
		span.RecordError(err)
		return BlobMetadata{}, fmt.Errorf("reading metadata of blob %s: %w", blobID, err)
	}
	var md BlobMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return BlobMetadata{}, fmt.Errorf("decoding metadata of blob %s: %w", blobID, err)
	}
	return md, nil
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	return backoff.Retry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			return nil, backoff.Permanent(ErrBlobNotFound)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			io.Copy(io.Discard, resp.Body)
			return nil, backoff.Permanent(fmt.Errorf("request to %q: %s", u.String(), resp.Status))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("request to %q: %s", u.String(), resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body for request to %q: %w", u.String(), err)
		}
		return body, nil
	}, backoff.WithMaxTries(c.maxTries))
}
