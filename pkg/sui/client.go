// Package sui is a minimal JSON-RPC client for the ledger node, covering the
// read-only object and event queries used by the ledger adapter, plus the
// Ed25519 credential the backend signs with.
package sui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/filecoin-project/go-jsonrpc"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	log    = logging.Logger("pkg/sui")
	tracer = otel.Tracer("pkg/sui")
)

// ErrObjectNotFound is returned when the node reports an object as missing or
// deleted.
var ErrObjectNotFound = errors.New("object not found")

type readMethods struct {
	GetObject func(ctx context.Context, id string, opts ObjectDataOptions) (ObjectResponse, error)
}

type extendedMethods struct {
	QueryEvents func(ctx context.Context, filter EventFilter, cursor *EventID, limit *uint64, descending bool) (EventPage, error)
}

// Client talks to a single ledger node.
type Client struct {
	endpoint   string
	httpClient *http.Client
	header     http.Header
	maxTries   uint

	read     readMethods
	extended extendedMethods
	closers  []jsonrpc.ClientCloser
}

type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for requests. Its timeout is the
// only request deadline applied by this package.
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

// WithMaxTries bounds attempts for each read. One disables retries.
func WithMaxTries(n uint) Option {
	return func(cl *Client) error {
		if n == 0 {
			return fmt.Errorf("max tries must be at least 1")
		}
		cl.maxTries = n
		return nil
	}
}

func WithHeader(h http.Header) Option {
	return func(cl *Client) error {
		cl.header = h
		return nil
	}
}

// methodName renders GetObject in namespace sui as sui_getObject.
func methodName(namespace, method string) string {
	if method == "" {
		return namespace
	}
	return namespace + "_" + strings.ToLower(method[:1]) + method[1:]
}

func NewClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint: endpoint,
		maxTries: 3,
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

	rpcOpts := []jsonrpc.Option{
		jsonrpc.WithMethodNameFormatter(methodName),
		jsonrpc.WithHTTPClient(c.httpClient),
	}
	readCloser, err := jsonrpc.NewMergeClient(ctx, endpoint, "sui", []interface{}{&c.read}, c.header, rpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating ledger rpc client: %w", err)
	}
	extCloser, err := jsonrpc.NewMergeClient(ctx, endpoint, "suix", []interface{}{&c.extended}, c.header, rpcOpts...)
	if err != nil {
		readCloser()
		return nil, fmt.Errorf("creating ledger rpc client: %w", err)
	}
	c.closers = []jsonrpc.ClientCloser{readCloser, extCloser}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Close() {
	for _, closer := range c.closers {
		closer()
	}
	c.closers = nil
}

// GetObject fetches an object with its type and parsed content.
func (c *Client) GetObject(ctx context.Context, id string) (*ObjectData, error) {
	ctx, span := tracer.Start(ctx, "get-object")
	defer span.End()
	span.SetAttributes(attribute.String("object.id", id))

	resp, err := backoff.Retry(ctx, func() (ObjectResponse, error) {
		resp, err := c.read.GetObject(ctx, id, ObjectDataOptions{ShowType: true, ShowContent: true})
		if err != nil {
			log.Debugw("get object failed", "id", id, "error", err)
		}
		return resp, err
	}, backoff.WithMaxTries(c.maxTries))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting object %s: %w", id, err)
	}
	if resp.Error != nil {
		switch resp.Error.Code {
		case "notExists", "deleted":
			return nil, fmt.Errorf("getting object %s: %w", id, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting object %s: %w", id, resp.Error)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("getting object %s: %w", id, ErrObjectNotFound)
	}
	return resp.Data, nil
}

// QueryEvents fetches one page of events matching filter.
func (c *Client) QueryEvents(ctx context.Context, filter EventFilter, cursor *EventID, limit uint64, descending bool) (EventPage, error) {
	ctx, span := tracer.Start(ctx, "query-events")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", filter.MoveEventType),
		attribute.Int64("page.limit", int64(limit)),
	)

	page, err := backoff.Retry(ctx, func() (EventPage, error) {
		return c.extended.QueryEvents(ctx, filter, cursor, &limit, descending)
	}, backoff.WithMaxTries(c.maxTries))
	if err != nil {
		span.RecordError(err)
		return EventPage{}, fmt.Errorf("querying events %s: %w", filter.MoveEventType, err)
	}
	return page, nil
}
