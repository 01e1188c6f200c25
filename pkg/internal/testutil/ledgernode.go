// Package testutil provides in-process fakes of the external networks: a
// ledger JSON-RPC node and a storage relay.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/earnout-labs/dealvault/pkg/sui"
)

// LedgerNode is a fake ledger JSON-RPC node serving sui_getObject and
// suix_queryEvents from in-memory state.
type LedgerNode struct {
	Server *httptest.Server

	mu      sync.Mutex
	objects map[string]objectEntry
	failing map[string]bool
	events  []sui.Event
	calls   map[string]int
	down    bool
}

type objectEntry struct {
	typ    string
	fields map[string]any
}

func NewLedgerNode(t testing.TB) *LedgerNode {
	t.Helper()
	n := &LedgerNode{
		objects: map[string]objectEntry{},
		failing: map[string]bool{},
		calls:   map[string]int{},
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Server.Close)
	return n
}

func (n *LedgerNode) URL() string {
	return n.Server.URL
}

// PutObject stores a Move object with the given type and fields.
func (n *LedgerNode) PutObject(id, typ string, fields map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.objects[id] = objectEntry{typ: typ, fields: fields}
}

// FailObject makes every fetch of id return an RPC error.
func (n *LedgerNode) FailObject(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[id] = true
}

// SetDown makes every request fail with an RPC error.
func (n *LedgerNode) SetDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

// EmitEvent appends an event. Events are returned newest first when queried
// descending.
func (n *LedgerNode) EmitEvent(typ string, parsed map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	seq := len(n.events)
	n.events = append(n.events, sui.Event{
		ID:         sui.EventID{TxDigest: fmt.Sprintf("tx%d", seq), EventSeq: strconv.Itoa(seq)},
		Type:       typ,
		ParsedJSON: parsed,
	})
}

// Calls returns how many times method was invoked.
func (n *LedgerNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (n *LedgerNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	down := n.down
	n.mu.Unlock()

	resp := rpcResponse{Jsonrpc: "2.0", ID: req.ID}
	var err error
	if down {
		err = fmt.Errorf("node unavailable")
	} else {
		switch req.Method {
		case "sui_getObject":
			resp.Result, err = n.getObject(req.Params)
		case "suix_queryEvents":
			resp.Result, err = n.queryEvents(req.Params)
		default:
			err = fmt.Errorf("method %q not found", req.Method)
		}
	}
	if err != nil {
		resp.Result = nil
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *LedgerNode) getObject(params []json.RawMessage) (any, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing object id")
	}
	var id string
	if err := json.Unmarshal(params[0], &id); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failing[id] {
		return nil, fmt.Errorf("internal error fetching %s", id)
	}
	obj, ok := n.objects[id]
	if !ok {
		return sui.ObjectResponse{Error: &sui.ObjectResponseError{Code: "notExists", ObjectID: id}}, nil
	}
	return sui.ObjectResponse{Data: &sui.ObjectData{
		ObjectID: id,
		Version:  "1",
		Type:     obj.typ,
		Content: &sui.MoveContent{
			DataType: "moveObject",
			Type:     obj.typ,
			Fields:   obj.fields,
		},
	}}, nil
}

func (n *LedgerNode) queryEvents(params []json.RawMessage) (any, error) {
	if len(params) < 4 {
		return nil, fmt.Errorf("expected 4 params, got %d", len(params))
	}
	var (
		filter     sui.EventFilter
		cursor     *sui.EventID
		limit      *uint64
		descending bool
	)
	if err := json.Unmarshal(params[0], &filter); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params[1], &cursor); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params[2], &limit); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params[3], &descending); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var matching []sui.Event
	for _, ev := range n.events {
		if filter.MoveEventType == "" || ev.Type == filter.MoveEventType {
			matching = append(matching, ev)
		}
	}
	if descending {
		for i, j := 0, len(matching)-1; i < j; i, j = i+1, j-1 {
			matching[i], matching[j] = matching[j], matching[i]
		}
	}
	start := 0
	if cursor != nil {
		for i, ev := range matching {
			if ev.ID == *cursor {
				start = i + 1
				break
			}
		}
	}
	size := uint64(50)
	if limit != nil {
		size = *limit
	}
	end := min(start+int(size), len(matching))
	page := sui.EventPage{Data: append([]sui.Event{}, matching[start:end]...)}
	if end < len(matching) && end > start {
		page.HasNextPage = true
		last := page.Data[len(page.Data)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}
