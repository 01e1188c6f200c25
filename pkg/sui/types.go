package sui

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ObjectDataOptions selects which parts of an object the node returns.
type ObjectDataOptions struct {
	ShowType    bool `json:"showType"`
	ShowContent bool `json:"showContent"`
	ShowOwner   bool `json:"showOwner,omitempty"`
}

type ObjectResponse struct {
	Data  *ObjectData          `json:"data,omitempty"`
	Error *ObjectResponseError `json:"error,omitempty"`
}

type ObjectResponseError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id,omitempty"`
}

func (e *ObjectResponseError) Error() string {
	if e.ObjectID != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.ObjectID)
	}
	return e.Code
}

type ObjectData struct {
	ObjectID string       `json:"objectId"`
	Version  string       `json:"version"`
	Digest   string       `json:"digest"`
	Type     string       `json:"type,omitempty"`
	Content  *MoveContent `json:"content,omitempty"`
}

// MoveContent is the parsed content of a Move object. Field values follow the
// node's JSON conventions: u64 and larger integers are strings, nested structs
// are {"type", "fields"} objects and options are null or the inner value.
type MoveContent struct {
	DataType string         `json:"dataType"`
	Type     string         `json:"type"`
	Fields   map[string]any `json:"fields"`
}

// EventFilter narrows suix_queryEvents. Only one field may be set.
type EventFilter struct {
	MoveEventType string `json:"MoveEventType,omitempty"`
	Sender        string `json:"Sender,omitempty"`
}

type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

type Event struct {
	ID                EventID        `json:"id"`
	PackageID         string         `json:"packageId"`
	TransactionModule string         `json:"transactionModule"`
	Sender            string         `json:"sender"`
	Type              string         `json:"type"`
	ParsedJSON        map[string]any `json:"parsedJson"`
	TimestampMs       string         `json:"timestampMs,omitempty"`
}

type EventPage struct {
	Data        []Event  `json:"data"`
	NextCursor  *EventID `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

// Uint64 reads an integer field that the node may encode as a JSON string or
// a JSON number.
func Uint64(v any) (uint64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseUint(n, 10, 64)
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, fmt.Errorf("not an unsigned integer: %v", n)
		}
		return uint64(n), nil
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case nil:
		return 0, fmt.Errorf("missing integer")
	default:
		return 0, fmt.Errorf("unexpected integer encoding %T", v)
	}
}

// Unwrap returns the field map of a nested Move struct. Values that are not
// struct encodings are returned as-is when they are already maps.
func Unwrap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := m["fields"].(map[string]any); ok {
		return inner, true
	}
	return m, true
}

// MoveOption returns the inner value of a Move Option, which the node renders as
// null, the bare value, or {"vec": [value]} depending on version.
func MoveOption(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if m, ok := v.(map[string]any); ok {
		if vec, ok := m["vec"].([]any); ok {
			if len(vec) == 0 {
				return nil, false
			}
			return vec[0], true
		}
	}
	return v, true
}
