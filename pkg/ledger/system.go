package ledger

import (
	"context"
	"fmt"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

// SystemState reads the storage network's live epoch, shard count and prices
// from its system object. It is read on every call and never cached.
func (a *Adapter) SystemState(ctx context.Context) (model.NetworkState, error) {
	ctx, span := tracer.Start(ctx, "system-state")
	defer span.End()

	if a.systemObjectID == "" {
		return model.NetworkState{}, failure.Configuration("ledger.SystemState", "storage system object id not configured")
	}
	obj, err := a.reader.GetObject(ctx, a.systemObjectID)
	if err != nil {
		span.RecordError(err)
		return model.NetworkState{}, failure.Network("ledger.SystemState", err)
	}
	if obj.Content == nil {
		return model.NetworkState{}, failure.Network("ledger.SystemState", fmt.Errorf("system object %s has no parsed content", a.systemObjectID))
	}

	var state model.NetworkState
	for key, dst := range map[string]*uint64{
		"epoch":                       &state.Epoch,
		"n_shards":                    &state.NShards,
		"storage_price_per_unit_size": &state.StoragePricePerUnit,
		"write_price_per_unit_size":   &state.WritePricePerUnit,
	} {
		v, ok := findNested(obj.Content.Fields, key, 4)
		if !ok {
			return model.NetworkState{}, failure.Network("ledger.SystemState", fmt.Errorf("system object has no %s", key))
		}
		n, err := sui.Uint64(v)
		if err != nil {
			return model.NetworkState{}, failure.Network("ledger.SystemState", fmt.Errorf("system object %s: %w", key, err))
		}
		*dst = n
	}
	return state, nil
}

// findNested looks for key in fields and then in nested structs, breadth
// first, up to depth levels. The system object keeps its state behind
// versioned inner structs whose layout varies between releases.
func findNested(fields map[string]any, key string, depth int) (any, bool) {
	level := []map[string]any{fields}
	for range depth {
		var next []map[string]any
		for _, m := range level {
			if v, ok := m[key]; ok && v != nil {
				return v, true
			}
			for _, v := range m {
				if inner, ok := sui.Unwrap(v); ok {
					next = append(next, inner)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		level = next
	}
	return nil, false
}
