package storage

import (
	"context"
	"fmt"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
)

const (
	digestLen = 32
	blobIDLen = 32
	// storageUnit is the granularity prices are quoted in.
	storageUnit = 1 << 20
)

// maxFaultyShards is the number of byzantine shards the encoding tolerates.
func maxFaultyShards(nShards uint64) uint64 {
	return (nShards - 1) / 3
}

// sourceSymbols returns the primary and secondary source symbol counts of the
// RS2 encoding, which has no decoding safety margin.
func sourceSymbols(nShards uint64) (primary, secondary uint64) {
	f := maxFaultyShards(nShards)
	minCorrect := nShards - f
	return minCorrect - f, minCorrect
}

// EncodedBlobLength is the total size a blob of the given length occupies
// across all shards, slivers plus per shard metadata.
func EncodedBlobLength(unencodedLength, nShards uint64) (uint64, error) {
	if nShards < 4 {
		return 0, fmt.Errorf("invalid shard count %d", nShards)
	}
	primary, secondary := sourceSymbols(nShards)
	symbolSize := (max(unencodedLength, 1)-1)/(primary*secondary) + 1
	if symbolSize%2 == 1 {
		symbolSize++
	}
	sliverPair := (primary + secondary) * symbolSize
	metadata := nShards*digestLen*2 + blobIDLen
	return nShards * (sliverPair + metadata), nil
}

// CalculateStorageCost estimates what storing size bytes for epochs costs at
// current prices. epochs <= 0 uses the configured retention period.
func (a *Adapter) CalculateStorageCost(ctx context.Context, size uint64, epochs int) (model.StorageCost, error) {
	const op = "storage.CalculateStorageCost"
	ctx, span := tracer.Start(ctx, "calculate-storage-cost")
	defer span.End()

	n := a.epochs
	if epochs > 0 {
		n = uint64(epochs)
	}

	state, err := a.network.SystemState(ctx)
	if err != nil {
		span.RecordError(err)
		return model.StorageCost{}, failure.Network(op, err)
	}
	encoded, err := EncodedBlobLength(size, state.NShards)
	if err != nil {
		return model.StorageCost{}, failure.Network(op, err)
	}
	units := (encoded + storageUnit - 1) / storageUnit
	cost := model.StorageCost{
		StorageCost: units * state.StoragePricePerUnit * n,
		WriteCost:   units * state.WritePricePerUnit,
	}
	cost.TotalCost = cost.StorageCost + cost.WriteCost
	return cost, nil
}
