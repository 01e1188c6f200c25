package ledger

import (
	"context"
	"fmt"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/model"
)

// ResolveKeyServers reads the registration objects of the given key servers.
// Order is preserved. Any failure fails the whole call since encryption must
// use exactly the configured set.
func (a *Adapter) ResolveKeyServers(ctx context.Context, ids []string) ([]model.KeyServer, error) {
	ctx, span := tracer.Start(ctx, "resolve-key-servers")
	defer span.End()

	servers := make([]model.KeyServer, 0, len(ids))
	for _, id := range ids {
		obj, err := a.reader.GetObject(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, failure.Network("ledger.ResolveKeyServers", err)
		}
		if obj.Content == nil {
			return nil, failure.Network("ledger.ResolveKeyServers", fmt.Errorf("key server %s has no parsed content", id))
		}
		fields := obj.Content.Fields
		pk, err := bytesField(fields, "pk", "public_key", "publicKey")
		if err != nil {
			return nil, failure.Network("ledger.ResolveKeyServers", fmt.Errorf("key server %s: %w", id, err))
		}
		url := stringField(fields, "url")
		if url == "" {
			return nil, failure.Network("ledger.ResolveKeyServers", fmt.Errorf("key server %s has no url", id))
		}
		servers = append(servers, model.KeyServer{
			ObjectID:  id,
			Name:      stringField(fields, "name"),
			URL:       url,
			PublicKey: pk,
		})
	}
	return servers, nil
}
