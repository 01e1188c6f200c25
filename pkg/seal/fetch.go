package seal

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"
	"github.com/google/uuid"

	"github.com/earnout-labs/dealvault/internal/safegroup"
)

// fetchShares asks every candidate key server for its share concurrently and
// returns as soon as env.Threshold shares have been verified against the
// envelope's commitments. Shares that fail verification are discarded.
func (a *Adapter) fetchShares(ctx context.Context, sess *session, env *Envelope, targets []shareTarget, user string) ([]secretsharing.Share, error) {
	commitment, err := env.commitment()
	if err != nil {
		return nil, err
	}
	t := uint(env.Threshold - 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		shares []secretsharing.Share
		errs   []error
	)
	g, gctx := safegroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			share, err := a.fetchShare(gctx, sess, env, target, user)
			if err == nil && !secretsharing.Verify(t, share, commitment) {
				err = fmt.Errorf("share from key server %s failed verification", target.server.ObjectID)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if len(shares) < env.Threshold {
					log.Warnw("key share unavailable", "server", target.server.ObjectID, "error", err)
					errs = append(errs, err)
				}
				return nil
			}
			shares = append(shares, share)
			if len(shares) == env.Threshold {
				cancel()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(shares) < env.Threshold {
		return nil, fmt.Errorf("received %d of %d required key shares: %w", len(shares), env.Threshold, errors.Join(errs...))
	}
	return shares[:env.Threshold], nil
}

func (a *Adapter) fetchShare(ctx context.Context, sess *session, env *Envelope, target shareTarget, user string) (secretsharing.Share, error) {
	req := ApprovalRequest{
		PackageID:   env.PackageID,
		Module:      env.Module,
		Function:    ApproveFunction,
		Identity:    env.Identity,
		DealID:      env.Identity,
		Requester:   user,
		EncKey:      sess.public,
		RequestID:   uuid.NewString(),
		TimestampMs: a.now().UnixMilli(),
	}
	msg, err := req.SigningBytes()
	if err != nil {
		return secretsharing.Share{}, err
	}

	res, err := a.client.fetchKey(ctx, target.server, FetchKeyRequest{
		Certificate:      sess.cert,
		Request:          req,
		RequestSignature: ed25519.Sign(sess.signingKey, msg),
		Share:            target.share,
	})
	if err != nil {
		return secretsharing.Share{}, err
	}
	if res.Server != target.server.ObjectID {
		return secretsharing.Share{}, fmt.Errorf("response from %s claims to be from %s", target.server.ObjectID, res.Server)
	}

	value, err := OpenResponse(sess.secret, req.RequestID, res)
	if err != nil {
		return secretsharing.Share{}, fmt.Errorf("opening share from %s: %w", target.server.ObjectID, err)
	}

	share := secretsharing.Share{
		ID:    group.Ristretto255.NewScalar(),
		Value: group.Ristretto255.NewScalar(),
	}
	if err := share.ID.UnmarshalBinary(target.share.Index); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decoding share index: %w", err)
	}
	if err := share.Value.UnmarshalBinary(value); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decoding share from %s: %w", target.server.ObjectID, err)
	}
	return share, nil
}
