// Package access decides whether an address may read a deal's documents.
// Every decision is a model.AccessResult; a denial is never an error.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/earnout-labs/dealvault/pkg/ledger"
	"github.com/earnout-labs/dealvault/pkg/model"
)

var (
	log    = logging.Logger("pkg/access")
	tracer = otel.Tracer("pkg/access")
)

// BypassReason is reported for every grant made in insecure bypass mode.
const BypassReason = "insecure bypass enabled"

// RoleResolver looks up the roles an address holds in a deal.
type RoleResolver interface {
	GetParticipantRoles(ctx context.Context, dealID, address string) ([]model.Role, error)
}

type Verifier struct {
	roles  RoleResolver
	bypass bool
}

type Option func(*Verifier)

// WithInsecureBypass grants every request. Only for local development; each
// grant is logged as a warning.
func WithInsecureBypass(enabled bool) Option {
	return func(v *Verifier) {
		v.bypass = enabled
	}
}

func New(roles RoleResolver, opts ...Option) *Verifier {
	v := &Verifier{roles: roles}
	for _, opt := range opts {
		opt(v)
	}
	if v.bypass {
		log.Warn("access verification is in insecure bypass mode, every request will be granted")
	}
	return v
}

// VerifyAccess grants iff address is a participant of the deal and, when
// requiredRole is non-nil, holds that role among the roles it has.
func (v *Verifier) VerifyAccess(ctx context.Context, dealID, address string, requiredRole *model.Role) model.AccessResult {
	ctx, span := tracer.Start(ctx, "verify-access", trace.WithAttributes(
		attribute.String("deal.id", dealID),
		attribute.String("user", address),
	))
	defer span.End()

	result := v.verify(ctx, dealID, address, requiredRole)
	span.SetAttributes(attribute.Bool("access.granted", result.HasAccess))
	if !result.HasAccess {
		log.Infow("access denied", "deal", dealID, "user", address, "reason", result.Reason)
	}
	return result
}

func (v *Verifier) verify(ctx context.Context, dealID, address string, requiredRole *model.Role) model.AccessResult {
	if v.bypass {
		log.Warnw("granting access through insecure bypass", "deal", dealID, "user", address)
		return model.AccessResult{HasAccess: true, Role: requiredRole, Reason: BypassReason}
	}
	if model.NormalizeAddress(address) == "" {
		return deny("no user address given")
	}
	if dealID == "" {
		return deny("no deal id given")
	}

	roles, err := v.roles.GetParticipantRoles(ctx, dealID, address)
	switch {
	case errors.Is(err, ledger.ErrNotConfigured):
		return deny("ledger package not configured, participant roles cannot be checked")
	case errors.Is(err, ledger.ErrDealNotFound):
		return deny(fmt.Sprintf("deal %s not found", dealID))
	case err != nil:
		log.Warnw("role lookup failed", "deal", dealID, "user", address, "error", err)
		return deny(fmt.Sprintf("role lookup failed: %s", err))
	case len(roles) == 0:
		return deny(fmt.Sprintf("%s is not a participant of deal %s", address, dealID))
	}
	role := roles[0]
	if requiredRole != nil {
		if !slices.Contains(roles, *requiredRole) {
			return model.AccessResult{
				Role:   &role,
				Reason: fmt.Sprintf("role %s required, %s holds %s", *requiredRole, address, joinRoles(roles)),
			}
		}
		role = *requiredRole
	}
	return model.AccessResult{HasAccess: true, Role: &role}
}

func joinRoles(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func deny(reason string) model.AccessResult {
	return model.AccessResult{Reason: reason}
}
