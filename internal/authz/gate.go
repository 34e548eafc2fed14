// Package authz resolves bearer credentials to principals and answers
// ownership, admin, and account status questions.
package authz

import (
	"context"

	"github.com/pkg/errors"

	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
)

// Principal is an authenticated caller.
type Principal struct {
	UID string
}

// Capability is what a principal may do to a particular entity.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityOwner
	CapabilityAdmin
)

func (c Capability) String() string {
	switch c {
	case CapabilityOwner:
		return "owner"
	case CapabilityAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Gate answers every authorization question the handlers ask.
type Gate struct {
	verifier Verifier
	admins   *AdminList
	store    docstore.Store
}

func NewGate(verifier Verifier, admins *AdminList, store docstore.Store) *Gate {
	return &Gate{verifier: verifier, admins: admins, store: store}
}

// Authenticate verifies token. Any verification failure is ErrUnauthorized.
func (g *Gate) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, model.Errorf(model.ErrUnauthorized, "missing credential")
	}
	uid, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return Principal{}, err
		}
		return Principal{}, errors.Wrap(err, "authenticate")
	}
	return Principal{UID: uid}, nil
}

// CapabilityFor returns the strongest capability p holds over an entity owned by owners.
func (g *Gate) CapabilityFor(ctx context.Context, p Principal, owners []string) (Capability, error) {
	for _, o := range owners {
		if o == p.UID {
			return CapabilityOwner, nil
		}
	}
	admin, err := g.admins.IsAdmin(ctx, p.UID)
	if err != nil {
		return CapabilityNone, err
	}
	if admin {
		return CapabilityAdmin, nil
	}
	return CapabilityNone, nil
}

// RequireOwner fails with ErrForbidden unless p is one of owners.
func (g *Gate) RequireOwner(p Principal, owners []string) error {
	for _, o := range owners {
		if o == p.UID {
			return nil
		}
	}
	return model.Errorf(model.ErrForbidden, "only the owners can modify this entity")
}

// RequireAdmin fails with ErrForbidden unless p is an admin.
func (g *Gate) RequireAdmin(ctx context.Context, p Principal) error {
	admin, err := g.admins.IsAdmin(ctx, p.UID)
	if err != nil {
		return err
	}
	if !admin {
		return model.Errorf(model.ErrForbidden, "admin capability required")
	}
	return nil
}

// RequireOwnerOrAdmin fails with ErrForbidden unless p owns the entity or is an admin.
func (g *Gate) RequireOwnerOrAdmin(ctx context.Context, p Principal, owners []string) error {
	c, err := g.CapabilityFor(ctx, p, owners)
	if err != nil {
		return err
	}
	if c == CapabilityNone {
		return model.Errorf(model.ErrForbidden, "owner or admin capability required")
	}
	return nil
}

// RequireActive fails with ErrSuspended when p's account is frozen. A missing
// account record counts as active.
func (g *Gate) RequireActive(ctx context.Context, p Principal) error {
	var acc model.Account
	err := g.store.Get(ctx, model.CollectionAccounts, p.UID, &acc)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load account")
	}
	if acc.Frozen {
		return model.ErrSuspended
	}
	return nil
}
