// Package access supplies the visibility predicate ANDed into every
// access-aware query.
//
// The rule language is not interpreted here: a Provider turns the requesting
// Actor into a parameterised SQL fragment over the entities table alias.
// Rows excluded by the fragment are indistinguishable from absent rows.
package access

import (
	"context"
	"fmt"
	"strings"
)

// Access levels understood by the Default provider.
const (
	Private  = 0
	LoggedIn = 1
	Public   = 2
)

// Actor is the identity a query runs on behalf of.
type Actor struct {
	// UserID is 0 for anonymous requests.
	UserID int64
	// Admin bypasses the level check.
	Admin bool
	// IgnoreAccess disables the fragment entirely.
	IgnoreAccess bool
	// ShowHidden includes disabled entities.
	ShowHidden bool
}

// Fragment is a parameterised SQL predicate. An empty SQL means "no
// restriction".
type Fragment struct {
	SQL  string
	Args []any
}

// Provider produces the visibility fragment for an actor. alias is the
// table alias of the entities table in the enclosing query.
type Provider interface {
	Fragment(actor Actor, alias string) Fragment
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(actor Actor, alias string) Fragment

func (f ProviderFunc) Fragment(actor Actor, alias string) Fragment { return f(actor, alias) }

// Default is the built-in provider:
//   - disabled rows are hidden unless ShowHidden
//   - IgnoreAccess and Admin see every level
//   - logged-in actors see public, logged-in and their own rows
//   - anonymous actors see public rows only
type Default struct{}

func (Default) Fragment(actor Actor, alias string) Fragment {
	var parts []string
	var args []any

	if !actor.ShowHidden {
		parts = append(parts, fmt.Sprintf("%s.enabled = 'yes'", alias))
	}

	switch {
	case actor.IgnoreAccess || actor.Admin:
	case actor.UserID != 0:
		parts = append(parts, fmt.Sprintf("(%[1]s.access_level IN (?, ?) OR %[1]s.owner_id = ?)", alias))
		args = append(args, Public, LoggedIn, actor.UserID)
	default:
		parts = append(parts, fmt.Sprintf("%s.access_level = ?", alias))
		args = append(args, Public)
	}

	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
}

type actorKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor carried by ctx, or the anonymous actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}

// Elevate returns a context whose actor ignores access and sees hidden rows.
// Used by internal paths that must see everything.
func Elevate(ctx context.Context) context.Context {
	a := ActorFrom(ctx)
	a.IgnoreAccess, a.ShowHidden = true, true
	return WithActor(ctx, a)
}
