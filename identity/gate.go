// Package identity resolves who is calling the election: Ethereum-style
// addresses, signature based sign-in and session tokens.
package identity

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type callerKey struct{}

// IsAdministrator reports whether caller is the election administrator.
func IsAdministrator(caller, admin common.Address) bool {
	return caller == admin
}

// WithCaller returns a copy of ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CurrentCaller returns the caller stored by WithCaller.
func CurrentCaller(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(common.Address)
	return caller, ok
}
