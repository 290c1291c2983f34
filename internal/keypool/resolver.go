package keypool

import (
	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
)

// Resolver decides the credential actually presented to the secondary
// provider for a caller: their own dedicated key verbatim, or a pool key.
type Resolver struct {
	pool *Pool
}

func NewResolver(pool *Pool) *Resolver {
	return &Resolver{pool: pool}
}

// Resolve returns the credential for the caller and whether it is the
// caller's own dedicated key. A dedicated key bypasses the pool entirely; a
// pool marker (explicit KeyKind or the legacy sentinel prefix) delegates to
// the pool. An empty result means neither source yields a credential, which
// callers must surface as a configuration error.
func (r *Resolver) Resolve(callerID string, acct *accountdomain.Account) (string, bool) {
	if acct.HasDedicatedSecondaryKey() {
		return acct.SecondaryKeyValue(), true
	}
	return r.pool.KeyForCaller(callerID), false
}
