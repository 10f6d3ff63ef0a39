package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrNoChallenge       = errors.New("no outstanding challenge for address")
	ErrSignatureMismatch = errors.New("signature was not produced by address")
	ErrTooManyChallenges = errors.New("too many sign-in challenges outstanding")
	defaultChallengeTTL  = 5 * time.Minute
	defaultMaxChallenges = 10000
)

type challenge struct {
	message   string
	expiresAt time.Time
}

// Authenticator signs callers in: it hands out a single-use message to sign
// and exchanges a valid signature for a session token.
//
// At most limit challenges are held at a time. Expired ones are swept once
// per ttl, or sooner when the limit is reached.
type Authenticator struct {
	mu         sync.Mutex
	challenges map[common.Address]challenge
	tokens     *TokenIssuer
	ttl        time.Duration
	limit      int
	nextSweep  time.Time
	now        func() time.Time
}

func NewAuthenticator(tokens *TokenIssuer) *Authenticator {
	return &Authenticator{
		challenges: make(map[common.Address]challenge),
		tokens:     tokens,
		ttl:        defaultChallengeTTL,
		limit:      defaultMaxChallenges,
		now:        time.Now,
	}
}

// Challenge creates a fresh message for addr, replacing any previous one.
// It fails with ErrTooManyChallenges when the store is full of challenges
// that have not expired yet.
func (a *Authenticator) Challenge(addr common.Address) (string, error) {
	message := fmt.Sprintf("Sign in to the election as %s\nNonce: %s", addr.Hex(), uuid.New().String())

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	_, replacing := a.challenges[addr]
	if !now.Before(a.nextSweep) || (!replacing && len(a.challenges) >= a.limit) {
		a.sweep(now)
	}
	if !replacing && len(a.challenges) >= a.limit {
		return "", ErrTooManyChallenges
	}
	a.challenges[addr] = challenge{message: message, expiresAt: now.Add(a.ttl)}
	return message, nil
}

// Pending returns the number of challenges held.
func (a *Authenticator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.challenges)
}

func (a *Authenticator) sweep(now time.Time) {
	for addr, c := range a.challenges {
		if now.After(c.expiresAt) {
			delete(a.challenges, addr)
		}
	}
	a.nextSweep = now.Add(a.ttl)
}

// Login checks that sig is addr's signature of its outstanding challenge and
// returns a session token. The challenge is consumed on success.
func (a *Authenticator) Login(addr common.Address, sig []byte) (string, time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.challenges[addr]
	if !ok {
		return "", time.Time{}, ErrNoChallenge
	}
	if a.now().After(c.expiresAt) {
		delete(a.challenges, addr)
		return "", time.Time{}, ErrNoChallenge
	}

	signer, err := RecoverTextSigner([]byte(c.message), sig)
	if err != nil {
		return "", time.Time{}, err
	}
	if signer != addr {
		return "", time.Time{}, ErrSignatureMismatch
	}

	delete(a.challenges, addr)
	return a.tokens.Issue(addr)
}

// Tokens returns the issuer used to validate session tokens.
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}
