package despacho

import (
	"github.com/google/uuid"

	"github.com/prilive-com/despacho/tg"
)

// Credential is a single bot token plus a synthesized session name. The
// name is never derived from the token, so it is safe to log.
type Credential struct {
	token tg.SecretToken
	name  string
}

// NewCredential wraps a bot token in a Credential with a fresh random
// session name.
func NewCredential(token tg.SecretToken) Credential {
	return Credential{token: token, name: uuid.NewString()}
}

// Token returns the underlying bot token.
func (c Credential) Token() tg.SecretToken { return c.token }

// Name returns the session name used for logging and client identity.
func (c Credential) Name() string { return c.name }

// Pool is an ordered, immutable set of credentials. Order is the rotation
// order: dispatch always starts at index 0.
type Pool struct {
	creds []Credential
}

// NewPool builds a pool from bot tokens in rotation order.
func NewPool(tokens ...tg.SecretToken) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoCredentials
	}
	creds := make([]Credential, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			return nil, tg.ErrInvalidToken
		}
		creds = append(creds, NewCredential(t))
	}
	return &Pool{creds: creds}, nil
}

// Len reports the number of credentials in the pool.
func (p *Pool) Len() int { return len(p.creds) }

// At returns the credential at rotation position i.
func (p *Pool) At(i int) Credential { return p.creds[i] }
