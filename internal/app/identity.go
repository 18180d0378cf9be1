package app

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dkeye/costudy/internal/domain"
)

const clientTokenLimit = 64

// ResolveIdentity derives the durable identity for a connection.
// The transport session value wins; a client-supplied token is the
// fallback, and when both are absent a fresh token is minted. A minted
// connection cannot be recognized across reconnects, which is degraded
// but not an error. Callers cache the result per connection.
func ResolveIdentity(sessionToken, clientToken string) domain.Identity {
	clientToken = strings.TrimSpace(clientToken)
	if r := []rune(clientToken); len(r) > clientTokenLimit {
		clientToken = string(r[:clientTokenLimit])
	}

	session := sessionToken
	if session == "" {
		session = clientToken
	}
	if session == "" {
		session = uuid.NewString()
	}
	client := clientToken
	if client == "" {
		client = session
	}
	return domain.Identity{SessionToken: session, ClientToken: client}
}
