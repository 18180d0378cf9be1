package domain

// ConnID identifies one live websocket connection.
type ConnID string

// Identity is the durable token pair used to recognize the same person
// across reconnects. SessionToken comes from the transport cookie and
// survives page reloads; ClientToken is supplied by the client at join
// time and covers the cookieless case.
type Identity struct {
	SessionToken string `json:"-"`
	ClientToken  string `json:"-"`
}

// Same reports whether two identities belong to the same person:
// either token component matches, non-empty to non-empty.
func (id Identity) Same(other Identity) bool {
	if id.SessionToken != "" && id.SessionToken == other.SessionToken {
		return true
	}
	if id.ClientToken != "" && id.ClientToken == other.ClientToken {
		return true
	}
	return false
}
