package app_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/costudy/internal/app"
)

func TestResolveIdentityPrefersSessionToken(t *testing.T) {
	id := app.ResolveIdentity("sess", "client")
	require.Equal(t, "sess", id.SessionToken)
	require.Equal(t, "client", id.ClientToken)
}

func TestResolveIdentityFallsBackToClientToken(t *testing.T) {
	id := app.ResolveIdentity("", "  client  ")
	require.Equal(t, "client", id.SessionToken)
	require.Equal(t, "client", id.ClientToken)
}

func TestResolveIdentityMintsWhenBothAbsent(t *testing.T) {
	a := app.ResolveIdentity("", "")
	b := app.ResolveIdentity("", "")
	require.NotEmpty(t, a.SessionToken)
	require.Equal(t, a.SessionToken, a.ClientToken)
	require.NotEqual(t, a.SessionToken, b.SessionToken, "minted tokens must be unique")
}

func TestResolveIdentityClampsClientToken(t *testing.T) {
	long := strings.Repeat("x", 200)
	id := app.ResolveIdentity("sess", long)
	require.Len(t, id.ClientToken, 64)

	// Clamping counts runes, never splitting a multi-byte character.
	wide := strings.Repeat("é", 100)
	id = app.ResolveIdentity("sess", wide)
	require.Equal(t, 64, utf8.RuneCountInString(id.ClientToken))
	require.True(t, utf8.ValidString(id.ClientToken))
}
