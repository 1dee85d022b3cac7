package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

func TestTokenProvider_RoundTrip(t *testing.T) {
	p := NewTokenProvider("test-secret")

	want := domain.Identity{
		ID:          "u1",
		DisplayName: "alice",
		AccentColor: "#7c3aed",
		AvatarURL:   "https://cdn.example/a.png",
	}
	tok, err := p.Mint(want, time.Hour)
	require.NoError(t, err)

	got, err := p.Resolve(tok)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTokenProvider_WrongSecret(t *testing.T) {
	tok, err := NewTokenProvider("secret-a").Mint(domain.Identity{ID: "u1", DisplayName: "a"}, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenProvider("secret-b").Resolve(tok)
	require.ErrorIs(t, err, core.ErrAuthRequired)
}

func TestTokenProvider_Garbage(t *testing.T) {
	_, err := NewTokenProvider("secret").Resolve("not-a-token")
	require.ErrorIs(t, err, core.ErrAuthRequired)
}

func TestTokenProvider_InvalidProfile(t *testing.T) {
	p := NewTokenProvider("secret")
	tok, err := p.Mint(domain.Identity{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	_, err = p.Resolve(tok)
	require.ErrorIs(t, err, core.ErrAuthRequired)
}

func TestTokenProvider_Expired(t *testing.T) {
	p := NewTokenProvider("secret")
	tok, err := p.Mint(domain.Identity{ID: "u1", DisplayName: "a"}, -time.Minute)
	require.NoError(t, err)

	_, err = p.Resolve(tok)
	require.ErrorIs(t, err, core.ErrAuthRequired)
}
