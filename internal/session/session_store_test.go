package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreNormalizesBlankTokens(t *testing.T) {
	s := NewStore()
	require.Empty(t, s.Token())

	s.Set("  token-abc  ")
	require.Equal(t, "token-abc", s.Token())

	s.Set("   ")
	require.Empty(t, s.Token())
}

func TestStoreNotifiesWatchers(t *testing.T) {
	s := NewStore()
	var seen []string
	s.Watch(func(token string) { seen = append(seen, token) })

	s.Set("first")
	s.Set("")
	require.Equal(t, []string{"first", ""}, seen)
}
