package blocklist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocklist(t *testing.T) {
	t.Parallel()

	b := New([]string{" Localhost ", "*.internal", ".corp", "*.internal", ""})
	require.NotNil(t, b)
	require.Len(t, b.suffixes, 2)

	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST.", true},
		{"api.internal", true},
		{"internal", true},
		{"a.b.corp", true},
		{"example.com", false},
		{"notinternal", false},
		{"", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, b.IsBlocked(tt.host), tt.host)
	}

	require.True(t, b.BlocksURL("http://api.internal:8080/x"))
	require.False(t, b.BlocksURL("https://example.com"))
	require.True(t, b.BlocksURL("http://[::1"))
}

func TestNilBlocklist(t *testing.T) {
	t.Parallel()

	var b *Blocklist
	require.Nil(t, New(nil))
	require.Nil(t, New([]string{" ", "*."}))
	require.False(t, b.IsBlocked("localhost"))
	require.False(t, b.BlocksURL("http://localhost"))
}
