package authapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already normal", "https://example.com", "https://example.com"},
		{"trailing slash trimmed", "https://example.com/", "https://example.com"},
		{"whitespace trimmed", "  https://example.com  ", "https://example.com"},
		{"scheme defaulted", "example.com", "https://example.com"},
		{"http preserved", "http://localhost:8080", "http://localhost:8080"},
		{"path preserved", "https://example.com/bff", "https://example.com/bff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeBaseURLRejectsBlank(t *testing.T) {
	for _, input := range []string{"", "   "} {
		_, err := NormalizeBaseURL(input)
		require.Error(t, err)
	}
}
