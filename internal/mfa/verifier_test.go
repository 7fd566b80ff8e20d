// ABOUTME: Tests for relying-party derivation and verifier construction
// ABOUTME: No authenticator hardware involved, configuration only

package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRelyingParty(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		wantID      string
		wantOrigins []string
	}{
		{
			name:        "empty falls back to localhost",
			baseURL:     "",
			wantID:      "localhost",
			wantOrigins: []string{"http://localhost", "https://localhost"},
		},
		{
			name:        "https url",
			baseURL:     "https://login.example",
			wantID:      "login.example",
			wantOrigins: []string{"https://login.example"},
		},
		{
			name:        "url with port keeps bare hostname as id",
			baseURL:     "http://localhost:8080",
			wantID:      "localhost",
			wantOrigins: []string{"http://localhost:8080"},
		},
		{
			name:        "hostless value falls back to localhost",
			baseURL:     "not a url",
			wantID:      "localhost",
			wantOrigins: []string{"http://localhost", "https://localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := DeriveRelyingParty("Lantern", tt.baseURL)
			assert.Equal(t, "Lantern", rp.DisplayName)
			assert.Equal(t, tt.wantID, rp.ID)
			assert.Equal(t, tt.wantOrigins, rp.Origins)
		})
	}
}

func TestNewVerifier(t *testing.T) {
	rp := DeriveRelyingParty("Lantern", "https://login.example")
	v, err := NewVerifier(rp)
	require.NoError(t, err)
	assert.NotNil(t, v)
}
