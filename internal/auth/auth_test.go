package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc", want: "abc"},
		{name: "trims space", header: "Bearer  abc ", want: "abc"},
		{name: "missing", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Name: "monitor", Token: "ro-token", Scopes: []string{ScopeRead}},
		{Name: "surface", Token: "rw-token", Scopes: []string{" " + ScopeWrite + " "}},
	}

	admin, ok := Authenticate("admin-token", "admin-token", tokens)
	require.True(t, ok)
	assert.True(t, HasScope(admin, ScopeWrite))
	assert.Equal(t, "admin", admin.Name)

	monitor, ok := Authenticate("ro-token", "admin-token", tokens)
	require.True(t, ok)
	assert.True(t, HasScope(monitor, ScopeRead))
	assert.False(t, HasScope(monitor, ScopeWrite))

	surface, ok := Authenticate("rw-token", "admin-token", tokens)
	require.True(t, ok)
	assert.True(t, HasScope(surface, ScopeWrite))
	assert.True(t, HasScope(surface, ScopeRead), "write implies read")

	_, ok = Authenticate("nope", "admin-token", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", "", nil)
	assert.False(t, ok, "empty admin token never matches")
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Name: "monitor"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "monitor", p.Name)
}

func TestValidScope(t *testing.T) {
	assert.True(t, ValidScope(ScopeRead))
	assert.True(t, ValidScope(ScopeWrite))
	assert.True(t, ValidScope(ScopeAll))
	assert.False(t, ValidScope("jobs:rw"))
}
