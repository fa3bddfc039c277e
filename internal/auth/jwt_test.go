// ABOUTME: Tests for JWT issuance, validation, and role checks.

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "wayne", []string{"editor"})
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"editor"}, claims.Roles)
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "wayne", []string{"editor"})
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidate_Garbage(t *testing.T) {
	_, err := ValidateToken("secret", "not.a.token")
	assert.Error(t, err)
}

func TestIssue_RequiresSecret(t *testing.T) {
	_, err := IssueToken("", "user-1", "wayne", nil)
	assert.Error(t, err)
}

func TestAuthContext_Roles(t *testing.T) {
	editor := &AuthContext{Roles: []string{"editor"}}
	assert.True(t, editor.CanProxy())
	assert.False(t, editor.IsAdmin())

	admin := &AuthContext{Roles: []string{"administrator"}}
	assert.True(t, admin.CanProxy())
	assert.True(t, admin.IsAdmin())

	viewer := &AuthContext{Roles: []string{"subscriber"}}
	assert.False(t, viewer.CanProxy())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{Subject: "u1"})
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.Subject)

	assert.Nil(t, FromContext(context.Background()))
}
