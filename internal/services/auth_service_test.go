package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)

	resp, err := e.auth.Register(ctx, &RegisterRequest{UserName: "alice", Email: " Alice@Example.com ", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	claims, err := e.tokens.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "alice", claims.UserName)

	for _, id := range []string{"alice", "ALICE@example.com"} {
		got, err := e.auth.Login(ctx, &LoginRequest{Identifier: id, Password: "password1"})
		require.NoError(t, err, id)
		assert.Equal(t, resp.User.ID, got.User.ID)
	}

	_, err = e.auth.Login(ctx, &LoginRequest{Identifier: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = e.auth.Login(ctx, &LoginRequest{Identifier: "nobody", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRegister_Conflicts(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Register(ctx, &RegisterRequest{UserName: "alice", Email: "alice@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = e.auth.Register(ctx, &RegisterRequest{UserName: "alice", Email: "other@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUserNameTaken)
	_, err = e.auth.Register(ctx, &RegisterRequest{UserName: "alice2", Email: "ALICE@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	cases := []RegisterRequest{
		{UserName: "a", Email: "a@example.com", Password: "password1"},
		{UserName: "bob", Email: "not-an-email", Password: "password1"},
		{UserName: "bob", Email: "bob@example.com", Password: "short"},
	}
	for _, c := range cases {
		_, err := e.auth.Register(ctx, &c)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), c)
	}
}

func TestChangePasswordAndLogout(t *testing.T) {
	e := newEnv(t)
	resp, err := e.auth.Register(ctx, &RegisterRequest{UserName: "alice", Email: "alice@example.com", Password: "password1"})
	require.NoError(t, err)
	id := resp.User.ID

	// warm the cache, which never holds the password hash
	_, err = e.auth.Me(ctx, id)
	require.NoError(t, err)

	err = e.auth.ChangePassword(ctx, id, &ChangePasswordRequest{OldPassword: "nope-nope", NewPassword: "password2"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	require.NoError(t, e.auth.ChangePassword(ctx, id, &ChangePasswordRequest{OldPassword: "password1", NewPassword: "password2"}))

	_, err = e.auth.Login(ctx, &LoginRequest{Identifier: "alice", Password: "password2"})
	require.NoError(t, err)

	require.NoError(t, e.users.SetPresence(ctx, id, true, e.clock.Now()))
	require.NoError(t, e.auth.Logout(ctx, id))
	me, err := e.auth.Me(ctx, id)
	require.NoError(t, err)
	assert.False(t, me.IsOnline)
	require.NotNil(t, me.LastSeen)

	_, err = e.auth.Me(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
