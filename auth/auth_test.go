package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/auth"
)

func TestACLGrantAndRevoke(t *testing.T) {
	require := require.New(t)
	acl := auth.NewACL()
	acl.Grant("alice", auth.PermRead|auth.PermWrite)

	require.True(acl.Allowed("alice", auth.PermRead))
	require.True(acl.Allowed("alice", auth.PermWrite))
	require.False(acl.Allowed("alice", auth.PermAdmin))
	require.False(acl.Allowed("bob", auth.PermRead))

	acl.Revoke("alice")
	require.False(acl.Allowed("alice", auth.PermRead))
}

func TestACLRequireReturnsErrorWhenDenied(t *testing.T) {
	require := require.New(t)
	acl := auth.NewACL()
	require.Error(acl.Require("alice", auth.PermRead))

	acl.Grant("alice", auth.PermRead)
	require.NoError(acl.Require("alice", auth.PermRead))
}

func TestNoneGrantsFullAccess(t *testing.T) {
	require := require.New(t)
	var a auth.Auth = auth.None{}
	perm, err := a.Authenticate("anyone", "")
	require.NoError(err)
	require.True(perm.Has(auth.PermRead | auth.PermWrite | auth.PermAdmin))
}

func TestNativeAuthenticateRoundTrip(t *testing.T) {
	require := require.New(t)
	n, err := auth.LoadNative("/nonexistent/path/users.json")
	require.NoError(err, "missing file yields an empty table, not an error")

	n.SetUser("alice", "hunter2", auth.PermRead|auth.PermWrite)

	perm, err := n.Authenticate("alice", "hunter2")
	require.NoError(err)
	require.True(perm.Has(auth.PermWrite))

	_, err = n.Authenticate("alice", "wrong")
	require.Error(err)
}

func TestPermissionString(t *testing.T) {
	require := require.New(t)
	require.Equal("-", auth.Permission(0).String())
	require.Equal("RW", (auth.PermRead | auth.PermWrite).String())
	require.Equal("RWA", (auth.PermRead | auth.PermWrite | auth.PermAdmin).String())
}
