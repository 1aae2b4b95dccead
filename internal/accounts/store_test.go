package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndLoadUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, User{Name: "alice", Flags: "1", DefaultRatio: 3})
	require.NoError(t, err)
	require.Equal(t, int64(1), u.ID)

	byID, err := s.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Name)

	byName, err := s.LoadByName(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, byName.ID)

	second, err := s.CreateUser(ctx, User{Name: "bob"})
	require.NoError(t, err)
	require.Equal(t, int64(2), second.ID)
}

func TestCreateUserDuplicateNameFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, User{Name: "alice"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, User{Name: "alice"})
	require.Error(t, err)
}

func TestSaveFieldMutatesAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, User{Name: "alice"})
	require.NoError(t, err)

	err = s.SaveField(ctx, u.ID, func(rec *User) {
		rec.TransferBytes += 1024
		rec.NumLogins++
	})
	require.NoError(t, err)

	reloaded, err := s.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1024, reloaded.TransferBytes)
	require.EqualValues(t, 1, reloaded.NumLogins)
}

func TestDeleteUserRemovesNameIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, User{Name: "alice"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	_, err = s.LoadByName(ctx, "alice")
	require.Error(t, err)

	_, ok := s.Names().UserID("alice")
	require.False(t, ok)
}

func TestListByGlob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "alice2", "bob"} {
		_, err := s.CreateUser(ctx, User{Name: name})
		require.NoError(t, err)
	}

	matches, err := s.ListByGlob(ctx, "alice*")
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestUnknownUserNameIsSentinelNeverLies(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, "unknown", s.Names().UserName(999))
}

func TestGroupCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g, err := s.CreateGroup(ctx, Group{Name: "staff"})
	require.NoError(t, err)
	other, err := s.CreateGroup(ctx, Group{Name: "leech"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, User{Name: "alice", PrimaryGroupID: g.ID})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, User{Name: "bob", PrimaryGroupID: other.ID, SecondaryGIDs: []int64{g.ID}})
	require.NoError(t, err)

	primary, secondary, err := s.GroupCounts(ctx, "staff")
	require.NoError(t, err)
	require.Equal(t, 1, primary)
	require.Equal(t, 1, secondary)
}

func TestPrincipalResolvesGroupNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g, err := s.CreateGroup(ctx, Group{Name: "staff"})
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, User{Name: "alice", PrimaryGroupID: g.ID, Flags: "1G"})
	require.NoError(t, err)

	p := s.Principal(u)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, "staff", p.PrimaryGroup)
	require.True(t, p.HasFlag('G'))
}
