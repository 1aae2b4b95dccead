package site

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"duskftpd/internal/accounts"
	"duskftpd/internal/acl"
	"duskftpd/internal/config"
	"duskftpd/internal/vfs"
)

func testStore(t *testing.T) *accounts.Store {
	t.Helper()
	s, err := accounts.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testContext(t *testing.T, store *accounts.Store, user accounts.User) (Context, *[]string, *[]int) {
	t.Helper()
	var codes []int
	var messages []string
	fs := vfs.New(t.TempDir())
	return Context{
		Ctx:       context.Background(),
		Principal: acl.Principal{Username: user.Name},
		User:      user,
		Accounts:  store,
		Config:    &config.Snapshot{},
		FS:        fs,
		Reply: func(code int, message string) error {
			codes = append(codes, code)
			messages = append(messages, message)
			return nil
		},
		ReplyMultiline: func(code int, lines []string) error {
			codes = append(codes, code)
			messages = append(messages, lines...)
			return nil
		},
		ListSessions: func() []SessionSummary { return nil },
	}, &messages, &codes
}

func TestDispatchUnknownSubcommand(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, u)
	require.NoError(t, Dispatch(c, "bogus"))
	require.Equal(t, []int{500}, *codes)
}

func TestDispatchRequiresMinArgs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, u)
	require.NoError(t, Dispatch(c, "adduser bob"))
	require.Equal(t, []int{501}, *codes)
}

func TestDispatchDeniesWhenACLDenies(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)

	c, _, _ := testContext(t, store, u)
	c.Config = &config.Snapshot{
		SiteCommandACL: map[string]acl.Expr{"site-adduser": acl.Compile("!*")},
	}
	codes := []int{}
	c.Reply = func(code int, message string) error {
		codes = append(codes, code)
		return nil
	}
	require.NoError(t, Dispatch(c, "adduser bob secret"))
	require.Equal(t, []int{550}, codes)
}

func TestAddUserAndDelUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "admin"})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, u)
	require.NoError(t, Dispatch(c, "adduser bob hunter2 3"))
	require.Equal(t, []int{200}, *codes)

	created, err := store.LoadByName(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 3, created.DefaultRatio)
	require.True(t, accounts.CheckPassword("hunter2", created.PasswordHash))

	*codes = nil
	require.NoError(t, Dispatch(c, "deluser bob"))
	require.Equal(t, []int{200}, *codes)

	_, err = store.LoadByName(ctx, "bob")
	require.Error(t, err)
}

func TestGiveGrantsWithNoSelfDebit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	a, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 1})
	require.NoError(t, err)
	b, err := store.CreateUser(ctx, accounts.User{Name: "bob", DefaultRatio: 1})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, a)
	require.NoError(t, Dispatch(c, "give bob 100"))
	require.Equal(t, []int{200}, *codes)

	ra, err := store.LoadByID(ctx, a.ID)
	require.NoError(t, err)
	rb, err := store.LoadByID(ctx, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, ra.CreditBalance("default"))
	require.EqualValues(t, 100, rb.CreditBalance("default"))
}

func TestGiveOwnDebitsCallerThenCreditsTarget(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	a, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 1})
	require.NoError(t, err)
	b, err := store.CreateUser(ctx, accounts.User{Name: "bob", DefaultRatio: 1})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, a)
	require.NoError(t, Dispatch(c, "giveown bob 100"))
	require.Equal(t, []int{200}, *codes)

	ra, err := store.LoadByID(ctx, a.ID)
	require.NoError(t, err)
	rb, err := store.LoadByID(ctx, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, -100, ra.CreditBalance("default"))
	require.EqualValues(t, 100, rb.CreditBalance("default"))
}

func TestGiveOwnRefusesLeechCaller(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	a, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 0})
	require.NoError(t, err)
	b, err := store.CreateUser(ctx, accounts.User{Name: "bob", DefaultRatio: 1})
	require.NoError(t, err)

	c, _, codes := testContext(t, store, a)
	require.NoError(t, Dispatch(c, "giveown bob 100"))
	require.Equal(t, []int{550}, *codes)

	rb, err := store.LoadByID(ctx, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, rb.CreditBalance("default"))
}

func TestWhoReportsSessions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)

	c, messages, codes := testContext(t, store, u)
	c.ListSessions = func() []SessionSummary {
		return []SessionSummary{{Username: "alice", ClientIP: "127.0.0.1", Command: "LIST"}}
	}
	require.NoError(t, Dispatch(c, "who"))
	require.Equal(t, []int{200}, *codes)
	require.Contains(t, (*messages)[0], "1 user")
}
