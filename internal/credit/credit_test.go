package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"duskftpd/internal/accounts"
	"duskftpd/internal/acl"
	"duskftpd/internal/config"
)

func testStore(t *testing.T) *accounts.Store {
	t.Helper()
	s, err := accounts.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDebitReducesBalanceByExactlyN(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 1})
	require.NoError(t, err)

	applied, err := Debit(ctx, store, u.ID, 1, DefaultSection, 500)
	require.NoError(t, err)
	require.True(t, applied)

	reloaded, err := store.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, -500, reloaded.CreditBalance(DefaultSection))
}

func TestCreditIncreasesByRatioTimesN(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 3})
	require.NoError(t, err)

	applied, err := Credit(ctx, store, u.ID, 3, DefaultSection, 100)
	require.NoError(t, err)
	require.True(t, applied)

	reloaded, err := store.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 300, reloaded.CreditBalance(DefaultSection))
}

func TestLeechRatioLeavesBalanceUnchanged(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "leecher", DefaultRatio: 0})
	require.NoError(t, err)

	appliedDebit, err := Debit(ctx, store, u.ID, 0, DefaultSection, 1000)
	require.NoError(t, err)
	require.False(t, appliedDebit)

	appliedCredit, err := Credit(ctx, store, u.ID, 0, DefaultSection, 1000)
	require.NoError(t, err)
	require.False(t, appliedCredit)

	reloaded, err := store.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, reloaded.CreditBalance(DefaultSection))
}

func TestRefundReversesPartialDebit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice", DefaultRatio: 1})
	require.NoError(t, err)

	_, err = Debit(ctx, store, u.ID, 1, DefaultSection, 1000)
	require.NoError(t, err)
	require.NoError(t, Refund(ctx, store, u.ID, 1, DefaultSection, 400))

	reloaded, err := store.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, -600, reloaded.CreditBalance(DefaultSection))
}

func TestEffectiveRatioPrecedence(t *testing.T) {
	cfg := &config.Snapshot{
		Sections: []config.Section{
			{Name: "movies", Ratio: 2},
		},
		CreditCheck: []config.CreditCheck{
			{Path: "/incoming", Ratio: 5, ACL: acl.Compile("*")},
		},
	}
	p := acl.Principal{Username: "alice"}

	// creditcheck override wins outright.
	user := accounts.User{DefaultRatio: 1}
	require.Equal(t, 5, EffectiveRatio(cfg, p, user, "/incoming/x.bin", "movies"))

	// user's own per-section override beats the section ratio.
	user.SectionRatios = map[string]int{"movies": 4}
	require.Equal(t, 4, EffectiveRatio(cfg, p, user, "/other/x.bin", "movies"))

	// falls to section ratio when user has none.
	user.SectionRatios = nil
	require.Equal(t, 2, EffectiveRatio(cfg, p, user, "/other/x.bin", "movies"))

	// falls to user default ratio for an unsectioned path.
	require.Equal(t, 1, EffectiveRatio(cfg, p, user, "/other/x.bin", DefaultSection))
}

func TestGrantCreditsWithNoDebit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)

	require.NoError(t, Grant(ctx, store, u.ID, DefaultSection, 250))

	reloaded, err := store.LoadByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 250, reloaded.CreditBalance(DefaultSection))
}

func TestGiveAndTake(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	a, err := store.CreateUser(ctx, accounts.User{Name: "alice"})
	require.NoError(t, err)
	b, err := store.CreateUser(ctx, accounts.User{Name: "bob"})
	require.NoError(t, err)

	require.NoError(t, Give(ctx, store, a.ID, b.ID, DefaultSection, 200))
	ra, _ := store.LoadByID(ctx, a.ID)
	rb, _ := store.LoadByID(ctx, b.ID)
	require.EqualValues(t, -200, ra.CreditBalance(DefaultSection))
	require.EqualValues(t, 200, rb.CreditBalance(DefaultSection))

	require.NoError(t, Take(ctx, store, b.ID, a.ID, DefaultSection, 50))
	ra, _ = store.LoadByID(ctx, a.ID)
	rb, _ = store.LoadByID(ctx, b.ID)
	require.EqualValues(t, -150, ra.CreditBalance(DefaultSection))
	require.EqualValues(t, 150, rb.CreditBalance(DefaultSection))
}
