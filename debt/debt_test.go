package debt_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rachaio/racha/debt"
	"github.com/rachaio/racha/money"
)

func newLedger() *debt.Ledger {
	return debt.NewLedger(clockwork.NewFakeClock())
}

func TestRecordValidation(t *testing.T) {
	ledger := newLedger()

	_, err := ledger.Record("alice", "alice", money.New(50, 2))
	assert.ErrorIs(t, err, debt.ErrSelfDebt)

	_, err = ledger.Record("alice", "bob", money.New(0, 2))
	assert.ErrorIs(t, err, debt.ErrNonPositiveAmount)

	_, err = ledger.Record("alice", "bob", money.New(-5, 2))
	assert.ErrorIs(t, err, debt.ErrNonPositiveAmount)

	id, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)

	recorded, err := ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", recorded.Creditor)
	assert.Equal(t, "bob", recorded.Debtor)
	assert.False(t, recorded.Settled)
	assert.False(t, recorded.CreatedAt.IsZero())
}

func TestSettle(t *testing.T) {
	ledger := newLedger()

	id, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)

	require.NoError(t, ledger.Settle(id))

	settled, err := ledger.Get(id)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	assert.False(t, settled.SettledAt.IsZero())

	// Settling again is an explicit error, not a silent no-op.
	assert.ErrorIs(t, ledger.Settle(id), debt.ErrAlreadySettled)

	assert.ErrorIs(t, ledger.Settle(uuid.New()), debt.ErrNotFound)
}

func TestNetBalance(t *testing.T) {
	ledger := newLedger()

	_, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	_, err = ledger.Record("bob", "alice", money.New(20, 2))
	require.NoError(t, err)

	// Positive means the second participant owes the first.
	net, err := ledger.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), net.Amount())

	// Swapping the pair flips the sign.
	net, err = ledger.NetBalance("bob", "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), net.Amount())
}

func TestNetBalanceFiltersByScaleAndSettled(t *testing.T) {
	ledger := newLedger()

	id, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	_, err = ledger.Record("alice", "bob", money.New(999, 6))
	require.NoError(t, err)

	net, err := ledger.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50), net.Amount())

	net, err = ledger.NetBalance("alice", "bob", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(999), net.Amount())

	require.NoError(t, ledger.Settle(id))
	net, err = ledger.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.True(t, net.IsZero())
}

func TestSummarize(t *testing.T) {
	ledger := newLedger()

	_, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	_, err = ledger.Record("bob", "alice", money.New(20, 2))
	require.NoError(t, err)
	_, err = ledger.Record("carol", "dave", money.New(999, 2))
	require.NoError(t, err)

	summary, err := ledger.Summarize("alice", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50), summary.Owed.Amount())
	assert.Equal(t, int64(20), summary.Owing.Amount())
	assert.Equal(t, int64(30), summary.Net.Amount())

	// Uninvolved participant reads as all zeros.
	summary, err = ledger.Summarize("erin", 2)
	require.NoError(t, err)
	assert.True(t, summary.Owed.IsZero())
	assert.True(t, summary.Owing.IsZero())
	assert.True(t, summary.Net.IsZero())
}

func TestSummarizeAll(t *testing.T) {
	ledger := newLedger()

	_, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	_, err = ledger.Record("alice", "bob", money.New(1_000_000, 6))
	require.NoError(t, err)

	summaries, err := ledger.SummarizeAll("alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(50), summaries[2].Owed.Amount())
	assert.Equal(t, int64(1_000_000), summaries[6].Owed.Amount())
}

func TestSettleNetSettlesOffsettingPair(t *testing.T) {
	ledger := newLedger()

	idAB, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	idBA, err := ledger.Record("bob", "alice", money.New(20, 2))
	require.NoError(t, err)

	ids, residual, err := ledger.SettleNet("alice", "bob", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{idAB, idBA}, ids)
	assert.True(t, residual.IsZero())

	net, err := ledger.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.True(t, net.IsZero())
}

func TestSettleNetPrefersSmallestSet(t *testing.T) {
	ledger := newLedger()

	idBig, err := ledger.Record("alice", "bob", money.New(30, 2))
	require.NoError(t, err)
	_, err = ledger.Record("alice", "bob", money.New(20, 2))
	require.NoError(t, err)
	_, err = ledger.Record("bob", "alice", money.New(20, 2))
	require.NoError(t, err)

	// Net is 30; the single 30 debt covers it, so the mutually-cancelling
	// 20s stay open.
	ids, residual, err := ledger.SettleNet("alice", "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{idBig}, ids)
	assert.True(t, residual.IsZero())

	net, err := ledger.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.True(t, net.IsZero())

	open := ledger.Unsettled("alice", "bob", 2)
	assert.Len(t, open, 2)
}

func TestSettleNetNoDebts(t *testing.T) {
	ledger := newLedger()

	ids, residual, err := ledger.SettleNet("alice", "bob", 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.True(t, residual.IsZero())
}

func TestSettleNetIgnoresOtherPairsAndScales(t *testing.T) {
	ledger := newLedger()

	_, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)
	idOther, err := ledger.Record("alice", "carol", money.New(10, 2))
	require.NoError(t, err)
	idSix, err := ledger.Record("alice", "bob", money.New(10, 6))
	require.NoError(t, err)

	ids, _, err := ledger.SettleNet("alice", "bob", 2)
	require.NoError(t, err)
	assert.NotContains(t, ids, idOther)
	assert.NotContains(t, ids, idSix)

	other, err := ledger.Get(idOther)
	require.NoError(t, err)
	assert.False(t, other.Settled)
}

func TestRestore(t *testing.T) {
	ledger := newLedger()

	id, err := ledger.Record("alice", "bob", money.New(50, 2))
	require.NoError(t, err)

	snapshot := ledger.All()
	require.Len(t, snapshot, 1)

	fresh := newLedger()
	fresh.Restore(snapshot)

	restored, err := fresh.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", restored.Creditor)

	net, err := fresh.NetBalance("alice", "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50), net.Amount())
}
