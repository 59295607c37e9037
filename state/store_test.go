package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"daoescrow/native/escrow"
	"daoescrow/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(storage.NewMemDB(), map[string]uint8{"TOK": 6})
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestEscrowRoundTrip(t *testing.T) {
	s := testStore(t)
	esc := &escrow.Escrow{
		ID:          7,
		Payer:       addr(0x02),
		Payee:       addr(0x03),
		Asset:       "TOK",
		Amount:      big.NewInt(12345),
		Deadline:    100,
		DAODeadline: 200,
		CreatedAt:   50,
		Status:      escrow.StatusActive,
	}
	require.NoError(t, s.EscrowPut(esc))

	got, ok := s.EscrowGet(7)
	require.True(t, ok)
	require.Equal(t, esc.ID, got.ID)
	require.Equal(t, esc.Payer, got.Payer)
	require.Equal(t, esc.Payee, got.Payee)
	require.Equal(t, esc.Asset, got.Asset)
	require.Zero(t, esc.Amount.Cmp(got.Amount))
	require.Equal(t, esc.Deadline, got.Deadline)
	require.Equal(t, esc.DAODeadline, got.DAODeadline)
	require.Equal(t, esc.Status, got.Status)

	require.NoError(t, s.EscrowDelete(7))
	_, ok = s.EscrowGet(7)
	require.False(t, ok)
}

func TestEscrowPutRejectsMalformedRows(t *testing.T) {
	s := testStore(t)
	bad := &escrow.Escrow{
		ID:          1,
		Payer:       addr(0x02),
		Payee:       addr(0x03),
		Asset:       "TOK",
		Amount:      big.NewInt(1),
		Deadline:    200,
		DAODeadline: 100, // ordering violation
		Status:      escrow.StatusActive,
	}
	require.ErrorIs(t, s.EscrowPut(bad), escrow.ErrInvalidParameter)
}

func TestSeedNextID(t *testing.T) {
	s := testStore(t)
	next, err := s.SeedNextID()
	require.NoError(t, err)
	require.Zero(t, next)

	for _, id := range []uint64{0, 3, 1} {
		require.NoError(t, s.EscrowPut(&escrow.Escrow{
			ID:          id,
			Payer:       addr(0x02),
			Payee:       addr(0x03),
			Asset:       "TOK",
			Amount:      big.NewInt(1),
			Deadline:    100,
			DAODeadline: 200,
			Status:      escrow.StatusActive,
		}))
	}
	next, err = s.SeedNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(4), next)

	// Erasing the highest row must not make its id available again.
	require.NoError(t, s.EscrowDelete(3))
	next, err = s.SeedNextID()
	require.NoError(t, err)
	require.Equal(t, uint64(4), next)
}

func TestNativeCollectAndSend(t *testing.T) {
	s := testStore(t)
	payer := addr(0x02)
	payee := addr(0x03)
	require.NoError(t, s.CreditNative(payer, big.NewInt(1_000)))

	require.NoError(t, s.NativeCollect(payer, big.NewInt(600)))
	vault, err := s.Account(VaultAddress)
	require.NoError(t, err)
	require.Zero(t, vault.BalanceNative.Cmp(big.NewInt(600)))

	require.Error(t, s.NativeCollect(payer, big.NewInt(500)), "overdraw must fail")

	require.NoError(t, s.NativeSend(payee, big.NewInt(600)))
	acc, err := s.Account(payee)
	require.NoError(t, err)
	require.Zero(t, acc.BalanceNative.Cmp(big.NewInt(600)))

	require.Error(t, s.NativeSend(payee, big.NewInt(1)), "vault must not overdraw")
}

func TestTokenPullAndPush(t *testing.T) {
	s := testStore(t)
	owner := addr(0x02)
	recipient := addr(0x03)
	require.NoError(t, s.CreditToken("TOK", owner, big.NewInt(100)))

	require.Error(t, s.TokenPull("TOK", owner, big.NewInt(101)))
	require.NoError(t, s.TokenPull("TOK", owner, big.NewInt(100)))
	require.NoError(t, s.TokenPush("TOK", recipient, big.NewInt(40)))

	acc, err := s.Account(recipient)
	require.NoError(t, err)
	require.Zero(t, acc.TokenBalance("TOK").Cmp(big.NewInt(40)))

	vault, err := s.Account(VaultAddress)
	require.NoError(t, err)
	require.Zero(t, vault.TokenBalance("TOK").Cmp(big.NewInt(60)))

	require.ErrorIs(t, s.TokenPull("NOPE", owner, big.NewInt(1)), errUnknownToken)
}

func TestTokenPrecision(t *testing.T) {
	s := testStore(t)
	precision, err := s.TokenPrecision("TOK")
	require.NoError(t, err)
	require.Equal(t, uint8(6), precision)

	_, err = s.TokenPrecision("NOPE")
	require.ErrorIs(t, err, errUnknownToken)
}

func TestStoreSatisfiesLedgerState(t *testing.T) {
	var _ escrow.State = testStore(t)
}
