package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseStatusRejectsUnknownCodes(t *testing.T) {
	for code := uint8(0); code <= uint8(StatusDisputedReturned); code++ {
		status, err := ParseStatus(code)
		if err != nil {
			t.Fatalf("code %d: %v", code, err)
		}
		if uint8(status) != code {
			t.Fatalf("code %d round-tripped to %d", code, status)
		}
	}
	for _, code := range []uint8{6, 7, 42, 255} {
		if _, err := ParseStatus(code); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("code %d: expected ErrInvalidParameter, got %v", code, err)
		}
	}
}

func TestStatusWithdrawable(t *testing.T) {
	if StatusActive.Withdrawable() {
		t.Fatalf("Active must not be withdrawable")
	}
	for _, s := range []Status{StatusReleased, StatusReturned, StatusDisputed, StatusDisputedReleased, StatusDisputedReturned} {
		if !s.Withdrawable() {
			t.Fatalf("%s must be withdrawable", s)
		}
	}
}

func TestNormalizeAsset(t *testing.T) {
	if asset, err := NormalizeAsset("  tok "); err != nil || asset != "TOK" {
		t.Fatalf("expected TOK, got %q (%v)", asset, err)
	}
	if asset, err := NormalizeAsset(""); err != nil || asset != NativeAsset {
		t.Fatalf("expected native sentinel, got %q (%v)", asset, err)
	}
	for _, ref := range []string{"has space", "bad-sym", "x£y", "AAAAAAAAAAAAAAAAA"} {
		if _, err := NormalizeAsset(ref); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("%q: expected ErrInvalidParameter, got %v", ref, err)
		}
	}
}

func TestSanitizeEnforcesDeadlineOrdering(t *testing.T) {
	esc := &Escrow{
		Payer:       newTestAddress(0x02),
		Payee:       newTestAddress(0x03),
		Asset:       "tok",
		Amount:      big.NewInt(1),
		Deadline:    200,
		DAODeadline: 100,
		Status:      StatusActive,
	}
	if _, err := Sanitize(esc); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected deadline ordering violation, got %v", err)
	}
	esc.DAODeadline = 300
	sanitized, err := Sanitize(esc)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Asset != "TOK" {
		t.Fatalf("expected canonical asset, got %q", sanitized.Asset)
	}
	// Sanitize must not alias the original.
	sanitized.Amount.SetInt64(99)
	if esc.Amount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("sanitize mutated the original amount")
	}
}

func TestCloneIsDeep(t *testing.T) {
	esc := &Escrow{ID: 7, Amount: big.NewInt(42)}
	clone := esc.Clone()
	clone.Amount.SetInt64(0)
	if esc.Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("clone aliases the amount")
	}
}

func TestTokenMinimum(t *testing.T) {
	cases := []struct {
		precision uint8
		want      int64
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 10},
		{6, 10_000},
		{18, 10_000_000_000_000_000},
	}
	for _, tc := range cases {
		if got := tokenMinimum(tc.precision); got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("precision %d: expected %d, got %s", tc.precision, tc.want, got)
		}
	}
}
