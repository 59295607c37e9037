package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states of an escrow. The numeric values are
// the status codes consumed by external indexers and must stay stable.
type Status uint8

const (
	StatusActive Status = iota
	StatusReleased
	StatusReturned
	StatusDisputed
	StatusDisputedReleased
	StatusDisputedReturned
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return s <= StatusDisputedReturned
}

// Withdrawable reports whether funds can leave the escrow from this status.
// Active escrows hold their funds until a transition settles the outcome; the
// Disputed case is additionally gated on the arbiter deadline by the ledger.
func (s Status) Withdrawable() bool {
	switch s {
	case StatusReleased, StatusReturned, StatusDisputed, StatusDisputedReleased, StatusDisputedReturned:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusReleased:
		return "released"
	case StatusReturned:
		return "returned"
	case StatusDisputed:
		return "disputed"
	case StatusDisputedReleased:
		return "disputed_released"
	case StatusDisputedReturned:
		return "disputed_returned"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts a raw status code into a Status, rejecting unknown
// codes at the boundary instead of propagating raw integers.
func ParseStatus(code uint8) (Status, error) {
	s := Status(code)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: unknown status code %d", ErrInvalidParameter, code)
	}
	return s, nil
}

// NativeAsset is the sentinel asset reference distinguishing the chain's base
// currency from a fungible token.
const NativeAsset = ""

// NativeDecimals is the fractional precision of the native currency.
const NativeDecimals = 18

// NormalizeAsset canonicalises an asset reference. The empty string denotes
// the native currency; anything else must be a plain alphanumeric token
// symbol, returned in uppercase.
func NormalizeAsset(ref string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(ref))
	if trimmed == "" {
		return NativeAsset, nil
	}
	if len(trimmed) > 16 {
		return "", fmt.Errorf("%w: token symbol too long", ErrInvalidParameter)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: malformed token symbol %q", ErrInvalidParameter, ref)
		}
	}
	return trimmed, nil
}

// Escrow captures one locked-value agreement between a payer and payee. The
// identifier is assigned sequentially by the ledger and never reused; the
// record exists from creation until its funds are fully disbursed, at which
// point it is erased.
type Escrow struct {
	ID          uint64
	Payer       [20]byte
	Payee       [20]byte
	Asset       string
	Amount      *big.Int
	Deadline    int64
	DAODeadline int64
	CreatedAt   int64
	Status      Status
}

// Clone returns a deep copy of the escrow so callers can mutate the copy
// without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Sanitize validates and normalises an escrow record, returning a cloned
// instance with a canonical asset reference and non-nil amount. Storage
// adapters run records through this before persisting them.
func Sanitize(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil escrow", ErrInvalidParameter)
	}
	clone := e.Clone()
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidParameter)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %d", ErrInvalidParameter, clone.Status)
	}
	if clone.DAODeadline <= clone.Deadline {
		return nil, fmt.Errorf("%w: arbiter deadline must follow the party deadline", ErrInvalidParameter)
	}
	return clone, nil
}
