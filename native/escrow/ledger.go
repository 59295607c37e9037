package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"daoescrow/core/events"
	"daoescrow/core/types"
	"daoescrow/native/fees"
)

// State is the contract the ledger requires from its collaborators: a record
// store for escrow rows plus the value-transfer substrate. Every transfer leg
// reports failure explicitly and is atomic on its own; the ledger sequences
// the legs and never interprets silence as success.
type State interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool)
	EscrowDelete(id uint64) error

	// NativeCollect pulls value attached to a creation call into the vault.
	NativeCollect(from [20]byte, amount *big.Int) error
	// NativeSend pays native currency out of the vault with a synchronous
	// success/failure signal.
	NativeSend(to [20]byte, amount *big.Int) error
	// TokenPull moves tokens from the owner into the vault.
	TokenPull(token string, owner [20]byte, amount *big.Int) error
	// TokenPush pays tokens out of the vault.
	TokenPush(token string, recipient [20]byte, amount *big.Int) error
	// TokenPrecision reports a token's fractional-unit precision.
	TokenPrecision(token string) (uint8, error)
}

var errNilState = fmt.Errorf("escrow: ledger state not configured")

// minNativeAmount is 0.01 units of the 18-decimal native currency.
var minNativeAmount = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals-2), nil)

// Ledger owns the escrow records, the arbiter identity, the standard fee rate
// and the monotonic identifier counter, and applies every lifecycle
// transition. One mutex serialises all operations; it doubles as the
// non-reentrant guard held across Withdraw so a transfer's side effects
// cannot re-enter the ledger mid-settlement.
type Ledger struct {
	mu      sync.Mutex
	state   State
	emitter events.Emitter
	arbiter [20]byte
	feeBps  uint32
	nextID  uint64
	nowFn   func() int64
}

// NewLedger creates a ledger governed by the supplied arbiter with the given
// standard fee rate.
func NewLedger(arbiter [20]byte, feeBps uint32) (*Ledger, error) {
	if arbiter == ([20]byte{}) {
		return nil, fmt.Errorf("%w: arbiter must not be the zero address", ErrInvalidParameter)
	}
	if !fees.ValidRate(feeBps) {
		return nil, fmt.Errorf("%w: fee rate %d bps outside [%d, %d]", ErrInvalidParameter, feeBps, fees.MinBasisPoints, fees.MaxBasisPoints)
	}
	return &Ledger{
		emitter: events.NoopEmitter{},
		arbiter: arbiter,
		feeBps:  feeBps,
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the record store and transfer substrate.
func (l *Ledger) SetState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// SetNextID restores the identifier counter, e.g. after a restart against a
// store that already holds records. Identifiers must never be reused, so the
// counter may only move forward.
func (l *Ledger) SetNextID(next uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if next > l.nextID {
		l.nextID = next
	}
}

// Arbiter returns the current dispute-resolver identity.
func (l *Ledger) Arbiter() [20]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.arbiter
}

// FeeBasisPoints returns the current standard fee rate.
func (l *Ledger) FeeBasisPoints() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeBps
}

// Get returns a copy of the escrow record, if it still exists.
func (l *Ledger) Get(id uint64) (*Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(id)
}

func (l *Ledger) emit(evt *types.Event) {
	if l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: evt})
}

func (l *Ledger) load(id uint64) (*Escrow, error) {
	if l.state == nil {
		return nil, errNilState
	}
	esc, ok := l.state.EscrowGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: escrow %d", ErrNotFound, id)
	}
	return esc, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// tokenMinimum derives the smallest creatable amount from a token's
// fractional precision: one hundredth of a whole token when the precision
// allows it, a single base unit otherwise.
func tokenMinimum(precision uint8) *big.Int {
	if precision >= 2 {
		return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision-2)), nil)
	}
	return big.NewInt(1)
}

// Create locks value between the caller (payer) and the payee and stores a
// new Active escrow under the next identifier. For the native currency the
// attached value must equal the declared amount; for tokens the ledger pulls
// the amount from the caller before any state is recorded, so a failed pull
// aborts the whole operation with nothing persisted.
func (l *Ledger) Create(caller, payee [20]byte, asset string, amount *big.Int, deadline, daoDeadline int64, attachedValue *big.Int) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return 0, errNilState
	}
	if caller == ([20]byte{}) {
		return 0, fmt.Errorf("%w: caller must not be the zero address", ErrInvalidParameter)
	}
	if payee == ([20]byte{}) {
		return 0, fmt.Errorf("%w: payee must not be the zero address", ErrInvalidParameter)
	}
	if payee == caller {
		return 0, fmt.Errorf("%w: payer and payee must be distinct", ErrInvalidParameter)
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return 0, err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidParameter)
	}
	now := l.nowFn()
	if deadline <= now {
		return 0, fmt.Errorf("%w: deadline must be in the future", ErrInvalidParameter)
	}
	if daoDeadline <= deadline {
		return 0, fmt.Errorf("%w: arbiter deadline must follow the party deadline", ErrInvalidParameter)
	}

	if normalized == NativeAsset {
		attached := cloneBigInt(attachedValue)
		if attached.Cmp(amt) != 0 {
			return 0, fmt.Errorf("%w: attached value %s does not match amount %s", ErrInvalidParameter, attached, amt)
		}
		if amt.Cmp(minNativeAmount) < 0 {
			return 0, fmt.Errorf("%w: amount below native minimum %s", ErrInvalidParameter, minNativeAmount)
		}
		if err := l.state.NativeCollect(caller, amt); err != nil {
			return 0, fmt.Errorf("%w: collect attached value: %v", ErrTransferFailed, err)
		}
	} else {
		if attachedValue != nil && attachedValue.Sign() != 0 {
			return 0, fmt.Errorf("%w: native value attached to a token escrow", ErrInvalidParameter)
		}
		precision, err := l.state.TokenPrecision(normalized)
		if err != nil {
			return 0, fmt.Errorf("%w: precision lookup for %s: %v", ErrInvalidParameter, normalized, err)
		}
		if min := tokenMinimum(precision); amt.Cmp(min) < 0 {
			return 0, fmt.Errorf("%w: amount below token minimum %s", ErrInvalidParameter, min)
		}
		if err := l.state.TokenPull(normalized, caller, amt); err != nil {
			return 0, fmt.Errorf("%w: pull %s: %v", ErrTransferFailed, normalized, err)
		}
	}

	esc := &Escrow{
		ID:          l.nextID,
		Payer:       caller,
		Payee:       payee,
		Asset:       normalized,
		Amount:      amt,
		Deadline:    deadline,
		DAODeadline: daoDeadline,
		CreatedAt:   now,
		Status:      StatusActive,
	}
	if err := l.state.EscrowPut(esc); err != nil {
		// Undo the pull so a failed store leaves no value behind.
		if normalized == NativeAsset {
			_ = l.state.NativeSend(caller, amt)
		} else {
			_ = l.state.TokenPush(normalized, caller, amt)
		}
		return 0, err
	}
	l.nextID++
	l.emit(NewCreatedEvent(esc))
	return esc.ID, nil
}

// transition loads the escrow, applies the shared Active-state checks and
// stores the new status. Callers supply the role and temporal gates.
func (l *Ledger) transition(id uint64, caller [20]byte, check func(*Escrow, int64) error, next Status, evt func(*Escrow) *types.Event) error {
	esc, err := l.load(id)
	if err != nil {
		return err
	}
	if err := check(esc, l.nowFn()); err != nil {
		return err
	}
	esc.Status = next
	if err := l.state.EscrowPut(esc); err != nil {
		return err
	}
	if evt != nil {
		l.emit(evt(esc))
	}
	return nil
}

// Release settles an Active escrow in favour of the payee. Payer only, and
// only while the deadline is open.
func (l *Ledger) Release(id uint64, caller [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusActive {
			return fmt.Errorf("%w: cannot release in status %s", ErrInvalidState, esc.Status)
		}
		if caller != esc.Payer {
			return fmt.Errorf("%w: only the payer may release", ErrUnauthorized)
		}
		if now > esc.Deadline {
			return fmt.Errorf("%w: release window closed", ErrDeadlinePassed)
		}
		return nil
	}, StatusReleased, nil)
}

// ReturnFunds settles an Active escrow back to the payer. Payee only, and
// only while the deadline is open.
func (l *Ledger) ReturnFunds(id uint64, caller [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusActive {
			return fmt.Errorf("%w: cannot return in status %s", ErrInvalidState, esc.Status)
		}
		if caller != esc.Payee {
			return fmt.Errorf("%w: only the payee may return funds", ErrUnauthorized)
		}
		if now > esc.Deadline {
			return fmt.Errorf("%w: return window closed", ErrDeadlinePassed)
		}
		return nil
	}, StatusReturned, nil)
}

// ReleaseAfterDeadline moves an Active escrow to Returned once the deadline
// has passed. Despite the name, funds go back to the payer, and only the
// payer may invoke it; the naming is kept for compatibility with the original
// interface.
func (l *Ledger) ReleaseAfterDeadline(id uint64, caller [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusActive {
			return fmt.Errorf("%w: cannot settle in status %s", ErrInvalidState, esc.Status)
		}
		if caller != esc.Payer {
			return fmt.Errorf("%w: only the payer may settle after the deadline", ErrUnauthorized)
		}
		if now <= esc.Deadline {
			return fmt.Errorf("%w: deadline still open", ErrDeadlineNotReached)
		}
		return nil
	}, StatusReturned, nil)
}

// Dispute escalates an Active escrow. Payer only, and only while the deadline
// is open.
func (l *Ledger) Dispute(id uint64, caller [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusActive {
			return fmt.Errorf("%w: cannot dispute in status %s", ErrInvalidState, esc.Status)
		}
		if caller != esc.Payer {
			return fmt.Errorf("%w: only the payer may dispute", ErrUnauthorized)
		}
		if now > esc.Deadline {
			return fmt.Errorf("%w: dispute window closed", ErrDeadlinePassed)
		}
		return nil
	}, StatusDisputed, func(esc *Escrow) *types.Event {
		return NewDisputeRaisedEvent(esc.ID)
	})
}

// DAODispute lets the arbiter force a dispute, but only once the payer's
// release window has closed, so the arbiter cannot preempt an amicable
// resolution.
func (l *Ledger) DAODispute(id uint64, caller [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusActive {
			return fmt.Errorf("%w: cannot dispute in status %s", ErrInvalidState, esc.Status)
		}
		if caller != l.arbiter {
			return fmt.Errorf("%w: only the arbiter may force a dispute", ErrUnauthorized)
		}
		if now < esc.Deadline {
			return fmt.Errorf("%w: party deadline still open", ErrDeadlineNotReached)
		}
		return nil
	}, StatusDisputed, func(esc *Escrow) *types.Event {
		return NewDisputeRaisedEvent(esc.ID)
	})
}

// Resolve records the arbiter's ruling on a disputed escrow. The resolution
// must be exactly DisputedReleased or DisputedReturned, and the ruling must
// land before the arbiter deadline; after that the escrow stays Disputed and
// becomes withdrawable by default in favour of the payer.
func (l *Ledger) Resolve(id uint64, caller [20]byte, resolution Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if resolution != StatusDisputedReleased && resolution != StatusDisputedReturned {
		return fmt.Errorf("%w: resolution must be %s or %s", ErrInvalidParameter, StatusDisputedReleased, StatusDisputedReturned)
	}
	return l.transition(id, caller, func(esc *Escrow, now int64) error {
		if esc.Status != StatusDisputed {
			return fmt.Errorf("%w: cannot resolve in status %s", ErrInvalidState, esc.Status)
		}
		if caller != l.arbiter {
			return fmt.Errorf("%w: only the arbiter may resolve", ErrUnauthorized)
		}
		if now > esc.DAODeadline {
			return fmt.Errorf("%w: ruling window closed", ErrDeadlinePassed)
		}
		return nil
	}, resolution, func(esc *Escrow) *types.Event {
		return NewDisputeResolvedEvent(esc.ID, esc.Status)
	})
}

// settlement resolves the recipient and fee rate for a withdrawable status.
func (l *Ledger) settlement(esc *Escrow, now int64) (recipient [20]byte, bps uint32, err error) {
	switch esc.Status {
	case StatusReleased:
		return esc.Payee, l.feeBps, nil
	case StatusReturned:
		return esc.Payer, l.feeBps, nil
	case StatusDisputed:
		// Arbiter failed to rule in time; default to the payer at the
		// standard rate.
		if now < esc.DAODeadline {
			return recipient, 0, fmt.Errorf("%w: ruling window still open", ErrDeadlineNotReached)
		}
		return esc.Payer, l.feeBps, nil
	case StatusDisputedReleased:
		return esc.Payee, fees.ArbitratedBasisPoints, nil
	case StatusDisputedReturned:
		return esc.Payer, fees.ArbitratedBasisPoints, nil
	default:
		return recipient, 0, fmt.Errorf("%w: cannot withdraw in status %s", ErrInvalidState, esc.Status)
	}
}

// Withdraw disburses a settled escrow: the fee leg to the arbiter first, then
// the remainder to the recipient, after which the record is erased for good.
// A failed transfer leaves the record intact and the status unchanged so the
// call can be retried; a second withdrawal of the same identifier fails with
// ErrNotFound because the record no longer exists. The ledger mutex is held
// for the full settlement, so external transfers cannot re-enter the ledger.
func (l *Ledger) Withdraw(id uint64, caller [20]byte) (recipient [20]byte, paid *big.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, err := l.load(id)
	if err != nil {
		return recipient, nil, err
	}
	if caller != l.arbiter && caller != esc.Payer && caller != esc.Payee {
		return recipient, nil, fmt.Errorf("%w: withdraw restricted to the escrow parties and the arbiter", ErrUnauthorized)
	}
	recipient, bps, err := l.settlement(esc, l.nowFn())
	if err != nil {
		return [20]byte{}, nil, err
	}
	fee, payout := fees.Split(esc.Amount, bps)
	if esc.Asset == NativeAsset {
		if fee.Sign() > 0 {
			if err := l.state.NativeSend(l.arbiter, fee); err != nil {
				return [20]byte{}, nil, fmt.Errorf("%w: fee leg: %v", ErrTransferFailed, err)
			}
		}
		if payout.Sign() > 0 {
			if err := l.state.NativeSend(recipient, payout); err != nil {
				return [20]byte{}, nil, fmt.Errorf("%w: payout leg: %v", ErrTransferFailed, err)
			}
		}
	} else {
		if fee.Sign() > 0 {
			if err := l.state.TokenPush(esc.Asset, l.arbiter, fee); err != nil {
				return [20]byte{}, nil, fmt.Errorf("%w: fee leg: %v", ErrTransferFailed, err)
			}
		}
		if payout.Sign() > 0 {
			if err := l.state.TokenPush(esc.Asset, recipient, payout); err != nil {
				return [20]byte{}, nil, fmt.Errorf("%w: payout leg: %v", ErrTransferFailed, err)
			}
		}
	}
	if err := l.state.EscrowDelete(id); err != nil {
		return [20]byte{}, nil, err
	}
	l.emit(NewFundsWithdrawnEvent(id, recipient, payout))
	return recipient, payout, nil
}

// SetFeeBasisPoints updates the standard fee rate. Arbiter only; the rate
// must stay inside the configurable window.
func (l *Ledger) SetFeeBasisPoints(caller [20]byte, newRate uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.arbiter {
		return fmt.Errorf("%w: only the arbiter may change the fee rate", ErrUnauthorized)
	}
	if !fees.ValidRate(newRate) {
		return fmt.Errorf("%w: fee rate %d bps outside [%d, %d]", ErrInvalidParameter, newRate, fees.MinBasisPoints, fees.MaxBasisPoints)
	}
	l.feeBps = newRate
	l.emit(NewFeeRateChangedEvent(newRate))
	return nil
}

// SetArbiter transfers control of the arbiter identity. Losing the new
// identity permanently strands any escrow still requiring arbiter action;
// that risk sits with the arbiter, not the ledger.
func (l *Ledger) SetArbiter(caller, newArbiter [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.arbiter {
		return fmt.Errorf("%w: only the current arbiter may transfer control", ErrUnauthorized)
	}
	if newArbiter == ([20]byte{}) {
		return fmt.Errorf("%w: new arbiter must not be the zero address", ErrInvalidParameter)
	}
	l.arbiter = newArbiter
	l.emit(NewArbiterChangedEvent(newArbiter))
	return nil
}
