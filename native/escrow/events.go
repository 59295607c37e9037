package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"daoescrow/core/types"
)

const (
	EventTypeCreated         = "escrow.created"
	EventTypeFundsWithdrawn  = "escrow.withdrawn"
	EventTypeDisputeRaised   = "escrow.disputed"
	EventTypeDisputeResolved = "escrow.resolved"
	EventTypeArbiterChanged  = "escrow.arbiter_changed"
	EventTypeFeeRateChanged  = "escrow.fee_changed"
)

// assetLabel renders an asset reference for event payloads, naming the
// sentinel native asset explicitly.
func assetLabel(asset string) string {
	if asset == NativeAsset {
		return "native"
	}
	return asset
}

// NewCreatedEvent returns the canonical fact payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["id"] = strconv.FormatUint(e.ID, 10)
		attrs["payer"] = hex.EncodeToString(e.Payer[:])
		attrs["payee"] = hex.EncodeToString(e.Payee[:])
		if e.Amount != nil {
			attrs["amount"] = e.Amount.String()
		}
		attrs["asset"] = assetLabel(e.Asset)
	}
	return &types.Event{Type: EventTypeCreated, Attributes: attrs}
}

// NewFundsWithdrawnEvent returns the fact payload emitted after a successful
// settlement, carrying the final recipient and the amount paid out.
func NewFundsWithdrawnEvent(id uint64, recipient [20]byte, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"id":        strconv.FormatUint(id, 10),
		"recipient": hex.EncodeToString(recipient[:]),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeFundsWithdrawn, Attributes: attrs}
}

// NewDisputeRaisedEvent returns the fact payload emitted when an escrow is
// marked as disputed.
func NewDisputeRaisedEvent(id uint64) *types.Event {
	return &types.Event{Type: EventTypeDisputeRaised, Attributes: map[string]string{
		"id": strconv.FormatUint(id, 10),
	}}
}

// NewDisputeResolvedEvent returns the fact payload emitted when the arbiter
// rules on a dispute.
func NewDisputeResolvedEvent(id uint64, newStatus Status) *types.Event {
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: map[string]string{
		"id":        strconv.FormatUint(id, 10),
		"newStatus": newStatus.String(),
	}}
}

// NewArbiterChangedEvent returns the fact payload emitted when control of the
// arbiter identity moves.
func NewArbiterChangedEvent(newArbiter [20]byte) *types.Event {
	return &types.Event{Type: EventTypeArbiterChanged, Attributes: map[string]string{
		"newArbiter": hex.EncodeToString(newArbiter[:]),
	}}
}

// NewFeeRateChangedEvent returns the fact payload emitted when the standard
// basis-point fee rate is updated.
func NewFeeRateChangedEvent(newRate uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeRateChanged, Attributes: map[string]string{
		"newRate": strconv.FormatUint(uint64(newRate), 10),
	}}
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }
