package types

import "math/big"

// Account tracks the balances held by a single address inside the transfer
// substrate: the native currency balance plus one balance per fungible token
// symbol. The escrow vault is an ordinary account under a reserved address.
type Account struct {
	BalanceNative *big.Int            `json:"balanceNative"`
	Tokens        map[string]*big.Int `json:"tokens,omitempty"`
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{BalanceNative: big.NewInt(0), Tokens: make(map[string]*big.Int)}
}

// Normalize ensures all balance fields are non-nil so callers can operate on
// the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.BalanceNative == nil {
		a.BalanceNative = big.NewInt(0)
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]*big.Int)
	}
	return a
}

// TokenBalance returns the balance held for the given token symbol, treating
// missing entries as zero.
func (a *Account) TokenBalance(symbol string) *big.Int {
	if a == nil || a.Tokens == nil {
		return big.NewInt(0)
	}
	bal, ok := a.Tokens[symbol]
	if !ok || bal == nil {
		return big.NewInt(0)
	}
	return bal
}
