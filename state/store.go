// Package state adapts a key-value Database into the record store and
// value-transfer substrate the escrow ledger depends on. Accounts, the vault
// and escrow rows are plain JSON records; the vault is an ordinary account
// under a reserved address so every transfer is double-entry.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"daoescrow/core/types"
	"daoescrow/native/escrow"
	"daoescrow/storage"
)

var (
	escrowPrefix  = []byte("escrow/")
	accountPrefix = []byte("account/")
	nextIDKey     = []byte("meta/escrow-next")
)

// VaultAddress is the reserved account holding all locked value.
var VaultAddress = [20]byte{0xee, 0x5c, 0x10, 0x77} // no private key maps here

var errUnknownToken = errors.New("state: unknown token")

// Store implements escrow.State on top of a storage.Database.
type Store struct {
	mu     sync.Mutex
	db     storage.Database
	tokens map[string]uint8
}

// New creates a store over the given database. The tokens map is the token
// registry: symbol to fractional-unit precision. Only registered tokens can
// be escrowed.
func New(db storage.Database, tokens map[string]uint8) *Store {
	registry := make(map[string]uint8, len(tokens))
	for symbol, precision := range tokens {
		if normalized, err := escrow.NormalizeAsset(symbol); err == nil && normalized != escrow.NativeAsset {
			registry[normalized] = precision
		}
	}
	return &Store{db: db, tokens: registry}
}

func escrowKey(id uint64) []byte {
	key := make([]byte, len(escrowPrefix)+8)
	copy(key, escrowPrefix)
	binary.BigEndian.PutUint64(key[len(escrowPrefix):], id)
	return key
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), []byte(hex.EncodeToString(addr[:]))...)
}

// storedEscrow is the persisted form of an escrow row. Addresses are hex
// strings and the amount a decimal string so rows stay readable in debugging
// tools.
type storedEscrow struct {
	ID          uint64 `json:"id"`
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Deadline    int64  `json:"deadline"`
	DAODeadline int64  `json:"daoDeadline"`
	CreatedAt   int64  `json:"createdAt"`
	Status      uint8  `json:"status"`
}

func encodeEscrow(e *escrow.Escrow) ([]byte, error) {
	row := storedEscrow{
		ID:          e.ID,
		Payer:       hex.EncodeToString(e.Payer[:]),
		Payee:       hex.EncodeToString(e.Payee[:]),
		Asset:       e.Asset,
		Amount:      e.Amount.String(),
		Deadline:    e.Deadline,
		DAODeadline: e.DAODeadline,
		CreatedAt:   e.CreatedAt,
		Status:      uint8(e.Status),
	}
	return json.Marshal(row)
}

func decodeAddress(s string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, err
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("state: address length %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func decodeEscrow(data []byte) (*escrow.Escrow, error) {
	var row storedEscrow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	payer, err := decodeAddress(row.Payer)
	if err != nil {
		return nil, fmt.Errorf("state: decode payer: %w", err)
	}
	payee, err := decodeAddress(row.Payee)
	if err != nil {
		return nil, fmt.Errorf("state: decode payee: %w", err)
	}
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed amount %q", row.Amount)
	}
	status, err := escrow.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	return &escrow.Escrow{
		ID:          row.ID,
		Payer:       payer,
		Payee:       payee,
		Asset:       row.Asset,
		Amount:      amount,
		Deadline:    row.Deadline,
		DAODeadline: row.DAODeadline,
		CreatedAt:   row.CreatedAt,
		Status:      status,
	}, nil
}

// EscrowPut persists an escrow row after sanitising it. The identifier
// high-water mark is advanced alongside the row so a restart never hands out
// an id that has already existed, even if its row was erased since.
func (s *Store) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.Sanitize(e)
	if err != nil {
		return err
	}
	data, err := encodeEscrow(sanitized)
	if err != nil {
		return err
	}
	if err := s.db.Put(escrowKey(sanitized.ID), data); err != nil {
		return err
	}
	return s.advanceNextID(sanitized.ID + 1)
}

func (s *Store) advanceNextID(next uint64) error {
	if stored, err := s.storedNextID(); err != nil {
		return err
	} else if next <= stored {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	return s.db.Put(nextIDKey, buf)
}

func (s *Store) storedNextID() (uint64, error) {
	data, err := s.db.Get(nextIDKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: malformed id high-water mark")
	}
	return binary.BigEndian.Uint64(data), nil
}

// EscrowGet loads an escrow row, reporting absence via the bool.
func (s *Store) EscrowGet(id uint64) (*escrow.Escrow, bool) {
	data, err := s.db.Get(escrowKey(id))
	if err != nil {
		return nil, false
	}
	esc, err := decodeEscrow(data)
	if err != nil {
		return nil, false
	}
	return esc, true
}

// EscrowDelete erases an escrow row.
func (s *Store) EscrowDelete(id uint64) error {
	return s.db.Delete(escrowKey(id))
}

// SeedNextID returns the next identifier a restarted ledger must hand out so
// ids are never reused. The persisted high-water mark is authoritative; the
// row scan backstops stores written before the mark existed.
func (s *Store) SeedNextID() (uint64, error) {
	next, err := s.storedNextID()
	if err != nil {
		return 0, err
	}
	err = s.db.Iterate(escrowPrefix, func(key, value []byte) bool {
		if len(key) == len(escrowPrefix)+8 {
			id := binary.BigEndian.Uint64(key[len(escrowPrefix):])
			if id+1 > next {
				next = id + 1
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) account(addr [20]byte) (*types.Account, error) {
	data, err := s.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	acc := &types.Account{}
	if err := json.Unmarshal(data, acc); err != nil {
		return nil, err
	}
	return acc.Normalize(), nil
}

func (s *Store) putAccount(addr [20]byte, acc *types.Account) error {
	data, err := json.Marshal(acc.Normalize())
	if err != nil {
		return err
	}
	return s.db.Put(accountKey(addr), data)
}

// Account returns a snapshot of the balances held by an address.
func (s *Store) Account(addr [20]byte) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(addr)
}

func (s *Store) moveNative(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: malformed transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := s.account(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceNative.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient native balance")
	}
	toAcc, err := s.account(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceNative = new(big.Int).Sub(fromAcc.BalanceNative, amount)
	toAcc.BalanceNative = new(big.Int).Add(toAcc.BalanceNative, amount)
	if err := s.putAccount(from, fromAcc); err != nil {
		return err
	}
	return s.putAccount(to, toAcc)
}

func (s *Store) moveToken(token string, from, to [20]byte, amount *big.Int) error {
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", errUnknownToken, token)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: malformed transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := s.account(from)
	if err != nil {
		return err
	}
	if fromAcc.TokenBalance(token).Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient %s balance", token)
	}
	toAcc, err := s.account(to)
	if err != nil {
		return err
	}
	fromAcc.Tokens[token] = new(big.Int).Sub(fromAcc.TokenBalance(token), amount)
	toAcc.Tokens[token] = new(big.Int).Add(toAcc.TokenBalance(token), amount)
	if err := s.putAccount(from, fromAcc); err != nil {
		return err
	}
	return s.putAccount(to, toAcc)
}

// NativeCollect pulls attached native value from the payer into the vault.
func (s *Store) NativeCollect(from [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveNative(from, VaultAddress, amount)
}

// NativeSend pays native currency out of the vault.
func (s *Store) NativeSend(to [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveNative(VaultAddress, to, amount)
}

// TokenPull moves tokens from the owner into the vault.
func (s *Store) TokenPull(token string, owner [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveToken(token, owner, VaultAddress, amount)
}

// TokenPush pays tokens out of the vault.
func (s *Store) TokenPush(token string, recipient [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveToken(token, VaultAddress, recipient, amount)
}

// TokenPrecision reports the registered fractional precision for a token.
func (s *Store) TokenPrecision(token string) (uint8, error) {
	precision, ok := s.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errUnknownToken, token)
	}
	return precision, nil
}

// CreditNative mints native balance onto an address. Deployment bootstrap and
// test funding only; the production substrate owns issuance.
func (s *Store) CreditNative(addr [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.account(addr)
	if err != nil {
		return err
	}
	acc.BalanceNative = new(big.Int).Add(acc.BalanceNative, amount)
	return s.putAccount(addr, acc)
}

// CreditToken mints token balance onto an address. Same caveat as
// CreditNative.
func (s *Store) CreditToken(token string, addr [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", errUnknownToken, token)
	}
	acc, err := s.account(addr)
	if err != nil {
		return err
	}
	acc.Tokens[token] = new(big.Int).Add(acc.TokenBalance(token), amount)
	return s.putAccount(addr, acc)
}
