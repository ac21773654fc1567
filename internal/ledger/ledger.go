// Package ledger keeps per-address balances, the immutable transaction
// log, and lazily created user records. State lives in memory and is
// written through to a snapshot store after every mutation so a restart
// resumes where it left off.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/debearparty/backend/internal/config"
	"github.com/debearparty/backend/internal/models"
	"github.com/debearparty/backend/internal/store"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrBelowMinimum       = errors.New("amount below minimum")
	ErrDuplicateTxHash    = errors.New("transaction hash already used")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidUsername    = errors.New("username must be 3-20 letters, digits or underscores")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameSet        = errors.New("username can only be set once")
	ErrWithdrawInProgress = errors.New("a withdrawal is already in progress")
	ErrNoFrozenFunds      = errors.New("no frozen funds for address")
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_]{3,20}$`)

// Ledger is the single source of truth for balances. All exported
// methods are safe for concurrent use.
type Ledger struct {
	mu  sync.Mutex
	cfg *config.Config
	st  store.Store

	verifier DepositVerifier
	transfer ChainTransfer

	balances        map[string]float64
	frozen          map[string]float64
	users           map[string]*models.User
	usernames       map[string]string // lowercased username -> address
	transactions    []models.Transaction
	pendingDeposits map[string]*models.PendingDeposit
	usedTxHashes    map[string]bool

	now func() time.Time
}

// snapshot is the persisted form of the ledger.
type snapshot struct {
	Balances        map[string]float64                `json:"balances"`
	Frozen          map[string]float64                `json:"frozen"`
	Users           map[string]*models.User           `json:"users"`
	Transactions    []models.Transaction              `json:"transactions"`
	PendingDeposits map[string]*models.PendingDeposit `json:"pending_deposits"`
	UsedTxHashes    []string                          `json:"used_tx_hashes"`
}

func New(cfg *config.Config, st store.Store, verifier DepositVerifier, transfer ChainTransfer) (*Ledger, error) {
	l := &Ledger{
		cfg:             cfg,
		st:              st,
		verifier:        verifier,
		transfer:        transfer,
		balances:        make(map[string]float64),
		frozen:          make(map[string]float64),
		users:           make(map[string]*models.User),
		usernames:       make(map[string]string),
		pendingDeposits: make(map[string]*models.PendingDeposit),
		usedTxHashes:    make(map[string]bool),
		now:             time.Now,
	}

	data, err := st.Load(context.Background(), store.KeyLedger)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Println("[LEDGER] No snapshot found, starting fresh")
			return l, nil
		}
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode ledger snapshot: %w", err)
	}
	if snap.Balances != nil {
		l.balances = snap.Balances
	}
	if snap.Frozen != nil {
		l.frozen = snap.Frozen
	}
	if snap.Users != nil {
		l.users = snap.Users
	}
	l.transactions = snap.Transactions
	if snap.PendingDeposits != nil {
		l.pendingDeposits = snap.PendingDeposits
	}
	for _, h := range snap.UsedTxHashes {
		l.usedTxHashes[h] = true
	}
	for addr, u := range l.users {
		if u.Username != "" {
			l.usernames[strings.ToLower(u.Username)] = addr
		}
	}
	// An interrupted withdrawal leaves funds frozen with the chain
	// transfer outcome unknown. They stay frozen until an operator
	// reconciles them against the chain.
	for addr, amt := range l.frozen {
		if amt > 0 {
			log.Printf("[LEDGER] %s has %.2f frozen by an interrupted withdrawal, manual reconciliation required", addr, amt)
		}
	}
	log.Printf("[LEDGER] Restored snapshot: %d users, %d transactions, %d pending deposits",
		len(l.users), len(l.transactions), len(l.pendingDeposits))
	return l, nil
}

// persist writes the current state to the snapshot store. Must be
// called with the mutex held.
func (l *Ledger) persist(ctx context.Context) error {
	hashes := make([]string, 0, len(l.usedTxHashes))
	for h := range l.usedTxHashes {
		hashes = append(hashes, h)
	}
	data, err := json.Marshal(snapshot{
		Balances:        l.balances,
		Frozen:          l.frozen,
		Users:           l.users,
		Transactions:    l.transactions,
		PendingDeposits: l.pendingDeposits,
		UsedTxHashes:    hashes,
	})
	if err != nil {
		return fmt.Errorf("failed to encode ledger snapshot: %w", err)
	}
	if err := l.st.Save(ctx, store.KeyLedger, data); err != nil {
		return fmt.Errorf("failed to save ledger snapshot: %w", err)
	}
	return nil
}

// ensureUser creates a user record on the first credit for an unknown
// address. Must be called with the mutex held.
func (l *Ledger) ensureUser(address string) *models.User {
	if u, ok := l.users[address]; ok {
		return u
	}
	u := &models.User{
		UID:       "user_" + generateID(10),
		Address:   address,
		CreatedAt: l.now(),
	}
	l.users[address] = u
	log.Printf("[LEDGER] Created user %s for address %s", u.UID, address)
	return u
}

func (l *Ledger) appendTx(tx models.Transaction) {
	tx.ID = generateTransactionID()
	tx.Timestamp = l.now()
	l.transactions = append(l.transactions, tx)
}

// Balance returns the available and frozen balance for an address.
// Unknown addresses report zero.
func (l *Ledger) Balance(address string) (available, frozen float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address], l.frozen[address]
}

// Credit adds amount to the address's available balance and records a
// transaction. Unknown addresses get a user record. Returns the new
// available balance.
func (l *Ledger) Credit(ctx context.Context, address string, amount float64, txType string, gameID int64, description string) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureUser(address)
	l.balances[address] += amount
	l.appendTx(models.Transaction{
		Type:        txType,
		Address:     address,
		Amount:      amount,
		GameID:      gameID,
		Description: description,
		Status:      models.StatusCompleted,
	})
	if err := l.persist(ctx); err != nil {
		l.balances[address] -= amount
		l.transactions = l.transactions[:len(l.transactions)-1]
		return l.balances[address], err
	}
	return l.balances[address], nil
}

// Debit removes amount from the address's available balance. Fails
// without side effects when the available balance is short. Returns the
// new available balance.
func (l *Ledger) Debit(ctx context.Context, address string, amount float64, txType string, gameID int64, description string) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[address] < amount {
		return l.balances[address], ErrInsufficientFunds
	}
	l.balances[address] -= amount
	l.appendTx(models.Transaction{
		Type:        txType,
		Address:     address,
		Amount:      amount,
		GameID:      gameID,
		Description: description,
		Status:      models.StatusCompleted,
	})
	if err := l.persist(ctx); err != nil {
		l.balances[address] += amount
		l.transactions = l.transactions[:len(l.transactions)-1]
		return l.balances[address], err
	}
	return l.balances[address], nil
}

// DepositResult reports the outcome of a deposit attempt. A deposit
// whose transaction has too few confirmations stays pending and can be
// retried with the same hash.
type DepositResult struct {
	Completed     bool    `json:"completed"`
	Confirmations int     `json:"confirmations"`
	Required      int     `json:"required"`
	Amount        float64 `json:"amount,omitempty"`
	NewBalance    float64 `json:"new_balance,omitempty"`
	TxID          string  `json:"tx_id,omitempty"`
}

// DepositExternal verifies an on-chain transfer and credits the address
// once the confirmation threshold is reached. Each tx hash can fund at
// most one deposit. amountHint is only consulted by verifiers that
// cannot read amounts from the chain.
func (l *Ledger) DepositExternal(ctx context.Context, address, txHash string, amountHint float64) (*DepositResult, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, errors.New("transaction hash is required")
	}

	l.mu.Lock()
	if l.usedTxHashes[txHash] {
		l.mu.Unlock()
		return nil, ErrDuplicateTxHash
	}
	l.mu.Unlock()

	info, err := l.verifier.VerifyDeposit(ctx, txHash, address, amountHint)
	if err != nil {
		var nc *NotConfirmedError
		if errors.As(err, &nc) {
			l.mu.Lock()
			defer l.mu.Unlock()
			pd, ok := l.pendingDeposits[txHash]
			if !ok {
				pd = &models.PendingDeposit{
					TxHash:      txHash,
					Address:     address,
					FirstSeenAt: l.now(),
				}
				l.pendingDeposits[txHash] = pd
			}
			pd.Confirmations = nc.Confirmations
			pd.LastCheckedAt = l.now()
			if err := l.persist(ctx); err != nil {
				return nil, err
			}
			return &DepositResult{
				Completed:     false,
				Confirmations: nc.Confirmations,
				Required:      nc.Required,
			}, nil
		}
		return nil, err
	}

	if info.Amount < l.cfg.MinDeposit {
		return nil, ErrBelowMinimum
	}
	return l.completeDeposit(ctx, address, txHash, info)
}

// completeDeposit credits a verified deposit exactly once.
func (l *Ledger) completeDeposit(ctx context.Context, address, txHash string, info *DepositInfo) (*DepositResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.usedTxHashes[txHash] {
		return nil, ErrDuplicateTxHash
	}
	l.usedTxHashes[txHash] = true
	delete(l.pendingDeposits, txHash)

	u := l.ensureUser(address)
	if u.FirstDepositAt.IsZero() {
		u.FirstDepositAt = l.now()
	}
	l.balances[address] += info.Amount
	l.appendTx(models.Transaction{
		Type:          models.TxDeposit,
		Address:       address,
		Amount:        info.Amount,
		TxHash:        txHash,
		BlockNumber:   info.BlockNumber,
		Confirmations: info.Confirmations,
		Verified:      true,
		Status:        models.StatusCompleted,
	})
	txID := l.transactions[len(l.transactions)-1].ID
	if err := l.persist(ctx); err != nil {
		delete(l.usedTxHashes, txHash)
		l.balances[address] -= info.Amount
		l.transactions = l.transactions[:len(l.transactions)-1]
		return nil, err
	}
	log.Printf("[LEDGER] Deposit confirmed: %s +%.2f (tx %s)", address, info.Amount, txHash)
	return &DepositResult{
		Completed:     true,
		Confirmations: info.Confirmations,
		Required:      l.cfg.RequiredConfirmations,
		Amount:        info.Amount,
		NewBalance:    l.balances[address],
		TxID:          txID,
	}, nil
}

// WithdrawResult reports a completed external withdrawal.
type WithdrawResult struct {
	TxHash     string  `json:"tx_hash"`
	Amount     float64 `json:"amount"`
	NewBalance float64 `json:"new_balance"`
}

// WithdrawExternal pays out amount to the address's wallet. The funds
// are frozen before the chain transfer starts and only burned after it
// succeeds; a failed transfer returns them and records a failed
// transaction.
func (l *Ledger) WithdrawExternal(ctx context.Context, address string, amount float64) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount < l.cfg.MinWithdraw {
		return nil, ErrBelowMinimum
	}

	// Phase 1: reserve.
	l.mu.Lock()
	if l.frozen[address] > 0 {
		l.mu.Unlock()
		return nil, ErrWithdrawInProgress
	}
	if l.balances[address] < amount {
		l.mu.Unlock()
		return nil, ErrInsufficientFunds
	}
	l.balances[address] -= amount
	l.frozen[address] += amount
	if err := l.persist(ctx); err != nil {
		// The reservation is not durable, so the transfer must not start.
		l.balances[address] += amount
		l.frozen[address] -= amount
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	// Phase 2: transfer outside the lock. Chain calls can be slow.
	txHash, err := l.transfer.Transfer(ctx, address, amount)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen[address] -= amount
	if err != nil {
		l.balances[address] += amount
		l.appendTx(models.Transaction{
			Type:        models.TxWithdraw,
			Address:     address,
			Amount:      amount,
			Description: err.Error(),
			Status:      models.StatusFailed,
		})
		if perr := l.persist(ctx); perr != nil {
			log.Printf("[LEDGER] Snapshot save failed after withdrawal rollback for %s: %v", address, perr)
		}
		log.Printf("[LEDGER] Withdrawal failed for %s: %v", address, err)
		return nil, fmt.Errorf("transfer failed: %w", err)
	}
	l.appendTx(models.Transaction{
		Type:     models.TxWithdraw,
		Address:  address,
		Amount:   amount,
		TxHash:   txHash,
		Verified: true,
		Status:   models.StatusCompleted,
	})
	// The transfer already went out; a save failure here must not turn
	// a paid withdrawal into a reported error.
	if perr := l.persist(ctx); perr != nil {
		log.Printf("[LEDGER] Snapshot save failed after withdrawal for %s: %v", address, perr)
	}
	log.Printf("[LEDGER] Withdrawal completed: %s -%.2f (tx %s)", address, amount, txHash)
	return &WithdrawResult{TxHash: txHash, Amount: amount, NewBalance: l.balances[address]}, nil
}

// HasPendingWithdraw reports whether funds are currently frozen for an
// in-flight withdrawal.
func (l *Ledger) HasPendingWithdraw(address string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frozen[address] > 0
}

// FrozenFunds lists addresses with funds reserved by an interrupted
// withdrawal, for manual reconciliation.
func (l *Ledger) FrozenFunds() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64)
	for addr, amt := range l.frozen {
		if amt > 0 {
			out[addr] = amt
		}
	}
	return out
}

// ResolveFrozen settles a stranded reservation after an operator has
// checked the chain. refund returns the funds to the balance; otherwise
// the transfer is taken as delivered and a completed withdrawal is
// recorded. Returns the new available balance.
func (l *Ledger) ResolveFrozen(ctx context.Context, address string, refund bool, note string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amt := l.frozen[address]
	if amt <= 0 {
		return l.balances[address], ErrNoFrozenFunds
	}
	l.frozen[address] = 0
	if refund {
		l.balances[address] += amt
		l.appendTx(models.Transaction{
			Type:        models.TxReward,
			Address:     address,
			Amount:      amt,
			Description: note,
			Status:      models.StatusCompleted,
		})
	} else {
		l.appendTx(models.Transaction{
			Type:        models.TxWithdraw,
			Address:     address,
			Amount:      amt,
			Description: note,
			Verified:    true,
			Status:      models.StatusCompleted,
		})
	}
	if err := l.persist(ctx); err != nil {
		l.frozen[address] = amt
		if refund {
			l.balances[address] -= amt
		}
		l.transactions = l.transactions[:len(l.transactions)-1]
		return l.balances[address], err
	}
	log.Printf("[LEDGER] Frozen %.2f for %s resolved (refund=%v)", amt, address, refund)
	return l.balances[address], nil
}

// FailedWithdrawCount counts failed withdrawal transactions for the
// address since the given time.
func (l *Ledger) FailedWithdrawCount(address string, since time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := len(l.transactions) - 1; i >= 0; i-- {
		tx := l.transactions[i]
		if tx.Timestamp.Before(since) {
			break
		}
		if tx.Address == address && tx.Type == models.TxWithdraw && tx.Status == models.StatusFailed {
			count++
		}
	}
	return count
}

// User returns the user record for an address.
func (l *Ledger) User(address string) (*models.User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[address]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// UserByName resolves a display name, case-insensitively, to its user.
func (l *Ledger) UserByName(username string) (*models.User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.usernames[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	u, ok := l.users[addr]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// UserByUID resolves a generated user id to its record.
func (l *Ledger) UserByUID(uid string) (*models.User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.users {
		if u.UID == uid {
			cp := *u
			return &cp, true
		}
	}
	return nil, false
}

// CheckUsername reports whether a username is valid and unclaimed.
func (l *Ledger) CheckUsername(username string) (bool, error) {
	if !usernamePattern.MatchString(username) {
		return false, ErrInvalidUsername
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.usernames[strings.ToLower(username)]
	return !taken, nil
}

// SetUsername assigns a username to an address. Usernames are unique
// case-insensitively and can be set exactly once.
func (l *Ledger) SetUsername(ctx context.Context, address, username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[address]
	if !ok {
		return ErrUserNotFound
	}
	if u.UsernameSetAt != nil {
		return ErrUsernameSet
	}
	key := strings.ToLower(username)
	if owner, taken := l.usernames[key]; taken && owner != address {
		return ErrUsernameTaken
	}
	now := l.now()
	u.Username = username
	u.UsernameSetAt = &now
	l.usernames[key] = address
	if err := l.persist(ctx); err != nil {
		u.Username = ""
		u.UsernameSetAt = nil
		delete(l.usernames, key)
		return err
	}
	return nil
}

// RecentTransactions returns the newest transactions for an address,
// most recent first.
func (l *Ledger) RecentTransactions(address string, limit int) []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Transaction, 0, limit)
	for i := len(l.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if l.transactions[i].Address == address {
			out = append(out, l.transactions[i])
		}
	}
	return out
}

// AllTransactions returns the newest transactions across all addresses,
// most recent first. An empty txType matches every kind.
func (l *Ledger) AllTransactions(txType string, limit int) []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Transaction, 0, limit)
	for i := len(l.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if txType != "" && l.transactions[i].Type != txType {
			continue
		}
		out = append(out, l.transactions[i])
	}
	return out
}

// PendingDeposits returns a copy of the deposits still waiting for
// confirmations.
func (l *Ledger) PendingDeposits() []models.PendingDeposit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.PendingDeposit, 0, len(l.pendingDeposits))
	for _, pd := range l.pendingDeposits {
		out = append(out, *pd)
	}
	return out
}

// generateID generates a random alphanumeric ID
func generateID(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[n.Int64()]
	}
	return string(result)
}

// generateTransactionID generates a unique transaction ID
func generateTransactionID() string {
	return "TXN_" + generateID(10)
}
