package payments

import (
	"errors"
	"math"
	"sync"
)

var (
	// ErrInsufficientFunds is returned when an account cannot cover a debit.
	ErrInsufficientFunds = errors.New("payments: insufficient funds")
	// ErrUnknownAccount is returned when a debit targets an account that was never funded.
	ErrUnknownAccount = errors.New("payments: unknown account")
	// ErrBalanceOverflow is returned when a credit would wrap an account balance.
	ErrBalanceOverflow = errors.New("payments: balance overflow")
)

// PayoutHook is invoked after a settlement credits a seller. Hooks run after
// all balance mutation is final; anything they do cannot unwind the settlement.
type PayoutHook func(account string, amount uint64)

// Escrow is an in-process account ledger providing the atomic value-transfer
// primitive the credit registry settles trades through. Balances are held in
// the smallest currency unit.
type Escrow struct {
	mu       sync.Mutex
	balances map[string]uint64
	hooks    map[string]PayoutHook
}

// NewEscrow creates an empty escrow ledger.
func NewEscrow() *Escrow {
	return &Escrow{
		balances: make(map[string]uint64),
		hooks:    make(map[string]PayoutHook),
	}
}

// Deposit credits an account. A deposit that would wrap the balance is
// rejected with ErrBalanceOverflow.
func (e *Escrow) Deposit(account string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balances[account] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	e.balances[account] += amount
	return nil
}

// Balance returns the current balance of an account.
func (e *Escrow) Balance(account string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[account]
}

// RegisterPayoutHook installs a callback fired whenever the account receives a
// settlement payout. Used by marketplace integrations that react to incoming
// payments.
func (e *Escrow) RegisterPayoutHook(account string, hook PayoutHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[account] = hook
}

// VerifySettlement checks every precondition Settle enforces without moving
// funds. Callers that must mutate their own state before settling use it to
// guarantee the later Settle cannot fail.
func (e *Escrow) VerifySettlement(payer, payee string, attached, required uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.verifySettlement(payer, payee, attached, required)
}

func (e *Escrow) verifySettlement(payer, payee string, attached, required uint64) error {
	if attached < required {
		return ErrInsufficientFunds
	}
	if e.balances[payer] < attached {
		return ErrInsufficientFunds
	}
	if e.balances[payee] > math.MaxUint64-required {
		return ErrBalanceOverflow
	}
	return nil
}

// Settle moves an attached payment through the escrow in one atomic step:
// the payer is debited the full attached amount, the payee is credited the
// required price, and the excess is returned to the payer. Either every
// balance moves or none does.
func (e *Escrow) Settle(payer, payee string, attached, required uint64) error {
	e.mu.Lock()
	if err := e.verifySettlement(payer, payee, attached, required); err != nil {
		e.mu.Unlock()
		return err
	}
	e.balances[payer] -= attached
	e.balances[payee] += required
	e.balances[payer] += attached - required
	hook := e.hooks[payee]
	e.mu.Unlock()

	// Payout hooks observe a fully settled ledger.
	if hook != nil {
		hook(payee, required)
	}
	return nil
}

// Transfer moves an exact amount between two accounts atomically.
func (e *Escrow) Transfer(from, to string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.balances[from]; !ok {
		return ErrUnknownAccount
	}
	if e.balances[from] < amount {
		return ErrInsufficientFunds
	}
	if e.balances[to] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	e.balances[from] -= amount
	e.balances[to] += amount
	return nil
}
