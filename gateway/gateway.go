// Package gateway is the boundary to whatever actually holds funds and
// allowances (a token contract in production). The core only ever sees
// this interface; the in-memory implementation backs local runs and tests.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rachaio/racha/money"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

type TokenGateway interface {
	// Allowance reports how much spender may currently move on owner's behalf.
	Allowance(ctx context.Context, owner, spender string, scale uint8) (money.Money, error)
	// Approve authorizes spender to move up to amount of owner's funds.
	Approve(ctx context.Context, owner, spender string, amount money.Money) error
	// Transfer moves amount from owner to recipient, spending allowance when
	// spender differs from owner.
	Transfer(ctx context.Context, owner, spender, recipient string, amount money.Money) error
}

type allowanceKey struct {
	owner   string
	spender string
	scale   uint8
}

type balanceKey struct {
	owner string
	scale uint8
}

// Memory is a TokenGateway backed by plain maps. It exists so the deposit
// and settlement flows can run end to end without a chain.
type Memory struct {
	mu         sync.Mutex
	balances   map[balanceKey]money.Money
	allowances map[allowanceKey]money.Money
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[balanceKey]money.Money),
		allowances: make(map[allowanceKey]money.Money),
	}
}

// Mint credits owner with amount out of thin air. Test and dev seeding only.
func (m *Memory) Mint(owner string, amount money.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := balanceKey{owner: owner, scale: amount.Scale()}
	balance, ok := m.balances[key]
	if !ok {
		balance = money.Zero(amount.Scale())
	}
	next, err := balance.Add(amount)
	if err != nil {
		return err
	}
	m.balances[key] = next
	return nil
}

func (m *Memory) Balance(owner string, scale uint8) money.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[balanceKey{owner: owner, scale: scale}]
	if !ok {
		return money.Zero(scale)
	}
	return balance
}

func (m *Memory) Allowance(_ context.Context, owner, spender string, scale uint8) (money.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowance, ok := m.allowances[allowanceKey{owner: owner, spender: spender, scale: scale}]
	if !ok {
		return money.Zero(scale), nil
	}
	return allowance, nil
}

func (m *Memory) Approve(_ context.Context, owner, spender string, amount money.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner: owner, spender: spender, scale: amount.Scale()}] = amount
	return nil
}

func (m *Memory) Transfer(_ context.Context, owner, spender, recipient string, amount money.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scale := amount.Scale()
	akey := allowanceKey{owner: owner, spender: spender, scale: scale}
	remaining := money.Zero(scale)
	fromAllowance := spender != owner
	if fromAllowance {
		allowance, ok := m.allowances[akey]
		if !ok {
			allowance = money.Zero(scale)
		}
		if cmp, err := allowance.Cmp(amount); err != nil {
			return err
		} else if cmp < 0 {
			return fmt.Errorf("%w: %s has %s of %s's funds, need %s",
				ErrInsufficientAllowance, spender, allowance, owner, amount)
		}
		var err error
		remaining, err = allowance.Sub(amount)
		if err != nil {
			return err
		}
	}

	bkey := balanceKey{owner: owner, scale: scale}
	balance, ok := m.balances[bkey]
	if !ok {
		balance = money.Zero(scale)
	}
	if cmp, err := balance.Cmp(amount); err != nil {
		return err
	} else if cmp < 0 {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientFunds, owner, balance, amount)
	}

	debited, err := balance.Sub(amount)
	if err != nil {
		return err
	}
	rkey := balanceKey{owner: recipient, scale: scale}
	rbalance, ok := m.balances[rkey]
	if !ok {
		rbalance = money.Zero(scale)
	}
	credited, err := rbalance.Add(amount)
	if err != nil {
		return err
	}

	// All checks passed; apply the whole movement at once so a failed
	// transfer never leaves a half-spent allowance behind.
	if fromAllowance {
		m.allowances[akey] = remaining
	}
	if owner == recipient {
		return nil
	}
	m.balances[bkey] = debited
	m.balances[rkey] = credited
	return nil
}
