package debt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rachaio/racha/money"
)

var (
	ErrSelfDebt          = errors.New("creditor and debtor are the same participant")
	ErrNonPositiveAmount = errors.New("debt amount must be positive")
	ErrNotFound          = errors.New("debt not found")
	ErrAlreadySettled    = errors.New("debt already settled")
)

// Debt is one directed IOU: the debtor owes the creditor the amount.
// Records are append-only; the only mutation the ledger allows is flipping
// Settled, once.
type Debt struct {
	ID        uuid.UUID   `json:"id"`
	Creditor  string      `json:"creditor"`
	Debtor    string      `json:"debtor"`
	Amount    money.Money `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	Settled   bool        `json:"settled"`
	SettledAt time.Time   `json:"settled_at,omitzero"`
}

// Summary aggregates one participant's position in one currency across all
// counterparties. Net is Owed minus Owing: positive means the world owes
// them on balance.
type Summary struct {
	Owed  money.Money
	Owing money.Money
	Net   money.Money
}

// Ledger owns the authoritative debt records. Mutations are serialized;
// reads recompute from the unsettled set every call, so there is no cached
// balance to drift out of sync.
type Ledger struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	debts []*Debt
	byID  map[uuid.UUID]*Debt
}

func NewLedger(clock clockwork.Clock) *Ledger {
	return &Ledger{
		clock: clock,
		byID:  make(map[uuid.UUID]*Debt),
	}
}

// Record appends a new unsettled debt and returns its id.
func (l *Ledger) Record(creditor, debtor string, amount money.Money) (uuid.UUID, error) {
	if creditor == debtor {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrSelfDebt, creditor)
	}
	if !amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	d := &Debt{
		ID:        uuid.New(),
		Creditor:  creditor,
		Debtor:    debtor,
		Amount:    amount,
		CreatedAt: l.clock.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.debts = append(l.debts, d)
	l.byID[d.ID] = d
	return d.ID, nil
}

// Restore loads previously persisted debts, replacing the ledger contents.
// Used once at startup to rebuild state from the store.
func (l *Ledger) Restore(debts []Debt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debts = make([]*Debt, 0, len(debts))
	l.byID = make(map[uuid.UUID]*Debt, len(debts))
	for i := range debts {
		d := debts[i]
		l.debts = append(l.debts, &d)
		l.byID[d.ID] = &d
	}
}

// Settle marks a debt settled. Settling twice reports ErrAlreadySettled so
// a caller can tell "someone beat me to it" apart from success.
func (l *Ledger) Settle(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settleLocked(id)
}

func (l *Ledger) settleLocked(id uuid.UUID) error {
	d, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if d.Settled {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, id)
	}
	d.Settled = true
	d.SettledAt = l.clock.Now().UTC()
	return nil
}

// Get returns a copy of one debt record.
func (l *Ledger) Get(id uuid.UUID) (Debt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.byID[id]
	if !ok {
		return Debt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *d, nil
}

// NetBalance is the signed sum of unsettled debts between a and b in the
// currency with the given scale. Positive means b owes a; negative means
// a owes b.
func (l *Ledger) NetBalance(a, b string, scale uint8) (money.Money, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.netBalanceLocked(a, b, scale)
}

func (l *Ledger) netBalanceLocked(a, b string, scale uint8) (money.Money, error) {
	net := money.Zero(scale)
	for _, d := range l.debts {
		if d.Settled || d.Amount.Scale() != scale {
			continue
		}
		var err error
		switch {
		case d.Creditor == a && d.Debtor == b:
			net, err = net.Add(d.Amount)
		case d.Creditor == b && d.Debtor == a:
			net, err = net.Sub(d.Amount)
		}
		if err != nil {
			return money.Money{}, err
		}
	}
	return net, nil
}

// Summarize accumulates a participant's unsettled position in one currency
// across every counterparty.
func (l *Ledger) Summarize(participant string, scale uint8) (Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owed := money.Zero(scale)
	owing := money.Zero(scale)
	for _, d := range l.debts {
		if d.Settled || d.Amount.Scale() != scale {
			continue
		}
		var err error
		switch participant {
		case d.Creditor:
			owed, err = owed.Add(d.Amount)
		case d.Debtor:
			owing, err = owing.Add(d.Amount)
		}
		if err != nil {
			return Summary{}, err
		}
	}
	net, err := owed.Sub(owing)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Owed: owed, Owing: owing, Net: net}, nil
}

// SummarizeAll returns a participant's summary for every currency scale
// they have unsettled debts in.
func (l *Ledger) SummarizeAll(participant string) (map[uint8]Summary, error) {
	l.mu.RLock()
	scales := make(map[uint8]bool)
	for _, d := range l.debts {
		if d.Settled || (d.Creditor != participant && d.Debtor != participant) {
			continue
		}
		scales[d.Amount.Scale()] = true
	}
	l.mu.RUnlock()

	summaries := make(map[uint8]Summary, len(scales))
	for scale := range scales {
		s, err := l.Summarize(participant, scale)
		if err != nil {
			return nil, err
		}
		summaries[scale] = s
	}
	return summaries, nil
}

// Unsettled returns copies of every open debt between a and b in the
// currency with the given scale, in record order.
func (l *Ledger) Unsettled(a, b string, scale uint8) []Debt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Debt
	for _, d := range l.debts {
		if d.Settled || d.Amount.Scale() != scale {
			continue
		}
		if (d.Creditor == a && d.Debtor == b) || (d.Creditor == b && d.Debtor == a) {
			out = append(out, *d)
		}
	}
	return out
}

// All returns copies of every record, settled or not, in record order.
func (l *Ledger) All() []Debt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Debt, 0, len(l.debts))
	for _, d := range l.debts {
		out = append(out, *d)
	}
	return out
}
