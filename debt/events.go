package debt

import "time"

type RecordedEvent struct {
	DebtID    string
	Creditor  string
	Debtor    string
	Amount    string // Decimal string, e.g. "12.34"
	Scale     uint8
	CreatedAt time.Time
}

type SettledEvent struct {
	DebtID    string
	SettledBy string
	SettledAt time.Time
}

type NetSettledEvent struct {
	ParticipantA string
	ParticipantB string
	Scale        uint8
	DebtIDs      []string
	Residual     string // Net balance left after settlement, decimal string
}
