package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rachaio/racha/money"
)

// State is one step in the authorize-then-commit lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateCheckingAllowance State = "checking_allowance"
	StateNeedsApproval     State = "needs_approval"
	StateApproving         State = "approving"
	StateApprovalConfirmed State = "approval_confirmed"
	StatePerformingAction  State = "performing_action"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

var (
	ErrAllowanceCheckFailed = errors.New("allowance check failed")
	ErrApprovalFailed       = errors.New("approval failed")
	ErrActionFailed         = errors.New("action failed")
	ErrCancelled            = errors.New("cancelled")
	ErrRunInFlight          = errors.New("sequencer run already in flight")
)

// Capabilities are the three external primitives the sequencer drives.
// Their implementations (on-chain calls in practice) are the caller's;
// the sequencer only guarantees their ordering.
type Capabilities struct {
	CheckAllowance func(ctx context.Context, spender string) (money.Money, error)
	Approve        func(ctx context.Context, spender string, amount money.Money) error
	Perform        func(ctx context.Context) error
}

// Sequencer wraps one value-moving operation in the two-phase
// "check allowance, maybe approve, then act" sequence. Perform is never
// invoked while the allowance is below the required amount; that ordering
// is the whole contract.
//
// A sequencer is built per logical operation attempt. Run may be retried
// after a failure or an out-of-band approval; it re-probes the allowance
// first, so a retry never approves twice. Concurrent runs for the same
// (operation, spender) pair must be serialized by the caller; a single
// instance rejects overlapping Run calls.
type Sequencer struct {
	mu       sync.Mutex
	running  bool
	state    State
	history  []State
	spender  string
	required money.Money
	caps     Capabilities
}

func New(spender string, required money.Money, caps Capabilities) *Sequencer {
	return &Sequencer{
		state:    StateIdle,
		history:  []State{StateIdle},
		spender:  spender,
		required: required,
		caps:     caps,
	}
}

// State reports the current step for progress display.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state entered so far, in order.
func (s *Sequencer) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Sequencer) transition(state State) {
	s.mu.Lock()
	s.state = state
	s.history = append(s.history, state)
	s.mu.Unlock()
}

// Run drives the machine to a terminal state and returns it. On failure
// the error carries the cause wrapped under ErrApprovalFailed,
// ErrActionFailed, ErrAllowanceCheckFailed or ErrCancelled.
func (s *Sequencer) Run(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return s.state, ErrRunInFlight
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.transition(StateCheckingAllowance)
	allowance, err := s.caps.CheckAllowance(ctx, s.spender)
	if err != nil {
		return s.fail(ctx, ErrAllowanceCheckFailed, err)
	}
	cmp, err := allowance.Cmp(s.required)
	if err != nil {
		return s.fail(ctx, ErrAllowanceCheckFailed, err)
	}

	if cmp < 0 {
		s.transition(StateNeedsApproval)
		s.transition(StateApproving)
		if err := s.caps.Approve(ctx, s.spender, s.required); err != nil {
			return s.fail(ctx, ErrApprovalFailed, err)
		}
		s.transition(StateApprovalConfirmed)
	}

	s.transition(StatePerformingAction)
	if err := s.caps.Perform(ctx); err != nil {
		return s.fail(ctx, ErrActionFailed, err)
	}

	s.transition(StateSucceeded)
	return StateSucceeded, nil
}

func (s *Sequencer) fail(ctx context.Context, kind error, cause error) (State, error) {
	s.transition(StateFailed)
	if ctx.Err() != nil {
		return StateFailed, fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return StateFailed, fmt.Errorf("%w: %w", kind, cause)
}
