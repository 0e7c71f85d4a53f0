// Package viewmodel reconciles chain snapshots with the user's transient
// input and derives which staking actions are currently available.
//
// Transition, Settle and Derive are pure. Controller is the single owner of
// the InputState and brackets each dispatch with the busy flag.
package viewmodel

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duggee/stakeboard/internal/amount"
	"github.com/duggee/stakeboard/internal/chain"
)

var (
	// ErrInvalidAmount marks input that fails local validation.
	ErrInvalidAmount = amount.ErrInvalidAmount
	// ErrUnavailable marks an intent whose action is currently disabled.
	ErrUnavailable = errors.New("action unavailable")
	// ErrSubmission marks a synchronous failure of the chain writer.
	ErrSubmission = errors.New("submission failed")
	// ErrUnknownIntent marks an intent kind the synchronizer does not handle.
	ErrUnknownIntent = errors.New("unknown intent")
)

// InputState is the transient, never persisted user input.
type InputState struct {
	StakeText   string `json:"stake_text"`
	UnstakeText string `json:"unstake_text"`
	Busy        bool   `json:"busy"`
}

// Snapshot is the chain state an evaluation runs against. Nil fields mean
// the value has not been loaded.
type Snapshot struct {
	Connected bool
	Account   common.Address
	Pool      *chain.Pool
	Staker    *chain.Staker
	Balance   *big.Int
}

// IntentKind names a user intent.
type IntentKind string

const (
	SetStakeText   IntentKind = "set_stake_text"
	SetUnstakeText IntentKind = "set_unstake_text"
	SubmitStake    IntentKind = "submit_stake"
	RevealUnstake  IntentKind = "reveal_unstake"
	SubmitUnstake  IntentKind = "submit_unstake"
	SubmitClaim    IntentKind = "submit_claim"
	SubmitWithdraw IntentKind = "submit_withdraw"
)

// IsTextEdit reports whether k only edits an input field.
func (k IntentKind) IsTextEdit() bool {
	return k == SetStakeText || k == SetUnstakeText
}

// Intent is one user event. Text is used by the set_* kinds only.
type Intent struct {
	Kind IntentKind `json:"kind"`
	Text string     `json:"text,omitempty"`
}

// Action is a contract write the synchronizer can request.
type Action string

const (
	ActionStake    Action = "stake"
	ActionUnstake  Action = "unstake"
	ActionClaim    Action = "claim"
	ActionWithdraw Action = "withdraw"
)

// Effect is a side-effect request produced by Transition.
type Effect struct {
	Action Action
	Amount *big.Int // nil for claim and withdraw
	Value  *big.Int // attached native value, stake only
}

// Call converts the effect into a contract call against token's pool.
func (e Effect) Call(token common.Address) chain.Call {
	switch e.Action {
	case ActionStake:
		return chain.StakeCall(token, e.Amount)
	case ActionUnstake:
		return chain.UnstakeCall(token, e.Amount)
	case ActionClaim:
		return chain.ClaimCall(token)
	default:
		return chain.WithdrawCall(token)
	}
}

// Step is the result of Transition.
type Step struct {
	State  InputState
	Effect *Effect
	Err    error
}

func reject(s InputState, err error) Step {
	return Step{State: s, Err: err}
}

// Transition applies intent to state. A rejected intent leaves the state
// unchanged and never yields an effect. Submit intents that pass validation
// return the state with Busy set.
func Transition(s InputState, snap Snapshot, in Intent) Step {
	switch in.Kind {
	case SetStakeText:
		if !inputsEnabled(s, snap) {
			return reject(s, fmt.Errorf("edit stake amount: %w", ErrUnavailable))
		}
		s.StakeText = in.Text
		return Step{State: s}

	case SetUnstakeText:
		if !inputsEnabled(s, snap) {
			return reject(s, fmt.Errorf("edit unstake amount: %w", ErrUnavailable))
		}
		s.UnstakeText = in.Text
		return Step{State: s}

	case SubmitStake:
		if !inputsEnabled(s, snap) {
			return reject(s, fmt.Errorf("stake: %w", ErrUnavailable))
		}
		amt, err := amount.ParsePositive(s.StakeText)
		if err != nil {
			return reject(s, fmt.Errorf("stake: %w", err))
		}
		s.Busy = true
		return Step{State: s, Effect: &Effect{Action: ActionStake, Amount: amt, Value: new(big.Int).Set(amt)}}

	case RevealUnstake:
		if !canRevealUnstake(s, snap) {
			return reject(s, fmt.Errorf("unstake: %w", ErrUnavailable))
		}
		s.UnstakeText = amount.Format(snap.Staker.StakeAmount)
		s.StakeText = ""
		return Step{State: s}

	case SubmitUnstake:
		if !inputsEnabled(s, snap) {
			return reject(s, fmt.Errorf("unstake: %w", ErrUnavailable))
		}
		amt, err := amount.ParsePositive(s.UnstakeText)
		if err != nil {
			return reject(s, fmt.Errorf("unstake: %w", err))
		}
		if snap.Staker == nil || snap.Staker.StakeAmount == nil {
			return reject(s, fmt.Errorf("unstake: no staked amount loaded: %w", ErrInvalidAmount))
		}
		if amt.Cmp(snap.Staker.StakeAmount) > 0 {
			return reject(s, fmt.Errorf("unstake: %s exceeds staked %s: %w",
				amount.Format(amt), amount.Format(snap.Staker.StakeAmount), ErrInvalidAmount))
		}
		s.Busy = true
		return Step{State: s, Effect: &Effect{Action: ActionUnstake, Amount: amt}}

	case SubmitClaim:
		if !canClaim(s, snap) {
			return reject(s, fmt.Errorf("claim: %w", ErrUnavailable))
		}
		s.Busy = true
		return Step{State: s, Effect: &Effect{Action: ActionClaim}}

	case SubmitWithdraw:
		if !canWithdraw(s, snap) {
			return reject(s, fmt.Errorf("withdraw: %w", ErrUnavailable))
		}
		s.Busy = true
		return Step{State: s, Effect: &Effect{Action: ActionWithdraw}}
	}
	return reject(s, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind))
}

// Settle returns the state after a dispatch attempt. Busy is always cleared;
// the input that produced the effect is cleared only when the dispatch call
// itself succeeded.
func Settle(s InputState, e Effect, dispatchErr error) InputState {
	s.Busy = false
	if dispatchErr != nil {
		return s
	}
	switch e.Action {
	case ActionStake:
		s.StakeText = ""
	case ActionUnstake:
		s.UnstakeText = ""
	}
	return s
}
