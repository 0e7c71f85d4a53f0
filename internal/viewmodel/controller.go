package viewmodel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duggee/stakeboard/internal/chain"
)

// Writer dispatches a contract call without waiting for confirmation.
type Writer interface {
	Submit(ctx context.Context, call chain.Call) (common.Hash, error)
}

// Notice is the transient message shown after the last intent.
type Notice struct {
	Level   string    `json:"level"` // "info" or "error"
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Dispatch describes one writer call and its synchronous outcome.
type Dispatch struct {
	Effect  Effect
	Call    chain.Call
	Account common.Address
	TxHash  common.Hash
	Err     error
}

// Hooks are optional observers of controller activity. They run outside
// the controller lock.
type Hooks struct {
	Dispatched  func(Dispatch)
	Rejected    func(Intent, error)
	BusyChanged func(busy bool)
}

// Controller owns the InputState and serializes intents against it.
type Controller struct {
	writer Writer
	token  common.Address
	hooks  Hooks

	mu     sync.Mutex
	state  InputState
	notice *Notice
}

// NewController creates a controller that submits calls for token's pool.
func NewController(w Writer, token common.Address, hooks Hooks) *Controller {
	return &Controller{writer: w, token: token, hooks: hooks}
}

// State returns a copy of the current input state.
func (c *Controller) State() InputState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notice returns the last notice, or nil.
func (c *Controller) Notice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}

// View derives the current view against snap and attaches the last notice.
func (c *Controller) View(snap Snapshot) View {
	c.mu.Lock()
	v := Derive(c.state, snap)
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}
	c.mu.Unlock()
	return v
}

// Reset clears both input texts and the notice, for example after the
// account changed. An in-flight dispatch keeps its busy flag.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state.StakeText = ""
	c.state.UnstakeText = ""
	c.notice = nil
	c.mu.Unlock()
}

// Apply runs intent against snap. Submit intents call the writer with the
// lock released, so a second submit arriving meanwhile sees Busy and is
// rejected with ErrUnavailable instead of being queued.
func (c *Controller) Apply(ctx context.Context, snap Snapshot, in Intent) error {
	return c.ApplyAll(ctx, snap, in)
}

// ApplyAll runs intents as one unit against snap. Either every intent is
// accepted and the state is committed, or the state is left untouched. Only
// the last intent may submit, so "set text then submit" signs exactly the
// text given here even while other clients are typing.
func (c *Controller) ApplyAll(ctx context.Context, snap Snapshot, intents ...Intent) error {
	if len(intents) == 0 {
		return nil
	}
	c.mu.Lock()
	state := c.state
	var effect *Effect
	for i, in := range intents {
		step := Transition(state, snap, in)
		if step.Err == nil && step.Effect != nil && i < len(intents)-1 {
			step.Err = fmt.Errorf("%s must be the last intent: %w", in.Kind, ErrUnavailable)
		}
		if step.Err != nil {
			if !in.Kind.IsTextEdit() {
				c.setNotice("error", step.Err.Error())
			}
			c.mu.Unlock()
			if c.hooks.Rejected != nil {
				c.hooks.Rejected(in, step.Err)
			}
			return step.Err
		}
		state = step.State
		effect = step.Effect
	}
	c.state = state
	c.mu.Unlock()

	if effect == nil {
		return nil
	}
	return c.dispatch(ctx, snap.Account, *effect)
}

func (c *Controller) dispatch(ctx context.Context, account common.Address, effect Effect) (err error) {
	c.busyChanged(true)
	call := effect.Call(c.token)
	var hash common.Hash

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[viewmodel] Recovered panic during %s: %v", effect.Action, r)
			err = fmt.Errorf("%s: %w: %v", effect.Action, ErrSubmission, r)
		}

		c.mu.Lock()
		c.state = Settle(c.state, effect, err)
		if err != nil {
			c.setNotice("error", err.Error())
		} else {
			c.setNotice("info", fmt.Sprintf("%s dispatched (tx %s)", effect.Action, hash.Hex()))
		}
		c.mu.Unlock()

		c.busyChanged(false)
		if c.hooks.Dispatched != nil {
			c.hooks.Dispatched(Dispatch{Effect: effect, Call: call, Account: account, TxHash: hash, Err: err})
		}
	}()

	hash, err = c.writer.Submit(ctx, call)
	if err != nil {
		log.Printf("[viewmodel] %s dispatch failed: %v", effect.Action, err)
		return fmt.Errorf("%s: %w: %w", effect.Action, ErrSubmission, err)
	}
	return nil
}

// setNotice must be called with c.mu held.
func (c *Controller) setNotice(level, msg string) {
	c.notice = &Notice{Level: level, Message: msg, At: time.Now()}
}

func (c *Controller) busyChanged(busy bool) {
	if c.hooks.BusyChanged != nil {
		c.hooks.BusyChanged(busy)
	}
}

