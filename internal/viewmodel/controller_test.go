package viewmodel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duggee/stakeboard/internal/chain"
)

type fakeWriter struct {
	mu      sync.Mutex
	calls   []chain.Call
	err     error
	panicOn string
	block   chan struct{}
	entered chan struct{}
}

func (w *fakeWriter) Submit(ctx context.Context, call chain.Call) (common.Hash, error) {
	w.mu.Lock()
	w.calls = append(w.calls, call)
	w.mu.Unlock()
	if w.entered != nil {
		w.entered <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	if w.panicOn == call.Method {
		panic("wallet provider crashed")
	}
	if w.err != nil {
		return common.Hash{}, w.err
	}
	return common.HexToHash("0xabc"), nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func TestController_StakeDispatchClearsText(t *testing.T) {
	w := &fakeWriter{}
	var dispatched []Dispatch
	c := NewController(w, chain.NativeToken, Hooks{
		Dispatched: func(d Dispatch) { dispatched = append(dispatched, d) },
	})
	snap := connected(nil)
	snap.Account = common.HexToAddress("0x01")
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "1.25"}))
	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SubmitStake}))

	state := c.State()
	assert.Equal(t, "", state.StakeText)
	assert.False(t, state.Busy)

	require.Len(t, w.calls, 1)
	assert.Equal(t, chain.MethodStake, w.calls[0].Method)
	assert.Equal(t, "1250000000000000000", w.calls[0].Value.String())

	require.Len(t, dispatched, 1)
	assert.NoError(t, dispatched[0].Err)
	assert.Equal(t, snap.Account, dispatched[0].Account)
	assert.Equal(t, common.HexToHash("0xabc"), dispatched[0].TxHash)

	n := c.Notice()
	require.NotNil(t, n)
	assert.Equal(t, "info", n.Level)
	assert.Contains(t, n.Message, "stake dispatched")
}

func TestController_UnstakeFlow(t *testing.T) {
	w := &fakeWriter{}
	c := NewController(w, chain.NativeToken, Hooks{})
	snap := connected(stakerWith("2500000000000000000", "0"))
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: RevealUnstake}))
	assert.Equal(t, "2.5000", c.State().UnstakeText)
	assert.True(t, c.View(snap).ShowUnstakeForm)

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetUnstakeText, Text: "1"}))
	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SubmitUnstake}))
	assert.Equal(t, "", c.State().UnstakeText)
	require.Len(t, w.calls, 1)
	assert.Equal(t, chain.MethodUnstake, w.calls[0].Method)
	assert.Nil(t, w.calls[0].Value)
}

func TestController_SubmissionError(t *testing.T) {
	walletErr := errors.New("user rejected request")
	w := &fakeWriter{err: walletErr}
	var busy []bool
	c := NewController(w, chain.NativeToken, Hooks{
		BusyChanged: func(b bool) { busy = append(busy, b) },
	})
	snap := connected(nil)
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "1"}))
	err := c.Apply(ctx, snap, Intent{Kind: SubmitStake})
	assert.ErrorIs(t, err, ErrSubmission)
	assert.ErrorIs(t, err, walletErr)

	state := c.State()
	assert.False(t, state.Busy)
	assert.Equal(t, "1", state.StakeText)
	assert.Equal(t, []bool{true, false}, busy)

	n := c.Notice()
	require.NotNil(t, n)
	assert.Equal(t, "error", n.Level)
}

func TestController_PanicRecovered(t *testing.T) {
	w := &fakeWriter{panicOn: chain.MethodClaim}
	var got Dispatch
	c := NewController(w, chain.NativeToken, Hooks{
		Dispatched: func(d Dispatch) { got = d },
	})
	snap := connected(stakerWith("0", "1"))

	err := c.Apply(context.Background(), snap, Intent{Kind: SubmitClaim})
	assert.ErrorIs(t, err, ErrSubmission)
	assert.False(t, c.State().Busy)
	assert.ErrorIs(t, got.Err, ErrSubmission)
}

func TestController_ValidationDoesNotDispatch(t *testing.T) {
	w := &fakeWriter{}
	var rejected []error
	c := NewController(w, chain.NativeToken, Hooks{
		Rejected: func(in Intent, err error) { rejected = append(rejected, err) },
	})
	snap := connected(stakerWith("1000000000000000000", "0"))
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetUnstakeText, Text: "2"}))
	err := c.Apply(ctx, snap, Intent{Kind: SubmitUnstake})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 0, w.count())
	assert.Equal(t, "2", c.State().UnstakeText)
	assert.False(t, c.State().Busy)
	require.Len(t, rejected, 1)

	v := c.View(snap)
	require.NotNil(t, v.Notice)
	assert.Equal(t, "error", v.Notice.Level)
}

func TestController_ConcurrentSubmitRejected(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := NewController(w, chain.NativeToken, Hooks{})
	snap := connected(stakerWith("0", "1"))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Apply(ctx, snap, Intent{Kind: SubmitClaim}) }()
	<-w.entered

	assert.True(t, c.State().Busy)
	assert.False(t, c.View(snap).CanClaim)
	err := c.Apply(ctx, snap, Intent{Kind: SubmitClaim})
	assert.ErrorIs(t, err, ErrUnavailable)
	err = c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "1"})
	assert.ErrorIs(t, err, ErrUnavailable)

	close(w.block)
	require.NoError(t, <-done)
	assert.False(t, c.State().Busy)
	assert.Equal(t, 1, w.count())
}

func TestController_Reset(t *testing.T) {
	c := NewController(&fakeWriter{}, chain.NativeToken, Hooks{})
	snap := connected(nil)
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "1"}))
	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetUnstakeText, Text: "2"}))
	_ = c.Apply(ctx, snap, Intent{Kind: "bogus"})
	require.NotNil(t, c.Notice())

	c.Reset()
	assert.Equal(t, InputState{}, c.State())
	assert.Nil(t, c.Notice())
}

func TestController_ApplyAllSignsGivenText(t *testing.T) {
	w := &fakeWriter{}
	c := NewController(w, chain.NativeToken, Hooks{})
	snap := connected(nil)
	ctx := context.Background()

	// Another client typed into the same field.
	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "500"}))

	require.NoError(t, c.ApplyAll(ctx, snap,
		Intent{Kind: SetStakeText, Text: "1"},
		Intent{Kind: SubmitStake},
	))
	require.Len(t, w.calls, 1)
	assert.Equal(t, "1000000000000000000", w.calls[0].Value.String())
	assert.Equal(t, "", c.State().StakeText)
}

func TestController_ApplyAllIsAllOrNothing(t *testing.T) {
	w := &fakeWriter{}
	var rejected []Intent
	c := NewController(w, chain.NativeToken, Hooks{
		Rejected: func(in Intent, err error) { rejected = append(rejected, in) },
	})
	snap := connected(stakerWith("1000000000000000000", "1"))
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, snap, Intent{Kind: SetStakeText, Text: "2"}))

	err := c.ApplyAll(ctx, snap,
		Intent{Kind: SetStakeText, Text: "abc"},
		Intent{Kind: SubmitStake},
	)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, "2", c.State().StakeText)
	assert.Equal(t, []Intent{{Kind: SubmitStake}}, rejected)

	err = c.ApplyAll(ctx, snap,
		Intent{Kind: SubmitClaim},
		Intent{Kind: SetStakeText, Text: "3"},
	)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "2", c.State().StakeText)
	assert.False(t, c.State().Busy)
	assert.Zero(t, w.count())

	require.NoError(t, c.ApplyAll(ctx, snap))
}

func TestController_TextEditRejectionKeepsNotice(t *testing.T) {
	c := NewController(&fakeWriter{}, chain.NativeToken, Hooks{})
	snap := connected(nil)
	ctx := context.Background()

	require.NoError(t, c.ApplyAll(ctx, snap,
		Intent{Kind: SetStakeText, Text: "1"},
		Intent{Kind: SubmitStake},
	))
	require.NotNil(t, c.Notice())
	assert.Contains(t, c.Notice().Message, "stake dispatched")

	err := c.Apply(ctx, Snapshot{}, Intent{Kind: SetStakeText, Text: "2"})
	assert.ErrorIs(t, err, ErrUnavailable)
	require.NotNil(t, c.Notice())
	assert.Equal(t, "info", c.Notice().Level)
	assert.Contains(t, c.Notice().Message, "stake dispatched")
}
