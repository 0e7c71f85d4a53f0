package snapshot

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duggee/stakeboard/internal/chain"
)

type fakeReader struct {
	mu         sync.Mutex
	pool       *chain.Pool
	stakers    map[common.Address]*chain.Staker
	balances   map[common.Address]*big.Int
	poolErr    error
	stakerErr  error
	poolCalls  int
	stakerHits int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		pool:     &chain.Pool{TotalStakeAmount: big.NewInt(100)},
		stakers:  map[common.Address]*chain.Staker{},
		balances: map[common.Address]*big.Int{},
	}
}

func (r *fakeReader) Pool(ctx context.Context, pid uint64) (*chain.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poolCalls++
	if r.poolErr != nil {
		return nil, r.poolErr
	}
	return r.pool, nil
}

func (r *fakeReader) Staker(ctx context.Context, token, account common.Address) (*chain.Staker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stakerHits++
	if r.stakerErr != nil {
		return nil, r.stakerErr
	}
	return r.stakers[account], nil
}

func (r *fakeReader) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[account], nil
}

func (r *fakeReader) set(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *fakeReader) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolCalls
}

type accountSource struct {
	mu        sync.Mutex
	addr      common.Address
	connected bool
}

func (a *accountSource) get() (common.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr, a.connected
}

func (a *accountSource) set(addr common.Address, connected bool) {
	a.mu.Lock()
	a.addr, a.connected = addr, connected
	a.mu.Unlock()
}

type countingObserver struct {
	mu       sync.Mutex
	refreshs int
	errs     map[string]int
}

func (o *countingObserver) ObserveRefresh(time.Duration) {
	o.mu.Lock()
	o.refreshs++
	o.mu.Unlock()
}

func (o *countingObserver) SnapshotError(query string) {
	o.mu.Lock()
	if o.errs == nil {
		o.errs = map[string]int{}
	}
	o.errs[query]++
	o.mu.Unlock()
}

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func TestRefresh_Connected(t *testing.T) {
	r := newFakeReader()
	r.stakers[alice] = &chain.Staker{StakeAmount: big.NewInt(5)}
	r.balances[alice] = big.NewInt(7)
	acct := &accountSource{addr: alice, connected: true}
	obs := &countingObserver{}
	p := NewPoller(Config{}, r, acct.get, obs)

	p.Refresh(context.Background())

	st := p.Latest()
	assert.True(t, st.Connected)
	assert.Equal(t, alice, st.Account)
	require.NotNil(t, st.Pool)
	assert.Equal(t, int64(100), st.Pool.TotalStakeAmount.Int64())
	require.NotNil(t, st.Staker)
	assert.Equal(t, int64(5), st.Staker.StakeAmount.Int64())
	assert.Equal(t, int64(7), st.Balance.Int64())
	assert.False(t, st.FetchedAt.IsZero())

	snap := st.ViewSnapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, st.Staker, snap.Staker)

	pr := p.Progress()
	assert.Equal(t, 1, pr.Refreshes)
	assert.Empty(t, pr.Errors)
	assert.Equal(t, 1, obs.refreshs)
}

func TestRefresh_DisconnectedSkipsAccountQueries(t *testing.T) {
	r := newFakeReader()
	acct := &accountSource{}
	p := NewPoller(Config{}, r, acct.get, nil)

	p.Refresh(context.Background())

	st := p.Latest()
	assert.False(t, st.Connected)
	assert.NotNil(t, st.Pool)
	assert.Nil(t, st.Staker)
	assert.Nil(t, st.Balance)
	assert.Equal(t, 0, r.stakerHits)
}

func TestRefresh_KeepsLastGoodValue(t *testing.T) {
	r := newFakeReader()
	r.stakers[alice] = &chain.Staker{StakeAmount: big.NewInt(5)}
	acct := &accountSource{addr: alice, connected: true}
	obs := &countingObserver{}
	p := NewPoller(Config{}, r, acct.get, obs)
	ctx := context.Background()

	p.Refresh(ctx)
	r.set(func() {
		r.poolErr = errors.New("rpc timeout")
		r.stakerErr = errors.New("rpc timeout")
	})
	p.Refresh(ctx)

	st := p.Latest()
	require.NotNil(t, st.Pool)
	assert.Equal(t, int64(100), st.Pool.TotalStakeAmount.Int64())
	require.NotNil(t, st.Staker)
	assert.Equal(t, int64(5), st.Staker.StakeAmount.Int64())

	pr := p.Progress()
	assert.Contains(t, pr.Errors[QueryPool], "rpc timeout")
	assert.Contains(t, pr.Errors[QueryStaker], "rpc timeout")
	assert.Equal(t, 1, obs.errs[QueryPool])
	assert.Equal(t, 1, obs.errs[QueryStaker])

	r.set(func() {
		r.poolErr = nil
		r.stakerErr = nil
	})
	p.Refresh(ctx)
	assert.Empty(t, p.Progress().Errors)
}

func TestLatest_AccountChangeDropsStaker(t *testing.T) {
	r := newFakeReader()
	r.stakers[alice] = &chain.Staker{StakeAmount: big.NewInt(5)}
	r.balances[alice] = big.NewInt(7)
	acct := &accountSource{addr: alice, connected: true}
	p := NewPoller(Config{}, r, acct.get, nil)

	p.Refresh(context.Background())
	require.NotNil(t, p.Latest().Staker)

	acct.set(bob, true)
	st := p.Latest()
	assert.Equal(t, bob, st.Account)
	assert.Nil(t, st.Staker)
	assert.Nil(t, st.Balance)
	assert.NotNil(t, st.Pool)

	acct.set(common.Address{}, false)
	st = p.Latest()
	assert.False(t, st.Connected)
	assert.Nil(t, st.Staker)
}

func TestPoller_RequestRefresh(t *testing.T) {
	r := newFakeReader()
	acct := &accountSource{}
	p := NewPoller(Config{PollInterval: time.Hour, MinRefreshGap: 10 * time.Millisecond}, r, acct.get, nil)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return r.calls() >= 1 }, time.Second, 5*time.Millisecond)

	p.RequestRefresh()
	require.Eventually(t, func() bool { return r.calls() >= 2 }, time.Second, 5*time.Millisecond)
}
