// Package snapshot keeps a fresh copy of the pool, staker and balance state
// the view-model evaluates against.
package snapshot

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/duggee/stakeboard/internal/chain"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

// Reader is the read side of the staking contract.
type Reader interface {
	Pool(ctx context.Context, pid uint64) (*chain.Pool, error)
	Staker(ctx context.Context, token, account common.Address) (*chain.Staker, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// AccountFunc reports the connected account, if any.
type AccountFunc func() (common.Address, bool)

// Observer receives refresh timings and query failures.
type Observer interface {
	ObserveRefresh(d time.Duration)
	SnapshotError(query string)
}

// Query names used in Progress.Errors and Observer.SnapshotError.
const (
	QueryPool    = "pool"
	QueryStaker  = "staker"
	QueryBalance = "balance"
)

// Config configures the poller.
type Config struct {
	PoolID        uint64
	Token         common.Address
	PollInterval  time.Duration
	MinRefreshGap time.Duration
	CallTimeout   time.Duration
}

// State is the latest known chain state. Nil fields were never loaded.
type State struct {
	Connected bool
	Account   common.Address
	Pool      *chain.Pool
	Staker    *chain.Staker
	Balance   *big.Int
	FetchedAt time.Time
}

// ViewSnapshot converts the state into view-model input.
func (s State) ViewSnapshot() viewmodel.Snapshot {
	return viewmodel.Snapshot{
		Connected: s.Connected,
		Account:   s.Account,
		Pool:      s.Pool,
		Staker:    s.Staker,
		Balance:   s.Balance,
	}
}

// Progress tracks refresh activity.
type Progress struct {
	Refreshes     int               `json:"refreshes"`
	IsRefreshing  bool              `json:"is_refreshing"`
	LastRefreshAt int64             `json:"last_refresh_at"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// Poller refreshes State periodically and on request.
type Poller struct {
	cfg      Config
	reader   Reader
	account  AccountFunc
	observer Observer
	limiter  *rate.Limiter
	trigger  chan struct{}

	mu       sync.RWMutex
	state    State
	progress Progress

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. observer may be nil.
func NewPoller(cfg Config, reader Reader, account AccountFunc, observer Observer) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.MinRefreshGap == 0 {
		cfg.MinRefreshGap = time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cfg:      cfg,
		reader:   reader,
		account:  account,
		observer: observer,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinRefreshGap), 1),
		trigger:  make(chan struct{}, 1),
		progress: Progress{Errors: map[string]string{}},
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs an initial refresh and then the poll loop in the background.
func (p *Poller) Start() {
	go p.run()
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
	log.Println("[snapshot] Poller stopped")
}

// RequestRefresh asks for a refresh soon. Requests made while one is
// already pending are coalesced, and refreshes are spaced by MinRefreshGap.
func (p *Poller) RequestRefresh() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Latest returns the current state. If the connected account changed since
// the last refresh, the previous account's staker and balance are dropped.
func (p *Poller) Latest() State {
	account, connected := p.account()
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()
	if st.Account != account || st.Connected != connected {
		st.Account = account
		st.Connected = connected
		st.Staker = nil
		st.Balance = nil
	}
	return st
}

// Progress returns a copy of the refresh progress.
func (p *Poller) Progress() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr := p.progress
	pr.Errors = make(map[string]string, len(p.progress.Errors))
	for k, v := range p.progress.Errors {
		pr.Errors[k] = v
	}
	return pr
}

func (p *Poller) run() {
	defer close(p.done)

	p.Refresh(p.ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(p.ctx)
		case <-p.trigger:
			if err := p.limiter.Wait(p.ctx); err != nil {
				return
			}
			p.Refresh(p.ctx)
		}
	}
}

// Refresh queries the chain once. A failed query keeps the last good value
// for that field and records the error.
func (p *Poller) Refresh(ctx context.Context) {
	start := time.Now()
	account, connected := p.account()

	p.mu.Lock()
	if p.state.Account != account || p.state.Connected != connected {
		p.state.Account = account
		p.state.Connected = connected
		p.state.Staker = nil
		p.state.Balance = nil
	}
	p.progress.IsRefreshing = true
	p.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	pool, poolErr := p.reader.Pool(callCtx, p.cfg.PoolID)
	var (
		staker     *chain.Staker
		balance    *big.Int
		stakerErr  error
		balanceErr error
	)
	if connected {
		staker, stakerErr = p.reader.Staker(callCtx, p.cfg.Token, account)
		balance, balanceErr = p.reader.Balance(callCtx, account)
	}

	// Results for an account that was swapped out mid-refresh are discarded.
	nowAccount, nowConnected := p.account()
	sameAccount := nowAccount == account && nowConnected == connected

	p.mu.Lock()
	p.record(QueryPool, poolErr)
	if poolErr == nil {
		p.state.Pool = pool
	}
	if connected && sameAccount {
		p.record(QueryStaker, stakerErr)
		if stakerErr == nil {
			p.state.Staker = staker
		}
		p.record(QueryBalance, balanceErr)
		if balanceErr == nil {
			p.state.Balance = balance
		}
	} else if !connected {
		delete(p.progress.Errors, QueryStaker)
		delete(p.progress.Errors, QueryBalance)
	}
	p.state.FetchedAt = time.Now()
	p.progress.Refreshes++
	p.progress.IsRefreshing = false
	p.progress.LastRefreshAt = p.state.FetchedAt.Unix()
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.ObserveRefresh(time.Since(start))
		for query, err := range map[string]error{QueryPool: poolErr, QueryStaker: stakerErr, QueryBalance: balanceErr} {
			if err != nil {
				p.observer.SnapshotError(query)
			}
		}
	}
}

// record must be called with p.mu held.
func (p *Poller) record(query string, err error) {
	if err == nil {
		delete(p.progress.Errors, query)
		return
	}
	if p.progress.Errors[query] == "" {
		log.Printf("[snapshot] %s query failed, keeping last value: %v", query, err)
	}
	p.progress.Errors[query] = err.Error()
}
