package daemon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/duggee/stakeboard/internal/amount"
	"github.com/duggee/stakeboard/internal/chain"
	"github.com/duggee/stakeboard/internal/config"
	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/metrics"
	"github.com/duggee/stakeboard/internal/server"
	"github.com/duggee/stakeboard/internal/snapshot"
	"github.com/duggee/stakeboard/internal/viewmodel"
	"github.com/duggee/stakeboard/internal/wallet"
)

// DialFunc connects to the JSON-RPC endpoint. The returned func releases it.
type DialFunc func(ctx context.Context, url string) (chain.EVMClient, func(), error)

func dialEthclient(ctx context.Context, url string) (chain.EVMClient, func(), error) {
	client, err := chain.Dial(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// Daemon orchestrates the staking console subsystems.
type Daemon struct {
	cfg       *config.Config
	dial      DialFunc
	nodeID    string
	startTime time.Time

	closeEVM   func()
	chain      *chain.Client
	registry   *prometheus.Registry
	indicators *metrics.Indicators
	poller     *snapshot.Poller
	ctrl       *viewmodel.Controller
	httpSrv    *server.Server
	apiPort    int

	mu      sync.RWMutex
	wallet  *wallet.Wallet
	chainID uint64

	stopCh chan struct{}
}

// New creates a new daemon instance.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &Daemon{cfg: cfg, dial: dialEthclient, stopCh: make(chan struct{})}, nil
}

// Start initializes and starts all subsystems in order.
func (d *Daemon) Start() error {
	d.startTime = time.Now()

	// 1. Data dir + database
	if err := os.MkdirAll(d.cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := db.Open(d.cfg.DBPath()); err != nil {
		return fmt.Errorf("db open: %w", err)
	}

	// 2. Node ID
	nodeID, err := db.GetNodeID()
	if err != nil {
		return fmt.Errorf("get node id: %w", err)
	}
	d.nodeID = nodeID
	log.Printf("[daemon] Node ID: %s", nodeID[:16])

	// 3. Wallet: config/env key, then the key saved by a previous import.
	//    Nothing is generated here; the user connects explicitly.
	d.wallet = d.loadWallet()

	// 4. Chain
	dialCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Chain.DialTimeout)
	evm, closeEVM, err := d.dial(dialCtx, d.cfg.Chain.RPCURL)
	cancel()
	if err != nil {
		return fmt.Errorf("chain dial: %w", err)
	}
	d.closeEVM = closeEVM
	d.chain, err = chain.New(evm, d.cfg.ContractAddress(), chain.Params{
		GasFeeCapMultiplier: d.cfg.Chain.GasFeeCapMultiplier,
		GasLimitMultiplier:  d.cfg.Chain.GasLimitMultiplier,
		GasLimitCap:         d.cfg.Chain.GasLimitCap,
	})
	if err != nil {
		return fmt.Errorf("chain client: %w", err)
	}
	if d.wallet != nil {
		d.chain.SetSigner(d.wallet)
	}
	d.checkChainID()

	// 5. Metrics
	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.indicators = metrics.NewIndicators(d.registry)

	// 6. Snapshot poller
	d.poller = snapshot.NewPoller(snapshot.Config{
		PoolID:        d.cfg.Chain.PoolID,
		Token:         d.cfg.TokenAddress(),
		PollInterval:  d.cfg.Snapshot.PollInterval,
		MinRefreshGap: d.cfg.Snapshot.MinRefreshGap,
		CallTimeout:   d.cfg.Chain.CallTimeout,
	}, d.chain, d.account, d.indicators)
	d.poller.Start()

	// 7. View-model controller
	d.ctrl = viewmodel.NewController(d.chain, d.cfg.TokenAddress(), viewmodel.Hooks{
		Dispatched:  d.onDispatch,
		Rejected:    d.onReject,
		BusyChanged: d.indicators.SetBusy,
	})

	go d.statusLoop()

	// 8. HTTP API + dashboard
	d.httpSrv = server.New(d.cfg.API.Bind, d.cfg.API.Port, d, d.registry)
	d.httpSrv.AllowOrigins(d.cfg.API.AllowedOrigins...)
	if port, err := d.httpSrv.Start(); err != nil {
		log.Printf("[daemon] WARNING: HTTP API failed to start: %v (polling continues)", err)
	} else {
		d.apiPort = port
		log.Printf("[daemon] Dashboard on http://%s:%d/", d.cfg.API.Bind, port)
	}

	log.Println("[daemon] All systems online")
	return nil
}

func (d *Daemon) loadWallet() *wallet.Wallet {
	if d.cfg.Wallet.Key != "" {
		w, err := wallet.Load(d.cfg.Wallet.Key)
		if err != nil {
			log.Printf("[wallet] Configured key rejected: %v (continuing disconnected)", err)
		} else {
			return w
		}
	}
	saved, err := db.GetConfigOr(db.KeyWalletKey, "")
	if err != nil {
		log.Printf("[wallet] Failed to read saved key: %v", err)
		return nil
	}
	if saved == "" {
		log.Println("[wallet] No wallet connected")
		return nil
	}
	w, err := wallet.Load(saved)
	if err != nil {
		log.Printf("[wallet] Saved key rejected: %v (continuing disconnected)", err)
		return nil
	}
	return w
}

// checkChainID records the network chain id. Failure is not fatal; the
// status loop retries while it is unknown.
func (d *Daemon) checkChainID() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Chain.CallTimeout)
	defer cancel()
	id, err := d.chain.ChainID(ctx)
	if err != nil {
		log.Printf("[chain] Chain id unavailable: %v", err)
		return
	}
	d.mu.Lock()
	d.chainID = id.Uint64()
	d.mu.Unlock()
	if d.correctNetwork(id.Uint64()) {
		log.Printf("[chain] Connected to chain %d, contract %s", id.Uint64(), d.cfg.ContractAddress().Hex())
	} else {
		log.Printf("[chain] WARNING: chain %d is not one of %v", id.Uint64(), d.cfg.AllowedChainIDs())
	}
}

func (d *Daemon) correctNetwork(id uint64) bool {
	return id != 0 && slices.Contains(d.cfg.AllowedChainIDs(), id)
}

func (d *Daemon) statusLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if d.ChainID() == 0 {
				d.checkChainID()
			}
			page := d.View()
			count, _ := db.CountSubmissions()
			log.Printf("[daemon] Account: %s | Staked: %s %s | Rewards: %s %s | Pending withdrawals: %d | Submissions: %d",
				orNone(page.Account), page.MyStake, page.Symbol, page.PendingRewards, page.RewardSymbol,
				page.PendingWithdrawals, count)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (d *Daemon) Stop() {
	log.Println("[daemon] Shutting down...")
	close(d.stopCh)

	if d.httpSrv != nil {
		d.httpSrv.Stop()
	}
	if d.poller != nil {
		d.poller.Stop()
	}
	if d.closeEVM != nil {
		d.closeEVM()
	}
	db.Close()

	log.Println("[daemon] Shutdown complete")
}

// account is the poller's account source.
func (d *Daemon) account() (common.Address, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.wallet == nil {
		return common.Address{}, false
	}
	return d.wallet.Address, true
}

func (d *Daemon) onDispatch(dp viewmodel.Dispatch) {
	sub := &db.Submission{
		Action:  string(dp.Effect.Action),
		Token:   d.cfg.TokenAddress().Hex(),
		Account: dp.Account.Hex(),
		Outcome: db.OutcomeDispatched,
	}
	if dp.Effect.Amount != nil {
		amt := dp.Effect.Amount.String()
		sub.AmountWei = &amt
	}
	outcome := metrics.OutcomeDispatched
	if dp.Err != nil {
		outcome = metrics.OutcomeFailed
		sub.Outcome = db.OutcomeFailed
		msg := dp.Err.Error()
		sub.Error = &msg
	} else {
		hash := dp.TxHash.Hex()
		sub.TxHash = &hash
	}
	if err := db.InsertSubmission(sub); err != nil {
		log.Printf("[daemon] Failed to journal %s: %v", sub.Action, err)
	}
	d.indicators.AddSubmission(sub.Action, outcome)

	if dp.Err == nil {
		d.poller.RequestRefresh()
	}
}

func (d *Daemon) onReject(in viewmodel.Intent, err error) {
	if errors.Is(err, viewmodel.ErrInvalidAmount) {
		d.indicators.AddValidationFailure(intentAction(in.Kind))
	}
}

func intentAction(kind viewmodel.IntentKind) string {
	switch kind {
	case viewmodel.SubmitStake, viewmodel.SetStakeText:
		return string(viewmodel.ActionStake)
	case viewmodel.SubmitUnstake, viewmodel.SetUnstakeText, viewmodel.RevealUnstake:
		return string(viewmodel.ActionUnstake)
	case viewmodel.SubmitClaim:
		return string(viewmodel.ActionClaim)
	case viewmodel.SubmitWithdraw:
		return string(viewmodel.ActionWithdraw)
	}
	return string(kind)
}

// --- Console (used by the HTTP server and MCP tools) ---

func (d *Daemon) NodeID() string        { return d.nodeID }
func (d *Daemon) Uptime() time.Duration { return time.Since(d.startTime) }

// APIPort returns the bound HTTP port, or 0 when the API is down.
func (d *Daemon) APIPort() int { return d.apiPort }

// ChainID returns the network chain id, or 0 while unknown.
func (d *Daemon) ChainID() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chainID
}

// View returns the current page without changing any state.
func (d *Daemon) View() viewmodel.Page {
	snap := d.poller.Latest().ViewSnapshot()
	return d.page(d.ctrl.View(snap))
}

func (d *Daemon) page(v viewmodel.View) viewmodel.Page {
	id := d.ChainID()
	return viewmodel.Page{
		View:           v,
		Symbol:         d.cfg.Chain.Symbol,
		RewardSymbol:   d.cfg.Chain.RewardSymbol,
		Contract:       d.cfg.ContractAddress().Hex(),
		ChainID:        id,
		CorrectNetwork: d.correctNetwork(id),
	}
}

// Dispatch applies intents as one unit and returns the resulting page.
// Submissions outlive a cancelled caller so a dropped request cannot abort a
// half-sent transaction.
func (d *Daemon) Dispatch(ctx context.Context, intents ...viewmodel.Intent) (viewmodel.Page, error) {
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 4*d.cfg.Chain.CallTimeout)
	defer cancel()

	snap := d.poller.Latest().ViewSnapshot()
	err := d.ctrl.ApplyAll(submitCtx, snap, intents...)
	return d.View(), err
}

// RequestRefresh asks the poller for a fresh snapshot.
func (d *Daemon) RequestRefresh() {
	d.poller.RequestRefresh()
}

func (d *Daemon) ChainStatus() map[string]interface{} {
	id := d.ChainID()
	return map[string]interface{}{
		"rpc_url":           d.cfg.Chain.RPCURL,
		"contract":          d.cfg.ContractAddress().Hex(),
		"token":             d.cfg.TokenAddress().Hex(),
		"pool_id":           d.cfg.Chain.PoolID,
		"chain_id":          id,
		"allowed_chain_ids": d.cfg.AllowedChainIDs(),
		"correct_network":   d.correctNetwork(id),
		"symbol":            d.cfg.Chain.Symbol,
		"reward_symbol":     d.cfg.Chain.RewardSymbol,
	}
}

func (d *Daemon) SnapshotStatus() map[string]interface{} {
	p := d.poller.Progress()
	st := d.poller.Latest()
	result := map[string]interface{}{
		"refreshes":       p.Refreshes,
		"is_refreshing":   p.IsRefreshing,
		"last_refresh_at": p.LastRefreshAt,
		"errors":          p.Errors,
		"pool_loaded":     st.Pool != nil,
		"staker_loaded":   st.Staker != nil,
		"balance_loaded":  st.Balance != nil,
	}
	if st.Pool != nil {
		result["total_staked"] = amount.Format(st.Pool.TotalStakeAmount)
	}
	return result
}

func (d *Daemon) WalletStatus() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := map[string]interface{}{"connected": d.wallet != nil}
	if d.wallet != nil {
		result["address"] = d.wallet.Address.Hex()
		result["public_key"] = hex.EncodeToString(d.wallet.PublicKey)
	}
	return result
}

func (d *Daemon) ImportWallet(key string) error {
	w, err := wallet.Load(key)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	if err := db.SetConfig(db.KeyWalletKey, w.KeyHex); err != nil {
		return fmt.Errorf("persist wallet: %w", err)
	}
	d.setWallet(w)
	log.Printf("[wallet] Imported wallet: %s", w.Address.Hex())
	return nil
}

func (d *Daemon) GenerateNewWallet() error {
	w, err := wallet.Generate()
	if err != nil {
		return fmt.Errorf("generate wallet: %w", err)
	}
	if err := db.SetConfig(db.KeyWalletKey, w.KeyHex); err != nil {
		return fmt.Errorf("persist wallet: %w", err)
	}
	d.setWallet(w)
	log.Printf("[wallet] Generated new wallet: %s", w.Address.Hex())
	return nil
}

func (d *Daemon) DisconnectWallet() error {
	if err := db.DeleteConfig(db.KeyWalletKey); err != nil {
		return fmt.Errorf("forget wallet: %w", err)
	}
	d.setWallet(nil)
	log.Println("[wallet] Disconnected")
	return nil
}

// setWallet swaps the signer, clears input typed for the previous account
// and asks for a snapshot of the new one.
func (d *Daemon) setWallet(w *wallet.Wallet) {
	d.mu.Lock()
	d.wallet = w
	d.mu.Unlock()

	if w != nil {
		d.chain.SetSigner(w)
	} else {
		d.chain.SetSigner(nil)
	}
	d.ctrl.Reset()
	d.poller.RequestRefresh()
}

// SignMessage signs message with the connected wallet so a third party can
// check which account the console controls.
func (d *Daemon) SignMessage(message string) (map[string]interface{}, error) {
	d.mu.RLock()
	w := d.wallet
	d.mu.RUnlock()
	if w == nil {
		return nil, wallet.ErrNotConnected
	}
	sig, err := w.SignMessage([]byte(message))
	if err != nil {
		return nil, err
	}
	log.Printf("[wallet] Signed a %d-byte message", len(message))
	return map[string]interface{}{
		"address":   w.Address.Hex(),
		"message":   message,
		"signature": hexutil.Encode(sig),
	}, nil
}

func (d *Daemon) RecentSubmissions(limit int) ([]db.Submission, error) {
	return db.GetRecentSubmissions(limit)
}

func (d *Daemon) SubmissionCount() (int, error) {
	return db.CountSubmissions()
}
