// Package mobile provides gomobile-bindable functions for the stakeboard daemon.
// All complex data is returned as JSON strings since gomobile cannot export
// maps, slices, or structs with unexported fields.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/duggee/stakeboard/internal/config"
	"github.com/duggee/stakeboard/internal/daemon"
	"github.com/duggee/stakeboard/internal/viewmodel"

	// Required by gomobile bind at build time
	_ "golang.org/x/mobile/bind"
)

var (
	mu      sync.Mutex
	d       *daemon.Daemon
	running bool
	version = "0.1.0"
)

// Start initialises and starts the daemon.
// configYAML may be empty to use defaults. dataDir is the path to the app's
// private files directory (e.g. Context.getFilesDir() + "/stakeboard").
func Start(configYAML string, dataDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if running {
		return fmt.Errorf("already running")
	}

	cfg, err := config.LoadFromBytes([]byte(configYAML))
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	d, err = daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		d = nil
		return fmt.Errorf("start daemon: %w", err)
	}

	running = true
	return nil
}

// Stop gracefully shuts down the daemon.
func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if d != nil {
		d.Stop()
		d = nil
	}
	running = false
}

// IsRunning returns true if the daemon is currently running.
func IsRunning() bool {
	mu.Lock()
	defer mu.Unlock()
	return running
}

// GetStatus returns full daemon status as a JSON string.
func GetStatus() string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"running":false}`
	}

	status := map[string]interface{}{
		"running":   true,
		"node_id":   d.NodeID(),
		"uptime_ms": d.Uptime().Milliseconds(),
		"chain":     d.ChainStatus(),
		"snapshot":  d.SnapshotStatus(),
		"wallet":    d.WalletStatus(),
	}
	return marshal(status)
}

// GetView returns the staking page as a JSON string.
func GetView() string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"error":"daemon not running"}`
	}
	return marshal(d.View())
}

// SendIntent applies a user intent. kind is one of the intent names the
// HTTP API accepts; text is only read by the set_*_text kinds.
// Returns the resulting page, or {"error":"...","view":{...}} when rejected.
func SendIntent(kind string, text string) string {
	return dispatch(viewmodel.Intent{Kind: viewmodel.IntentKind(kind), Text: text})
}

// Stake sets the stake amount and submits it in one step, so a keystroke
// from another client cannot change the amount that gets signed.
func Stake(amountText string) string {
	return dispatch(
		viewmodel.Intent{Kind: viewmodel.SetStakeText, Text: amountText},
		viewmodel.Intent{Kind: viewmodel.SubmitStake},
	)
}

// Unstake requests an unstake of amountText in one step. An empty
// amountText unstakes the displayed (4-decimal) stake.
func Unstake(amountText string) string {
	intents := []viewmodel.Intent{{Kind: viewmodel.RevealUnstake}}
	if amountText != "" {
		intents = append(intents, viewmodel.Intent{Kind: viewmodel.SetUnstakeText, Text: amountText})
	}
	return dispatch(append(intents, viewmodel.Intent{Kind: viewmodel.SubmitUnstake})...)
}

func dispatch(intents ...viewmodel.Intent) string {
	mu.Lock()
	dm := d
	mu.Unlock()

	if dm == nil {
		return `{"error":"daemon not running"}`
	}
	// The lock is not held across the dispatch so status calls stay live
	// while a transaction is being sent.
	page, err := dm.Dispatch(context.Background(), intents...)
	if err != nil {
		return marshal(map[string]interface{}{"error": err.Error(), "view": page})
	}
	return marshal(page)
}

// GetAPIPort returns the port the HTTP API is listening on, or 0.
func GetAPIPort() int {
	mu.Lock()
	defer mu.Unlock()
	if d == nil {
		return 0
	}
	return d.APIPort()
}

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

// GenerateWallet creates a new random keypair, persists it, and replaces the current wallet.
// Returns JSON: {"connected":true,"address":"..."} or {"error":"..."}.
func GenerateWallet() string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"error":"daemon not running"}`
	}
	if err := d.GenerateNewWallet(); err != nil {
		return errJSON(err)
	}
	return marshal(d.WalletStatus())
}

// ImportWallet loads a wallet from a hex private key and replaces the current wallet.
// Returns JSON: {"connected":true,"address":"..."} or {"error":"..."}.
func ImportWallet(key string) string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"error":"daemon not running"}`
	}
	if err := d.ImportWallet(key); err != nil {
		return errJSON(err)
	}
	return marshal(d.WalletStatus())
}

// SignMessage signs message with the connected wallet.
// Returns JSON: {"address":"...","message":"...","signature":"0x..."} or {"error":"..."}.
func SignMessage(message string) string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `{"error":"daemon not running"}`
	}
	signed, err := d.SignMessage(message)
	if err != nil {
		return errJSON(err)
	}
	return marshal(signed)
}

// GetSubmissions returns recent submissions as a JSON array.
func GetSubmissions(limit int) string {
	mu.Lock()
	defer mu.Unlock()

	if d == nil {
		return `[]`
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	subs, err := d.RecentSubmissions(limit)
	if err != nil || subs == nil {
		return `[]`
	}
	return marshal(subs)
}

func marshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return errJSON(err)
	}
	return string(data)
}

func errJSON(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
