package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/getlantern/systray"

	"github.com/duggee/stakeboard/internal/apiclient"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

var Version = "0.1.0"

const pollInterval = 3 * time.Second

type trayApp struct {
	mu         sync.Mutex
	daemonCmd  *exec.Cmd
	ownsDaemon bool
	configPath string
	api        *apiclient.Client

	// Header
	mTitle  *systray.MenuItem
	mUptime *systray.MenuItem
	mChain  *systray.MenuItem

	// Pool section
	mPoolHeader *systray.MenuItem
	mTotal      *systray.MenuItem
	mMine       *systray.MenuItem
	mBalance    *systray.MenuItem
	mRewards    *systray.MenuItem
	mPending    *systray.MenuItem

	// Wallet section
	mWalletHeader *systray.MenuItem
	mWalletAddr   *systray.MenuItem
	mCopyAddr     *systray.MenuItem

	// Actions
	mClaim     *systray.MenuItem
	mWithdraw  *systray.MenuItem
	mRefresh   *systray.MenuItem
	mDashboard *systray.MenuItem
	mQuit      *systray.MenuItem
}

func main() {
	app := &trayApp{api: apiclient.New(os.Getenv("STAKEBOARD_API"))}

	for i, arg := range os.Args[1:] {
		if arg == "-config" && i+1 < len(os.Args)-1 {
			app.configPath = os.Args[i+2]
		}
	}

	systray.Run(app.onReady, app.onExit)
}

func (a *trayApp) onReady() {
	systray.SetIcon(iconData)
	systray.SetTooltip("Stakeboard v" + Version)

	a.mTitle = systray.AddMenuItem("Stakeboard v"+Version, "")
	a.mTitle.Disable()
	a.mUptime = systray.AddMenuItem("     Uptime: starting...", "")
	a.mUptime.Disable()
	a.mChain = systray.AddMenuItem("     Chain: --", "")
	a.mChain.Disable()

	systray.AddSeparator()

	a.mPoolHeader = systray.AddMenuItem("POOL", "")
	a.mPoolHeader.Disable()
	a.mTotal = systray.AddMenuItem("     Total staked: --", "")
	a.mTotal.Disable()
	a.mMine = systray.AddMenuItem("     My stake: --", "")
	a.mMine.Disable()
	a.mBalance = systray.AddMenuItem("     Balance: --", "")
	a.mBalance.Disable()
	a.mRewards = systray.AddMenuItem("     Rewards: --", "")
	a.mRewards.Disable()
	a.mPending = systray.AddMenuItem("     Pending withdrawals: --", "")
	a.mPending.Disable()

	systray.AddSeparator()

	a.mWalletHeader = systray.AddMenuItem("WALLET", "")
	a.mWalletHeader.Disable()
	a.mWalletAddr = systray.AddMenuItem("     Not connected", "")
	a.mWalletAddr.Disable()
	a.mCopyAddr = systray.AddMenuItem("     Copy Address", "Copy wallet address to clipboard")

	systray.AddSeparator()

	a.mClaim = systray.AddMenuItem("Claim Rewards", "Claim pending rewards")
	a.mWithdraw = systray.AddMenuItem("Withdraw", "Withdraw unlocked unstake requests")
	a.mRefresh = systray.AddMenuItem("Refresh", "Fetch a fresh chain snapshot")
	a.mDashboard = systray.AddMenuItem("Open Dashboard", "Open the staking dashboard in a browser")

	systray.AddSeparator()

	a.mQuit = systray.AddMenuItem("Quit Stakeboard", "Stop daemon and quit")

	if !a.isDaemonRunning() {
		a.startDaemon()
	}

	go a.pollLoop()
	go a.handleClicks()
}

func (a *trayApp) onExit() {
	a.stopDaemon()
}

func (a *trayApp) isDaemonRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, err := a.api.Health(ctx)
	return err == nil && h.Status == "ok"
}

func (a *trayApp) startDaemon() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.daemonCmd != nil {
		return
	}

	binaryPath := "stakeboardd"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "stakeboardd")
		if _, err := os.Stat(candidate); err == nil {
			binaryPath = candidate
		}
	}

	args := []string{}
	if a.configPath != "" {
		args = append(args, "-config", a.configPath)
	}

	a.daemonCmd = exec.Command(binaryPath, args...)
	a.daemonCmd.Stdout = os.Stdout
	a.daemonCmd.Stderr = os.Stderr
	a.daemonCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := a.daemonCmd.Start(); err != nil {
		log.Printf("[tray] Failed to start daemon: %v", err)
		a.daemonCmd = nil
		return
	}

	a.ownsDaemon = true
	cmd := a.daemonCmd
	log.Printf("[tray] Started daemon (PID %d)", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[tray] Daemon exited: %v", err)
		}
		a.mu.Lock()
		if a.daemonCmd == cmd {
			a.daemonCmd = nil
			a.ownsDaemon = false
		}
		a.mu.Unlock()
	}()

	for i := 0; i < 30; i++ {
		time.Sleep(500 * time.Millisecond)
		if a.isDaemonRunning() {
			log.Println("[tray] Daemon is ready")
			return
		}
	}
	log.Println("[tray] WARNING: Daemon did not become ready within 15s")
}

func (a *trayApp) stopDaemon() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.daemonCmd == nil || !a.ownsDaemon {
		return
	}

	log.Println("[tray] Stopping daemon...")
	proc := a.daemonCmd.Process
	proc.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for a.isDaemonRunning() {
			time.Sleep(200 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Println("[tray] Daemon stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("[tray] Daemon did not stop, sending SIGKILL")
		proc.Kill()
	}
	a.daemonCmd = nil
}

func (a *trayApp) pollLoop() {
	a.updateStatus()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			a.updateStatus()
		case <-sigCh:
			systray.Quit()
			return
		}
	}
}

func (a *trayApp) updateStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	page, err := a.api.View(ctx)
	if err != nil {
		a.mUptime.SetTitle("     Uptime: offline")
		a.mChain.SetTitle("     Chain: --")
		a.mTotal.SetTitle("     Total staked: --")
		a.mMine.SetTitle("     My stake: --")
		a.mBalance.SetTitle("     Balance: --")
		a.mRewards.SetTitle("     Rewards: --")
		a.mPending.SetTitle("     Pending withdrawals: --")
		a.mWalletAddr.SetTitle("     Not connected")
		a.mClaim.Disable()
		a.mWithdraw.Disable()
		systray.SetTooltip("Stakeboard - Offline")
		return
	}

	a.render(page)

	if h, err := a.api.Health(ctx); err == nil {
		a.mUptime.SetTitle(fmt.Sprintf("     Uptime: %s", formatUptime(h.UptimeMs)))
	}
}

func (a *trayApp) render(p *viewmodel.Page) {
	chainTitle := fmt.Sprintf("     Chain: %d", p.ChainID)
	if p.Connected && !p.CorrectNetwork {
		chainTitle += " (unsupported)"
	}
	a.mChain.SetTitle(chainTitle)

	a.mTotal.SetTitle(fmt.Sprintf("     Total staked: %s %s", p.TotalStaked, p.Symbol))
	a.mMine.SetTitle(fmt.Sprintf("     My stake: %s %s", p.MyStake, p.Symbol))
	a.mBalance.SetTitle(fmt.Sprintf("     Balance: %s %s", p.Balance, p.Symbol))
	a.mRewards.SetTitle(fmt.Sprintf("     Rewards: %s %s", p.PendingRewards, p.RewardSymbol))

	if p.WithdrawVisible {
		a.mPending.SetTitle(fmt.Sprintf("     Pending withdrawals: %d", p.PendingWithdrawals))
	} else {
		a.mPending.SetTitle("     Pending withdrawals: none")
	}

	if p.Connected {
		a.mWalletAddr.SetTitle("     " + shortAddr(p.Account))
	} else {
		a.mWalletAddr.SetTitle("     Not connected")
	}

	setEnabled(a.mClaim, p.CanClaim)
	setEnabled(a.mWithdraw, p.CanWithdraw)

	systray.SetTooltip(fmt.Sprintf("Stakeboard - %s %s staked | %s %s rewards",
		p.MyStake, p.Symbol, p.PendingRewards, p.RewardSymbol))
}

func setEnabled(item *systray.MenuItem, ok bool) {
	if ok {
		item.Enable()
	} else {
		item.Disable()
	}
}

func shortAddr(addr string) string {
	if len(addr) > 16 {
		return addr[:8] + "…" + addr[len(addr)-6:]
	}
	return addr
}

func formatUptime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60

	if hours >= 24 {
		days := hours / 24
		hours = hours % 24
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func (a *trayApp) intent(kind viewmodel.IntentKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	page, err := a.api.Intent(ctx, viewmodel.Intent{Kind: kind})
	if err != nil {
		log.Printf("[tray] %s failed: %v", kind, err)
		return
	}
	if page.Notice != nil {
		log.Printf("[tray] %s", page.Notice.Message)
	}
	a.render(page)
}

func (a *trayApp) handleClicks() {
	for {
		select {
		case <-a.mClaim.ClickedCh:
			go a.intent(viewmodel.SubmitClaim)

		case <-a.mWithdraw.ClickedCh:
			go a.intent(viewmodel.SubmitWithdraw)

		case <-a.mRefresh.ClickedCh:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := a.api.Refresh(ctx); err != nil {
				log.Printf("[tray] Refresh failed: %v", err)
			}
			cancel()

		case <-a.mDashboard.ClickedCh:
			openBrowser(a.api.BaseURL())

		case <-a.mCopyAddr.ClickedCh:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			w, err := a.api.Wallet(ctx)
			cancel()
			if err == nil && w.Address != "" {
				copyToClipboard(w.Address)
			}

		case <-a.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		cmd = exec.Command("open", url)
	}
	cmd.Start()
}

func copyToClipboard(text string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	default:
		return
	}
	cmd.Stdin = strings.NewReader(text)
	cmd.Run()
}
