package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/duggee/stakeboard/internal/amount"
	"github.com/duggee/stakeboard/internal/viewmodel"
	"github.com/duggee/stakeboard/internal/wallet"
)

// --- Input types ---

type emptyInput struct{}

type intentInput struct {
	Kind string `json:"kind" jsonschema:"one of set_stake_text, set_unstake_text, submit_stake, reveal_unstake, submit_unstake, submit_claim, submit_withdraw"`
	Text string `json:"text,omitempty" jsonschema:"amount text for set_stake_text and set_unstake_text"`
}

type amountInput struct {
	Amount string `json:"amount" jsonschema:"decimal token amount, for example 1.5"`
}

type unstakeInput struct {
	Amount string `json:"amount,omitempty" jsonschema:"decimal token amount; empty unstakes the displayed (4-decimal) stake"`
}

type submissionsInput struct {
	Limit int `json:"limit" jsonschema:"max number of submissions to return (0 = 20)"`
}

type signInput struct {
	Message string `json:"message" jsonschema:"text to sign with the connected wallet (personal_sign)"`
}

type verifyInput struct {
	Address   string `json:"address" jsonschema:"0x-prefixed account address"`
	Message   string `json:"message" jsonschema:"the signed text"`
	Signature string `json:"signature" jsonschema:"0x-prefixed 65-byte signature"`
}

type walletImportInput struct {
	Key string `json:"key" jsonschema:"hex-encoded secp256k1 private key to import"`
}

// registerTools adds all stakeboard MCP tools to the server.
func (s *MCPServer) registerTools() {
	// Read-only tools

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_status",
		Description: "Console status: node ID, uptime, chain, snapshot freshness and wallet",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_view",
		Description: "Current staking page: pool totals, my stake, balance, rewards, unstake requests and which actions are enabled",
	}, s.handleView)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_submissions",
		Description: "Recently dispatched contract writes, newest first",
	}, s.handleSubmissions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_wallet",
		Description: "Connected wallet address",
	}, s.handleWallet)

	// Write tools

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_intent",
		Description: "Apply a raw user intent to the staking page, exactly as a button press or text edit",
	}, s.handleIntent)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_stake",
		Description: "Stake an amount of the pool token",
	}, s.handleStake)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_unstake",
		Description: "Request an unstake of an amount; leave amount empty to unstake the displayed (4-decimal) stake",
	}, s.handleUnstake)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_claim",
		Description: "Claim pending rewards",
	}, s.handleClaim)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_withdraw",
		Description: "Withdraw unlocked unstake requests",
	}, s.handleWithdraw)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_refresh",
		Description: "Ask for a fresh chain snapshot now",
	}, s.handleRefresh)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_wallet_import",
		Description: "Import a wallet from a hex private key; hot-swaps without restart and persists to DB",
	}, s.handleWalletImport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_wallet_generate",
		Description: "Generate a new wallet keypair; persists to DB and hot-swaps",
	}, s.handleWalletGenerate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_wallet_sign",
		Description: "Sign a message with the connected wallet to prove which account the console controls",
	}, s.handleWalletSign)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stakeboard_wallet_verify",
		Description: "Check a personal_sign signature against an address",
	}, s.handleWalletVerify)
}

// --- Handlers ---

func (s *MCPServer) handleStatus(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Stakeboard Status\n\n")
	fmt.Fprintf(&b, "**Node ID:** `%s`\n", s.console.NodeID())
	fmt.Fprintf(&b, "**Uptime:** %s\n", s.console.Uptime().Round(time.Second))

	writeSection(&b, "Chain", s.console.ChainStatus())
	writeSection(&b, "Snapshot", s.console.SnapshotStatus())
	writeSection(&b, "Wallet", s.console.WalletStatus())

	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleView(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	return textResult(renderPage(s.console.View())), nil, nil
}

func (s *MCPServer) handleSubmissions(_ context.Context, _ *mcp.CallToolRequest, input submissionsInput) (*mcp.CallToolResult, any, error) {
	subs, err := s.console.RecentSubmissions(input.Limit)
	if err != nil {
		return errResult(fmt.Sprintf("failed to list submissions: %v", err)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Submissions (%d)\n\n", len(subs))
	if len(subs) == 0 {
		b.WriteString("No submissions yet.\n")
		return textResult(b.String()), nil, nil
	}
	b.WriteString("| When | Action | Amount | Outcome | Tx |\n")
	b.WriteString("|------|--------|--------|---------|----|\n")
	for _, sub := range subs {
		amt := "-"
		if sub.AmountWei != nil {
			if wei, ok := new(big.Int).SetString(*sub.AmountWei, 10); ok {
				amt = amount.Format(wei)
			}
		}
		tx := "-"
		if sub.TxHash != nil {
			tx = *sub.TxHash
		} else if sub.Error != nil {
			tx = *sub.Error
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | `%s` |\n",
			time.Unix(sub.CreatedAt, 0).UTC().Format(time.RFC3339), sub.Action, amt, sub.Outcome, tx)
	}
	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleWallet(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	wallet := s.console.WalletStatus()
	if connected, _ := wallet["connected"].(bool); !connected {
		return textResult("# Wallet\n\nNo wallet connected. Use stakeboard_wallet_import or stakeboard_wallet_generate."), nil, nil
	}
	var b strings.Builder
	writeSection(&b, "Wallet", wallet)
	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleIntent(ctx context.Context, _ *mcp.CallToolRequest, input intentInput) (*mcp.CallToolResult, any, error) {
	if input.Kind == "" {
		return errResult("kind is required"), nil, nil
	}
	return s.apply(ctx, viewmodel.Intent{Kind: viewmodel.IntentKind(input.Kind), Text: input.Text})
}

func (s *MCPServer) handleStake(ctx context.Context, _ *mcp.CallToolRequest, input amountInput) (*mcp.CallToolResult, any, error) {
	if input.Amount == "" {
		return errResult("amount is required"), nil, nil
	}
	return s.apply(ctx,
		viewmodel.Intent{Kind: viewmodel.SetStakeText, Text: input.Amount},
		viewmodel.Intent{Kind: viewmodel.SubmitStake},
	)
}

func (s *MCPServer) handleUnstake(ctx context.Context, _ *mcp.CallToolRequest, input unstakeInput) (*mcp.CallToolResult, any, error) {
	intents := []viewmodel.Intent{{Kind: viewmodel.RevealUnstake}}
	if input.Amount != "" {
		intents = append(intents, viewmodel.Intent{Kind: viewmodel.SetUnstakeText, Text: input.Amount})
	}
	intents = append(intents, viewmodel.Intent{Kind: viewmodel.SubmitUnstake})
	return s.apply(ctx, intents...)
}

func (s *MCPServer) handleClaim(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	return s.apply(ctx, viewmodel.Intent{Kind: viewmodel.SubmitClaim})
}

func (s *MCPServer) handleWithdraw(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	return s.apply(ctx, viewmodel.Intent{Kind: viewmodel.SubmitWithdraw})
}

func (s *MCPServer) handleRefresh(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	s.console.RequestRefresh()
	return textResult("Refresh requested."), nil, nil
}

func (s *MCPServer) handleWalletImport(_ context.Context, _ *mcp.CallToolRequest, input walletImportInput) (*mcp.CallToolResult, any, error) {
	if input.Key == "" {
		return errResult("key is required"), nil, nil
	}

	if err := s.console.ImportWallet(input.Key); err != nil {
		return errResult(fmt.Sprintf("import failed: %v", err)), nil, nil
	}

	wallet := s.console.WalletStatus()
	addr, _ := wallet["address"].(string)

	return textResult(fmt.Sprintf("Wallet imported successfully.\n\n- **Address:** `%s`", addr)), nil, nil
}

func (s *MCPServer) handleWalletGenerate(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	if err := s.console.GenerateNewWallet(); err != nil {
		return errResult(fmt.Sprintf("generation failed: %v", err)), nil, nil
	}

	wallet := s.console.WalletStatus()
	addr, _ := wallet["address"].(string)

	return textResult(fmt.Sprintf("New wallet generated.\n\n- **Address:** `%s`", addr)), nil, nil
}

func (s *MCPServer) handleWalletSign(_ context.Context, _ *mcp.CallToolRequest, input signInput) (*mcp.CallToolResult, any, error) {
	if input.Message == "" {
		return errResult("message is required"), nil, nil
	}
	signed, err := s.console.SignMessage(input.Message)
	if err != nil {
		return errResult(fmt.Sprintf("sign failed: %v", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Message signed.\n\n- **Address:** `%v`\n- **Signature:** `%v`", signed["address"], signed["signature"])), nil, nil
}

func (s *MCPServer) handleWalletVerify(_ context.Context, _ *mcp.CallToolRequest, input verifyInput) (*mcp.CallToolResult, any, error) {
	if !common.IsHexAddress(input.Address) {
		return errResult("address is not a hex address"), nil, nil
	}
	sig, err := hexutil.Decode(input.Signature)
	if err != nil {
		return errResult("signature must be 0x-prefixed hex"), nil, nil
	}
	addr := common.HexToAddress(input.Address)
	if wallet.VerifyMessage(addr, []byte(input.Message), sig) {
		return textResult(fmt.Sprintf("Valid: signed by `%s`.", addr.Hex())), nil, nil
	}
	return textResult(fmt.Sprintf("Invalid: not signed by `%s`.", addr.Hex())), nil, nil
}

// --- Helpers ---

// apply dispatches intents as one unit and renders either the resulting
// page or the error.
func (s *MCPServer) apply(ctx context.Context, intents ...viewmodel.Intent) (*mcp.CallToolResult, any, error) {
	page, err := s.console.Dispatch(ctx, intents...)
	if err != nil {
		return errResult(intentFailure(intents[len(intents)-1], err)), nil, nil
	}
	return textResult(renderPage(page)), nil, nil
}

func intentFailure(in viewmodel.Intent, err error) string {
	reason := "failed"
	switch {
	case errors.Is(err, viewmodel.ErrInvalidAmount):
		reason = "rejected: invalid amount"
	case errors.Is(err, viewmodel.ErrUnavailable):
		reason = "rejected: action not available right now"
	case errors.Is(err, viewmodel.ErrUnknownIntent):
		reason = "rejected: unknown intent"
	case errors.Is(err, viewmodel.ErrSubmission):
		reason = "submission failed"
	}
	return fmt.Sprintf("%s %s (%v)", in.Kind, reason, err)
}

func renderPage(p viewmodel.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Staking\n\n")
	if p.Connected {
		fmt.Fprintf(&b, "**Account:** `%s`\n", p.Account)
	} else {
		fmt.Fprintf(&b, "**Account:** not connected\n")
	}
	fmt.Fprintf(&b, "**Contract:** `%s` (chain %d)\n", p.Contract, p.ChainID)
	if p.Connected && !p.CorrectNetwork {
		fmt.Fprintf(&b, "\n> Wallet is on an unsupported network.\n")
	}

	fmt.Fprintf(&b, "\n## Balances\n")
	fmt.Fprintf(&b, "- Total staked: %s %s\n", p.TotalStaked, p.Symbol)
	fmt.Fprintf(&b, "- My stake: %s %s\n", p.MyStake, p.Symbol)
	fmt.Fprintf(&b, "- Balance: %s %s\n", p.Balance, p.Symbol)
	fmt.Fprintf(&b, "- Pending rewards: %s %s\n", p.PendingRewards, p.RewardSymbol)

	fmt.Fprintf(&b, "\n## Actions\n")
	fmt.Fprintf(&b, "- Stake: %s\n", enabled(p.CanStake))
	fmt.Fprintf(&b, "- Unstake: %s\n", enabled(p.CanRevealUnstake || p.CanConfirmUnstake))
	fmt.Fprintf(&b, "- Claim: %s\n", enabled(p.CanClaim))
	if p.WithdrawVisible {
		fmt.Fprintf(&b, "- Withdraw: %s (%d pending)\n", enabled(p.CanWithdraw), p.PendingWithdrawals)
	}
	if p.Busy {
		fmt.Fprintf(&b, "- A submission is in flight\n")
	}
	if p.StakeText != "" || p.UnstakeText != "" {
		fmt.Fprintf(&b, "\n## Inputs\n")
		fmt.Fprintf(&b, "- Stake amount: %q\n", p.StakeText)
		fmt.Fprintf(&b, "- Unstake amount: %q\n", p.UnstakeText)
	}

	if len(p.UnstakeRequests) > 0 {
		fmt.Fprintf(&b, "\n## Unstake requests\n\n| Amount | Unlock block | Status |\n|--------|--------------|--------|\n")
		for _, r := range p.UnstakeRequests {
			status := "pending"
			if r.Finished {
				status = "withdrawn"
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Amount, r.UnlockBlock, status)
		}
	}

	if p.Notice != nil {
		fmt.Fprintf(&b, "\n**Last %s:** %s\n", p.Notice.Level, p.Notice.Message)
	}
	return b.String()
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}

func writeSection(b *strings.Builder, title string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n## %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %v\n", k, m[k])
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
