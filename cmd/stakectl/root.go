package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duggee/stakeboard/internal/apiclient"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

type cli struct {
	apiURL  string
	timeout time.Duration
}

func rootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "stakectl",
		Short:         "Drive a running stakeboard daemon.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	defaultAPI := os.Getenv("STAKEBOARD_API")
	if defaultAPI == "" {
		defaultAPI = apiclient.DefaultBaseURL
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api", defaultAPI, "daemon API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 90*time.Second, "request timeout")

	root.AddCommand(c.statusCmd())
	root.AddCommand(c.viewCmd())
	root.AddCommand(c.stakeCmd())
	root.AddCommand(c.unstakeCmd())
	root.AddCommand(c.claimCmd())
	root.AddCommand(c.withdrawCmd())
	root.AddCommand(c.historyCmd())
	root.AddCommand(c.refreshCmd())
	root.AddCommand(c.walletCmd())

	root.Version = Version
	return root
}

func (c *cli) client() *apiclient.Client {
	return apiclient.New(c.apiURL)
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, chain and wallet status.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			st, err := c.client().Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node:         %s\n", st.NodeID)
			fmt.Fprintf(out, "Uptime:       %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
			fmt.Fprintf(out, "Chain id:     %v\n", st.Chain["chain_id"])
			fmt.Fprintf(out, "Contract:     %v\n", st.Chain["contract"])
			fmt.Fprintf(out, "Network ok:   %v\n", st.Chain["correct_network"])
			fmt.Fprintf(out, "Wallet:       %v\n", orDash(st.Wallet["address"]))
			fmt.Fprintf(out, "Refreshes:    %v\n", st.Snapshot["refreshes"])
			fmt.Fprintf(out, "Submissions:  %d\n", st.Submissions.Total)
			return nil
		},
	}
}

func (c *cli) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the staking page.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			page, err := c.client().View(ctx)
			if err != nil {
				return err
			}
			printPage(cmd.OutOrStdout(), page)
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the daemon for a fresh chain snapshot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			if err := c.client().Refresh(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Refresh requested.")
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent submissions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			subs, err := c.client().Submissions(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions yet.")
				return nil
			}
			for _, s := range subs {
				detail := "-"
				if s.TxHash != nil {
					detail = *s.TxHash
				} else if s.Error != nil {
					detail = *s.Error
				}
				fmt.Fprintf(out, "%s  %-8s  %-10s  %s\n",
					time.Unix(s.CreatedAt, 0).Format("2006-01-02 15:04:05"), s.Action, s.Outcome, detail)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max submissions to list")
	return cmd
}

func printPage(out io.Writer, p *viewmodel.Page) {
	account := "not connected"
	if p.Connected {
		account = p.Account
	}
	fmt.Fprintf(out, "Account:          %s\n", account)
	if p.Connected && !p.CorrectNetwork {
		fmt.Fprintf(out, "Network:          chain %d is not supported\n", p.ChainID)
	}
	fmt.Fprintf(out, "Total staked:     %s %s\n", p.TotalStaked, p.Symbol)
	fmt.Fprintf(out, "My stake:         %s %s\n", p.MyStake, p.Symbol)
	fmt.Fprintf(out, "Balance:          %s %s\n", p.Balance, p.Symbol)
	fmt.Fprintf(out, "Pending rewards:  %s %s\n", p.PendingRewards, p.RewardSymbol)
	if p.WithdrawVisible {
		fmt.Fprintf(out, "Withdrawals:      %d pending\n", p.PendingWithdrawals)
	}
	if p.Notice != nil {
		fmt.Fprintf(out, "Last:             %s\n", p.Notice.Message)
	}
}

func orDash(v interface{}) interface{} {
	if v == nil {
		return "-"
	}
	return v
}
