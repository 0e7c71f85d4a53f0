package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duggee/stakeboard/internal/apiclient"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

// send posts intents as one unit, so no other client can change an input
// between setting it and submitting it.
func (c *cli) send(ctx context.Context, intents ...viewmodel.Intent) (*viewmodel.Page, error) {
	page, err := c.client().Intents(ctx, intents...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", intents[len(intents)-1].Kind, err)
	}
	return page, nil
}

func (c *cli) submitCmd(use, short string, args cobra.PositionalArgs, build func(args []string) []viewmodel.Intent) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			page, err := c.send(ctx, build(args)...)
			if err != nil {
				if apiclient.IsKind(err, "unavailable") {
					return fmt.Errorf("%w (is a wallet connected and is there anything to act on?)", err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			if page.Notice != nil {
				fmt.Fprintln(out, page.Notice.Message)
			}
			printPage(out, page)
			return nil
		},
	}
}

func (c *cli) stakeCmd() *cobra.Command {
	return c.submitCmd("stake <amount>", "Stake an amount of the pool token.", cobra.ExactArgs(1),
		func(args []string) []viewmodel.Intent {
			return []viewmodel.Intent{
				{Kind: viewmodel.SetStakeText, Text: args[0]},
				{Kind: viewmodel.SubmitStake},
			}
		})
}

func (c *cli) unstakeCmd() *cobra.Command {
	return c.submitCmd("unstake [amount]", "Request an unstake; without an amount, the displayed (4-decimal) stake.", cobra.MaximumNArgs(1),
		func(args []string) []viewmodel.Intent {
			intents := []viewmodel.Intent{{Kind: viewmodel.RevealUnstake}}
			if len(args) == 1 {
				intents = append(intents, viewmodel.Intent{Kind: viewmodel.SetUnstakeText, Text: args[0]})
			}
			return append(intents, viewmodel.Intent{Kind: viewmodel.SubmitUnstake})
		})
}

func (c *cli) claimCmd() *cobra.Command {
	return c.submitCmd("claim", "Claim pending rewards.", cobra.NoArgs,
		func([]string) []viewmodel.Intent {
			return []viewmodel.Intent{{Kind: viewmodel.SubmitClaim}}
		})
}

func (c *cli) withdrawCmd() *cobra.Command {
	return c.submitCmd("withdraw", "Withdraw unlocked unstake requests.", cobra.NoArgs,
		func([]string) []viewmodel.Intent {
			return []viewmodel.Intent{{Kind: viewmodel.SubmitWithdraw}}
		})
}
