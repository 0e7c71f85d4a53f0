package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/duggee/stakeboard/internal/apiclient"
	"github.com/duggee/stakeboard/internal/wallet"
)

func (c *cli) walletCmd() *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet related commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			w, err := c.client().Wallet(ctx)
			if err != nil {
				return err
			}
			printWallet(cmd.OutOrStdout(), w)
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a hex private key read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if in == os.Stdin {
				fmt.Fprint(cmd.ErrOrStderr(), "Private key: ")
			}
			raw, err := io.ReadAll(io.LimitReader(in, 1024))
			if err != nil {
				return err
			}
			key := strings.TrimSpace(string(raw))
			if key == "" {
				return fmt.Errorf("no key given")
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			w, err := c.client().ImportWallet(ctx, key)
			if err != nil {
				return err
			}
			printWallet(cmd.OutOrStdout(), w)
			return nil
		},
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a fresh keypair and connect it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			w, err := c.client().GenerateWallet(ctx)
			if err != nil {
				return err
			}
			printWallet(cmd.OutOrStdout(), w)
			return nil
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the connected wallet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			w, err := c.client().DisconnectWallet(ctx)
			if err != nil {
				return err
			}
			printWallet(cmd.OutOrStdout(), w)
			return nil
		},
	}

	signCmd := &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message with the connected wallet (personal_sign).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			signed, err := c.client().SignMessage(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Address:   %s\nSignature: %s\n", signed.Address, signed.Signature)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <address> <message> <signature>",
		Short: "Check a personal_sign signature locally; exits non-zero when it does not match.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("%q is not an address", args[0])
			}
			sig, err := hexutil.Decode(args[2])
			if err != nil {
				return fmt.Errorf("signature: %w", err)
			}
			addr := common.HexToAddress(args[0])
			if !wallet.VerifyMessage(addr, []byte(args[1]), sig) {
				return fmt.Errorf("signature does not match %s", addr.Hex())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: signed by %s\n", addr.Hex())
			return nil
		},
	}

	subCmd.AddCommand(importCmd)
	subCmd.AddCommand(generateCmd)
	subCmd.AddCommand(disconnectCmd)
	subCmd.AddCommand(signCmd)
	subCmd.AddCommand(verifyCmd)
	return subCmd
}

func printWallet(out io.Writer, w *apiclient.Wallet) {
	if !w.Connected {
		fmt.Fprintln(out, "No wallet connected.")
		return
	}
	fmt.Fprintf(out, "Address: %s\n", w.Address)
}
