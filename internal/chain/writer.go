package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Submit signs and broadcasts call as an EIP-1559 transaction. It returns
// once the node accepts the transaction and never waits for a receipt.
func (c *Client) Submit(ctx context.Context, call Call) (common.Hash, error) {
	signer := c.currentSigner()
	if signer == nil {
		return common.Hash{}, ErrNoSigner
	}

	method, ok := c.abi.Methods[call.Method]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
	value := new(big.Int)
	if call.Value != nil {
		value.Set(call.Value)
	}
	if value.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("%s: negative value", call.Method)
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return common.Hash{}, fmt.Errorf("%s is not payable", call.Method)
	}

	input, err := c.abi.Pack(call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", call.Method, err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	from := signer.Account()
	nonce, err := c.evm.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	tip, feeCap, err := c.fees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gas, err := c.evm.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &c.contract,
		GasFeeCap: feeCap,
		GasTipCap: tip,
		Value:     value,
		Data:      input,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", call.Method, err)
	}
	gas = uint64(float64(gas) * c.params.GasLimitMultiplier)
	if c.params.GasLimitCap > 0 && gas > c.params.GasLimitCap {
		return common.Hash{}, fmt.Errorf("gas %d for %s exceeds cap %d", gas, call.Method, c.params.GasLimitCap)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.contract,
		Value:     value,
		Data:      input,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", call.Method, err)
	}
	if err := c.evm.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", call.Method, err)
	}

	log.Printf("[chain] Dispatched %s from %s (tx %s, nonce %d)", call.Method, from.Hex(), signed.Hash().Hex(), nonce)
	return signed.Hash(), nil
}

// fees returns the priority tip and fee cap: baseFee * multiplier + tip.
func (c *Client) fees(ctx context.Context) (*big.Int, *big.Int, error) {
	tip, err := c.evm.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := c.evm.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	baseFee := new(big.Int)
	if head.BaseFee != nil {
		baseFee.Set(head.BaseFee)
	}
	scaled, _ := new(big.Float).Mul(
		new(big.Float).SetInt(baseFee),
		big.NewFloat(c.params.GasFeeCapMultiplier),
	).Int(nil)
	feeCap := new(big.Int).Add(scaled, tip)
	return tip, feeCap, nil
}
