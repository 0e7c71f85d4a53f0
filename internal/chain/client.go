// Package chain reads and writes the staking contract over Ethereum JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrNoSigner is returned by Submit when no wallet is loaded.
	ErrNoSigner = errors.New("no signer loaded")
	// ErrUnknownMethod is returned when a call names a function missing from the ABI.
	ErrUnknownMethod = errors.New("unknown contract method")
)

// EVMClient is the subset of *ethclient.Client the console needs.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return client, nil
}

// Signer signs transactions for a single account.
type Signer interface {
	Account() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Params tunes fee and gas selection for submitted transactions.
type Params struct {
	GasFeeCapMultiplier float64
	GasLimitMultiplier  float64
	GasLimitCap         uint64
}

// DefaultParams returns conservative multipliers for local and test networks.
func DefaultParams() Params {
	return Params{
		GasFeeCapMultiplier: 2.0,
		GasLimitMultiplier:  1.2,
		GasLimitCap:         3_000_000,
	}
}

// Client is the Chain Reader and Chain Writer bound to one staking contract.
type Client struct {
	evm      EVMClient
	abi      abi.ABI
	contract common.Address
	params   Params

	mu      sync.RWMutex
	signer  Signer
	chainID *big.Int
}

// New binds an EVM client to the staking contract at addr.
func New(evm EVMClient, addr common.Address, params Params) (*Client, error) {
	parsed, err := ContractABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if params.GasFeeCapMultiplier <= 0 {
		params.GasFeeCapMultiplier = DefaultParams().GasFeeCapMultiplier
	}
	if params.GasLimitMultiplier <= 0 {
		params.GasLimitMultiplier = DefaultParams().GasLimitMultiplier
	}
	return &Client{evm: evm, abi: parsed, contract: addr, params: params}, nil
}

// Contract returns the bound contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// SetSigner swaps the signing wallet. A nil signer disconnects.
func (c *Client) SetSigner(s Signer) {
	c.mu.Lock()
	c.signer = s
	c.mu.Unlock()
}

func (c *Client) currentSigner() Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer
}

// ChainID returns the network chain id, caching the first successful answer.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.chainID
	c.mu.RUnlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.evm.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// Pool reads a pool by id.
func (c *Client) Pool(ctx context.Context, pid uint64) (*Pool, error) {
	out, err := c.call(ctx, MethodGetPool, new(big.Int).SetUint64(pid))
	if err != nil {
		return nil, err
	}
	pool, ok := abi.ConvertType(out[0], new(Pool)).(*Pool)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", MethodGetPool, out[0])
	}
	return pool, nil
}

// Staker reads the position of account in the token's pool.
func (c *Client) Staker(ctx context.Context, token, account common.Address) (*Staker, error) {
	out, err := c.call(ctx, MethodGetStaker, token, account)
	if err != nil {
		return nil, err
	}
	staker, ok := abi.ConvertType(out[0], new(Staker)).(*Staker)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", MethodGetStaker, out[0])
	}
	if staker.UnstakeRequests == nil {
		staker.UnstakeRequests = []UnstakeRequest{}
	}
	return staker, nil
}

// Balance returns the native-currency balance of account at the latest block.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.evm.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", account.Hex(), err)
	}
	return bal, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.contract, Data: input}
	if s := c.currentSigner(); s != nil {
		msg.From = s.Account()
	}
	data, err := c.evm.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := c.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return out, nil
}
