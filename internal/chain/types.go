package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the token address the contract uses for the native-currency pool.
var NativeToken = common.Address{}

// NativePoolID is the pool id of the native-currency pool.
const NativePoolID uint64 = 0

// Contract function names.
const (
	MethodGetPool   = "getPool"
	MethodGetStaker = "getStaker"
	MethodStake     = "stake"
	MethodUnstake   = "unstake"
	MethodClaim     = "claim"
	MethodWithdraw  = "withdraw"
)

// Pool is a point-in-time read of a staking pool. Field order mirrors the
// contract tuple; decoding assigns by position.
type Pool struct {
	Weight             *big.Int `json:"weight"`
	MinStakeAmount     *big.Int `json:"min_stake_amount"`
	TotalStakeAmount   *big.Int `json:"total_stake_amount"`
	AccAmountPerShare  *big.Int `json:"acc_amount_per_share"`
	LastAccAmountBlock *big.Int `json:"last_acc_amount_block"`
}

// UnstakeRequest is one pending or finished unstake of a staker.
type UnstakeRequest struct {
	Amount      *big.Int `json:"amount"`
	Finished    bool     `json:"finished"`
	UnlockBlock *big.Int `json:"unlock_block"`
}

// Staker is a read-only copy of an account's position in a pool. Requests
// keep the contract's insertion order.
type Staker struct {
	StakeAmount     *big.Int         `json:"stake_amount"`
	RewardStart     *big.Int         `json:"reward_start"`
	ClaimingReward  *big.Int         `json:"claiming_reward"`
	UnstakeRequests []UnstakeRequest `json:"unstake_requests"`
}

// PendingRequests counts unstake requests that are not finished yet.
func (s *Staker) PendingRequests() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.UnstakeRequests {
		if !r.Finished {
			n++
		}
	}
	return n
}

// Call is a state-mutating contract invocation. Value is attached only to
// payable methods.
type Call struct {
	Method string
	Args   []interface{}
	Value  *big.Int
}

// StakeCall deposits amount into the token's pool, attaching it as value.
func StakeCall(token common.Address, amount *big.Int) Call {
	return Call{
		Method: MethodStake,
		Args:   []interface{}{token, amount},
		Value:  new(big.Int).Set(amount),
	}
}

// UnstakeCall queues an unstake request for amount.
func UnstakeCall(token common.Address, amount *big.Int) Call {
	return Call{Method: MethodUnstake, Args: []interface{}{token, amount}}
}

// ClaimCall claims accrued rewards.
func ClaimCall(token common.Address) Call {
	return Call{Method: MethodClaim, Args: []interface{}{token}}
}

// WithdrawCall withdraws unlocked unstake requests.
func WithdrawCall(token common.Address) Call {
	return Call{Method: MethodWithdraw, Args: []interface{}{token}}
}
