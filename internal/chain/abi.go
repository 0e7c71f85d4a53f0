package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StakeContractABI covers the subset of the staking contract the console
// reads and writes.
const StakeContractABI = `[
  {
    "inputs": [{"internalType": "uint256", "name": "pid", "type": "uint256"}],
    "name": "getPool",
    "outputs": [{
      "components": [
        {"internalType": "uint256", "name": "weight", "type": "uint256"},
        {"internalType": "uint256", "name": "minStakeAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "totalStakeAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "accAmountPerShare", "type": "uint256"},
        {"internalType": "uint256", "name": "lastAccAmountBlock", "type": "uint256"}
      ],
      "internalType": "struct DuggeeStake.Pool",
      "name": "",
      "type": "tuple"
    }],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "tokenAddress", "type": "address"},
      {"internalType": "address", "name": "staker", "type": "address"}
    ],
    "name": "getStaker",
    "outputs": [{
      "components": [
        {"internalType": "uint256", "name": "stakeAmount", "type": "uint256"},
        {"internalType": "uint256", "name": "rewardStart", "type": "uint256"},
        {"internalType": "uint256", "name": "claimingReward", "type": "uint256"},
        {
          "components": [
            {"internalType": "uint256", "name": "amount", "type": "uint256"},
            {"internalType": "bool", "name": "finished", "type": "bool"},
            {"internalType": "uint256", "name": "unlockBlock", "type": "uint256"}
          ],
          "internalType": "struct DuggeeStake.UnstakeRequest[]",
          "name": "unstakeRequest",
          "type": "tuple[]"
        }
      ],
      "internalType": "struct DuggeeStake.Staker",
      "name": "",
      "type": "tuple"
    }],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "tokenAddress", "type": "address"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "stake",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "tokenAddress", "type": "address"},
      {"internalType": "uint256", "name": "_amount", "type": "uint256"}
    ],
    "name": "unstake",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}],
    "name": "claim",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "tokenAddress", "type": "address"}],
    "name": "withdraw",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parseErr   error
)

// ContractABI returns the parsed staking ABI.
func ContractABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(StakeContractABI))
	})
	return parsedABI, parseErr
}
