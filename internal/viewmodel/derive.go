package viewmodel

import (
	"math/big"

	"github.com/duggee/stakeboard/internal/amount"
)

// RequestView is an unstake request rendered for display.
type RequestView struct {
	Amount      string `json:"amount"`
	Finished    bool   `json:"finished"`
	UnlockBlock string `json:"unlock_block"`
}

// View is everything the presentation layer needs. It is recomputed from
// InputState and Snapshot on every evaluation and never stored.
type View struct {
	Connected   bool   `json:"connected"`
	Account     string `json:"account,omitempty"`
	Busy        bool   `json:"busy"`
	StakeText   string `json:"stake_text"`
	UnstakeText string `json:"unstake_text"`

	InputsEnabled      bool `json:"inputs_enabled"`
	CanStake           bool `json:"can_stake"`
	CanRevealUnstake   bool `json:"can_reveal_unstake"`
	ShowUnstakeForm    bool `json:"show_unstake_form"`
	CanConfirmUnstake  bool `json:"can_confirm_unstake"`
	CanClaim           bool `json:"can_claim"`
	WithdrawVisible    bool `json:"withdraw_visible"`
	CanWithdraw        bool `json:"can_withdraw"`
	PendingWithdrawals int  `json:"pending_withdrawals"`

	TotalStaked     string        `json:"total_staked"`
	MyStake         string        `json:"my_stake"`
	Balance         string        `json:"balance"`
	PendingRewards  string        `json:"pending_rewards"`
	UnstakeRequests []RequestView `json:"unstake_requests"`

	Notice *Notice `json:"notice,omitempty"`
}

// Derive computes the view for state against snap.
func Derive(s InputState, snap Snapshot) View {
	v := View{
		Connected:   snap.Connected,
		Busy:        s.Busy,
		StakeText:   s.StakeText,
		UnstakeText: s.UnstakeText,

		InputsEnabled:     inputsEnabled(s, snap),
		CanStake:          inputsEnabled(s, snap) && s.StakeText != "",
		CanRevealUnstake:  canRevealUnstake(s, snap),
		ShowUnstakeForm:   s.UnstakeText != "",
		CanConfirmUnstake: inputsEnabled(s, snap) && s.UnstakeText != "",
		CanClaim:          canClaim(s, snap),
		WithdrawVisible:   withdrawVisible(snap),
		CanWithdraw:       canWithdraw(s, snap),

		MyStake:         amount.Format(nil),
		PendingRewards:  amount.Format(nil),
		Balance:         amount.Format(snap.Balance),
		TotalStaked:     amount.Format(nil),
		UnstakeRequests: []RequestView{},
	}
	if snap.Connected {
		v.Account = snap.Account.Hex()
	}
	if snap.Pool != nil {
		v.TotalStaked = amount.Format(snap.Pool.TotalStakeAmount)
	}
	if st := snap.Staker; st != nil {
		v.MyStake = amount.Format(st.StakeAmount)
		v.PendingRewards = amount.Format(st.ClaimingReward)
		v.PendingWithdrawals = st.PendingRequests()
		for _, r := range st.UnstakeRequests {
			rv := RequestView{Amount: amount.Format(r.Amount), Finished: r.Finished, UnlockBlock: "0"}
			if r.UnlockBlock != nil {
				rv.UnlockBlock = r.UnlockBlock.String()
			}
			v.UnstakeRequests = append(v.UnstakeRequests, rv)
		}
	}
	return v
}

func inputsEnabled(s InputState, snap Snapshot) bool {
	return snap.Connected && !s.Busy
}

func canRevealUnstake(s InputState, snap Snapshot) bool {
	return inputsEnabled(s, snap) && snap.Staker != nil && positive(snap.Staker.StakeAmount)
}

func canClaim(s InputState, snap Snapshot) bool {
	return inputsEnabled(s, snap) && snap.Staker != nil && positive(snap.Staker.ClaimingReward)
}

func withdrawVisible(snap Snapshot) bool {
	return snap.Staker != nil && len(snap.Staker.UnstakeRequests) > 0
}

func canWithdraw(s InputState, snap Snapshot) bool {
	return withdrawVisible(snap) && inputsEnabled(s, snap)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// Page is a View plus the network context it was evaluated in. The network
// check is informational and does not gate any action.
type Page struct {
	View
	Symbol         string `json:"symbol"`
	RewardSymbol   string `json:"reward_symbol"`
	Contract       string `json:"contract"`
	ChainID        uint64 `json:"chain_id"`
	CorrectNetwork bool   `json:"correct_network"`
}
