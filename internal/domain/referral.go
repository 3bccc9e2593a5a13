package domain

import "time"

// ReferralEarning is one reward credited from downline activity.
type ReferralEarning struct {
	From   string      `json:"from"`  // downline wallet the earning originated from
	Level  int         `json:"level"` // 1 = direct referral
	Amount TokenAmount `json:"amount"`
	TxHash string      `json:"tx_hash"`
	At     time.Time   `json:"at"`
}

// LevelSummary aggregates earnings for one referral level.
type LevelSummary struct {
	Level  int         `json:"level"`
	Count  int         `json:"count"`
	Amount TokenAmount `json:"amount"`
}

// ReferralSummary is the per-wallet rollup served to the dashboard.
type ReferralSummary struct {
	Wallet      string            `json:"wallet"`
	Referrer    string            `json:"referrer,omitempty"`
	TotalEarned TokenAmount       `json:"total_earned"`
	DirectCount int               `json:"direct_count"`
	Levels      []LevelSummary    `json:"levels"`
	Recent      []ReferralEarning `json:"recent"`
}

// UserOverview is the indexer's aggregate record for one wallet. It
// feeds both the referral summary and the star rank view.
type UserOverview struct {
	Wallet      string      `json:"wallet"`
	Referrer    string      `json:"referrer,omitempty"`
	Level       int         `json:"level"`
	SelfStaked  TokenAmount `json:"self_staked"`
	TeamVolume  TokenAmount `json:"team_volume"`
	DirectCount int         `json:"direct_count"`
}

// StarTier is one rank in the star program with its qualification
// thresholds.
type StarTier struct {
	Level          int         `json:"level"`
	Name           string      `json:"name"`
	MinSelfStake   TokenAmount `json:"min_self_stake"`
	MinTeamVolume  TokenAmount `json:"min_team_volume"`
	MinDirects     int         `json:"min_directs"`
	RewardShareBps int64       `json:"reward_share_bps"`
}

// StarStatus is a wallet's current rank and progress toward the next.
type StarStatus struct {
	Wallet      string      `json:"wallet"`
	Level       int         `json:"level"`
	SelfStaked  TokenAmount `json:"self_staked"`
	TeamVolume  TokenAmount `json:"team_volume"`
	DirectCount int         `json:"direct_count"`
	Next        *StarTier   `json:"next,omitempty"` // nil at the top rank
}
