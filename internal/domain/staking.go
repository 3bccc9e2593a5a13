package domain

// TokenWeight is one token's share of a package's stake composition.
type TokenWeight struct {
	Token     string `json:"token"` // ERC-20 address, lowercase hex
	Symbol    string `json:"symbol"`
	WeightBps int64  `json:"weight_bps"` // weights across a package sum to 10000
}

// PackageRules is the snapshot of package terms a position was opened
// under. Packages can be retuned on-chain; positions keep the terms they
// started with.
type PackageRules struct {
	DurationDays      int   `json:"duration_days"`
	AprBps            int64 `json:"apr_bps"`
	ClaimIntervalDays int   `json:"claim_interval_days"`
	PrincipalLocked   bool  `json:"principal_locked"`
	MonthlyUnstake    bool  `json:"monthly_unstake"`
}

// Package is a staking product offered by the contract.
type Package struct {
	ID                uint64        `json:"id"`
	Name              string        `json:"name"`
	DurationDays      int           `json:"duration_days"`
	AprBps            int64         `json:"apr_bps"`
	ClaimIntervalDays int           `json:"claim_interval_days"`
	MinStake          TokenAmount   `json:"min_stake"`
	StakeStep         TokenAmount   `json:"stake_step"` // amount must be MinStake + k*StakeStep
	PrincipalLocked   bool          `json:"principal_locked"`
	MonthlyUnstake    bool          `json:"monthly_unstake"`
	Active            bool          `json:"active"`
	Allocations       []TokenWeight `json:"allocations"`
}

// Rules returns the terms snapshot for positions opened against p.
func (p Package) Rules() PackageRules {
	return PackageRules{
		DurationDays:      p.DurationDays,
		AprBps:            p.AprBps,
		ClaimIntervalDays: p.ClaimIntervalDays,
		PrincipalLocked:   p.PrincipalLocked,
		MonthlyUnstake:    p.MonthlyUnstake,
	}
}

// ValidAmount reports whether amount satisfies the package minimum and
// step. A zero step pins the amount to exactly MinStake.
func (p Package) ValidAmount(amount TokenAmount) bool {
	if amount.Cmp(p.MinStake) < 0 {
		return false
	}
	return amount.Sub(p.MinStake).DivisibleBy(p.StakeStep)
}

// SplitAmount divides total across the package allocations by weight.
// Truncation dust lands on the first allocation so the parts re-sum to
// total exactly.
func (p Package) SplitAmount(total TokenAmount) []TokenAmount {
	if len(p.Allocations) == 0 {
		return nil
	}
	parts := make([]TokenAmount, len(p.Allocations))
	rest := total
	for i, alloc := range p.Allocations {
		if i == 0 {
			continue
		}
		parts[i] = total.MulBps(alloc.WeightBps)
		rest = rest.Sub(parts[i])
	}
	parts[0] = rest
	return parts
}
