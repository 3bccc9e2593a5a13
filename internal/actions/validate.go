package actions

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starstake/stakeboard/internal/domain"
)

// StakeRequest opens a new position in a package.
type StakeRequest struct {
	PackageID uint64             `json:"package_id"`
	Amount    domain.TokenAmount `json:"amount"`
	Referrer  string             `json:"referrer"`
}

// ClaimRequest collects the pending reward of one position.
type ClaimRequest struct {
	StakeIndex uint64 `json:"stake_index"`
}

// UnstakeRequest withdraws principal from one position.
type UnstakeRequest struct {
	StakeIndex uint64             `json:"stake_index"`
	Amount     domain.TokenAmount `json:"amount"`
}

// validateStake checks the request fields that need no chain state.
// The contract requires a referrer on every stake, and referring
// yourself would route the bonus back to the staker.
func validateStake(req StakeRequest, signer string) error {
	if req.Amount.Sign() <= 0 {
		return domain.Validationf("amount", "must be positive")
	}
	if req.Referrer == "" {
		return domain.Validationf("referrer", "required")
	}
	if !common.IsHexAddress(req.Referrer) {
		return domain.Validationf("referrer", "not a hex address")
	}
	if strings.EqualFold(req.Referrer, signer) {
		return domain.Validationf("referrer", "cannot self-refer")
	}
	return nil
}

func validateUnstake(req UnstakeRequest) error {
	if req.Amount.Sign() <= 0 {
		return domain.Validationf("amount", "must be positive")
	}
	return nil
}

// checkPackage verifies amount against the package terms.
func checkPackage(pkg domain.Package, amount domain.TokenAmount) error {
	if !pkg.Active {
		return domain.Validationf("package", "package %d is not active", pkg.ID)
	}
	if amount.Cmp(pkg.MinStake) < 0 {
		return domain.Validationf("amount", "below package minimum %s", pkg.MinStake)
	}
	if !pkg.ValidAmount(amount) {
		return domain.Validationf("amount", "must be minimum %s plus a multiple of %s", pkg.MinStake, pkg.StakeStep)
	}
	if len(pkg.Allocations) == 0 {
		return domain.Validationf("package", "package %d has no token allocations", pkg.ID)
	}
	return nil
}

// checkClaimWindow verifies the position can be claimed now. Matured
// positions claim regardless of the interval.
func checkClaimWindow(pos domain.Position, now time.Time) error {
	if pos.Matured(now) {
		return nil
	}
	if now.Before(pos.NextClaimAt) {
		return domain.Validationf("position", "claim window opens %s", pos.NextClaimAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// checkUnstakeRules verifies amount against the position's remaining
// principal and the package terms it was opened under. The per-month
// withdrawal cap is left to the contract; simulation surfaces it.
func checkUnstakeRules(pos domain.Position, amount domain.TokenAmount, now time.Time) error {
	remaining := pos.Amount.Sub(pos.WithdrawnPrincipal)
	if amount.Cmp(remaining) > 0 {
		return domain.Validationf("amount", "exceeds remaining principal %s", remaining)
	}
	if pos.Matured(now) {
		return nil
	}
	if pos.Rules.PrincipalLocked {
		return domain.Validationf("position", "principal locked until %s", pos.MaturesAt().UTC().Format(time.RFC3339))
	}
	if !pos.Rules.MonthlyUnstake {
		return domain.Validationf("position", "package does not allow unstaking before maturity")
	}
	return nil
}

// findByStakeIndex locates one wallet position in a chain snapshot.
func findByStakeIndex(positions []domain.Position, stakeIndex uint64) (domain.Position, bool) {
	for _, pos := range positions {
		if pos.StakeIndex == stakeIndex {
			return pos, true
		}
	}
	return domain.Position{}, false
}
