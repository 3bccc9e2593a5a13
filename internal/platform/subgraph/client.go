// Package subgraph queries the staking protocol's GraphQL indexer: the
// authoritative source for positions, packages, referral earnings and
// star standings.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// Client is a GraphQL client for the staking subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a subgraph client. A non-positive timeout falls back
// to 30 seconds.
func NewClient(graphqlURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PositionsByUser returns the authoritative positions of one wallet,
// newest first.
func (c *Client) PositionsByUser(ctx context.Context, wallet string, first int) ([]domain.Position, error) {
	query := `
		query Positions($user: Bytes!, $first: Int!) {
			positions(
				first: $first
				orderBy: startTime
				orderDirection: desc
				where: { user: $user }
			) {
				id
				txHash
				stakeIndex
				amount
				startTime
				nextClaimTime
				claimedReward
				withdrawnPrincipal
				fullyWithdrawn
				package {
					id
					name
					durationDays
					aprBps
					claimIntervalDays
					principalLocked
					monthlyUnstake
				}
			}
		}
	`

	variables := map[string]any{
		"user":  strings.ToLower(wallet),
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch positions: %w", err)
	}

	var result struct {
		Positions []struct {
			ID                 string `json:"id"`
			TxHash             string `json:"txHash"`
			StakeIndex         string `json:"stakeIndex"`
			Amount             string `json:"amount"`
			StartTime          string `json:"startTime"`
			NextClaimTime      string `json:"nextClaimTime"`
			ClaimedReward      string `json:"claimedReward"`
			WithdrawnPrincipal string `json:"withdrawnPrincipal"`
			FullyWithdrawn     bool   `json:"fullyWithdrawn"`
			Package            struct {
				ID                string `json:"id"`
				Name              string `json:"name"`
				DurationDays      int    `json:"durationDays"`
				AprBps            int64  `json:"aprBps"`
				ClaimIntervalDays int    `json:"claimIntervalDays"`
				PrincipalLocked   bool   `json:"principalLocked"`
				MonthlyUnstake    bool   `json:"monthlyUnstake"`
			} `json:"package"`
		} `json:"positions"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(result.Positions))
	for _, e := range result.Positions {
		amount, err := domain.TokenAmountFromString(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("subgraph: position %s: %w", e.ID, err)
		}
		claimed, err := domain.TokenAmountFromString(e.ClaimedReward)
		if err != nil {
			return nil, fmt.Errorf("subgraph: position %s: %w", e.ID, err)
		}
		withdrawn, err := domain.TokenAmountFromString(e.WithdrawnPrincipal)
		if err != nil {
			return nil, fmt.Errorf("subgraph: position %s: %w", e.ID, err)
		}

		status := domain.PositionStatusActive
		if e.FullyWithdrawn {
			status = domain.PositionStatusInactive
		}

		pos := domain.Position{
			TxHash:             e.TxHash,
			User:               strings.ToLower(wallet),
			PackageID:          parseUint(e.Package.ID),
			StakeIndex:         parseUint(e.StakeIndex),
			PackageName:        e.Package.Name,
			Amount:             amount,
			StartAt:            parseUnix(e.StartTime),
			NextClaimAt:        parseUnix(e.NextClaimTime),
			Status:             status,
			ClaimedReward:      claimed,
			WithdrawnPrincipal: withdrawn,
			FullyWithdrawn:     e.FullyWithdrawn,
			Rules: domain.PackageRules{
				DurationDays:      e.Package.DurationDays,
				AprBps:            e.Package.AprBps,
				ClaimIntervalDays: e.Package.ClaimIntervalDays,
				PrincipalLocked:   e.Package.PrincipalLocked,
				MonthlyUnstake:    e.Package.MonthlyUnstake,
			},
		}
		pos.Key = pos.DedupKey()
		positions = append(positions, pos)
	}

	return positions, nil
}

// Packages returns the package catalog.
func (c *Client) Packages(ctx context.Context) ([]domain.Package, error) {
	query := `
		query Packages {
			packages(first: 100, orderBy: id) {
				id
				name
				durationDays
				aprBps
				claimIntervalDays
				minStake
				stakeStep
				principalLocked
				monthlyUnstake
				active
				allocations {
					token
					symbol
					weightBps
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch packages: %w", err)
	}

	var result struct {
		Packages []struct {
			ID                string `json:"id"`
			Name              string `json:"name"`
			DurationDays      int    `json:"durationDays"`
			AprBps            int64  `json:"aprBps"`
			ClaimIntervalDays int    `json:"claimIntervalDays"`
			MinStake          string `json:"minStake"`
			StakeStep         string `json:"stakeStep"`
			PrincipalLocked   bool   `json:"principalLocked"`
			MonthlyUnstake    bool   `json:"monthlyUnstake"`
			Active            bool   `json:"active"`
			Allocations       []struct {
				Token     string `json:"token"`
				Symbol    string `json:"symbol"`
				WeightBps int64  `json:"weightBps"`
			} `json:"allocations"`
		} `json:"packages"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode packages: %w", err)
	}

	packages := make([]domain.Package, 0, len(result.Packages))
	for _, e := range result.Packages {
		minStake, err := domain.TokenAmountFromString(e.MinStake)
		if err != nil {
			return nil, fmt.Errorf("subgraph: package %s: %w", e.ID, err)
		}
		step, err := domain.TokenAmountFromString(e.StakeStep)
		if err != nil {
			return nil, fmt.Errorf("subgraph: package %s: %w", e.ID, err)
		}

		pkg := domain.Package{
			ID:                parseUint(e.ID),
			Name:              e.Name,
			DurationDays:      e.DurationDays,
			AprBps:            e.AprBps,
			ClaimIntervalDays: e.ClaimIntervalDays,
			MinStake:          minStake,
			StakeStep:         step,
			PrincipalLocked:   e.PrincipalLocked,
			MonthlyUnstake:    e.MonthlyUnstake,
			Active:            e.Active,
		}
		for _, a := range e.Allocations {
			pkg.Allocations = append(pkg.Allocations, domain.TokenWeight{
				Token:     strings.ToLower(a.Token),
				Symbol:    a.Symbol,
				WeightBps: a.WeightBps,
			})
		}
		packages = append(packages, pkg)
	}

	return packages, nil
}

// ReferralEarnings returns the newest referral credits for a wallet.
func (c *Client) ReferralEarnings(ctx context.Context, wallet string, first int) ([]domain.ReferralEarning, error) {
	query := `
		query Referrals($user: Bytes!, $first: Int!) {
			referralEarnings(
				first: $first
				orderBy: timestamp
				orderDirection: desc
				where: { beneficiary: $user }
			) {
				from
				level
				amount
				txHash
				timestamp
			}
		}
	`

	variables := map[string]any{
		"user":  strings.ToLower(wallet),
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch referral earnings: %w", err)
	}

	var result struct {
		ReferralEarnings []struct {
			From      string `json:"from"`
			Level     int    `json:"level"`
			Amount    string `json:"amount"`
			TxHash    string `json:"txHash"`
			Timestamp string `json:"timestamp"`
		} `json:"referralEarnings"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode referral earnings: %w", err)
	}

	earnings := make([]domain.ReferralEarning, 0, len(result.ReferralEarnings))
	for _, e := range result.ReferralEarnings {
		amount, err := domain.TokenAmountFromString(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("subgraph: referral earning %s: %w", e.TxHash, err)
		}
		earnings = append(earnings, domain.ReferralEarning{
			From:   strings.ToLower(e.From),
			Level:  e.Level,
			Amount: amount,
			TxHash: e.TxHash,
			At:     parseUnix(e.Timestamp),
		})
	}

	return earnings, nil
}

// UserOverview returns the indexer's rollup for one wallet: referrer,
// direct referral count, self stake and downline volume.
func (c *Client) UserOverview(ctx context.Context, wallet string) (domain.UserOverview, error) {
	query := `
		query User($user: ID!) {
			user(id: $user) {
				referrer
				directReferrals
				starLevel
				selfStaked
				teamVolume
			}
		}
	`

	variables := map[string]any{
		"user": strings.ToLower(wallet),
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return domain.UserOverview{}, fmt.Errorf("subgraph: fetch user overview: %w", err)
	}

	var result struct {
		User *struct {
			Referrer        string `json:"referrer"`
			DirectReferrals int    `json:"directReferrals"`
			StarLevel       int    `json:"starLevel"`
			SelfStaked      string `json:"selfStaked"`
			TeamVolume      string `json:"teamVolume"`
		} `json:"user"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.UserOverview{}, fmt.Errorf("subgraph: decode user overview: %w", err)
	}
	if result.User == nil {
		return domain.UserOverview{Wallet: strings.ToLower(wallet)}, nil
	}

	selfStaked, err := domain.TokenAmountFromString(result.User.SelfStaked)
	if err != nil {
		return domain.UserOverview{}, fmt.Errorf("subgraph: user %s: %w", wallet, err)
	}
	teamVolume, err := domain.TokenAmountFromString(result.User.TeamVolume)
	if err != nil {
		return domain.UserOverview{}, fmt.Errorf("subgraph: user %s: %w", wallet, err)
	}

	return domain.UserOverview{
		Wallet:      strings.ToLower(wallet),
		Referrer:    strings.ToLower(result.User.Referrer),
		Level:       result.User.StarLevel,
		SelfStaked:  selfStaked,
		TeamVolume:  teamVolume,
		DirectCount: result.User.DirectReferrals,
	}, nil
}

// LatestBlock returns the latest block number the subgraph has indexed,
// useful for monitoring indexing lag.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("subgraph: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("subgraph: decode latest block: %w", err)
	}

	return result.Meta.Block.Number, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the subgraph endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}

// parseUnix turns a BigInt second string into a UTC time; malformed
// input yields the zero time.
func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// parseUint parses subgraph numeric IDs; malformed input yields zero.
func parseUint(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
