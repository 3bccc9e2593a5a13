package chain

// Contract ABIs for the staking deployment. Only the methods and events the
// gateway uses are listed; the deployed contracts carry more.

// stakingABI covers package/position reads, the three user actions, and the
// events the watcher subscribes to.
const stakingABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getPackages",
		"outputs": [{"name": "", "type": "tuple[]", "components": [
			{"name": "id", "type": "uint256"},
			{"name": "name", "type": "string"},
			{"name": "minStake", "type": "uint256"},
			{"name": "stepSize", "type": "uint256"},
			{"name": "durationDays", "type": "uint32"},
			{"name": "aprBps", "type": "uint32"},
			{"name": "claimEveryDays", "type": "uint32"},
			{"name": "principalLocked", "type": "bool"},
			{"name": "monthlyUnstake", "type": "bool"},
			{"name": "active", "type": "bool"},
			{"name": "tokens", "type": "tuple[]", "components": [
				{"name": "token", "type": "address"},
				{"name": "symbol", "type": "string"},
				{"name": "weightBps", "type": "uint32"}
			]}
		]}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getPositions",
		"outputs": [{"name": "", "type": "tuple[]", "components": [
			{"name": "packageId", "type": "uint256"},
			{"name": "stakeIndex", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "startAt", "type": "uint64"},
			{"name": "claimedReward", "type": "uint256"},
			{"name": "withdrawnPrincipal", "type": "uint256"},
			{"name": "fullyWithdrawn", "type": "bool"}
		]}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "stakeIndex", "type": "uint256"}
		],
		"name": "pendingReward",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "user", "type": "address"}],
		"name": "starOf",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "paused",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "packageId", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "referrer", "type": "address"}
		],
		"name": "stake",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [{"name": "stakeIndex", "type": "uint256"}],
		"name": "claim",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "stakeIndex", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "unstake",
		"outputs": [],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": true, "name": "packageId", "type": "uint256"},
			{"indexed": false, "name": "stakeIndex", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Staked",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": false, "name": "stakeIndex", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "RewardClaimed",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": false, "name": "stakeIndex", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "Unstaked",
		"type": "event"
	}
]`

// erc20ABI covers the allowance checks and approvals the stake flow needs.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": true, "name": "spender", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Approval",
		"type": "event"
	}
]`
