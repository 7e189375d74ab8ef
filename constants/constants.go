package constants

import "time"

// Capabilities routable by the marketplace. The catalog file can extend
// descriptions and minimum payments but not remove these tags.
const (
	CapabilityScrape    = "scrape"
	CapabilityInference = "inference"
	CapabilityTask      = "task"
)

// Marketplace defaults, overridable via config.toml [MARKET].
const (
	MinStakeAmount   int64 = 10000
	StakeMaxAge            = 24 * time.Hour
	HeartbeatTimeout       = 120 * time.Second
	JobTimeout             = 30 * time.Second
	JobPageSize            = 5

	NodeShare     = 70
	TreasuryShare = 20
	BurnShare     = 10
)

// TokenDecimals is the precision of the marketplace token; stake amounts
// read off the chain are scaled down by this before comparison.
const TokenDecimals = 6

const AutoApproveConfidence = 0.8

const WaitPollInterval = 500 * time.Millisecond

const RedisSettlementQueue = "settlement:manual"

const (
	NodeIdPrefix    = "node_"
	JobIdPrefix     = "job_"
	ReceiptIdPrefix = "rcpt_"
)
