package models

import (
	"encoding/json"
	"time"
)

// RegisterNodeRequest is the registration payload a provider submits.
type RegisterNodeRequest struct {
	OwnerAddress string   `json:"owner_address"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	StakeTx      string   `json:"stake_tx"`
}

type HeartbeatRequest struct {
	NodeId string `json:"node_id"`
}

type ClaimRequest struct {
	NodeId string `json:"node_id"`
}

type CompleteRequest struct {
	NodeId string          `json:"node_id"`
	Result json.RawMessage `json:"result"`
}

// CreateJobRequest is submitted by the producer-facing services. Split
// is optional; the configured default applies when nil.
type CreateJobRequest struct {
	Capability   string          `json:"capability"`
	Payload      json.RawMessage `json:"payload"`
	TotalPayment int64           `json:"total_payment"`
	Requester    string          `json:"requester"`
	Split        *RewardSplit    `json:"reward_split,omitempty"`
}

// RoutingResult is the tagged outcome of CreateJob. Routed=false with
// ReasonNoActiveNodes is the designed fallback signal, not an error.
type RoutingResult struct {
	Routed        bool   `json:"routed"`
	Reason        string `json:"reason,omitempty"`
	JobId         string `json:"job_id,omitempty"`
	NodeReward    int64  `json:"node_reward,omitempty"`
	EligibleCount int    `json:"eligible_count,omitempty"`
}

// NodeView is the public projection of a node with liveness derived at
// read time.
type NodeView struct {
	NodeId        string     `json:"node_id"`
	Name          string     `json:"name"`
	OwnerAddress  string     `json:"owner_address"`
	Capabilities  []string   `json:"capabilities"`
	Status        NodeStatus `json:"status"`
	Live          bool       `json:"live"`
	JobsCompleted int64      `json:"jobs_completed"`
	JobsFailed    int64      `json:"jobs_failed"`
	TotalEarned   int64      `json:"total_earned"`
	StakeAmount   int64      `json:"stake_amount"`
	RegisteredAt  time.Time  `json:"registered_at"`
}

// AvailableJob is the bounded listing entry a polling node receives.
type AvailableJob struct {
	JobId      string          `json:"job_id"`
	Capability string          `json:"capability"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reward     int64           `json:"reward"`
	Deadline   time.Time       `json:"deadline"`
}
