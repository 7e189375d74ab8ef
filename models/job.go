package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobExpired   JobStatus = "expired"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobExpired || s == JobCancelled
}

// RewardSplit divides a job's total payment between the executing node,
// the treasury and the burn address. Percentages must sum to 100.
type RewardSplit struct {
	Node     int `json:"node"`
	Treasury int `json:"treasury"`
	Burn     int `json:"burn"`
}

func (s RewardSplit) Validate() error {
	if s.Node < 0 || s.Treasury < 0 || s.Burn < 0 || s.Node+s.Treasury+s.Burn != 100 {
		return ValidationError(ReasonInvalidRewardSplit).
			WithDetail("split %d/%d/%d must be non-negative and sum to 100", s.Node, s.Treasury, s.Burn)
	}
	return nil
}

// Shares computes the integer amounts for a total payment. Treasury and
// burn use floor division; the rounding remainder goes to the node share
// so the three parts always sum to the total exactly.
func (s RewardSplit) Shares(totalPayment int64) (node, treasury, burn int64) {
	treasury = totalPayment * int64(s.Treasury) / 100
	burn = totalPayment * int64(s.Burn) / 100
	node = totalPayment - treasury - burn
	return
}

// Job is a unit of routable work. The payload is opaque to the
// marketplace; the deadline is fixed at creation. Records are kept after
// reaching a terminal state for audit.
type Job struct {
	JobId          string          `gorm:"primaryKey;column:job_id;type:text" json:"job_id"`
	Capability     string          `gorm:"not null;type:text;index" json:"capability"`
	Payload        json.RawMessage `gorm:"type:text" json:"payload,omitempty"`
	TotalPayment   int64           `gorm:"column:total_payment;not null" json:"total_payment"`
	Split          RewardSplit     `gorm:"serializer:json;column:reward_split;type:text" json:"reward_split"`
	NodeReward     int64           `gorm:"column:node_reward;not null" json:"node_reward"`
	TreasuryAmount int64           `gorm:"column:treasury_amount;not null" json:"treasury_amount"`
	BurnAmount     int64           `gorm:"column:burn_amount;not null" json:"burn_amount"`
	Requester      string          `gorm:"not null;type:text" json:"requester"`
	Status         JobStatus       `gorm:"not null;type:text;index" json:"status"`
	ClaimantNodeId *string         `gorm:"column:claimant_node_id;type:text" json:"claimant_node_id,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	Deadline       time.Time       `gorm:"column:deadline;not null" json:"deadline"`
	ClaimedAt      *time.Time      `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CompletedAt    *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Result         json.RawMessage `gorm:"type:text" json:"result,omitempty"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.JobId == "" {
		j.JobId = NewJobId()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	return nil
}

// ClaimedBy reports whether nodeId currently holds the claim.
func (j *Job) ClaimedBy(nodeId string) bool {
	return j.ClaimantNodeId != nil && *j.ClaimantNodeId == nodeId
}

// PastDeadline reports whether the job's deadline has elapsed at now.
func (j *Job) PastDeadline(now time.Time) bool {
	return now.After(j.Deadline)
}
