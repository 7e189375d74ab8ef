package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
)

type NodeStatus string

const (
	NodeStatusActive    NodeStatus = "active"
	NodeStatusSuspended NodeStatus = "suspended"
)

// Node is a registered compute provider backed by a verified stake.
// Nodes are never deleted; suspension flips Status and keeps the record
// for audit.
type Node struct {
	NodeId          string     `gorm:"primaryKey;column:node_id;type:text" json:"node_id"`
	OwnerAddress    string     `gorm:"column:owner_address;uniqueIndex;not null;type:text" json:"owner_address"`
	Name            string     `gorm:"type:text" json:"name"`
	Capabilities    []string   `gorm:"serializer:json;not null;type:text" json:"capabilities"`
	StakeTx         string     `gorm:"column:stake_tx;uniqueIndex;not null;type:text" json:"stake_tx"`
	StakeAmount     int64      `gorm:"column:stake_amount;not null" json:"stake_amount"`
	StakeVerifiedAt time.Time  `gorm:"column:stake_verified_at" json:"stake_verified_at"`
	RegisteredAt    time.Time  `gorm:"column:registered_at;autoCreateTime" json:"registered_at"`
	LastHeartbeat   *time.Time `gorm:"column:last_heartbeat" json:"last_heartbeat,omitempty"`
	JobsCompleted   int64      `gorm:"column:jobs_completed;not null;default:0" json:"jobs_completed"`
	JobsFailed      int64      `gorm:"column:jobs_failed;not null;default:0" json:"jobs_failed"`
	TotalEarned     int64      `gorm:"column:total_earned;not null;default:0" json:"total_earned"`
	Status          NodeStatus `gorm:"not null;type:text;default:active" json:"status"`
}

func (Node) TableName() string { return "nodes" }

func (n *Node) BeforeCreate(tx *gorm.DB) error {
	if n.NodeId == "" {
		n.NodeId = NewNodeId()
	}
	if n.Status == "" {
		n.Status = NodeStatusActive
	}
	return nil
}

func (n *Node) HasCapability(capability string) bool {
	for _, c := range n.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func NewNodeId() string { return constants.NodeIdPrefix + shortId() }

func NewJobId() string { return constants.JobIdPrefix + shortId() }

func NewReceiptId() string { return constants.ReceiptIdPrefix + shortId() }

func shortId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
