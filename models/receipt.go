package models

import (
	"time"

	"gorm.io/gorm"
)

type SettlementOutcome string

const (
	SettlementPaid         SettlementOutcome = "paid"
	SettlementQueuedManual SettlementOutcome = "queued_manual"
	SettlementFailed       SettlementOutcome = "failed"
)

// SettlementReceipt records the payment outcome for a completed job.
// Exactly one receipt exists per job; once Outcome is paid the record is
// immutable and retries are rejected.
type SettlementReceipt struct {
	ReceiptId   string            `gorm:"primaryKey;column:receipt_id;type:text" json:"receipt_id"`
	JobId       string            `gorm:"column:job_id;uniqueIndex;not null;type:text" json:"job_id"`
	Recipient   string            `gorm:"not null;type:text" json:"recipient"`
	Amount      int64             `gorm:"not null" json:"amount"`
	Outcome     SettlementOutcome `gorm:"not null;type:text" json:"outcome"`
	ExternalRef *string           `gorm:"column:external_ref;type:text" json:"external_ref,omitempty"`
	Error       *string           `gorm:"type:text" json:"error,omitempty"`
	Attempts    int               `gorm:"not null;default:1" json:"attempts"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SettlementReceipt) TableName() string { return "settlement_receipts" }

func (r *SettlementReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ReceiptId == "" {
		r.ReceiptId = NewReceiptId()
	}
	return nil
}
