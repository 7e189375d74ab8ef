package models

import "fmt"

// ErrorClass buckets every marketplace error into the status class a
// caller branches on. The Reason string stays stable across releases.
type ErrorClass string

const (
	ErrClassValidation ErrorClass = "validation"
	ErrClassNotFound   ErrorClass = "not_found"
	ErrClassConflict   ErrorClass = "conflict"
	ErrClassStake      ErrorClass = "stake_invalid"
	ErrClassSettlement ErrorClass = "settlement_failed"
)

// Stable machine-readable reasons returned by mutating operations.
const (
	ReasonOwnerRequired        = "owner_address_required"
	ReasonStakeTxRequired      = "stake_tx_required"
	ReasonCapabilitiesRequired = "capabilities_required"
	ReasonInvalidCapability    = "invalid_capability"
	ReasonNodeIdRequired       = "node_id_required"
	ReasonJobIdRequired        = "job_id_required"
	ReasonRequesterRequired    = "requester_required"
	ReasonResultRequired       = "result_required"
	ReasonPaymentRequired      = "payment_required"
	ReasonPaymentBelowMinimum  = "payment_below_minimum"
	ReasonInvalidRewardSplit   = "invalid_reward_split"

	ReasonNodeNotFound    = "node_not_found"
	ReasonJobNotFound     = "job_not_found"
	ReasonReceiptNotFound = "receipt_not_found"

	ReasonOwnerRegistered   = "wallet_already_registered"
	ReasonStakeTxUsed       = "stake_tx_already_used"
	ReasonStakeRejected     = "stake_verification_failed"
	ReasonNodeSuspended     = "node_suspended"
	ReasonJobNotPending     = "job_not_pending"
	ReasonJobExpired        = "job_expired"
	ReasonJobCancelled      = "job_cancelled"
	ReasonJobTaken          = "job_assigned_to_another_node"
	ReasonJobNotAssigned    = "job_not_assigned_to_node"
	ReasonAlreadyCompleted  = "job_already_completed"
	ReasonResultTimeout     = "result_timeout"
	ReasonAlreadyPaid       = "settlement_already_paid"
	ReasonVerificationFail  = "verification_rejected"
	ReasonSettlementFailure = "settlement_rail_error"

	// ReasonNoActiveNodes is a routing result, not an error: CreateJob
	// reports it through RoutingResult so producers branch explicitly.
	ReasonNoActiveNodes = "no_active_nodes"
)

// MarketError is the error type every marketplace operation returns:
// a status class plus a stable reason, with optional human detail.
type MarketError struct {
	Class  ErrorClass `json:"class"`
	Reason string     `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (e *MarketError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Class, e.Reason, e.Detail)
}

func NewMarketError(class ErrorClass, reason string) *MarketError {
	return &MarketError{Class: class, Reason: reason}
}

func (e *MarketError) WithDetail(format string, args ...interface{}) *MarketError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

func ValidationError(reason string) *MarketError {
	return NewMarketError(ErrClassValidation, reason)
}

func NotFoundError(reason string) *MarketError {
	return NewMarketError(ErrClassNotFound, reason)
}

func ConflictError(reason string) *MarketError {
	return NewMarketError(ErrClassConflict, reason)
}

func StakeError(detail string) *MarketError {
	return &MarketError{Class: ErrClassStake, Reason: ReasonStakeRejected, Detail: detail}
}
