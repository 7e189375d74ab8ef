package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/filswan/go-swan-lib/logs"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// JobLedger owns job records and their lifecycle:
//
//	(none) --CreateJob--> pending --ClaimJob--> claimed --CompleteJob--> completed
//	pending/claimed past deadline --> expired (swept lazily on read)
//	pending --CancelJob--> cancelled
//
// Terminal states have no outgoing transitions. Expiry is discovered on
// read, never by a timer, so a status can be stale between reads; any
// caller needing a fresh view re-lists, which sweeps.
type JobLedger struct {
	store    *Store
	registry *NodeRegistry
	settler  *Settler
	oracle   VerificationOracle
	feed     *JobFeed

	jobTimeout   time.Duration
	pageSize     int
	defaultSplit models.RewardSplit
	autoApprove  float64
	now          func() time.Time
}

type LedgerParams struct {
	Store    *Store
	Registry *NodeRegistry
	Settler  *Settler
	Oracle   VerificationOracle
	Feed     *JobFeed

	JobTimeout   time.Duration
	PageSize     int
	DefaultSplit models.RewardSplit
	AutoApprove  float64
}

func NewJobLedger(params LedgerParams) *JobLedger {
	if params.JobTimeout <= 0 {
		params.JobTimeout = constants.JobTimeout
	}
	if params.PageSize <= 0 {
		params.PageSize = constants.JobPageSize
	}
	if params.DefaultSplit == (models.RewardSplit{}) {
		params.DefaultSplit = models.RewardSplit{
			Node:     constants.NodeShare,
			Treasury: constants.TreasuryShare,
			Burn:     constants.BurnShare,
		}
	}
	if params.AutoApprove <= 0 {
		params.AutoApprove = constants.AutoApproveConfidence
	}
	return &JobLedger{
		store:        params.Store,
		registry:     params.Registry,
		settler:      params.Settler,
		oracle:       params.Oracle,
		feed:         params.Feed,
		jobTimeout:   params.JobTimeout,
		pageSize:     params.PageSize,
		defaultSplit: params.DefaultSplit,
		autoApprove:  params.AutoApprove,
		now:          time.Now,
	}
}

// CreateJob routes a new unit of work. With no eligible node nothing is
// persisted and the producer gets the explicit fallback signal; routing
// to a centralized executor is the caller's policy, not the ledger's.
func (l *JobLedger) CreateJob(req *models.CreateJobRequest) (*models.RoutingResult, error) {
	if req.TotalPayment <= 0 {
		return nil, models.ValidationError(models.ReasonPaymentRequired)
	}

	split := l.defaultSplit
	if req.Split != nil {
		split = *req.Split
	}
	if err := split.Validate(); err != nil {
		return nil, err
	}

	eligible, err := l.registry.EligibleNodes(req.Capability)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return &models.RoutingResult{Routed: false, Reason: models.ReasonNoActiveNodes}, nil
	}

	nodeReward, treasury, burn := split.Shares(req.TotalPayment)
	now := l.now()
	job := &models.Job{
		JobId:          models.NewJobId(),
		Capability:     req.Capability,
		Payload:        req.Payload,
		TotalPayment:   req.TotalPayment,
		Split:          split,
		NodeReward:     nodeReward,
		TreasuryAmount: treasury,
		BurnAmount:     burn,
		Requester:      req.Requester,
		Status:         models.JobPending,
		CreatedAt:      now,
		Deadline:       now.Add(l.jobTimeout),
	}
	if err := l.store.CreateJob(job); err != nil {
		return nil, err
	}

	if l.feed != nil {
		l.feed.Broadcast(job)
	}
	logs.GetLogger().Infof("job routed, id: %s, capability: %s, reward: %d, eligible nodes: %d",
		job.JobId, job.Capability, job.NodeReward, len(eligible))

	return &models.RoutingResult{
		Routed:        true,
		JobId:         job.JobId,
		NodeReward:    nodeReward,
		EligibleCount: len(eligible),
	}, nil
}

// ListAvailable returns up to a page of pending jobs matching the
// node's capabilities, excluding jobs claimed by another node. The read
// sweeps expired jobs first and doubles as a heartbeat for the poller.
func (l *JobLedger) ListAvailable(nodeId string) ([]models.AvailableJob, error) {
	node, err := l.store.GetNode(nodeId)
	if err != nil {
		return nil, err
	}
	if node.Status != models.NodeStatusActive {
		return nil, models.ConflictError(models.ReasonNodeSuspended)
	}

	l.sweepExpired()

	jobs, err := l.store.ListJobsByStatus(models.JobPending)
	if err != nil {
		return nil, err
	}

	now := l.now()
	available := make([]models.AvailableJob, 0, l.pageSize)
	for _, job := range jobs {
		if len(available) == l.pageSize {
			break
		}
		if !node.HasCapability(job.Capability) {
			continue
		}
		if job.PastDeadline(now) {
			continue
		}
		if job.ClaimantNodeId != nil && *job.ClaimantNodeId != nodeId {
			continue
		}
		available = append(available, models.AvailableJob{
			JobId:      job.JobId,
			Capability: job.Capability,
			Payload:    job.Payload,
			Reward:     job.NodeReward,
			Deadline:   job.Deadline,
		})
	}

	// Polling for work proves the node is up.
	if _, err := l.registry.Heartbeat(nodeId); err != nil {
		logs.GetLogger().Errorf("Failed refresh heartbeat on poll, node: %s, error: %v", nodeId, err)
	}

	return available, nil
}

// sweepExpired lazily transitions pending and claimed jobs whose
// deadline elapsed. Idempotent; every listing read performs it.
func (l *JobLedger) sweepExpired() {
	jobs, err := l.store.ListJobsByStatus(models.JobPending, models.JobClaimed)
	if err != nil {
		logs.GetLogger().Errorf("Failed list jobs for expiry sweep, error: %v", err)
		return
	}

	now := l.now()
	for _, job := range jobs {
		if !job.PastDeadline(now) {
			continue
		}
		l.expireIfDue(job.JobId)
	}
}

func (l *JobLedger) expireIfDue(jobId string) {
	_, err := l.store.UpdateJob(jobId, func(job *models.Job) error {
		if job.Status.Terminal() || !job.PastDeadline(l.now()) {
			return nil
		}
		job.Status = models.JobExpired
		job.ClaimantNodeId = nil
		job.ClaimedAt = nil
		logs.GetLogger().Infof("job expired, id: %s", job.JobId)
		return nil
	})
	if err != nil {
		logs.GetLogger().Errorf("Failed expire job, id: %s, error: %v", jobId, err)
	}
}

// ClaimJob assigns the job to the node, strictly first-writer-wins on
// the persisted record. A re-claim by the current claimant is a no-op
// success; every other competitor observes Conflict.
func (l *JobLedger) ClaimJob(jobId, nodeId string) (*models.Job, error) {
	node, err := l.store.GetNode(nodeId)
	if err != nil {
		return nil, err
	}
	if node.Status != models.NodeStatusActive {
		return nil, models.ConflictError(models.ReasonNodeSuspended)
	}

	l.expireIfDue(jobId)

	return l.store.UpdateJob(jobId, func(job *models.Job) error {
		if job.ClaimedBy(nodeId) && job.Status == models.JobClaimed {
			return nil
		}
		if job.ClaimantNodeId != nil && *job.ClaimantNodeId != nodeId {
			return models.ConflictError(models.ReasonJobTaken)
		}
		if job.Status != models.JobPending {
			return jobStateConflict(job.Status)
		}
		now := l.now()
		claimant := nodeId
		job.ClaimantNodeId = &claimant
		job.ClaimedAt = &now
		job.Status = models.JobClaimed
		return nil
	})
}

// CompleteJob accepts the claimant's result and marks the job
// completed, then updates registry counters and settles payment, in
// that order: acceptance is durable before any money moves, and a
// settlement failure never rolls the completion back.
func (l *JobLedger) CompleteJob(ctx context.Context, jobId, nodeId string, result json.RawMessage) (*models.Job, *models.SettlementReceipt, error) {
	if len(result) == 0 {
		return nil, nil, models.ValidationError(models.ReasonResultRequired)
	}
	node, err := l.store.GetNode(nodeId)
	if err != nil {
		return nil, nil, err
	}

	l.expireIfDue(jobId)

	current, err := l.store.GetJob(jobId)
	if err != nil {
		return nil, nil, err
	}
	if err := completePreconditions(current, nodeId); err != nil {
		return nil, nil, err
	}

	// Task submissions pass the verification oracle before acceptance.
	deferReason, err := l.reviewSubmission(ctx, current, nodeId, result)
	if err != nil {
		return nil, nil, err
	}

	job, err := l.store.UpdateJob(jobId, func(job *models.Job) error {
		if err := completePreconditions(job, nodeId); err != nil {
			return err
		}
		now := l.now()
		job.Status = models.JobCompleted
		job.CompletedAt = &now
		job.Result = result
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := l.registry.RecordCompletion(nodeId, job.NodeReward); err != nil {
		logs.GetLogger().Errorf("Failed record completion, node: %s, job: %s, error: %v", nodeId, jobId, err)
	}

	receipt, err := l.settler.Settle(ctx, job, node.OwnerAddress, deferReason)
	if err != nil {
		logs.GetLogger().Errorf("Failed record settlement, job: %s, error: %v", jobId, err)
		return job, nil, nil
	}
	return job, receipt, nil
}

// completePreconditions validates a completion attempt against one
// snapshot of the job.
func completePreconditions(job *models.Job, nodeId string) error {
	if job.Status == models.JobCompleted {
		return models.ConflictError(models.ReasonAlreadyCompleted)
	}
	if job.ClaimantNodeId != nil && *job.ClaimantNodeId != nodeId {
		return models.ConflictError(models.ReasonJobNotAssigned)
	}
	if job.Status != models.JobClaimed {
		return jobStateConflict(job.Status)
	}
	if job.ClaimantNodeId == nil {
		return models.ConflictError(models.ReasonJobNotAssigned)
	}
	return nil
}

// reviewSubmission runs the oracle for task jobs. A rejected submission
// counts against the node and leaves the claim in place; a pass below
// the auto-approval threshold completes the job but defers payout to
// manual review. Oracle outages defer to manual review as well.
func (l *JobLedger) reviewSubmission(ctx context.Context, job *models.Job, nodeId string, result json.RawMessage) (deferReason string, err error) {
	if l.oracle == nil || job.Capability != constants.CapabilityTask {
		return "", nil
	}

	verdict, err := l.oracle.Review(ctx, job, result)
	if err != nil {
		logs.GetLogger().Errorf("verification oracle unavailable, job: %s, error: %v", job.JobId, err)
		return "verification oracle unavailable, awaiting manual review", nil
	}
	if !verdict.Pass {
		if err := l.registry.RecordFailure(nodeId); err != nil {
			logs.GetLogger().Errorf("Failed record failure, node: %s, error: %v", nodeId, err)
		}
		return "", models.ConflictError(models.ReasonVerificationFail).
			WithDetail("%s (confidence %.2f)", verdict.Reason, verdict.Confidence)
	}
	if verdict.Confidence < l.autoApprove {
		return "verified below auto-approval confidence, awaiting manual payout", nil
	}
	return "", nil
}

// CancelJob cancels a pending job; producers call it when falling back
// after a routing timeout. Cancelling an already cancelled job is a
// no-op success.
func (l *JobLedger) CancelJob(jobId string) (*models.Job, error) {
	return l.store.UpdateJob(jobId, func(job *models.Job) error {
		switch job.Status {
		case models.JobCancelled:
			return nil
		case models.JobPending:
			job.Status = models.JobCancelled
			return nil
		default:
			return jobStateConflict(job.Status)
		}
	})
}

func (l *JobLedger) GetJob(jobId string) (*models.Job, error) {
	return l.store.GetJob(jobId)
}

// WaitForResult polls for completion with a bounded timeout. On timeout
// the job is cancelled so no orphaned claim is left behind; a claim in
// flight survives the cancel attempt and may still complete later.
func (l *JobLedger) WaitForResult(ctx context.Context, jobId string, timeout time.Duration) (*models.Job, error) {
	if timeout <= 0 {
		timeout = l.jobTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(constants.WaitPollInterval)
	defer ticker.Stop()

	for {
		job, err := l.store.GetJob(jobId)
		if err != nil {
			return nil, err
		}
		if job.Status == models.JobCompleted {
			return job, nil
		}
		if job.Status.Terminal() {
			return nil, models.ConflictError(models.ReasonJobNotPending).
				WithDetail("job reached %s without a result", job.Status)
		}

		select {
		case <-waitCtx.Done():
			if _, err := l.CancelJob(jobId); err != nil && errClass(err) != models.ErrClassConflict {
				logs.GetLogger().Errorf("Failed cancel timed-out job, id: %s, error: %v", jobId, err)
			}
			return nil, models.ConflictError(models.ReasonResultTimeout)
		case <-ticker.C:
		}
	}
}

func jobStateConflict(status models.JobStatus) error {
	switch status {
	case models.JobExpired:
		return models.ConflictError(models.ReasonJobExpired)
	case models.JobCancelled:
		return models.ConflictError(models.ReasonJobCancelled)
	default:
		return models.ConflictError(models.ReasonJobNotPending)
	}
}
