package market

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gomodule/redigo/redis"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// PayResult is the settlement rail's answer for one payout attempt.
// Failures are outcomes, not errors: the rail can reject a payment for
// reasons unrelated to the job and the ledger must not auto-retry.
type PayResult struct {
	Outcome models.SettlementOutcome
	Ref     string
	Reason  string
}

// SettlementRail moves value to a recipient address. Implementations
// must bound the call with a timeout; it is the only operation allowed
// to be slow.
type SettlementRail interface {
	Pay(ctx context.Context, recipient string, amount int64) PayResult
}

// PayoutServiceRail forwards payouts to the external payout service.
// With no service configured every payment queues for manual payout via
// the dashboard, which is the expected cold-start flow.
type PayoutServiceRail struct {
	url    string
	token  string
	client *http.Client
}

func NewPayoutServiceRail(url, token string, timeout time.Duration) *PayoutServiceRail {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PayoutServiceRail{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *PayoutServiceRail) Pay(ctx context.Context, recipient string, amount int64) PayResult {
	if r.url == "" {
		return PayResult{
			Outcome: models.SettlementQueuedManual,
			Reason:  "payout service not configured, queued for manual payout",
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
	})
	if err != nil {
		return PayResult{Outcome: models.SettlementFailed, Reason: "marshal payout request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBuffer(payload))
	if err != nil {
		return PayResult{Outcome: models.SettlementFailed, Reason: "create payout request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Add("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return PayResult{Outcome: models.SettlementFailed, Reason: "payout rpc error: " + err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PayResult{Outcome: models.SettlementFailed, Reason: "decode payout response: " + err.Error()}
	}

	switch models.SettlementOutcome(body.Status) {
	case models.SettlementPaid:
		return PayResult{Outcome: models.SettlementPaid, Ref: body.TxRef}
	case models.SettlementQueuedManual:
		return PayResult{Outcome: models.SettlementQueuedManual, Reason: body.Reason}
	default:
		return PayResult{Outcome: models.SettlementFailed, Reason: body.Reason}
	}
}

// OperatorQueue pushes deferred settlements onto a redis list consumed
// by the payout dashboard.
type OperatorQueue struct {
	pool *redis.Pool
}

func NewOperatorQueue(redisUrl, password string) *OperatorQueue {
	pool := &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			if password != "" {
				return redis.DialURL(redisUrl, redis.DialPassword(password))
			}
			return redis.DialURL(redisUrl)
		},
	}
	return &OperatorQueue{pool: pool}
}

func (q *OperatorQueue) Push(receipt *models.SettlementReceipt) {
	conn := q.pool.Get()
	defer conn.Close()

	payload, err := json.Marshal(receipt)
	if err != nil {
		logs.GetLogger().Errorf("Failed marshal settlement receipt, job: %s, error: %v", receipt.JobId, err)
		return
	}
	if _, err := conn.Do("RPUSH", constants.RedisSettlementQueue, payload); err != nil {
		logs.GetLogger().Errorf("Failed push settlement to operator queue, job: %s, error: %v", receipt.JobId, err)
	}
}

// Settler records settlement receipts: exactly one per job, created the
// first time a job reaches a terminal settlement outcome. A paid receipt
// is immutable; queued or failed receipts stay retriable by job id.
type Settler struct {
	store *Store
	rail  SettlementRail
	queue *OperatorQueue
}

func NewSettler(store *Store, rail SettlementRail, queue *OperatorQueue) *Settler {
	return &Settler{store: store, rail: rail, queue: queue}
}

// Settle pays out a completed job once. A non-empty deferReason skips
// the rail and queues the payment for manual handling (used when a
// submission passed review below the auto-approval threshold). Calling
// Settle again for the same job returns the existing receipt untouched.
func (s *Settler) Settle(ctx context.Context, job *models.Job, recipient string, deferReason string) (*models.SettlementReceipt, error) {
	lock := s.store.entityLock("settlement:" + job.JobId)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.GetReceiptByJob(job.JobId)
	if err == nil {
		return existing, nil
	}
	var me *models.MarketError
	if !asMarketError(err, &me) || me.Class != models.ErrClassNotFound {
		return nil, err
	}

	var result PayResult
	if deferReason != "" {
		result = PayResult{Outcome: models.SettlementQueuedManual, Reason: deferReason}
	} else {
		result = s.rail.Pay(ctx, recipient, job.NodeReward)
	}

	receipt := buildReceipt(job.JobId, recipient, job.NodeReward, result)
	if err := s.store.CreateReceipt(receipt); err != nil {
		return nil, err
	}
	s.report(receipt)
	return receipt, nil
}

// Retry replays settlement for a job whose receipt is not yet paid.
// Guarantees no double-payment: a paid receipt rejects with Conflict,
// and the entity lock is held across the outcome check, the rail call
// and the write, so two concurrent retries cannot both drive the rail.
func (s *Settler) Retry(ctx context.Context, jobId string) (*models.SettlementReceipt, error) {
	lock := s.store.entityLock("settlement:" + jobId)
	lock.Lock()
	defer lock.Unlock()

	receipt, err := s.store.GetReceiptByJob(jobId)
	if err != nil {
		return nil, err
	}
	if receipt.Outcome == models.SettlementPaid {
		return nil, models.ConflictError(models.ReasonAlreadyPaid)
	}

	result := s.rail.Pay(ctx, receipt.Recipient, receipt.Amount)
	applyResult(receipt, result)
	receipt.Attempts++
	if err := s.store.SaveReceipt(receipt); err != nil {
		return nil, err
	}
	s.report(receipt)
	return receipt, nil
}

func (s *Settler) report(receipt *models.SettlementReceipt) {
	switch receipt.Outcome {
	case models.SettlementPaid:
		logs.GetLogger().Infof("settlement paid, job: %s, recipient: %s, amount: %d", receipt.JobId, receipt.Recipient, receipt.Amount)
	case models.SettlementQueuedManual:
		logs.GetLogger().Infof("settlement queued for manual payout, job: %s, amount: %d", receipt.JobId, receipt.Amount)
		if s.queue != nil {
			s.queue.Push(receipt)
		}
	case models.SettlementFailed:
		logs.GetLogger().Errorf("settlement failed, job: %s, amount: %d, error: %s", receipt.JobId, receipt.Amount, derefString(receipt.Error))
		if s.queue != nil {
			s.queue.Push(receipt)
		}
	}
}

func buildReceipt(jobId, recipient string, amount int64, result PayResult) *models.SettlementReceipt {
	receipt := &models.SettlementReceipt{
		ReceiptId: models.NewReceiptId(),
		JobId:     jobId,
		Recipient: recipient,
		Amount:    amount,
		Attempts:  1,
	}
	applyResult(receipt, result)
	return receipt
}

func applyResult(receipt *models.SettlementReceipt, result PayResult) {
	receipt.Outcome = result.Outcome
	receipt.ExternalRef = nil
	receipt.Error = nil
	if result.Ref != "" {
		ref := result.Ref
		receipt.ExternalRef = &ref
	}
	if result.Reason != "" {
		reason := result.Reason
		receipt.Error = &reason
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
