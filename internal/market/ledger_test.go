package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

var testResult = json.RawMessage(`{"output":"done"}`)

func TestCreateJobNoEligibleNodes(t *testing.T) {
	tm := newTestMarket(t)

	result, err := tm.ledger.CreateJob(&models.CreateJobRequest{
		Capability:   constants.CapabilityScrape,
		TotalPayment: 1000,
		Requester:    "producer-svc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Routed {
		t.Fatal("job must not route without eligible nodes")
	}
	if result.Reason != models.ReasonNoActiveNodes {
		t.Fatalf("reason = %s, want %s", result.Reason, models.ReasonNoActiveNodes)
	}

	jobs, err := tm.store.ListJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("unrouted job must not be persisted, found %d jobs", len(jobs))
	}
}

func TestCreateJobRewardSplit(t *testing.T) {
	tm := newTestMarket(t)
	tm.registerNode(t, "0xowner1")

	cases := []struct {
		payment              int64
		node, treasury, burn int64
	}{
		{1000, 700, 200, 100},
		// Rounding remainder goes to the node share.
		{1001, 701, 200, 100},
		{33, 27, 6, 3},
		{1, 1, 0, 0},
	}
	for _, tc := range cases {
		jobId := tm.routeJob(t, constants.CapabilityScrape, tc.payment)
		job, err := tm.ledger.GetJob(jobId)
		if err != nil {
			t.Fatal(err)
		}
		if job.NodeReward != tc.node || job.TreasuryAmount != tc.treasury || job.BurnAmount != tc.burn {
			t.Fatalf("payment %d split into %d/%d/%d, want %d/%d/%d", tc.payment,
				job.NodeReward, job.TreasuryAmount, job.BurnAmount, tc.node, tc.treasury, tc.burn)
		}
		if job.NodeReward+job.TreasuryAmount+job.BurnAmount != tc.payment {
			t.Fatalf("shares of %d do not sum to the total", tc.payment)
		}
	}
}

func TestCreateJobInvalidSplit(t *testing.T) {
	tm := newTestMarket(t)
	tm.registerNode(t, "0xowner1")

	_, err := tm.ledger.CreateJob(&models.CreateJobRequest{
		Capability:   constants.CapabilityScrape,
		TotalPayment: 1000,
		Requester:    "producer-svc",
		Split:        &models.RewardSplit{Node: 90, Treasury: 20, Burn: 10},
	})
	wantReason(t, err, models.ErrClassValidation, models.ReasonInvalidRewardSplit)
}

func TestListAvailablePaging(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")

	for i := 0; i < constants.JobPageSize+2; i++ {
		tm.routeJob(t, constants.CapabilityScrape, 1000)
		tm.clock.Advance(time.Second)
	}

	available, err := tm.ledger.ListAvailable(node.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != constants.JobPageSize {
		t.Fatalf("listing returned %d jobs, want page of %d", len(available), constants.JobPageSize)
	}
}

func TestListAvailableFiltersCapabilityAndClaims(t *testing.T) {
	tm := newTestMarket(t)
	scraper := tm.registerNode(t, "0xscraper", constants.CapabilityScrape)
	infer := tm.registerNode(t, "0xinfer", constants.CapabilityInference, constants.CapabilityScrape)

	scrapeJob := tm.routeJob(t, constants.CapabilityScrape, 1000)
	inferJob := tm.routeJob(t, constants.CapabilityInference, 1000)

	available, err := tm.ledger.ListAvailable(scraper.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].JobId != scrapeJob {
		t.Fatalf("scraper listing = %+v, want only %s", available, scrapeJob)
	}

	if _, err := tm.ledger.ClaimJob(scrapeJob, infer.NodeId); err != nil {
		t.Fatal(err)
	}
	available, err = tm.ledger.ListAvailable(scraper.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 0 {
		t.Fatalf("job claimed by another node still listed: %+v", available)
	}

	// The claimant keeps seeing pending work it can take.
	available, err = tm.ledger.ListAvailable(infer.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].JobId != inferJob {
		t.Fatalf("claimant listing = %+v, want only %s", available, inferJob)
	}
}

func TestListAvailableRefreshesHeartbeat(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")

	tm.clock.Advance(time.Minute)
	if _, err := tm.ledger.ListAvailable(node.NodeId); err != nil {
		t.Fatal(err)
	}

	updated, err := tm.registry.GetNode(node.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LastHeartbeat == nil || !updated.LastHeartbeat.Equal(tm.clock.Now()) {
		t.Fatal("polling must refresh the heartbeat")
	}
}

func TestListAvailableSuspendedNode(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	if _, err := tm.registry.Suspend(node.NodeId); err != nil {
		t.Fatal(err)
	}

	_, err := tm.ledger.ListAvailable(node.NodeId)
	wantReason(t, err, models.ErrClassConflict, models.ReasonNodeSuspended)
}

func TestClaimJob(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	job, err := tm.ledger.ClaimJob(jobId, node.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobClaimed || !job.ClaimedBy(node.NodeId) {
		t.Fatalf("claim left job in %s, claimant %v", job.Status, job.ClaimantNodeId)
	}

	// Re-claim by the holder is a no-op success.
	again, err := tm.ledger.ClaimJob(jobId, node.NodeId)
	if err != nil {
		t.Fatalf("re-claim by holder must succeed: %v", err)
	}
	if !again.ClaimedBy(node.NodeId) {
		t.Fatal("re-claim must keep the claim")
	}
}

func TestClaimJobRace(t *testing.T) {
	tm := newTestMarket(t)

	const racers = 6
	nodeIds := make([]string, racers)
	for i := 0; i < racers; i++ {
		nodeIds[i] = tm.registerNode(t, fmt.Sprintf("0xracer%d", i)).NodeId
	}
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tm.ledger.ClaimJob(jobId, nodeIds[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if errReason(err) != models.ReasonJobTaken {
			t.Fatalf("loser got unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("%d claims won, want exactly 1", winners)
	}

	job, err := tm.ledger.GetJob(jobId)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobClaimed || job.ClaimantNodeId == nil {
		t.Fatalf("job after race: %s claimant %v", job.Status, job.ClaimantNodeId)
	}
}

func TestClaimExpiredJob(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	tm.clock.Advance(constants.JobTimeout + time.Second)

	_, err := tm.ledger.ClaimJob(jobId, node.NodeId)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobExpired)

	job, err := tm.ledger.GetJob(jobId)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobExpired || job.ClaimantNodeId != nil {
		t.Fatalf("expired job = %s claimant %v, want expired/none", job.Status, job.ClaimantNodeId)
	}
}

func TestClaimedJobExpires(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}
	tm.clock.Advance(constants.JobTimeout + time.Second)

	_, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobExpired)
}

func TestCompleteJob(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}

	job, receipt, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobCompleted || job.CompletedAt == nil {
		t.Fatalf("completion left job in %s", job.Status)
	}
	if string(job.Result) != string(testResult) {
		t.Fatalf("result = %s, want %s", job.Result, testResult)
	}
	if receipt == nil || receipt.Outcome != models.SettlementPaid || receipt.Amount != 700 {
		t.Fatalf("receipt = %+v, want paid 700", receipt)
	}
	if receipt.Recipient != node.OwnerAddress {
		t.Fatalf("payout recipient = %s, want owner %s", receipt.Recipient, node.OwnerAddress)
	}

	updated, err := tm.registry.GetNode(node.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if updated.JobsCompleted != 1 || updated.TotalEarned != 700 {
		t.Fatalf("node counters = %d/%d, want 1/700", updated.JobsCompleted, updated.TotalEarned)
	}
}

func TestCompleteJobIdempotent(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}

	if _, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult); err != nil {
		t.Fatal(err)
	}
	_, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult)
	wantReason(t, err, models.ErrClassConflict, models.ReasonAlreadyCompleted)

	if tm.rail.payCount() != 1 {
		t.Fatalf("rail paid %d times, want 1", tm.rail.payCount())
	}
	updated, err := tm.registry.GetNode(node.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if updated.JobsCompleted != 1 || updated.TotalEarned != 700 {
		t.Fatalf("counters bumped twice: %d/%d", updated.JobsCompleted, updated.TotalEarned)
	}
}

func TestCompleteJobByNonClaimant(t *testing.T) {
	tm := newTestMarket(t)
	claimant := tm.registerNode(t, "0xclaimant")
	intruder := tm.registerNode(t, "0xintruder")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, claimant.NodeId); err != nil {
		t.Fatal(err)
	}

	_, _, err := tm.ledger.CompleteJob(context.Background(), jobId, intruder.NodeId, testResult)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobNotAssigned)
}

func TestCompleteJobRequiresClaim(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	_, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobNotAssigned)
}

func TestCompleteJobRequiresResult(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}

	_, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, nil)
	wantReason(t, err, models.ErrClassValidation, models.ReasonResultRequired)
}

func TestCancelJob(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	job, err := tm.ledger.CancelJob(jobId)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}

	// Cancelling again is a no-op success.
	if _, err := tm.ledger.CancelJob(jobId); err != nil {
		t.Fatalf("repeat cancel must succeed: %v", err)
	}

	_, err = tm.ledger.ClaimJob(jobId, node.NodeId)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobCancelled)
}

func TestCancelClaimedJob(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}

	_, err := tm.ledger.CancelJob(jobId)
	wantReason(t, err, models.ErrClassConflict, models.ReasonJobNotPending)
}

func TestWaitForResultCompleted(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)
	if _, err := tm.ledger.ClaimJob(jobId, node.NodeId); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tm.ledger.CompleteJob(context.Background(), jobId, node.NodeId, testResult); err != nil {
		t.Fatal(err)
	}

	job, err := tm.ledger.WaitForResult(context.Background(), jobId, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(job.Result) != string(testResult) {
		t.Fatalf("result = %s, want %s", job.Result, testResult)
	}
}

func TestWaitForResultTimeoutCancels(t *testing.T) {
	tm := newTestMarket(t)
	tm.registerNode(t, "0xowner1")
	jobId := tm.routeJob(t, constants.CapabilityScrape, 1000)

	_, err := tm.ledger.WaitForResult(context.Background(), jobId, 50*time.Millisecond)
	wantReason(t, err, models.ErrClassConflict, models.ReasonResultTimeout)

	job, err := tm.ledger.GetJob(jobId)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobCancelled {
		t.Fatalf("timed-out job = %s, want cancelled", job.Status)
	}
}

func TestJobNotFound(t *testing.T) {
	tm := newTestMarket(t)
	node := tm.registerNode(t, "0xowner1")

	_, err := tm.ledger.ClaimJob("job_missing", node.NodeId)
	wantReason(t, err, models.ErrClassNotFound, models.ReasonJobNotFound)
}
