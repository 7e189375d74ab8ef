package market

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

func (tm *testMarket) facade() *Marketplace {
	return NewMarketplace(MarketplaceParams{
		Registry: tm.registry,
		Ledger:   tm.ledger,
		Settler:  tm.settler,
	})
}

func TestMarketplaceCreateJobValidation(t *testing.T) {
	tm := newTestMarket(t)
	m := tm.facade()

	cases := []struct {
		name   string
		req    models.CreateJobRequest
		reason string
	}{
		{"unknown capability", models.CreateJobRequest{Capability: "mining", Requester: "svc", TotalPayment: 1000}, models.ReasonInvalidCapability},
		{"missing requester", models.CreateJobRequest{Capability: "scrape", TotalPayment: 1000}, models.ReasonRequesterRequired},
		{"zero payment", models.CreateJobRequest{Capability: "scrape", Requester: "svc"}, models.ReasonPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateJob(&tc.req)
			wantReason(t, err, models.ErrClassValidation, tc.reason)
		})
	}
}

func TestMarketplaceMinimumPayment(t *testing.T) {
	catalogFile := filepath.Join(t.TempDir(), "capabilities.yaml")
	content := "- tag: scrape\n  min_payment: 100\n- tag: render\n  description: render a video frame\n  min_payment: 50\n"
	if err := os.WriteFile(catalogFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := LoadCatalog(catalogFile)
	if err != nil {
		t.Fatal(err)
	}

	tm := newTestMarket(t)
	m := NewMarketplace(MarketplaceParams{
		Registry: tm.registry,
		Ledger:   tm.ledger,
		Settler:  tm.settler,
		Catalog:  catalog,
	})

	_, err = m.CreateJob(&models.CreateJobRequest{Capability: "scrape", Requester: "svc", TotalPayment: 50})
	wantReason(t, err, models.ErrClassValidation, models.ReasonPaymentBelowMinimum)

	// A catalog entry added by the file is routable.
	result, err := m.CreateJob(&models.CreateJobRequest{Capability: "render", Requester: "svc", TotalPayment: 60})
	if err != nil {
		t.Fatal(err)
	}
	if result.Routed || result.Reason != models.ReasonNoActiveNodes {
		t.Fatalf("result = %+v, want no_active_nodes fallback", result)
	}
}

func TestMarketplaceListJobs(t *testing.T) {
	tm := newTestMarket(t)
	m := tm.facade()
	tm.registerNode(t, "0xowner1")

	first := tm.routeJob(t, constants.CapabilityScrape, 1000)
	second := tm.routeJob(t, constants.CapabilityScrape, 500)
	if _, err := m.CancelJob(second); err != nil {
		t.Fatal(err)
	}

	pending, err := m.ListJobs("pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].JobId != first {
		t.Fatalf("pending listing = %+v, want only %s", pending, first)
	}

	all, err := m.ListJobs("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered listing returned %d jobs, want 2", len(all))
	}

	if _, err := m.ListJobs("bogus"); errClass(err) != models.ErrClassValidation {
		t.Fatalf("bogus status filter must fail validation, got %v", err)
	}
}

// Full producer and node round trip through the facade.
func TestMarketplaceRoundTrip(t *testing.T) {
	tm := newTestMarket(t)
	m := tm.facade()
	ctx := context.Background()

	worker, err := m.RegisterNode(ctx, &models.RegisterNodeRequest{
		OwnerAddress: "0xworker",
		Name:         "worker-1",
		Capabilities: []string{constants.CapabilityScrape, constants.CapabilityInference},
		StakeTx:      "0xstake_worker",
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := m.CreateJob(&models.CreateJobRequest{
		Capability:   constants.CapabilityScrape,
		Payload:      json.RawMessage(`{"url":"https://example.com"}`),
		TotalPayment: 1000,
		Requester:    "producer-svc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Routed || result.EligibleCount != 1 || result.NodeReward != 700 {
		t.Fatalf("routing result = %+v", result)
	}

	available, err := m.ListAvailable(worker.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 1 || available[0].JobId != result.JobId {
		t.Fatalf("poll returned %+v", available)
	}

	if _, err := m.ClaimJob(result.JobId, worker.NodeId); err != nil {
		t.Fatal(err)
	}
	job, receipt, err := m.CompleteJob(ctx, result.JobId, worker.NodeId, testResult)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobCompleted || receipt.Outcome != models.SettlementPaid {
		t.Fatalf("job %s, settlement %s", job.Status, receipt.Outcome)
	}

	stored, err := m.GetSettlement(result.JobId)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ReceiptId != receipt.ReceiptId {
		t.Fatal("stored receipt differs from the completion receipt")
	}
	if _, err := m.RetrySettlement(ctx, result.JobId); errReason(err) != models.ReasonAlreadyPaid {
		t.Fatalf("retry of paid settlement must conflict, got %v", err)
	}

	view, err := m.GetNode(worker.NodeId)
	if err != nil {
		t.Fatal(err)
	}
	if !view.Live || view.JobsCompleted != 1 || view.TotalEarned != 700 {
		t.Fatalf("node view = %+v", view)
	}
}
