package market

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// fakeClock lets tests drive heartbeat windows and job deadlines without
// sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeVerifier struct {
	verdict StakeVerdict
	err     error
}

func (v *fakeVerifier) Verify(ctx context.Context, ownerAddress, stakeTx string) (StakeVerdict, error) {
	if v.err != nil {
		return StakeVerdict{}, v.err
	}
	return v.verdict, nil
}

func validStake() *fakeVerifier {
	return &fakeVerifier{verdict: StakeVerdict{Valid: true, Amount: constants.MinStakeAmount}}
}

type fakeRail struct {
	mu     sync.Mutex
	calls  int
	result PayResult
}

func paidRail() *fakeRail {
	return &fakeRail{result: PayResult{Outcome: models.SettlementPaid, Ref: "0xpayout"}}
}

func (r *fakeRail) Pay(ctx context.Context, recipient string, amount int64) PayResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result
}

func (r *fakeRail) setResult(result PayResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
}

func (r *fakeRail) payCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeOracle struct {
	verdict Verdict
	err     error
}

func (o *fakeOracle) Review(ctx context.Context, job *models.Job, result json.RawMessage) (Verdict, error) {
	if o.err != nil {
		return Verdict{}, o.err
	}
	return o.verdict, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

// testMarket wires registry, ledger and settler onto one store with a
// shared fake clock.
type testMarket struct {
	store    *Store
	registry *NodeRegistry
	ledger   *JobLedger
	settler  *Settler
	clock    *fakeClock
	rail     *fakeRail
	verifier *fakeVerifier
}

func newTestMarket(t *testing.T) *testMarket {
	t.Helper()

	store := newTestStore(t)
	clock := newFakeClock()

	verifier := validStake()
	liveness := NewLivenessTracker(0)
	liveness.now = clock.Now
	registry := NewNodeRegistry(RegistryParams{
		Store:    store,
		Liveness: liveness,
		Verifier: verifier,
	})
	registry.now = clock.Now

	rail := paidRail()
	settler := NewSettler(store, rail, nil)
	ledger := NewJobLedger(LedgerParams{
		Store:    store,
		Registry: registry,
		Settler:  settler,
	})
	ledger.now = clock.Now

	return &testMarket{
		store:    store,
		registry: registry,
		ledger:   ledger,
		settler:  settler,
		clock:    clock,
		rail:     rail,
		verifier: verifier,
	}
}

func (tm *testMarket) registerNode(t *testing.T, owner string, capabilities ...string) *models.Node {
	t.Helper()
	if len(capabilities) == 0 {
		capabilities = []string{constants.CapabilityScrape}
	}
	node, err := tm.registry.Register(context.Background(), &models.RegisterNodeRequest{
		OwnerAddress: owner,
		Name:         "node of " + owner,
		Capabilities: capabilities,
		StakeTx:      "0xstake_" + owner,
	})
	if err != nil {
		t.Fatalf("register node for %s: %v", owner, err)
	}
	return node
}

func (tm *testMarket) routeJob(t *testing.T, capability string, payment int64) string {
	t.Helper()
	result, err := tm.ledger.CreateJob(&models.CreateJobRequest{
		Capability:   capability,
		Payload:      json.RawMessage(`{"url":"https://example.com"}`),
		TotalPayment: payment,
		Requester:    "producer-svc",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if !result.Routed {
		t.Fatalf("job not routed, reason: %s", result.Reason)
	}
	return result.JobId
}

func wantReason(t *testing.T, err error, class models.ErrorClass, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s, got nil error", class, reason)
	}
	if errClass(err) != class || errReason(err) != reason {
		t.Fatalf("expected %s/%s, got %v", class, reason, err)
	}
}
