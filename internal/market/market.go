package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// Marketplace is the operation surface producers, nodes and operators
// call. It validates input at the boundary and delegates to the
// registry, ledger and settler; it holds no state of its own.
type Marketplace struct {
	registry *NodeRegistry
	ledger   *JobLedger
	settler  *Settler
	catalog  *CapabilityCatalog
}

type MarketplaceParams struct {
	Registry *NodeRegistry
	Ledger   *JobLedger
	Settler  *Settler
	Catalog  *CapabilityCatalog
}

func NewMarketplace(params MarketplaceParams) *Marketplace {
	catalog := params.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Marketplace{
		registry: params.Registry,
		ledger:   params.Ledger,
		settler:  params.Settler,
		catalog:  catalog,
	}
}

func (m *Marketplace) RegisterNode(ctx context.Context, req *models.RegisterNodeRequest) (*models.Node, error) {
	return m.registry.Register(ctx, req)
}

func (m *Marketplace) Heartbeat(nodeId string) (*models.Node, error) {
	return m.registry.Heartbeat(nodeId)
}

// CreateJob validates the producer request and routes it. The
// capability must be catalogued and the payment must clear the
// capability's minimum.
func (m *Marketplace) CreateJob(req *models.CreateJobRequest) (*models.RoutingResult, error) {
	if req.Capability == "" || !m.catalog.Valid(req.Capability) {
		return nil, models.ValidationError(models.ReasonInvalidCapability).
			WithDetail("capability %q, valid: %v", req.Capability, m.catalog.Tags())
	}
	if req.Requester == "" {
		return nil, models.ValidationError(models.ReasonRequesterRequired)
	}
	if req.TotalPayment <= 0 {
		return nil, models.ValidationError(models.ReasonPaymentRequired)
	}
	if min := m.catalog.MinPayment(req.Capability); req.TotalPayment < min {
		return nil, models.ValidationError(models.ReasonPaymentBelowMinimum).
			WithDetail("minimum payment for %s is %d", req.Capability, min)
	}
	return m.ledger.CreateJob(req)
}

func (m *Marketplace) ListAvailable(nodeId string) ([]models.AvailableJob, error) {
	if nodeId == "" {
		return nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return m.ledger.ListAvailable(nodeId)
}

func (m *Marketplace) ClaimJob(jobId, nodeId string) (*models.Job, error) {
	if jobId == "" {
		return nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	if nodeId == "" {
		return nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return m.ledger.ClaimJob(jobId, nodeId)
}

func (m *Marketplace) CompleteJob(ctx context.Context, jobId, nodeId string, result json.RawMessage) (*models.Job, *models.SettlementReceipt, error) {
	if jobId == "" {
		return nil, nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	if nodeId == "" {
		return nil, nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return m.ledger.CompleteJob(ctx, jobId, nodeId, result)
}

func (m *Marketplace) CancelJob(jobId string) (*models.Job, error) {
	if jobId == "" {
		return nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	return m.ledger.CancelJob(jobId)
}

func (m *Marketplace) WaitForResult(ctx context.Context, jobId string, timeout time.Duration) (*models.Job, error) {
	if jobId == "" {
		return nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	return m.ledger.WaitForResult(ctx, jobId, timeout)
}

func (m *Marketplace) GetJob(jobId string) (*models.Job, error) {
	return m.ledger.GetJob(jobId)
}

// ListJobs is the operator view over the ledger, optionally filtered by
// status.
func (m *Marketplace) ListJobs(status string) ([]models.Job, error) {
	if status == "" {
		return m.ledger.store.ListJobs()
	}
	switch s := models.JobStatus(status); s {
	case models.JobPending, models.JobClaimed, models.JobCompleted, models.JobExpired, models.JobCancelled:
		return m.ledger.store.ListJobsByStatus(s)
	default:
		return nil, models.ValidationError(models.ReasonJobNotPending).
			WithDetail("unknown status %q", status)
	}
}

func (m *Marketplace) SuspendNode(nodeId string) (*models.Node, error) {
	if nodeId == "" {
		return nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return m.registry.Suspend(nodeId)
}

func (m *Marketplace) ReinstateNode(nodeId string) (*models.Node, error) {
	if nodeId == "" {
		return nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return m.registry.Reinstate(nodeId)
}

func (m *Marketplace) ListNodes() ([]models.NodeView, error) {
	return m.registry.ListNodes()
}

func (m *Marketplace) GetNode(nodeId string) (*models.NodeView, error) {
	node, err := m.registry.GetNode(nodeId)
	if err != nil {
		return nil, err
	}
	view := m.registry.View(node)
	return &view, nil
}

func (m *Marketplace) GetSettlement(jobId string) (*models.SettlementReceipt, error) {
	if jobId == "" {
		return nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	return m.settler.store.GetReceiptByJob(jobId)
}

func (m *Marketplace) RetrySettlement(ctx context.Context, jobId string) (*models.SettlementReceipt, error) {
	if jobId == "" {
		return nil, models.ValidationError(models.ReasonJobIdRequired)
	}
	return m.settler.Retry(ctx, jobId)
}
