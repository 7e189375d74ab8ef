package market

import (
	"context"
	"time"

	"github.com/filswan/go-swan-lib/logs"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// NodeRegistry owns node identity, capability membership, stake records
// and lifetime counters.
type NodeRegistry struct {
	store    *Store
	liveness *LivenessTracker
	verifier StakeVerifier
	catalog  *CapabilityCatalog
	now      func() time.Time
}

type RegistryParams struct {
	Store    *Store
	Liveness *LivenessTracker
	Verifier StakeVerifier
	Catalog  *CapabilityCatalog
}

func NewNodeRegistry(params RegistryParams) *NodeRegistry {
	catalog := params.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	liveness := params.Liveness
	if liveness == nil {
		liveness = NewLivenessTracker(0)
	}
	return &NodeRegistry{
		store:    params.Store,
		liveness: liveness,
		verifier: params.Verifier,
		catalog:  catalog,
		now:      time.Now,
	}
}

// Register verifies the stake proof and creates an active node. Owner
// address and stake proof must both be unused; the store re-checks both
// under its registration lock so racing registrations cannot both win.
func (r *NodeRegistry) Register(ctx context.Context, req *models.RegisterNodeRequest) (*models.Node, error) {
	if req.OwnerAddress == "" {
		return nil, models.ValidationError(models.ReasonOwnerRequired)
	}
	if req.StakeTx == "" {
		return nil, models.ValidationError(models.ReasonStakeTxRequired)
	}
	if len(req.Capabilities) == 0 {
		return nil, models.ValidationError(models.ReasonCapabilitiesRequired)
	}
	for _, capability := range req.Capabilities {
		if !r.catalog.Valid(capability) {
			return nil, models.ValidationError(models.ReasonInvalidCapability).
				WithDetail("unknown capability %q, valid: %v", capability, r.catalog.Tags())
		}
	}

	verdict, err := r.verifier.Verify(ctx, req.OwnerAddress, req.StakeTx)
	if err != nil {
		return nil, models.StakeError(err.Error())
	}
	if !verdict.Valid {
		return nil, models.StakeError(verdict.Reason)
	}

	now := r.now()
	node := &models.Node{
		NodeId:          models.NewNodeId(),
		OwnerAddress:    req.OwnerAddress,
		Name:            req.Name,
		Capabilities:    req.Capabilities,
		StakeTx:         req.StakeTx,
		StakeAmount:     verdict.Amount,
		StakeVerifiedAt: now,
		RegisteredAt:    now,
		LastHeartbeat:   &now,
		Status:          models.NodeStatusActive,
	}
	if err := r.store.CreateNode(node); err != nil {
		return nil, err
	}

	logs.GetLogger().Infof("node registered, id: %s, owner: %s, capabilities: %v, stake: %d",
		node.NodeId, node.OwnerAddress, node.Capabilities, node.StakeAmount)
	return node, nil
}

// Heartbeat stamps the node's last heartbeat. Safe at any frequency.
func (r *NodeRegistry) Heartbeat(nodeId string) (*models.Node, error) {
	if nodeId == "" {
		return nil, models.ValidationError(models.ReasonNodeIdRequired)
	}
	return r.store.UpdateNode(nodeId, func(node *models.Node) error {
		now := r.now()
		node.LastHeartbeat = &now
		return nil
	})
}

// EligibleNodes returns the active, live nodes advertising the
// capability. Liveness is recomputed from heartbeats on every call.
func (r *NodeRegistry) EligibleNodes(capability string) ([]models.Node, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, err
	}

	var eligible []models.Node
	for _, node := range nodes {
		if node.Status != models.NodeStatusActive {
			continue
		}
		if !r.liveness.IsLive(&node) {
			continue
		}
		if !node.HasCapability(capability) {
			continue
		}
		eligible = append(eligible, node)
	}
	return eligible, nil
}

func (r *NodeRegistry) GetNode(nodeId string) (*models.Node, error) {
	return r.store.GetNode(nodeId)
}

// ListNodes returns every node with liveness derived at read time,
// busiest first.
func (r *NodeRegistry) ListNodes() ([]models.NodeView, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, err
	}

	views := make([]models.NodeView, 0, len(nodes))
	for _, node := range nodes {
		views = append(views, r.View(&node))
	}
	return views, nil
}

func (r *NodeRegistry) View(node *models.Node) models.NodeView {
	return models.NodeView{
		NodeId:        node.NodeId,
		Name:          node.Name,
		OwnerAddress:  node.OwnerAddress,
		Capabilities:  node.Capabilities,
		Status:        node.Status,
		Live:          r.liveness.IsLive(node),
		JobsCompleted: node.JobsCompleted,
		JobsFailed:    node.JobsFailed,
		TotalEarned:   node.TotalEarned,
		StakeAmount:   node.StakeAmount,
		RegisteredAt:  node.RegisteredAt,
	}
}

// RecordCompletion bumps the node's lifetime counters after the ledger
// marks the job completed. The completion also counts as a heartbeat.
func (r *NodeRegistry) RecordCompletion(nodeId string, reward int64) error {
	_, err := r.store.UpdateNode(nodeId, func(node *models.Node) error {
		node.JobsCompleted++
		node.TotalEarned += reward
		now := r.now()
		node.LastHeartbeat = &now
		return nil
	})
	return err
}

// RecordFailure counts a rejected submission against the node.
func (r *NodeRegistry) RecordFailure(nodeId string) error {
	_, err := r.store.UpdateNode(nodeId, func(node *models.Node) error {
		node.JobsFailed++
		return nil
	})
	return err
}

// Suspend takes a node out of eligibility without deleting its record.
func (r *NodeRegistry) Suspend(nodeId string) (*models.Node, error) {
	return r.store.UpdateNode(nodeId, func(node *models.Node) error {
		node.Status = models.NodeStatusSuspended
		return nil
	})
}

func (r *NodeRegistry) Reinstate(nodeId string) (*models.Node, error) {
	return r.store.UpdateNode(nodeId, func(node *models.Node) error {
		node.Status = models.NodeStatusActive
		return nil
	})
}
