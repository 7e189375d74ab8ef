package market

import (
	"time"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// LivenessTracker derives a node's up/down state from heartbeat recency.
// Liveness is computed at read time and never stored, so stale nodes
// drop out of eligibility without any background sweeper.
type LivenessTracker struct {
	timeout time.Duration
	now     func() time.Time
}

func NewLivenessTracker(timeout time.Duration) *LivenessTracker {
	if timeout <= 0 {
		timeout = constants.HeartbeatTimeout
	}
	return &LivenessTracker{timeout: timeout, now: time.Now}
}

// IsLive reports whether the node heartbeated within the timeout window.
// A node with no recorded heartbeat is never live.
func (l *LivenessTracker) IsLive(node *models.Node) bool {
	if node == nil || node.LastHeartbeat == nil {
		return false
	}
	return l.now().Sub(*node.LastHeartbeat) < l.timeout
}
