package market

import (
	"sync"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gorilla/websocket"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// JobFeed pushes newly routed jobs to nodes holding an open websocket,
// as an alternative to polling. Delivery is best-effort: a node that
// misses a push still sees the job on its next poll.
type JobFeed struct {
	mu   sync.Mutex
	subs map[*websocket.Conn][]string
}

func NewJobFeed() *JobFeed {
	return &JobFeed{subs: map[*websocket.Conn][]string{}}
}

func (f *JobFeed) Subscribe(conn *websocket.Conn, capabilities []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[conn] = capabilities
}

func (f *JobFeed) Unsubscribe(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, conn)
}

// Broadcast sends the job to every subscriber advertising a matching
// capability. Dead connections are dropped.
func (f *JobFeed) Broadcast(job *models.Job) {
	announcement := models.AvailableJob{
		JobId:      job.JobId,
		Capability: job.Capability,
		Payload:    job.Payload,
		Reward:     job.NodeReward,
		Deadline:   job.Deadline,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, capabilities := range f.subs {
		if !containsString(capabilities, job.Capability) {
			continue
		}
		if err := conn.WriteJSON(announcement); err != nil {
			logs.GetLogger().Warnf("drop job feed subscriber, error: %v", err)
			conn.Close()
			delete(f.subs, conn)
		}
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
