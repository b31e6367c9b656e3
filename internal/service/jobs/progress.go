package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/deduply/internal/domain"
)

// ProgressTTL bounds how long a progress snapshot outlives its last update.
const ProgressTTL = 1 * time.Hour

// ProgressSnapshot is the live view of a job mirrored to Redis on every
// unit, so pollers don't hammer the job table.
type ProgressSnapshot struct {
	JobID       string             `json:"job_id"`
	Kind        domain.JobKind     `json:"kind"`
	Status      domain.JobStatus   `json:"status"`
	Counters    domain.JobCounters `json:"counters"`
	CurrentItem string             `json:"current_item"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// progressMirror writes snapshots to Redis when available and always keeps
// an in-memory copy so single-instance deployments work without Redis.
type progressMirror struct {
	redis *redis.Client
	kind  domain.JobKind

	mu   sync.RWMutex
	mem  map[string]*ProgressSnapshot
}

func newProgressMirror(rdb *redis.Client, kind domain.JobKind) *progressMirror {
	return &progressMirror{
		redis: rdb,
		kind:  kind,
		mem:   make(map[string]*ProgressSnapshot),
	}
}

func (m *progressMirror) key(jobID string) string {
	return fmt.Sprintf("jobs:%s:progress:%s", m.kind, jobID)
}

func (m *progressMirror) set(ctx context.Context, snap *ProgressSnapshot) {
	snap.Kind = m.kind
	snap.UpdatedAt = time.Now().UTC()
	if m.redis != nil {
		if data, err := json.Marshal(snap); err == nil {
			m.redis.Set(ctx, m.key(snap.JobID), data, ProgressTTL)
		}
	}
	m.mu.Lock()
	m.mem[snap.JobID] = snap
	m.mu.Unlock()
}

func (m *progressMirror) get(ctx context.Context, jobID string) *ProgressSnapshot {
	if m.redis != nil {
		if data, err := m.redis.Get(ctx, m.key(jobID)).Bytes(); err == nil {
			var snap ProgressSnapshot
			if json.Unmarshal(data, &snap) == nil {
				return &snap
			}
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mem[jobID]
}

func (m *progressMirror) drop(ctx context.Context, jobID string) {
	if m.redis != nil {
		m.redis.Del(ctx, m.key(jobID))
	}
	m.mu.Lock()
	delete(m.mem, jobID)
	m.mu.Unlock()
}
