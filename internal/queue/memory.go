package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/lead-enricher/internal/model"
)

// Memory is an in-process Queue. Jobs do not survive a restart, so it
// serves tests and single-process runs of the CLI.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	now  func() time.Time
}

type memJob struct {
	job         model.Job
	lockedUntil time.Time
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*memJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores the jobs. Ids already present are left untouched.
func (m *Memory) Enqueue(_ context.Context, jobs ...model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, j := range jobs {
		if _, ok := m.jobs[j.ID]; ok {
			continue
		}
		j.Status = model.JobStatusQueued
		if j.RunAt.IsZero() {
			j.RunAt = now
		}
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		j.UpdatedAt = now
		m.jobs[j.ID] = &memJob{job: j}
	}
	return nil
}

// Claim leases the ready job of the given type with the earliest run time.
func (m *Memory) Claim(_ context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var next *memJob
	for _, mj := range m.jobs {
		if mj.job.Type != jobType || !mj.ready(now) {
			continue
		}
		if next == nil || mj.job.RunAt.Before(next.job.RunAt) {
			next = mj
		}
	}
	if next == nil {
		return nil, nil
	}

	next.job.Status = model.JobStatusRunning
	next.job.Attempt++
	next.job.UpdatedAt = now
	next.lockedUntil = now.Add(lease)

	claimed := next.job
	return &claimed, nil
}

func (mj *memJob) ready(now time.Time) bool {
	switch mj.job.Status {
	case model.JobStatusQueued:
		return !mj.job.RunAt.After(now)
	case model.JobStatusRunning:
		return mj.lockedUntil.Before(now)
	default:
		return false
	}
}

func (m *Memory) Complete(_ context.Context, id string) error {
	return m.update(id, func(j *model.Job) {
		j.Status = model.JobStatusSucceeded
	})
}

func (m *Memory) Retry(_ context.Context, id string, runAt time.Time, errMsg string) error {
	return m.update(id, func(j *model.Job) {
		j.Status = model.JobStatusQueued
		j.RunAt = runAt
		j.LastError = errMsg
	})
}

func (m *Memory) Bury(_ context.Context, id, errMsg string) error {
	return m.update(id, func(j *model.Job) {
		j.Status = model.JobStatusDead
		j.LastError = errMsg
	})
}

func (m *Memory) update(id string, fn func(j *model.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(&mj.job)
	mj.job.UpdatedAt = m.now()
	mj.lockedUntil = time.Time{}
	return nil
}

func (m *Memory) Counts(_ context.Context) (model.JobCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := newCounts()
	for _, mj := range m.jobs {
		addCount(counts, mj.job.Type, mj.job.Status, 1)
	}
	return counts, nil
}

// Prune drops succeeded and dead jobs last touched before now-olderThan.
func (m *Memory) Prune(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	n := 0
	for id, mj := range m.jobs {
		done := mj.job.Status == model.JobStatusSucceeded || mj.job.Status == model.JobStatusDead
		if done && mj.job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the job with the given id.
func (m *Memory) Get(id string) (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return mj.job, true
}

// Jobs returns a copy of every stored job.
func (m *Memory) Jobs() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Job, 0, len(m.jobs))
	for _, mj := range m.jobs {
		out = append(out, mj.job)
	}
	return out
}
