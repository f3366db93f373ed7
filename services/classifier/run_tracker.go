package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/utils/cache"
)

// TTL configurations for run states
const (
	RunStateTTLDone    = 1 * time.Hour
	RunStateTTLRunning = 24 * time.Hour
	ActiveRunTTL       = 2 * time.Hour
	cancelFlagTTL      = 30 * time.Minute
)

const (
	redisKeyRunState  = "classify:run:%s"
	redisKeyActiveRun = "classify:active:%s"
	redisKeyCancel    = "classify:cancel:%s"
)

var ErrRunActive = errors.New("a classification run is already active for this subject")

// RunState is the live progress of a run, shared across instances through
// Redis when it is configured.
type RunState struct {
	RunID       string          `json:"runId"`
	SubjectCode string          `json:"subjectCode"`
	Status      model.RunStatus `json:"status"`
	TotalFiles  int             `json:"totalFiles"`
	Done        int             `json:"done"`
	Processed   int             `json:"processed"`
	Rejected    int             `json:"rejected"`
	Failed      int             `json:"failed"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// RunTracker guards one active run per subject, publishes run state and
// carries cancellation requests. Without Redis it works per process.
type RunTracker struct {
	cache *cache.RedisCache

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	active  map[string]string // subject code -> run id
	states  map[string]RunState
}

func NewRunTracker(redisCache *cache.RedisCache) *RunTracker {
	return &RunTracker{
		cache:   redisCache,
		cancels: make(map[string]context.CancelFunc),
		active:  make(map[string]string),
		states:  make(map[string]RunState),
	}
}

// Begin claims the subject for runID and registers cancel so Cancel can stop
// the run from this instance.
func (rt *RunTracker) Begin(ctx context.Context, state RunState, cancel context.CancelFunc) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if existing, ok := rt.active[state.SubjectCode]; ok {
		return fmt.Errorf("%w: %s", ErrRunActive, existing)
	}

	if rt.cache != nil {
		ok, err := rt.cache.SetNX(ctx, fmt.Sprintf(redisKeyActiveRun, state.SubjectCode), state.RunID, ActiveRunTTL)
		if err != nil {
			return fmt.Errorf("failed to claim subject: %w", err)
		}
		if !ok {
			existing, _ := rt.cache.Get(ctx, fmt.Sprintf(redisKeyActiveRun, state.SubjectCode))
			return fmt.Errorf("%w: %s", ErrRunActive, existing)
		}
	}

	rt.active[state.SubjectCode] = state.RunID
	rt.cancels[state.RunID] = cancel
	return rt.saveLocked(ctx, state)
}

// Update stores the latest progress.
func (rt *RunTracker) Update(ctx context.Context, state RunState) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.saveLocked(ctx, state)
}

// Finish stores the terminal state and releases the subject.
func (rt *RunTracker) Finish(ctx context.Context, state RunState) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.active[state.SubjectCode] == state.RunID {
		delete(rt.active, state.SubjectCode)
	}
	delete(rt.cancels, state.RunID)

	if rt.cache != nil {
		key := fmt.Sprintf(redisKeyActiveRun, state.SubjectCode)
		if owner, err := rt.cache.Get(ctx, key); err == nil && owner == state.RunID {
			rt.cache.Delete(ctx, key)
		}
		rt.cache.Delete(ctx, fmt.Sprintf(redisKeyCancel, state.RunID))
	}
	return rt.saveLocked(ctx, state)
}

func (rt *RunTracker) saveLocked(ctx context.Context, state RunState) error {
	state.UpdatedAt = time.Now().UTC()
	rt.states[state.RunID] = state

	if rt.cache == nil {
		return nil
	}
	ttl := RunStateTTLRunning
	if state.Status != model.RunStatusRunning {
		ttl = RunStateTTLDone
	}
	if err := rt.cache.SetJSON(ctx, fmt.Sprintf(redisKeyRunState, state.RunID), state, ttl); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// Get returns the latest known state of a run.
func (rt *RunTracker) Get(ctx context.Context, runID string) (*RunState, error) {
	if rt.cache != nil {
		var state RunState
		err := rt.cache.GetJSON(ctx, fmt.Sprintf(redisKeyRunState, runID), &state)
		if err == nil {
			return &state, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("failed to get run state: %w", err)
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	state, ok := rt.states[runID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Cancel requests that a run stop. The local context is cancelled when the
// run lives on this instance; other instances notice the Redis flag.
func (rt *RunTracker) Cancel(ctx context.Context, runID string) bool {
	rt.mu.Lock()
	cancel, local := rt.cancels[runID]
	rt.mu.Unlock()

	if local {
		cancel()
	}
	if rt.cache != nil {
		rt.cache.Set(ctx, fmt.Sprintf(redisKeyCancel, runID), "1", cancelFlagTTL)
		return true
	}
	return local
}

// IsCancelled checks for a cancellation requested on another instance.
func (rt *RunTracker) IsCancelled(ctx context.Context, runID string) bool {
	if rt.cache == nil {
		return false
	}
	val, err := rt.cache.Get(ctx, fmt.Sprintf(redisKeyCancel, runID))
	return err == nil && val == "1"
}

// Forget drops local state for runs older than maxAge. Used by the sweep job.
func (rt *RunTracker) Forget(maxAge time.Duration) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, state := range rt.states {
		if state.Status != model.RunStatusRunning && state.UpdatedAt.Before(cutoff) {
			delete(rt.states, id)
			removed++
		}
	}
	return removed
}

// Owns reports whether runID is executing in this process.
func (rt *RunTracker) Owns(runID string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.cancels[runID]
	return ok
}
