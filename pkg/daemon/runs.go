package daemon

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/sequencer"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
)

// maxRunRecords is how many finished runs the daemon remembers.
const maxRunRecords = 64

// RunRecorder records the last N program runs.
type RunRecorder struct {
	MaxRecordCount int
	Runs           []types.Run
	mu             *sync.Mutex
}

// NewRunRecorder returns a new RunRecorder.
func NewRunRecorder(maxRecordCount int) *RunRecorder {
	return &RunRecorder{
		MaxRecordCount: maxRecordCount,
		Runs:           make([]types.Run, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecord stores a finished run and returns it. An empty id gets a fresh one.
func (r *RunRecorder) AddRecord(id string, p program.Program, started time.Time, res *sequencer.Result, err error) types.Run {
	if id == "" {
		id = uuid.NewString()
	}
	run := types.Run{
		ID:       id,
		Kind:     p.Kind,
		Channels: p.Channels(),
		Code:     status.CodeOf(err),
		// Strip monotonic clock reading.
		StartedAt:  started.Round(0),
		FinishedAt: time.Now().Round(0),
		Result:     res,
	}
	if res != nil {
		run.Code = res.Code
	}
	if err != nil {
		run.Message = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Runs) >= r.MaxRecordCount {
		r.Runs = r.Runs[1:]
	}
	r.Runs = append(r.Runs, run)

	return run
}

// ClearRecords clears all records.
func (r *RunRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Runs = make([]types.Run, 0)
}

// GetRecords returns the records, oldest first, without their results.
func (r *RunRecorder) GetRecords() []types.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := make([]types.Run, 0, len(r.Runs))
	for _, run := range r.Runs {
		run.Result = nil
		runs = append(runs, run)
	}
	return runs
}

// GetRecord returns the run with the given ID.
func (r *RunRecorder) GetRecord(id string) (types.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.Runs) - 1; i >= 0; i-- {
		if r.Runs[i].ID == id {
			return r.Runs[i], true
		}
	}
	return types.Run{}, false
}
