package types

import (
	"time"

	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/sequencer"
	"github.com/charlie0129/smuseq/pkg/status"
)

// Run is one program execution recorded by the daemon. Listings leave
// Result empty.
type Run struct {
	ID         string            `json:"id"`
	Kind       program.Kind      `json:"kind"`
	Channels   []string          `json:"channels"`
	Code       status.Code       `json:"code"`
	Message    string            `json:"message,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Result     *sequencer.Result `json:"result,omitempty"`
}
