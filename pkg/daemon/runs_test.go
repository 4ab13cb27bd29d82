package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
)

func TestRunRecorder(t *testing.T) {
	r := NewRunRecorder(2)
	p := program.ForMonitor(program.Monitor{Channel: "smu1"})

	first := r.AddRecord("", p, time.Now(), nil, nil)
	r.AddRecord("", p, time.Now(), nil, status.New(status.CodeRange, "bias out of range"))
	third := r.AddRecord("", p, time.Now(), nil, errors.New("plain"))

	runs := r.GetRecords()
	if len(runs) != 2 {
		t.Fatalf("len = %d", len(runs))
	}
	if _, ok := r.GetRecord(first.ID); ok {
		t.Error("oldest run was not evicted")
	}
	if runs[0].Code != status.CodeRange || runs[0].Message == "" {
		t.Errorf("coded failure = %+v", runs[0])
	}
	if got, ok := r.GetRecord(third.ID); !ok || got.Code != status.CodeInternal {
		t.Errorf("uncoded failure = %+v", got)
	}
	if runs[1].Channels[0] != "smu1" {
		t.Errorf("channels = %v", runs[1].Channels)
	}

	if run := r.AddRecord("fixed", p, time.Now(), nil, nil); run.ID != "fixed" {
		t.Errorf("id = %s", run.ID)
	}

	r.ClearRecords()
	if len(r.GetRecords()) != 0 {
		t.Error("records not cleared")
	}
}
