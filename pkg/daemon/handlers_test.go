package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/events"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	c := config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "smuseq.json"))
	setupEngine(c, config.NewSim(c))
	locks = newChannelLocks()
	runRecorder = NewRunRecorder(maxRunRecords)
	hub = events.NewEventHub()

	r := setupRoutes()
	gin.SetMode(gin.TestMode)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

const monitorBody = `{"channel": "smu1", "bias": 0.2, "sampleLimit": 3, "interval": "1ms", "currentLimit": 0.01, "capacity": 16}`

func TestPostMonitor(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/monitor", monitorBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var run types.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.Kind != program.KindMonitor || run.Code != status.OK {
		t.Errorf("run = %+v", run)
	}
	if run.Result == nil || run.Result.Monitor == nil || run.Result.Monitor.Recorded != 3 {
		t.Fatalf("result = %+v", run.Result)
	}
	if locks.busy("smu1") {
		t.Error("channel still held after the run")
	}
}

func TestPostPrograms(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{
			name: "pulse",
			path: "/pulse",
			body: `{"channel": "smu1", "preBias": 0.1, "preHold": "1ms", "amplitude": 1, "width": "1us", "postBias": 0.05, "postHold": "1ms"}`,
			want: http.StatusCreated,
		},
		{
			name: "sweep",
			path: "/sweep",
			body: `{"highChannel": "smu1", "lowChannel": "smu2", "start": 0, "peak": 1, "points": 11, "stepTime": "1ms"}`,
			want: http.StatusCreated,
		},
		{
			name: "unknown field",
			path: "/monitor",
			body: `{"channel": "smu1", "bais": 0.2, "sampleLimit": 1}`,
			want: http.StatusBadRequest,
		},
		{
			name: "missing channel",
			path: "/pulse",
			body: `{"amplitude": 1, "width": "1us"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "over voltage",
			path: "/monitor",
			body: `{"channel": "smu1", "bias": 1000, "sampleLimit": 1, "currentLimit": 0.01}`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown channel",
			path: "/monitor",
			body: `{"channel": "smu9", "bias": 0.1, "sampleLimit": 1, "currentLimit": 0.01}`,
			want: http.StatusBadRequest,
		},
		{
			name: "envelope",
			path: "/run",
			body: `{"version": 1, "kind": "monitor", "monitor": ` + monitorBody + `}`,
			want: http.StatusCreated,
		},
		{
			name: "envelope without section",
			path: "/run",
			body: `{"version": 1, "kind": "pulse"}`,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			w := do(r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestPostBusyChannel(t *testing.T) {
	r := newTestRouter(t)

	release, busy := locks.tryLock("smu1")
	if len(busy) > 0 {
		t.Fatal("fresh locks reported busy")
	}

	w := do(r, http.MethodPost, "/monitor", monitorBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if len(runRecorder.GetRecords()) != 0 {
		t.Error("rejected program was recorded")
	}

	release()
	w = do(r, http.MethodPost, "/monitor", monitorBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("status after release = %d", w.Code)
	}
}

func TestGetRuns(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/monitor", monitorBody)
	var posted types.Run
	if err := json.Unmarshal(w.Body.Bytes(), &posted); err != nil {
		t.Fatal(err)
	}

	w = do(r, http.MethodGet, "/runs", "")
	var runs []types.Run
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != posted.ID || runs[0].Result != nil {
		t.Fatalf("runs = %+v", runs)
	}

	w = do(r, http.MethodGet, "/runs/"+posted.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got types.Run
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Result == nil || got.Result.Monitor == nil {
		t.Errorf("single run lost its result: %+v", got)
	}

	w = do(r, http.MethodGet, "/runs/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGetChannels(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/channels", "")
	var infos []types.ChannelInfo
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("channels = %+v", infos)
	}
	if infos[0].Name != "smu1" || infos[0].Role != program.RoleHigh {
		t.Errorf("high channel = %+v", infos[0])
	}
	if infos[1].Name != "smu2" || !infos[1].Inverted {
		t.Errorf("low channel = %+v", infos[1])
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code status.Code
		want int
	}{
		{status.OK, http.StatusCreated},
		{status.CodePulseMeasureFailed, http.StatusOK},
		{status.CodeInvalidProgram, http.StatusBadRequest},
		{status.CodeCancelled, http.StatusRequestTimeout},
		{status.CodeRouteFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.code); got != tt.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestSchedules(t *testing.T) {
	r := newTestRouter(t)
	defer schedules.stop()

	path := filepath.Join(t.TempDir(), "read.yaml")
	content := `version: 1
kind: monitor
monitor:
  channel: smu1
  bias: 0.1
  sampleLimit: 2
  interval: 1ms
  currentLimit: 0.01
  capacity: 8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := schedules.apply(context.Background(), []config.Schedule{{Name: "read", Cron: "@every 10m", Program: path}})
	if err != nil {
		t.Fatal(err)
	}

	w := do(r, http.MethodGet, "/schedules", "")
	var infos []types.ScheduleInfo
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "read" || infos[0].Program != path || infos[0].NextRun.IsZero() {
		t.Fatalf("schedules = %+v", infos)
	}

	w = do(r, http.MethodPost, "/schedules/read/skip", "")
	var skipped types.ScheduleInfo
	if err := json.Unmarshal(w.Body.Bytes(), &skipped); err != nil {
		t.Fatal(err)
	}
	if !skipped.NextRun.After(infos[0].NextRun) {
		t.Errorf("skip did not advance: %v -> %v", infos[0].NextRun, skipped.NextRun)
	}

	w = do(r, http.MethodPost, "/schedules/nope/skip", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}

	// The task itself runs the program through the locks and the recorder.
	if err := scheduledTask(context.Background(), config.Schedule{Name: "read", Program: path})(); err != nil {
		t.Fatal(err)
	}
	if runs := runRecorder.GetRecords(); len(runs) != 1 || runs[0].Code != status.OK {
		t.Fatalf("runs = %+v", runs)
	}

	release, _ := locks.tryLock("smu1")
	defer release()
	if err := scheduledPreCheck(config.Schedule{Name: "read", Program: path})(); err == nil {
		t.Error("precheck passed with the channel busy")
	}
}

func TestApplyRejectsBadCron(t *testing.T) {
	defer schedules.stop()
	err := schedules.apply(context.Background(), []config.Schedule{{Name: "bad", Cron: "sometimes", Program: "x.yaml"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEventStream(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	for hub.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}

	go func() {
		_ = do(r, http.MethodPost, "/monitor", monitorBody)
	}()

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "event:") {
			continue
		}
		name := strings.TrimPrefix(line, "event:")
		names = append(names, name)
		if name == events.RunFinished {
			break
		}
	}

	want := []string{events.RunStarted, events.RunFinished}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", names, want)
	}
}
