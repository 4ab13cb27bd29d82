package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "smuseq.json"))
	if err != nil {
		t.Fatal(err)
	}
	if f.LoadOhms() != 1000 || f.SeriesOhms() != 10 || f.AllowNonRootAccess() {
		t.Errorf("defaults not applied: %v", f.LogrusFields())
	}
	chs := f.Channels()
	if len(chs) != 2 || chs[0].Name != "smu1" || chs[1].Name != "smu2" {
		t.Fatalf("channels = %+v", chs)
	}
	if chs[0].Inverted || !chs[1].Inverted {
		t.Errorf("polarity = %v %v", chs[0].Inverted, chs[1].Inverted)
	}
	if chs[0].Limits != instrument.DefaultLimits() {
		t.Errorf("limits = %+v", chs[0].Limits)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smuseq.json")
	content := `{
  "channels": [
    {"name": "pmu1", "role": "high", "maxCurrent": 0.002, "slewPerVolt": "1ms"},
    {"name": "pmu2", "role": "low", "inverted": true}
  ],
  "loadOhms": 250,
  "allowNonRootAccess": true,
  "schedules": [{"name": "read", "cron": "*/5 * * * *", "program": "/etc/smuseq/read.yaml"}]
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.LoadOhms() != 250 || f.SeriesOhms() != 10 || !f.AllowNonRootAccess() {
		t.Errorf("fields = %v", f.LogrusFields())
	}
	chs := f.Channels()
	if len(chs) != 2 {
		t.Fatalf("channels = %+v", chs)
	}
	if chs[0].Limits.MaxCurrent != 0.002 || chs[0].Limits.SlewPerVolt != time.Millisecond {
		t.Errorf("limits not read: %+v", chs[0].Limits)
	}
	if chs[0].Limits.MaxVoltage != instrument.DefaultMaxVoltage {
		t.Errorf("unset limit not defaulted: %+v", chs[0].Limits)
	}
	if chs[1].Role != program.RoleLow || !chs[1].Inverted {
		t.Errorf("low channel = %+v", chs[1])
	}
	if sc := f.Schedules(); len(sc) != 1 || sc[0].Name != "read" || sc[0].Cron != "*/5 * * * *" {
		t.Errorf("schedules = %+v", sc)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{"channels": [`},
		{"unnamed channel", `{"channels": [{"role": "high"}]}`},
		{"duplicate channel", `{"channels": [{"name": "a"}, {"name": "a"}]}`},
		{"bad role", `{"channels": [{"name": "a", "role": "middle"}]}`},
		{"negative load", `{"loadOhms": -1}`},
		{"unnamed schedule", `{"schedules": [{"cron": "@hourly", "program": "read.yaml"}]}`},
		{"schedule without program", `{"schedules": [{"name": "read", "cron": "@hourly"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "smuseq.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFile(path); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smuseq.json")
	f := NewFileFromConfig(nil, path)
	f.SetLoadOhms(470)
	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	g, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if g.LoadOhms() != 470 || !g.AllowNonRootAccess() {
		t.Errorf("saved values lost: %v", g.LogrusFields())
	}

	// Setters on a config built without a raw record must not leak into
	// the defaults.
	if NewFileFromConfig(nil, path).LoadOhms() != 1000 {
		t.Errorf("defaults were modified")
	}
}

func TestNewSim(t *testing.T) {
	raw, err := NewRawFileConfigFromConfig(NewFileFromConfig(nil, ""))
	if err != nil {
		t.Fatal(err)
	}
	raw.Channels[0].MaxVoltage = nil
	sim := NewSim(NewFileFromConfig(raw, ""))

	if got := sim.Channels(); len(got) != 2 || got[0] != "smu1" || got[1] != "smu2" {
		t.Fatalf("channels = %v", got)
	}
	ch, err := sim.Lookup("smu1")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Limits() != instrument.DefaultLimits() {
		t.Errorf("limits = %+v", ch.Limits())
	}
	if sim.Load != 1000 || sim.Series != 10 {
		t.Errorf("load=%v series=%v", sim.Load, sim.Series)
	}
}
