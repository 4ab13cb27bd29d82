package program

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charlie0129/smuseq/pkg/status"
)

const yamlMonitor = `
version: 1
kind: monitor
monitor:
  channel: smu1
  bias: 0.2
  interval: 100ms
  settle: 10ms
  integration: 1ms
  sampleLimit: 10
  currentLimit: 0.01
  capacity: 256
`

const tomlSweep = `
version = 1
kind = "sweep"

[sweep]
highChannel = "smu1"
lowChannel = "smu2"
peak = 1.5
points = 101
stepTime = "2ms"
hold = "5ms"
measure = "low"
route = true
`

const jsonPulse = `{
  "version": 1,
  "kind": "pulse",
  "pulse": {
    "channel": "pmu1",
    "amplitude": 2,
    "width": "500ns",
    "preHold": "1us",
    "postHold": "1us"
  }
}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		check  func(t *testing.T, p *Program)
	}{
		{
			name:   "yaml monitor",
			data:   yamlMonitor,
			format: FormatYAML,
			check: func(t *testing.T, p *Program) {
				m := p.Monitor
				if m == nil || m.Channel != "smu1" || m.Bias != 0.2 || m.Capacity != 256 || m.SampleLimit != 10 {
					t.Fatalf("unexpected monitor %+v", m)
				}
				if m.Interval.D() != 100*time.Millisecond || m.Settle.D() != 10*time.Millisecond {
					t.Errorf("durations not decoded: %v %v", m.Interval, m.Settle)
				}
			},
		},
		{
			name:   "toml sweep",
			data:   tomlSweep,
			format: FormatTOML,
			check: func(t *testing.T, p *Program) {
				s := p.Sweep
				if s == nil || s.Points != 101 || s.Measure != RoleLow || !s.Route {
					t.Fatalf("unexpected sweep %+v", s)
				}
				if s.StepTime.D() != 2*time.Millisecond || s.Hold.D() != 5*time.Millisecond {
					t.Errorf("durations not decoded: %v %v", s.StepTime, s.Hold)
				}
			},
		},
		{
			name:   "json pulse",
			data:   jsonPulse,
			format: FormatJSON,
			check: func(t *testing.T, p *Program) {
				if p.Pulse == nil || p.Pulse.Width.D() != 500*time.Nanosecond || p.Pulse.Amplitude != 2 {
					t.Fatalf("unexpected pulse %+v", p.Pulse)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"yaml", yamlMonitor + "  color: red\n", FormatYAML},
		{"toml", tomlSweep + "color = \"red\"\n", FormatTOML},
		{"json", `{"version":1,"kind":"pulse","pulse":{"channel":"p","colour":1}}`, FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.format)
			if !status.Is(err, status.CodeInvalidProgram) {
				t.Fatalf("expected invalid program, got %v", err)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		program Program
		wantErr bool
	}{
		{"monitor ok", ForMonitor(Monitor{Channel: "a"}), false},
		{"missing channel", ForPulse(Pulse{}), true},
		{"sweep missing low side", ForSweep(Sweep{HighChannel: "a"}), true},
		{"no version", Program{Kind: KindMonitor, Monitor: &Monitor{Channel: "a"}}, true},
		{"two variants", Program{Version: Version, Kind: KindMonitor, Monitor: &Monitor{Channel: "a"}, Pulse: &Pulse{Channel: "a"}}, true},
		{"kind mismatch", Program{Version: Version, Kind: KindSweep, Monitor: &Monitor{Channel: "a"}}, true},
		{"unknown kind", Program{Version: Version, Kind: "ramp", Monitor: &Monitor{Channel: "a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.program.Check()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yml")
	if err := os.WriteFile(path, []byte(yamlMonitor), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if p.Kind != KindMonitor {
		t.Errorf("Kind = %s", p.Kind)
	}

	if _, err := LoadFile(filepath.Join(dir, "program.ini")); err == nil {
		t.Errorf("expected unsupported extension error")
	}
}
