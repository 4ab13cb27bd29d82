package config

import (
	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
)

// Channel is a fully resolved channel entry.
type Channel struct {
	Name     string            `json:"name"`
	Role     program.Role      `json:"role,omitempty"`
	Limits   instrument.Limits `json:"limits"`
	Inverted bool              `json:"inverted"`
}

// Schedule runs a program file on a cron expression.
type Schedule struct {
	Name    string `json:"name"`
	Cron    string `json:"cron"`
	Program string `json:"program"`
}

// Config describes the measurement fixture: which channels exist, their
// safety limits, and the device the simulated instrument models.
type Config interface {
	Channels() []Channel
	LoadOhms() float64
	SeriesOhms() float64
	AllowNonRootAccess() bool
	Schedules() []Schedule

	SetLoadOhms(float64)
	SetSeriesOhms(float64)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
