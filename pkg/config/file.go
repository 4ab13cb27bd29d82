package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Channels: []RawChannel{
			{Name: "smu1", Role: program.RoleHigh},
			// The low side terminal reads current with the opposite sign.
			{Name: "smu2", Role: program.RoleLow, Inverted: ptr.To(true)},
		},
		LoadOhms:           ptr.To(1000.0),
		SeriesOhms:         ptr.To(10.0),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		// Unset fields fall back to defaultFileConfig.
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	// Channels replaces the default channel list when set.
	Channels           []RawChannel `json:"channels,omitempty"`
	LoadOhms           *float64     `json:"loadOhms,omitempty"`
	SeriesOhms         *float64     `json:"seriesOhms,omitempty"`
	AllowNonRootAccess *bool        `json:"allowNonRootAccess,omitempty"`
	Schedules          []Schedule   `json:"schedules,omitempty"`
}

// RawChannel is a channel entry as written in the file. Unset limits take
// the instrument defaults.
type RawChannel struct {
	Name             string            `json:"name"`
	Role             program.Role      `json:"role,omitempty"`
	MaxVoltage       *float64          `json:"maxVoltage,omitempty"`
	MaxCurrent       *float64          `json:"maxCurrent,omitempty"`
	SafeCurrentLimit *float64          `json:"safeCurrentLimit,omitempty"`
	SlewPerVolt      *program.Duration `json:"slewPerVolt,omitempty"`
	MinPulseWidth    *program.Duration `json:"minPulseWidth,omitempty"`
	Inverted         *bool             `json:"inverted,omitempty"`
}

func (rc RawChannel) resolve() Channel {
	def := instrument.DefaultLimits()
	return Channel{
		Name: rc.Name,
		Role: rc.Role,
		Limits: instrument.Limits{
			MaxVoltage:       ptr.Deref(rc.MaxVoltage, def.MaxVoltage),
			MaxCurrent:       ptr.Deref(rc.MaxCurrent, def.MaxCurrent),
			SafeCurrentLimit: ptr.Deref(rc.SafeCurrentLimit, def.SafeCurrentLimit),
			SlewPerVolt:      ptr.Deref(rc.SlewPerVolt, program.Duration(def.SlewPerVolt)).D(),
			MinPulseWidth:    ptr.Deref(rc.MinPulseWidth, program.Duration(def.MinPulseWidth)).D(),
		},
		Inverted: ptr.Deref(rc.Inverted, false),
	}
}

func (c *RawFileConfig) check() error {
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return pkgerrors.Errorf("channel %d has no name", i)
		}
		if seen[ch.Name] {
			return pkgerrors.Errorf("channel %q is listed twice", ch.Name)
		}
		seen[ch.Name] = true
		if ch.Role != "" && !ch.Role.Valid() {
			return pkgerrors.Errorf("channel %q has unknown role %q", ch.Name, ch.Role)
		}
	}
	names := make(map[string]bool, len(c.Schedules))
	for i, sc := range c.Schedules {
		if sc.Name == "" {
			return pkgerrors.Errorf("schedule %d has no name", i)
		}
		if names[sc.Name] {
			return pkgerrors.Errorf("schedule %q is listed twice", sc.Name)
		}
		names[sc.Name] = true
		if sc.Cron == "" || sc.Program == "" {
			return pkgerrors.Errorf("schedule %q needs both cron and program", sc.Name)
		}
	}
	for name, v := range map[string]*float64{"loadOhms": c.LoadOhms, "seriesOhms": c.SeriesOhms} {
		if v != nil && *v < 0 {
			return pkgerrors.Errorf("%s must not be negative, got %g", name, *v)
		}
	}
	return nil
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		LoadOhms:           ptr.To(c.LoadOhms()),
		SeriesOhms:         ptr.To(c.SeriesOhms()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		Schedules:          c.Schedules(),
	}
	for _, ch := range c.Channels() {
		rawConfig.Channels = append(rawConfig.Channels, RawChannel{
			Name:             ch.Name,
			Role:             ch.Role,
			MaxVoltage:       ptr.To(ch.Limits.MaxVoltage),
			MaxCurrent:       ptr.To(ch.Limits.MaxCurrent),
			SafeCurrentLimit: ptr.To(ch.Limits.SafeCurrentLimit),
			SlewPerVolt:      ptr.To(program.Duration(ch.Limits.SlewPerVolt)),
			MinPulseWidth:    ptr.To(program.Duration(ch.Limits.MinPulseWidth)),
			Inverted:         ptr.To(ch.Inverted),
		})
	}

	return rawConfig, nil
}

func (f *File) Channels() []Channel {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	raw := f.c.Channels
	if len(raw) == 0 {
		raw = defaultFileConfig.Channels
	}

	channels := make([]Channel, 0, len(raw))
	for _, rc := range raw {
		channels = append(channels, rc.resolve())
	}

	return channels
}

func (f *File) LoadOhms() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.LoadOhms, *defaultFileConfig.LoadOhms)
}

func (f *File) SeriesOhms() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.SeriesOhms, *defaultFileConfig.SeriesOhms)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) Schedules() []Schedule {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]Schedule(nil), f.c.Schedules...)
}

func (f *File) SetLoadOhms(ohms float64) {
	if f.c == nil {
		panic("config is nil")
	}

	if ohms < 0 {
		panic("load resistance must not be negative")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.LoadOhms = &ohms
}

func (f *File) SetSeriesOhms(ohms float64) {
	if f.c == nil {
		panic("config is nil")
	}

	if ohms < 0 {
		panic("series resistance must not be negative")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SeriesOhms = &ohms
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.check(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	names := []string{}
	for _, ch := range f.Channels() {
		names = append(names, ch.Name)
	}

	return logrus.Fields{
		"channels":           names,
		"loadOhms":           f.LoadOhms(),
		"seriesOhms":         f.SeriesOhms(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"schedules":          len(f.Schedules()),
	}
}
