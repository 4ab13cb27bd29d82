package config

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/instrument"
)

// NewSim builds the simulated instrument the configuration describes.
func NewSim(c Config) *instrument.Sim {
	channels := c.Channels()
	cfgs := make([]instrument.SimChannelConfig, 0, len(channels))
	for _, ch := range channels {
		cfgs = append(cfgs, instrument.SimChannelConfig{
			Name:     ch.Name,
			Limits:   ch.Limits,
			Inverted: ch.Inverted,
		})
	}

	logrus.WithFields(logrus.Fields{
		"channels":   len(cfgs),
		"loadOhms":   c.LoadOhms(),
		"seriesOhms": c.SeriesOhms(),
	}).Debug("building simulated instrument")

	return instrument.NewSim(c.LoadOhms(), c.SeriesOhms(), cfgs...)
}
