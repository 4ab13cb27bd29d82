package types

import (
	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
)

// ChannelInfo describes a configured channel as the daemon sees it.
type ChannelInfo struct {
	Name     string            `json:"name"`
	Role     program.Role      `json:"role,omitempty"`
	Limits   instrument.Limits `json:"limits"`
	Inverted bool              `json:"inverted"`
	// Busy is set while a program owns the channel.
	Busy bool `json:"busy"`
}
