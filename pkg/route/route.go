// Package route resolves logical channel names and owns the shared auxiliary
// routing path.
//
// The routing path is process-wide state: only one Lease may hold it
// switched in at a time. A Lease switches every leased channel back to the
// source-measure pathway on Release, which is safe to call more than once and
// is meant to be deferred right after Acquire.
package route

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
)

// Binding asks for a logical channel name in a role. Role is empty for
// single-channel programs.
type Binding struct {
	Role program.Role
	Name string
}

// Resolved is a binding with its hardware handle.
type Resolved struct {
	Binding
	Channel instrument.Channel
}

// Controller resolves channels on one instrument and serializes use of the
// routing path.
type Controller struct {
	inst instrument.Instrument
	// lease is a one-slot semaphore guarding the routing path.
	lease chan struct{}
}

// NewController returns a controller for inst.
func NewController(inst instrument.Instrument) *Controller {
	return &Controller{
		inst:  inst,
		lease: make(chan struct{}, 1),
	}
}

// Instrument returns the controlled instrument.
func (c *Controller) Instrument() instrument.Instrument {
	return c.inst
}

func notConfiguredCode(role program.Role) status.Code {
	switch role {
	case program.RoleHigh:
		return status.CodeHighChannelNotConfigured
	case program.RoleLow:
		return status.CodeLowChannelNotConfigured
	default:
		return status.CodeChannelNotConfigured
	}
}

// Resolve looks every binding up without applying any stimulus. The first
// unknown name fails with a code naming its role.
func (c *Controller) Resolve(bindings ...Binding) ([]Resolved, error) {
	out := make([]Resolved, 0, len(bindings))
	for _, b := range bindings {
		ch, err := c.inst.Lookup(b.Name)
		if err != nil {
			code := status.CodeInternal
			if errors.Is(err, instrument.ErrUnknownChannel) {
				code = notConfiguredCode(b.Role)
			}
			return nil, status.Wrap(code, err, "failed to resolve channel %q", b.Name)
		}
		out = append(out, Resolved{Binding: b, Channel: ch})
	}
	return out, nil
}

// Acquire takes the routing lease and switches every channel to path. It
// waits for another holder to release, honouring ctx. If switching any
// channel fails, the channels already switched are switched back and the
// lease is released before the error is returned.
func (c *Controller) Acquire(ctx context.Context, path instrument.Path, channels ...instrument.Channel) (*Lease, error) {
	select {
	case c.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, status.Wrap(status.CodeCancelled, ctx.Err(), "waiting for routing path")
	}

	l := &Lease{c: c, path: path}
	logrus.WithFields(logrus.Fields{
		"path":     path,
		"channels": names(channels),
	}).Debug("routing lease acquired")

	for _, ch := range channels {
		if err := c.inst.SetRoute(ch, path); err != nil {
			rerr := l.Release()
			if rerr != nil {
				logrus.WithError(rerr).Error("failed to restore routing after a failed switch-in")
			}
			return nil, status.Wrap(status.CodeRouteFailed, pkgerrors.Wrapf(err, "switch %s to %s", ch.Name(), path), "failed to switch routing path in")
		}
		l.switched = append(l.switched, ch)
	}
	return l, nil
}

// Lease is a held routing path.
type Lease struct {
	c        *Controller
	path     instrument.Path
	switched []instrument.Channel
	once     sync.Once
	err      error
}

// Path returns the leased routing position.
func (l *Lease) Path() instrument.Path {
	return l.path
}

// Release switches every switched-in channel back to the source-measure
// pathway and frees the lease. Every channel is attempted even if an earlier
// one fails. Only the first call does any work.
func (l *Lease) Release() error {
	l.once.Do(func() {
		var errs []error
		for _, ch := range l.switched {
			if err := l.c.inst.SetRoute(ch, instrument.PathSMU); err != nil {
				logrus.WithError(err).WithField("channel", ch.Name()).Error("failed to switch routing path out")
				errs = append(errs, pkgerrors.Wrapf(err, "switch %s back to %s", ch.Name(), instrument.PathSMU))
			}
		}
		<-l.c.lease

		logrus.WithField("channels", names(l.switched)).Debug("routing lease released")
		if len(errs) > 0 {
			l.err = status.Wrap(status.CodeRouteFailed, errors.Join(errs...), "failed to switch routing path out")
		}
	})
	return l.err
}

func names(channels []instrument.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.Name())
	}
	return out
}
