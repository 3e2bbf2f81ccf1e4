package shell

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

// ToplevelDesc describes an application window. A nil Constraints leaves
// the size bounds to layout negotiation.
type ToplevelDesc struct {
	Title       string
	AppID       string
	Constraints *protocol.Constraints
}

func (d ToplevelDesc) validate() error {
	if d.Constraints == nil {
		return nil
	}
	return d.Constraints.Validate()
}

// own returns d with its constraints copied, so later writes through the
// caller's pointer cannot alter what the lifecycle has recorded.
func (d ToplevelDesc) own() ToplevelDesc {
	if d.Constraints != nil {
		c := *d.Constraints
		d.Constraints = &c
	}
	return d
}

func constraintsEqual(a, b *protocol.Constraints) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ToplevelSurface is a managed window. Besides the lifecycle it tracks
// the constraints the host holds and the result of layout negotiation.
type ToplevelSurface struct {
	*surface.Lifecycle[ToplevelDesc]

	client *Client
	child  Layouter
	onErr  func(error)
	logger *zap.Logger

	// sent is the constraint set the host last accepted.
	sent protocol.Constraints
	// negotiated holds the min and max discovered by layout. stale is set
	// when sending them failed, so the next layout cycle sends them again.
	negotiated protocol.Constraints
	stale      bool
	maxLocked  bool
	size       Size
}

// Attach validates desc and issues the create call.
func (s *ToplevelSurface) Attach(desc ToplevelDesc) error {
	if err := desc.validate(); err != nil {
		return err
	}
	s.Lifecycle.Attach(desc.own())
	return nil
}

// Update records desc as the desired description. The constraints are
// copied, so a caller may reuse and modify the value it points to.
func (s *ToplevelSurface) Update(desc ToplevelDesc) error {
	return s.Lifecycle.Update(desc.own())
}

// Desired returns a copy of the most recent accepted description.
func (s *ToplevelSurface) Desired() ToplevelDesc {
	return s.Lifecycle.Desired().own()
}

// Constraints returns the constraint set the host last accepted.
func (s *ToplevelSurface) Constraints() protocol.Constraints { return s.sent }

// sendConstraints sends c and records it once the host accepts it. Nothing
// is sent for a surface that is no longer bound.
func (s *ToplevelSurface) sendConstraints(c protocol.Constraints, done func(error)) {
	id, ok := s.ID()
	if !ok {
		done(nil)
		return
	}
	msg := protocol.ToplevelUpdateConstraints{ID: id, Constraints: c}
	s.client.goEmpty(s.client.channels.ToplevelUpdateConstraints, msg.Encode, func(err error) {
		if err == nil {
			s.sent = c
		}
		done(err)
	})
}

func (s *ToplevelSurface) sendNegotiated() {
	s.stale = false
	s.sendConstraints(s.negotiated, func(err error) {
		if err != nil {
			s.stale = true
		}
		s.reportErr(err)
	})
}

func (s *ToplevelSurface) reportErr(err error) {
	if err == nil {
		return
	}
	s.logger.Error("constraint update failed", zap.Error(err))
	if s.onErr != nil {
		s.onErr(fmt.Errorf("update toplevel constraints: %w", err))
	}
}

type toplevelRemote struct {
	s *ToplevelSurface
}

func (r *toplevelRemote) Kind() string { return protocol.KindToplevel.String() }

func (r *toplevelRemote) CreateRemote(d ToplevelDesc, done func(protocol.SurfaceID, error)) {
	c := r.s.client
	c.goCreate(c.channels.ToplevelCreate, protocol.ToplevelCreate{Title: d.Title, AppID: d.AppID}.Encode, done)
}

// UpdateRemote sends the title and app id only if either changed, then the
// constraints only if the set the host should hold differs from the one it
// holds. Dropping explicit constraints restores the negotiated ones.
func (r *toplevelRemote) UpdateRemote(id protocol.SurfaceID, prev, next ToplevelDesc, done func(error)) {
	s := r.s
	c := s.client

	constraints := func(err error) {
		if err != nil {
			done(err)
			return
		}
		// The surface may have been disposed while the title was in flight.
		if _, bound := s.ID(); !bound {
			done(nil)
			return
		}
		target := s.negotiated
		if next.Constraints != nil {
			target = *next.Constraints
		}
		if constraintsEqual(prev.Constraints, next.Constraints) || target == s.sent {
			done(nil)
			return
		}
		s.sendConstraints(target, done)
	}

	if prev.Title == next.Title && prev.AppID == next.AppID {
		constraints(nil)
		return
	}
	msg := protocol.ToplevelUpdate{ID: id, Title: next.Title, AppID: next.AppID}
	c.goEmpty(c.channels.ToplevelUpdate, msg.Encode, constraints)
}

func (r *toplevelRemote) RemoveRemote(id protocol.SurfaceID, done func(error)) {
	c := r.s.client
	c.goEmpty(c.channels.ToplevelRemove, protocol.SurfaceRef{ID: id}.Encode, done)
}

func (r *toplevelRemote) Diff(prev, next ToplevelDesc) (bool, error) {
	if err := next.validate(); err != nil {
		return false, err
	}
	return prev.Title != next.Title || prev.AppID != next.AppID || !constraintsEqual(prev.Constraints, next.Constraints), nil
}

// Baseline is the created window, which has no explicit constraints.
func (r *toplevelRemote) Baseline(d ToplevelDesc) ToplevelDesc {
	d.Constraints = nil
	return d
}
