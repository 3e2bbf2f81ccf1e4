package protocol

import (
	"fmt"

	"github.com/1broseidon/surfacebridge/internal/binary"
)

// LayerCreate is the request on <ns>/layer/create.
//
//	u8 layer, u8 anchor, utf8 namespace
//
// Response: SurfaceCreated.
type LayerCreate struct {
	Layer     Layer
	Anchor    Anchor
	Namespace string
}

func (m LayerCreate) Encode(w *binary.Writer) {
	w.U8(uint8(m.Layer))
	w.U8(uint8(m.Anchor))
	w.UTF8(m.Namespace)
}

func DecodeLayerCreate(r *binary.Reader) (LayerCreate, error) {
	m := LayerCreate{
		Layer:     Layer(r.U8()),
		Anchor:    Anchor(r.U8()),
		Namespace: r.UTF8(),
	}
	if err := r.AssertFinished(); err != nil {
		return LayerCreate{}, err
	}
	if !m.Layer.Valid() {
		return LayerCreate{}, fmt.Errorf("layer create: invalid layer %d", m.Layer)
	}
	if !m.Anchor.Valid() {
		return LayerCreate{}, fmt.Errorf("layer create: invalid anchor 0x%x", uint8(m.Anchor))
	}
	return m, nil
}

// LayerUpdate is the request on <ns>/layer/update.
//
//	i64 id, u32 width, u32 height, u8 layer, u8 anchor
//
// Response: empty.
type LayerUpdate struct {
	ID     SurfaceID
	Width  uint32
	Height uint32
	Layer  Layer
	Anchor Anchor
}

func (m LayerUpdate) Encode(w *binary.Writer) {
	w.I64(int64(m.ID))
	w.U32(m.Width)
	w.U32(m.Height)
	w.U8(uint8(m.Layer))
	w.U8(uint8(m.Anchor))
}

func DecodeLayerUpdate(r *binary.Reader) (LayerUpdate, error) {
	m := LayerUpdate{
		ID:     SurfaceID(r.I64()),
		Width:  r.U32(),
		Height: r.U32(),
		Layer:  Layer(r.U8()),
		Anchor: Anchor(r.U8()),
	}
	if err := r.AssertFinished(); err != nil {
		return LayerUpdate{}, err
	}
	if !m.Layer.Valid() {
		return LayerUpdate{}, fmt.Errorf("layer update: invalid layer %d", m.Layer)
	}
	if !m.Anchor.Valid() {
		return LayerUpdate{}, fmt.Errorf("layer update: invalid anchor 0x%x", uint8(m.Anchor))
	}
	return m, nil
}

// ToplevelCreate is the request on <ns>/toplevel/create.
//
//	utf8 title, utf8 app-id
//
// Response: SurfaceCreated.
type ToplevelCreate struct {
	Title string
	AppID string
}

func (m ToplevelCreate) Encode(w *binary.Writer) {
	w.UTF8(m.Title)
	w.UTF8(m.AppID)
}

func DecodeToplevelCreate(r *binary.Reader) (ToplevelCreate, error) {
	m := ToplevelCreate{
		Title: r.UTF8(),
		AppID: r.UTF8(),
	}
	if err := r.AssertFinished(); err != nil {
		return ToplevelCreate{}, err
	}
	return m, nil
}

// ToplevelUpdate is the request on <ns>/toplevel/update.
//
//	i64 id, utf8 title, utf8 app-id
//
// Response: empty.
type ToplevelUpdate struct {
	ID    SurfaceID
	Title string
	AppID string
}

func (m ToplevelUpdate) Encode(w *binary.Writer) {
	w.I64(int64(m.ID))
	w.UTF8(m.Title)
	w.UTF8(m.AppID)
}

func DecodeToplevelUpdate(r *binary.Reader) (ToplevelUpdate, error) {
	m := ToplevelUpdate{
		ID:    SurfaceID(r.I64()),
		Title: r.UTF8(),
		AppID: r.UTF8(),
	}
	if err := r.AssertFinished(); err != nil {
		return ToplevelUpdate{}, err
	}
	return m, nil
}

// ToplevelUpdateConstraints is the request on <ns>/toplevel/update_constraints.
//
//	i64 id, f64 minW, f64 minH, f64 maxW, f64 maxH
//
// Response: empty. An unbounded maximum is sent as +Inf.
type ToplevelUpdateConstraints struct {
	ID          SurfaceID
	Constraints Constraints
}

func (m ToplevelUpdateConstraints) Encode(w *binary.Writer) {
	w.I64(int64(m.ID))
	w.F64(m.Constraints.MinWidth)
	w.F64(m.Constraints.MinHeight)
	w.F64(m.Constraints.MaxWidth)
	w.F64(m.Constraints.MaxHeight)
}

func DecodeToplevelUpdateConstraints(r *binary.Reader) (ToplevelUpdateConstraints, error) {
	m := ToplevelUpdateConstraints{ID: SurfaceID(r.I64())}
	m.Constraints.MinWidth = r.F64()
	m.Constraints.MinHeight = r.F64()
	m.Constraints.MaxWidth = r.F64()
	m.Constraints.MaxHeight = r.F64()
	if err := r.AssertFinished(); err != nil {
		return ToplevelUpdateConstraints{}, err
	}
	if err := m.Constraints.Validate(); err != nil {
		return ToplevelUpdateConstraints{}, err
	}
	return m, nil
}

// SurfaceRef carries a bare surface id. It is the request on
// <ns>/layer/remove and <ns>/toplevel/remove, the notification on
// <ns>/toplevel/close, and the response to both create calls.
//
//	i64 id
type SurfaceRef struct {
	ID SurfaceID
}

func (m SurfaceRef) Encode(w *binary.Writer) {
	w.I64(int64(m.ID))
}

func DecodeSurfaceRef(r *binary.Reader) (SurfaceRef, error) {
	m := SurfaceRef{ID: SurfaceID(r.I64())}
	if err := r.AssertFinished(); err != nil {
		return SurfaceRef{}, err
	}
	return m, nil
}

// Empty is the body of requests and responses that carry no fields. It is
// still decoded so that stray bytes surface as a framing error.
type Empty struct{}

func (Empty) Encode(*binary.Writer) {}

func DecodeEmpty(r *binary.Reader) error {
	return r.AssertFinished()
}

// SurfaceStatus describes one surface in a HostStatus reply.
type SurfaceStatus struct {
	ID    SurfaceID
	Kind  Kind
	Label string
}

// HostStatus is the response on <ns>/host/status.
//
//	u64 count, then count × (i64 id, u8 kind, utf8 label)
type HostStatus struct {
	Surfaces []SurfaceStatus
}

func (m HostStatus) Encode(w *binary.Writer) {
	w.U64(uint64(len(m.Surfaces)))
	for _, s := range m.Surfaces {
		w.I64(int64(s.ID))
		w.U8(uint8(s.Kind))
		w.UTF8(s.Label)
	}
}

func DecodeHostStatus(r *binary.Reader) (HostStatus, error) {
	n := r.U64()
	// Each entry needs at least 17 bytes, which bounds the allocation.
	if n > uint64(r.Remaining()/17) {
		r.Fail("read host status", fmt.Sprintf("%d entries cannot fit in %d bytes", n, r.Remaining()))
		n = 0
	}
	m := HostStatus{Surfaces: make([]SurfaceStatus, 0, n)}
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		m.Surfaces = append(m.Surfaces, SurfaceStatus{
			ID:    SurfaceID(r.I64()),
			Kind:  Kind(r.U8()),
			Label: r.UTF8(),
		})
	}
	if err := r.AssertFinished(); err != nil {
		return HostStatus{}, err
	}
	return m, nil
}
