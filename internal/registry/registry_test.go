package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

func TestDispatchReachesOwner(t *testing.T) {
	r := New(nil)
	var closed []protocol.SurfaceID
	r.Bind(3, HandlerFunc(func() { closed = append(closed, 3) }))
	r.Bind(1, HandlerFunc(func() { closed = append(closed, 1) }))

	require.True(t, r.DispatchClose(3))
	require.Equal(t, []protocol.SurfaceID{3}, closed)
	require.Equal(t, []protocol.SurfaceID{1, 3}, r.IDs())
	require.Equal(t, 2, r.Len())
}

func TestDispatchUnknownIsDropped(t *testing.T) {
	r := New(nil)
	called := false
	r.Bind(7, HandlerFunc(func() { called = true }))
	require.True(t, r.Unbind(7))

	require.False(t, r.DispatchClose(7))
	require.False(t, r.DispatchClose(42))
	require.False(t, called)
	require.False(t, r.Unbind(7))
}

func TestDoubleBindPanics(t *testing.T) {
	r := New(nil)
	r.Bind(1, HandlerFunc(func() {}))
	require.Panics(t, func() { r.Bind(1, HandlerFunc(func() {})) })

	r.Unbind(1)
	require.NotPanics(t, func() { r.Bind(1, HandlerFunc(func() {})) })
}
