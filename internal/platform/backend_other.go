//go:build !linux

package platform

import "fmt"

// NewX11Backend is only available on Linux.
func NewX11Backend(defaultWidth, defaultHeight int) (Backend, error) {
	return nil, fmt.Errorf("x11 backend is not supported on this platform")
}
