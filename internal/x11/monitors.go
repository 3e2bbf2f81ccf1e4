package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// GetMonitors retrieves all active monitors using XRandR. Without RandR
// the root window is reported as a single monitor.
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return c.rootMonitor()
	}

	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Disabled CRTCs have no size or outputs.
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(c.XUtil.Conn(), info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}

		monitors = append(monitors, Monitor{
			ID:     i,
			Name:   name,
			X:      int(info.X),
			Y:      int(info.Y),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}
	if len(monitors) == 0 {
		return c.rootMonitor()
	}
	return monitors, nil
}

func (c *Connection) rootMonitor() ([]Monitor, error) {
	w, h, err := c.RootGeometry()
	if err != nil {
		return nil, err
	}
	return []Monitor{{Name: "root", Width: w, Height: h}}, nil
}

// PrimaryMonitor returns the monitor under the pointer, or the first one.
// Layer surfaces are placed against its full bounds.
func (c *Connection) PrimaryMonitor() (Monitor, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return Monitor{}, err
	}
	if mon := findMonitorForPointer(c, monitors); mon != nil {
		return *mon, nil
	}
	return monitors[0], nil
}

// WorkArea returns mon clipped to the EWMH work area of the current
// desktop, which excludes panels and docks.
func (c *Connection) WorkArea(mon Monitor) Monitor {
	workArea, err := ewmh.WorkareaGet(c.XUtil)
	if err != nil || len(workArea) == 0 {
		return mon
	}
	idx := 0
	if cur, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil && int(cur) < len(workArea) {
		idx = int(cur)
	}
	wa := workArea[idx]

	x1 := max(mon.X, int(wa.X))
	y1 := max(mon.Y, int(wa.Y))
	x2 := min(mon.X+mon.Width, int(wa.X)+int(wa.Width))
	y2 := min(mon.Y+mon.Height, int(wa.Y)+int(wa.Height))
	if x2 <= x1 || y2 <= y1 {
		return mon
	}
	mon.X, mon.Y = x1, y1
	mon.Width, mon.Height = x2-x1, y2-y1
	return mon
}

func findMonitorForPointer(c *Connection, monitors []Monitor) *Monitor {
	pointer, err := xproto.QueryPointer(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil
	}

	x := int(pointer.RootX)
	y := int(pointer.RootY)

	for i := range monitors {
		mon := &monitors[i]
		if x >= mon.X && x < mon.X+mon.Width && y >= mon.Y && y < mon.Y+mon.Height {
			return mon
		}
	}
	return nil
}
