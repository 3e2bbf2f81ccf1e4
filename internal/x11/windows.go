package x11

import (
	"fmt"
	"math"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// Window type and state atoms used for surfaces.
const (
	TypeNormal  = "_NET_WM_WINDOW_TYPE_NORMAL"
	TypeDock    = "_NET_WM_WINDOW_TYPE_DOCK"
	TypeDesktop = "_NET_WM_WINDOW_TYPE_DESKTOP"

	StateAbove = "_NET_WM_STATE_ABOVE"
	StateBelow = "_NET_WM_STATE_BELOW"
)

const allDesktops = 0xFFFFFFFF

// _NET_WM_STATE client message actions.
const (
	stateRemove = 0
	stateAdd    = 1
)

// CreateWindow creates an unmapped top-level window. Zero sizes are
// raised to one pixel, the smallest X accepts.
func (c *Connection) CreateWindow(x, y, width, height int) (*xwindow.Window, error) {
	win, err := xwindow.Generate(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}
	err = win.CreateChecked(c.Root, x, y, max(width, 1), max(height, 1),
		xproto.CwBackPixel|xproto.CwEventMask,
		c.XUtil.Screen().BlackPixel,
		xproto.EventMaskStructureNotify)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	return win, nil
}

// SetTitle sets both the ICCCM and EWMH window names.
func (c *Connection) SetTitle(win xproto.Window, title string) error {
	if err := icccm.WmNameSet(c.XUtil, win, title); err != nil {
		return fmt.Errorf("failed to set WM_NAME: %w", err)
	}
	if err := ewmh.WmNameSet(c.XUtil, win, title); err != nil {
		return fmt.Errorf("failed to set _NET_WM_NAME: %w", err)
	}
	return nil
}

// SetClass sets WM_CLASS from an application id.
func (c *Connection) SetClass(win xproto.Window, appID string) error {
	return icccm.WmClassSet(c.XUtil, win, &icccm.WmClass{Instance: appID, Class: appID})
}

// SetSizeHints publishes min and max sizes through WM_NORMAL_HINTS. An
// infinite max is left out.
func (c *Connection) SetSizeHints(win xproto.Window, minW, minH, maxW, maxH float64) error {
	hints := &icccm.NormalHints{
		Flags:     icccm.SizeHintPMinSize,
		MinWidth:  uint(math.Ceil(minW)),
		MinHeight: uint(math.Ceil(minH)),
	}
	if !math.IsInf(maxW, 1) && !math.IsInf(maxH, 1) {
		hints.Flags |= icccm.SizeHintPMaxSize
		hints.MaxWidth = uint(math.Floor(maxW))
		hints.MaxHeight = uint(math.Floor(maxH))
	}
	return icccm.WmNormalHintsSet(c.XUtil, win, hints)
}

// SetWindowType sets _NET_WM_WINDOW_TYPE.
func (c *Connection) SetWindowType(win xproto.Window, typ string) error {
	return ewmh.WmWindowTypeSet(c.XUtil, win, []string{typ})
}

// SetStates replaces _NET_WM_STATE. Before mapping this is how a window
// asks for its initial state.
func (c *Connection) SetStates(win xproto.Window, states ...string) error {
	return ewmh.WmStateSet(c.XUtil, win, states)
}

// RequestState asks the window manager to add or remove a state on a
// mapped window.
func (c *Connection) RequestState(win xproto.Window, add bool, state string) error {
	action := stateRemove
	if add {
		action = stateAdd
	}
	return ewmh.WmStateReq(c.XUtil, win, action, state)
}

// SetSticky shows win on every virtual desktop.
func (c *Connection) SetSticky(win xproto.Window) error {
	return ewmh.WmDesktopSet(c.XUtil, win, allDesktops)
}

// OnDeleteRequest opts win into WM_DELETE_WINDOW and calls fn whenever the
// window manager asks it to close. The window stays open.
func (c *Connection) OnDeleteRequest(win xproto.Window, fn func()) error {
	if err := icccm.WmProtocolsSet(c.XUtil, win, []string{"WM_DELETE_WINDOW"}); err != nil {
		return fmt.Errorf("failed to set WM_PROTOCOLS: %w", err)
	}
	protocols, err := xprop.Atm(c.XUtil, "WM_PROTOCOLS")
	if err != nil {
		return err
	}
	deleteWindow, err := xprop.Atm(c.XUtil, "WM_DELETE_WINDOW")
	if err != nil {
		return err
	}

	xevent.ClientMessageFun(func(xu *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
		if ev.Type != protocols || ev.Format != 32 {
			return
		}
		if xproto.Atom(ev.Data.Data32[0]) == deleteWindow {
			fn()
		}
	}).Connect(c.XUtil, win)
	return nil
}

// OnDestroyed calls fn once win has been destroyed by anyone.
func (c *Connection) OnDestroyed(win xproto.Window, fn func()) {
	xevent.DestroyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
		fn()
	}).Connect(c.XUtil, win)
}

// MoveResizeWindow moves and resizes a window through the window manager,
// falling back to a direct configure request.
func (c *Connection) MoveResizeWindow(win *xwindow.Window, x, y, width, height int) {
	width, height = max(width, 1), max(height, 1)
	if err := ewmh.MoveresizeWindow(c.XUtil, win.Id, x, y, width, height); err != nil {
		win.MoveResize(x, y, width, height)
	}
}

// DestroyWindow detaches event handlers from win and destroys it.
func (c *Connection) DestroyWindow(win *xwindow.Window) {
	xevent.Detach(c.XUtil, win.Id)
	win.Destroy()
}

// Exists reports whether win is still known to the server.
func (c *Connection) Exists(win xproto.Window) bool {
	_, err := xproto.GetWindowAttributes(c.XUtil.Conn(), win).Reply()
	return err == nil
}
