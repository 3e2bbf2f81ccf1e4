package mcp

// OpenToplevelInput is the input for the open_toplevel tool.
type OpenToplevelInput struct {
	Title     string  `json:"title" jsonschema:"Window title"`
	AppID     string  `json:"app_id,omitempty" jsonschema:"Application id used by the window manager to group windows"`
	Width     float64 `json:"width,omitempty" jsonschema:"Preferred content width in logical pixels (default: host default width)"`
	Height    float64 `json:"height,omitempty" jsonschema:"Preferred content height in logical pixels (default: host default height)"`
	MinWidth  float64 `json:"min_width,omitempty" jsonschema:"Narrowest width the content accepts"`
	MinHeight float64 `json:"min_height,omitempty" jsonschema:"Shortest height the content accepts"`
}

// OpenLayerInput is the input for the open_layer tool.
type OpenLayerInput struct {
	Namespace string   `json:"namespace" jsonschema:"Layer namespace, fixed for the life of the surface (e.g. panel, wallpaper)"`
	Layer     string   `json:"layer,omitempty" jsonschema:"Stacking layer: background, bottom, top or overlay (default: top)"`
	Anchor    []string `json:"anchor,omitempty" jsonschema:"Edges to anchor to: any of top, bottom, left, right"`
	Width     uint32   `json:"width,omitempty" jsonschema:"Width in pixels; 0 stretches between anchored left and right edges"`
	Height    uint32   `json:"height,omitempty" jsonschema:"Height in pixels; 0 stretches between anchored top and bottom edges"`
}

// OpenSurfaceOutput is returned by both open tools.
type OpenSurfaceOutput struct {
	Handle    string `json:"handle"`
	SurfaceID int64  `json:"surface_id"`
	Kind      string `json:"kind"`
}

// ConstraintsInput sets explicit size bounds on a toplevel.
type ConstraintsInput struct {
	MinWidth  float64  `json:"min_width"`
	MinHeight float64  `json:"min_height"`
	MaxWidth  *float64 `json:"max_width,omitempty" jsonschema:"Omit for no upper bound"`
	MaxHeight *float64 `json:"max_height,omitempty" jsonschema:"Omit for no upper bound"`
}

// UpdateSurfaceInput is the input for the update_surface tool. Fields that
// do not apply to the surface's kind are rejected.
type UpdateSurfaceInput struct {
	Handle string `json:"handle" jsonschema:"Handle returned by open_toplevel or open_layer"`

	Title       *string           `json:"title,omitempty" jsonschema:"Toplevel only: new title"`
	AppID       *string           `json:"app_id,omitempty" jsonschema:"Toplevel only: new app id"`
	Constraints *ConstraintsInput `json:"constraints,omitempty" jsonschema:"Toplevel only: explicit size bounds"`
	Negotiate   bool              `json:"negotiate,omitempty" jsonschema:"Toplevel only: drop explicit bounds and return to negotiated ones"`

	Layer  *string  `json:"layer,omitempty" jsonschema:"Layer only: new stacking layer"`
	Anchor []string `json:"anchor,omitempty" jsonschema:"Layer only: new anchor edges"`
	Width  *uint32  `json:"width,omitempty" jsonschema:"Layer only: new width"`
	Height *uint32  `json:"height,omitempty" jsonschema:"Layer only: new height"`
}

// UpdateSurfaceOutput is the output for the update_surface tool.
type UpdateSurfaceOutput struct {
	Handle string `json:"handle"`
	State  string `json:"state"`
}

// CloseSurfaceInput is the input for the close_surface tool.
type CloseSurfaceInput struct {
	Handle string `json:"handle" jsonschema:"Handle of the surface to dispose"`
}

// CloseSurfaceOutput is the output for the close_surface tool.
type CloseSurfaceOutput struct {
	Handle string `json:"handle"`
	State  string `json:"state"`
}

// ListSurfacesInput is the input for the list_surfaces tool.
type ListSurfacesInput struct{}

// SurfaceInfo describes one surface opened through this server.
type SurfaceInfo struct {
	Handle         string `json:"handle"`
	Kind           string `json:"kind"`
	SurfaceID      int64  `json:"surface_id,omitempty"`
	State          string `json:"state"`
	Label          string `json:"label"`
	CloseRequested bool   `json:"close_requested,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ListSurfacesOutput is the output for the list_surfaces tool.
type ListSurfacesOutput struct {
	Surfaces []SurfaceInfo `json:"surfaces"`
	// BoundIDs are the host ids the client routes close requests to.
	BoundIDs []int64 `json:"bound_ids"`
}
