package protocol

import (
	"fmt"
	"strings"
)

// DefaultNamespace prefixes every channel unless configured otherwise.
const DefaultNamespace = "surfacebridge"

// Channels holds the fully qualified channel names for one namespace.
type Channels struct {
	Namespace string

	LayerCreate string
	LayerUpdate string
	LayerRemove string

	ToplevelCreate            string
	ToplevelUpdate            string
	ToplevelUpdateConstraints string
	ToplevelRemove            string
	ToplevelClose             string

	Shutdown   string
	HostStatus string
}

// NewChannels derives the channel names under ns.
func NewChannels(ns string) Channels {
	return Channels{
		Namespace: ns,

		LayerCreate: ns + "/layer/create",
		LayerUpdate: ns + "/layer/update",
		LayerRemove: ns + "/layer/remove",

		ToplevelCreate:            ns + "/toplevel/create",
		ToplevelUpdate:            ns + "/toplevel/update",
		ToplevelUpdateConstraints: ns + "/toplevel/update_constraints",
		ToplevelRemove:            ns + "/toplevel/remove",
		ToplevelClose:             ns + "/toplevel/close",

		Shutdown:   ns + "/graceful_shutdown",
		HostStatus: ns + "/host/status",
	}
}

// ValidateNamespace rejects namespaces that would produce ambiguous channels.
func ValidateNamespace(ns string) error {
	if strings.TrimSpace(ns) == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if strings.Contains(ns, "/") {
		return fmt.Errorf("namespace %q must not contain '/'", ns)
	}
	return nil
}
