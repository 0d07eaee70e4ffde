// Package action defines the protected operations a chat can request and
// the executor that runs them against the carrier API.
package action

// Kind is the tagged variant of a protected action. Adding a new protected
// operation means extending this enum and the executor's switch.
type Kind int

const (
	// SelfUsage checks data usage for the requester's own line.
	SelfUsage Kind = iota
	// SelfRefresh resets the network state of the requester's own line.
	SelfRefresh
	// OtherUsage checks usage for a target line entered by a manager.
	OtherUsage
	// OtherRefresh resets a target line entered by a manager.
	OtherRefresh
	// ManagerMenuUsage checks usage for the manager's own line via the
	// manager sub-menu. It still flows through the full verification path.
	ManagerMenuUsage
	// ManagerMenuRefresh resets the manager's own line via the sub-menu.
	ManagerMenuRefresh
)

func (k Kind) String() string {
	switch k {
	case SelfUsage:
		return "self_usage"
	case SelfRefresh:
		return "self_refresh"
	case OtherUsage:
		return "other_usage"
	case OtherRefresh:
		return "other_refresh"
	case ManagerMenuUsage:
		return "manager_usage"
	case ManagerMenuRefresh:
		return "manager_refresh"
	default:
		return "unknown"
	}
}

// IsUsage reports whether the kind is a usage query (as opposed to a line reset).
func (k Kind) IsUsage() bool {
	switch k {
	case SelfUsage, OtherUsage, ManagerMenuUsage:
		return true
	}
	return false
}

// Action is a fully-resolved protected operation: what to do and to whom.
type Action struct {
	Kind   Kind
	Target string // normalized MDN the operation applies to
}
