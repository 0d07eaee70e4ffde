// Package dispatch turns inbound chat events into outbound replies. It is
// transport-agnostic: the Telegram layer translates updates into Events and
// Replies into messages with keyboards.
package dispatch

// Event is an inbound chat event. The set is closed; the dispatcher
// switches over it exhaustively.
type Event interface{ isEvent() }

// Start is the /start command (or an equivalent conversation opener).
type Start struct{}

// MenuSelect is a button press carrying its callback tag.
type MenuSelect struct {
	Tag string
}

// ContactShared is a shared contact card. OwnerID is the Telegram identity
// embedded in the card; SenderID is who actually sent the update. They must
// match, otherwise the share is rejected as spoofed.
type ContactShared struct {
	Phone    string
	OwnerID  int64
	SenderID int64
}

// FreeText is any plain text message.
type FreeText struct {
	Text string
}

func (Start) isEvent()         {}
func (MenuSelect) isEvent()    {}
func (ContactShared) isEvent() {}
func (FreeText) isEvent()      {}

// Menu button tags shared between the dispatcher and the Telegram layer.
const (
	TagCheckUsage   = "check_usage"
	TagRefreshLine  = "refresh_line"
	TagSupport      = "support"
	TagSales        = "sales"
	TagMainMenu     = "main_menu"
	TagUsageSelf    = "usage_self"
	TagUsageOther   = "usage_other"
	TagRefreshSelf  = "refresh_self"
	TagRefreshOther = "refresh_other"
)

// Menu names the keyboard to attach to a reply.
type Menu int

const (
	// MenuNone leaves the current keyboard untouched.
	MenuNone Menu = iota
	// MenuMain is the top-level inline menu.
	MenuMain
	// MenuShareContact is the reply keyboard with the share-contact button.
	MenuShareContact
	// MenuBack is a single back-to-menu inline button.
	MenuBack
	// MenuManagerUsage is the manager sub-menu for usage checks.
	MenuManagerUsage
	// MenuManagerRefresh is the manager sub-menu for line refreshes.
	MenuManagerRefresh
	// MenuRemoveKeyboard removes any active reply keyboard.
	MenuRemoveKeyboard
)

// Reply is one outbound message.
type Reply struct {
	Text      string
	Menu      Menu
	Markdown  bool
	NoPreview bool
}
