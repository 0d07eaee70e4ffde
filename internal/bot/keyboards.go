package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/pondmobile/supportbot/core/telegram/keyboard"
	"github.com/pondmobile/supportbot/internal/dispatch"
)

const coverageURL = "https://www.pondmobile.com/coverage"

func mainMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "📊 Check Usage", Unique: dispatch.TagCheckUsage},
			{Text: "🔄 Refresh Line", Unique: dispatch.TagRefreshLine},
		},
		[]keyboard.InlineBtn{
			{Text: "🌍 Check Coverage", URL: coverageURL},
		},
		[]keyboard.InlineBtn{
			{Text: "💬 Contact Support", Unique: dispatch.TagSupport},
			{Text: "📞 Contact Sales", Unique: dispatch.TagSales},
		},
	)
}

func backMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "⬅️ Back to menu", Unique: dispatch.TagMainMenu},
	})
}

func managerMenu(selfTag, otherTag string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "My own number", Unique: selfTag},
			{Text: "Another customer", Unique: otherTag},
		},
		[]keyboard.InlineBtn{
			{Text: "⬅️ Back to menu", Unique: dispatch.TagMainMenu},
		},
	)
}

// markupFor maps a reply's menu kind to a concrete Telegram keyboard.
func markupFor(menu dispatch.Menu) *tele.ReplyMarkup {
	switch menu {
	case dispatch.MenuMain:
		return mainMenu()
	case dispatch.MenuShareContact:
		return keyboard.ContactRequest("📱 Share my phone")
	case dispatch.MenuBack:
		return backMenu()
	case dispatch.MenuManagerUsage:
		return managerMenu(dispatch.TagUsageSelf, dispatch.TagUsageOther)
	case dispatch.MenuManagerRefresh:
		return managerMenu(dispatch.TagRefreshSelf, dispatch.TagRefreshOther)
	case dispatch.MenuRemoveKeyboard:
		return keyboard.RemoveKeyboard()
	default:
		return nil
	}
}
