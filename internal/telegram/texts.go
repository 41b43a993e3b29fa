package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "👋 Hi, I am Logzito, your dev journal.\n\n" +
		"Write down what you worked on, learned or shipped, and I will keep it for you.\n" +
		"Turn on a daily reminder with /remind and I will nudge you at the same time every day.\n\n" +
		helpText
	welcomeBackText = "👋 Welcome back!\n\n" + helpText

	helpText = "Commands:\n" +
		"/log <text> – new entry (#tags, first line = title, \"link: https://…\" line)\n" +
		"/entries [page] – list entries\n" +
		"/entry <id> – show an entry\n" +
		"/tag <tag> – entries with a tag\n" +
		"/edit <id> <text> – rewrite an entry\n" +
		"/delete <id> – delete an entry\n" +
		"/export – download everything as .txt\n" +
		"/calendar [MM] [YYYY] – days with entries\n" +
		"/remind [HH:MM] [Region/City] – daily reminder, /remind off to stop\n" +
		"/status – your journal at a glance\n" +
		"/cancel – abort the current input"

	askLogText      = "✍️ Send the entry text in one message. /cancel to abort."
	askEditText     = "✍️ Send the new text for %s. /cancel to abort."
	cancelledText   = "Cancelled."
	nothingToCancel = "Nothing to cancel."
	unknownText     = "I don't know this command.\n\n" + helpText

	statusTitle = "📊 Your journal"
)

// Random acknowledgements, so the journal feels less like a form.
var entrySavedTexts = []string{
	"✨ Entry saved!",
	"🌟 One more step in your dev journey!",
	"📚 Knowledge recorded!",
	"🚀 Progress logged, keep going!",
	"📖 A new chapter of your dev story!",
}

var exportTexts = []string{
	"📦 Your journal, exported!",
	"💾 Backup of your knowledge is ready!",
}

// mainMenuKeyboard builds a reply keyboard whose reminder button toggles
// between enabling and disabling the daily reminder.
func mainMenuKeyboard(reminderOn bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/remind"
	if reminderOn {
		toggle = "/remind off"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/log"),
			tgbotapi.NewKeyboardButton("/entries"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/calendar"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}

// pagerKeyboard renders prev/next buttons for /entries. It returns false when
// there is only one page.
func pagerKeyboard(page, pages int) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Newer", pageData(page-1)))
	}
	if page < pages {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Older ➡️", pageData(page+1)))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}
