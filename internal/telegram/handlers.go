package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Numbzin/Logzito/internal/domain"
	"github.com/Numbzin/Logzito/internal/store"
)

// maxMessageRunes approximates Telegram's 4096 character limit.
const maxMessageRunes = 4096

// ensureUser makes sure a profile row exists, creating it from defaults.
func (r *Router) ensureUser(ctx context.Context, chatID int64) (*domain.User, bool, error) {
	return r.repo.EnsureUser(ctx, chatID, r.cfg.Defaults)
}

// location resolves the user's timezone, falling back to the default one.
func (r *Router) location(u *domain.User) *time.Location {
	if loc, err := domain.LoadTZ(u.TZ); err == nil {
		return loc
	}
	if loc, err := domain.LoadTZ(r.cfg.Defaults.TZ); err == nil {
		return loc
	}
	return time.UTC
}

// --- Generic helpers ---

func (r *Router) send(ctx context.Context, c tgbotapi.Chattable) {
	if err := r.sender.Send(ctx, c); err != nil {
		r.log.Warn("reply failed", zap.Error(err))
	}
}

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	r.send(ctx, tgbotapi.NewMessage(chatID, clip(text)))
}

func (r *Router) sendWithMenu(ctx context.Context, chatID int64, text string, reminderOn bool) {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	msg.ReplyMarkup = mainMenuKeyboard(reminderOn)
	r.send(ctx, msg)
}

func (r *Router) answerCallback(ctx context.Context, id string) {
	if err := r.sender.Request(ctx, tgbotapi.NewCallback(id, "")); err != nil {
		r.log.Debug("answer callback failed", zap.Error(err))
	}
}

// fail logs err and tells the user something went wrong.
func (r *Router) fail(ctx context.Context, chatID int64, what string, err error, reply string) {
	r.log.Error(what, zap.Int64("chat_id", chatID), zap.Error(err))
	r.sendText(ctx, chatID, reply)
}

func clip(s string) string {
	if r := []rune(s); len(r) > maxMessageRunes {
		return string(r[:maxMessageRunes-1]) + "…"
	}
	return s
}

func pick(pool []string) string {
	return pool[rand.IntN(len(pool))]
}

// cutID splits "<id> <rest>" on the first whitespace.
func cutID(args string) (string, string) {
	args = strings.TrimSpace(args)
	i := strings.IndexFunc(args, unicode.IsSpace)
	if i < 0 {
		return args, ""
	}
	return args[:i], strings.TrimSpace(args[i:])
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	u, created, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Profile initialization error. Please try again later.")
		return
	}
	text := welcomeBackText
	if created {
		text = startText
		r.log.Info("new user", zap.Int64("chat_id", chatID))
	}
	r.sendWithMenu(ctx, chatID, text, u.Active)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	st, err := r.repo.EntryStats(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "entry stats failed", err, "Error reading your journal.")
		return
	}
	r.sendWithMenu(ctx, chatID, formatStatus(u, st, r.location(u), r.clock.Now()), u.Active)
}

// --- Reminder ---

// handleRemind accepts "", "HH:MM", "HH:MM Region/City" or "off".
func (r *Router) handleRemind(ctx context.Context, chatID int64, args string) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}

	fields := strings.Fields(args)
	if len(fields) == 1 && strings.EqualFold(fields[0], "off") {
		if err := r.repo.SetReminder(ctx, chatID, false, u.LocalTime, u.TZ); err != nil {
			r.fail(ctx, chatID, "disable reminder failed", err, "Could not turn off the reminder.")
			return
		}
		r.sendWithMenu(ctx, chatID, "🔕 Daily reminder turned off.", false)
		return
	}
	if len(fields) > 2 {
		r.sendText(ctx, chatID, "Usage: /remind [HH:MM] [Region/City], e.g. /remind 20:00 America/Sao_Paulo")
		return
	}

	sub := u.Subscription
	if len(fields) >= 1 {
		at, err := domain.ParseLocalTime(fields[0])
		if err != nil {
			r.sendText(ctx, chatID, "Invalid time. Use HH:MM, e.g. 20:00")
			return
		}
		sub.LocalTime = at
	}
	if len(fields) == 2 {
		tz, err := domain.ValidateTZ(fields[1])
		if err != nil {
			r.sendText(ctx, chatID, "Invalid timezone. Example: America/Sao_Paulo")
			return
		}
		sub.TZ = tz
	}
	sub.Active = true

	if err := r.repo.SetReminder(ctx, chatID, true, sub.LocalTime, sub.TZ); err != nil {
		r.fail(ctx, chatID, "set reminder failed", err, "Could not save the reminder.")
		return
	}
	r.sendWithMenu(ctx, chatID, formatReminder(&sub, r.clock.Now()), true)
}

// --- Journal ---

func (r *Router) handleLog(ctx context.Context, chatID int64, args string) {
	if _, _, err := r.ensureUser(ctx, chatID); err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	if args == "" {
		r.pending.Set(chatID, pending{kind: pendingLog}, r.cfg.PendingTTL)
		r.sendText(ctx, chatID, askLogText)
		return
	}
	r.saveEntry(ctx, chatID, args)
}

func (r *Router) saveEntry(ctx context.Context, chatID int64, text string) {
	draft, err := domain.ParseEntryText(text)
	if err != nil {
		r.sendText(ctx, chatID, entryErrorText(err))
		return
	}
	draft.ChatID = chatID
	draft.CreatedAt = r.clock.Now().UTC()

	if err := r.repo.AddEntry(ctx, &draft); err != nil {
		r.fail(ctx, chatID, "add entry failed", err, "Could not save the entry.")
		return
	}
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "get user failed", err, "Entry saved.")
		return
	}
	r.sendText(ctx, chatID, pick(entrySavedTexts)+"\n\n"+formatEntry(draft, r.location(u)))
}

func entryErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyEntry):
		return "The entry is empty. Write something after /log."
	case errors.Is(err, domain.ErrEntryTooLong):
		return fmt.Sprintf("Too long. Keep entries under %d characters.", domain.MaxBodyLen)
	case errors.Is(err, domain.ErrInvalidLink):
		return "Invalid link. Use a full http(s) URL, e.g. link: https://go.dev"
	default:
		return "Could not read the entry."
	}
}

func (r *Router) handleEntries(ctx context.Context, chatID int64, page int) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	entries, total, err := r.repo.ListEntries(ctx, chatID, (page-1)*entriesPerPage, entriesPerPage)
	if err != nil {
		r.fail(ctx, chatID, "list entries failed", err, "Error reading your journal.")
		return
	}
	if total == 0 {
		r.sendText(ctx, chatID, "No entries yet. Start with /log")
		return
	}
	pages := pageCount(total)
	if len(entries) == 0 {
		r.sendText(ctx, chatID, fmt.Sprintf("Page %d does not exist. You have %d page(s).", page, pages))
		return
	}

	header := fmt.Sprintf("📚 Entries, page %d/%d (%d total)", page, pages, total)
	msg := tgbotapi.NewMessage(chatID, clip(formatEntryList(header, entries, r.location(u))))
	if kb, ok := pagerKeyboard(page, pages); ok {
		msg.ReplyMarkup = kb
	}
	r.send(ctx, msg)
}

// findEntry parses the id argument and loads the entry, replying on failure.
func (r *Router) findEntry(ctx context.Context, chatID int64, arg string) (*domain.Entry, bool) {
	id, err := parseLocalID(arg)
	if err != nil {
		r.sendText(ctx, chatID, "Give me an entry id, e.g. 7 or #007.")
		return nil, false
	}
	e, err := r.repo.GetEntry(ctx, chatID, id)
	if errors.Is(err, store.ErrNotFound) {
		r.sendText(ctx, chatID, fmt.Sprintf("Entry %s not found.", domain.FormatLocalID(id)))
		return nil, false
	}
	if err != nil {
		r.fail(ctx, chatID, "get entry failed", err, "Error reading your journal.")
		return nil, false
	}
	return e, true
}

func (r *Router) handleEntry(ctx context.Context, chatID int64, args string) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	e, ok := r.findEntry(ctx, chatID, args)
	if !ok {
		return
	}
	r.sendText(ctx, chatID, formatEntry(*e, r.location(u)))
}

func (r *Router) handleTag(ctx context.Context, chatID int64, args string) {
	tag := domain.NormalizeTag(args)
	if tag == "" {
		r.sendText(ctx, chatID, "Usage: /tag <tag>, e.g. /tag go")
		return
	}
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	entries, err := r.repo.ListEntriesByTag(ctx, chatID, tag)
	if err != nil {
		r.fail(ctx, chatID, "list by tag failed", err, "Error reading your journal.")
		return
	}
	if len(entries) == 0 {
		r.sendText(ctx, chatID, "No entries tagged #"+tag+".")
		return
	}
	header := fmt.Sprintf("🏷 #%s (%d)", tag, len(entries))
	r.sendText(ctx, chatID, formatEntryList(header, entries, r.location(u)))
}

func (r *Router) handleEdit(ctx context.Context, chatID int64, args string) {
	idArg, text := cutID(args)
	if idArg == "" {
		r.sendText(ctx, chatID, "Usage: /edit <id> <new text>")
		return
	}
	e, ok := r.findEntry(ctx, chatID, idArg)
	if !ok {
		return
	}
	if text == "" {
		r.pending.Set(chatID, pending{kind: pendingEdit, localID: e.LocalID}, r.cfg.PendingTTL)
		r.sendText(ctx, chatID, fmt.Sprintf(askEditText, e.Ref()))
		return
	}
	r.applyEdit(ctx, chatID, e, text)
}

func (r *Router) applyEdit(ctx context.Context, chatID int64, e *domain.Entry, text string) {
	draft, err := domain.ParseEntryText(text)
	if err != nil {
		r.sendText(ctx, chatID, entryErrorText(err))
		return
	}
	e.Title, e.Body, e.Tags = draft.Title, draft.Body, draft.Tags
	if draft.Link != "" {
		e.Link = draft.Link
	}
	if err := r.repo.UpdateEntry(ctx, e); err != nil {
		r.fail(ctx, chatID, "update entry failed", err, "Could not update the entry.")
		return
	}
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "get user failed", err, "Entry updated.")
		return
	}
	r.sendText(ctx, chatID, "✏️ Entry updated.\n\n"+formatEntry(*e, r.location(u)))
}

func (r *Router) handleDelete(ctx context.Context, chatID int64, args string) {
	id, err := parseLocalID(args)
	if err != nil {
		r.sendText(ctx, chatID, "Usage: /delete <id>, e.g. /delete 7")
		return
	}
	err = r.repo.DeleteEntry(ctx, chatID, id)
	if errors.Is(err, store.ErrNotFound) {
		r.sendText(ctx, chatID, fmt.Sprintf("Entry %s not found.", domain.FormatLocalID(id)))
		return
	}
	if err != nil {
		r.fail(ctx, chatID, "delete entry failed", err, "Could not delete the entry.")
		return
	}
	r.sendText(ctx, chatID, fmt.Sprintf("🗑 Entry %s deleted.", domain.FormatLocalID(id)))
}

func (r *Router) handleExport(ctx context.Context, chatID int64) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	entries, err := r.repo.ListEntriesBetween(ctx, chatID, time.Time{}, time.Time{})
	if err != nil {
		r.fail(ctx, chatID, "export failed", err, "Could not export your journal.")
		return
	}
	if len(entries) == 0 {
		r.sendText(ctx, chatID, "Nothing to export yet. Start with /log")
		return
	}

	loc := r.location(u)
	now := r.clock.Now()
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "logzito-" + now.In(loc).Format("2006-01-02") + ".txt",
		Bytes: exportText(entries, loc, now),
	})
	doc.Caption = fmt.Sprintf("%s %d entries.", pick(exportTexts), len(entries))
	r.send(ctx, doc)
}

func (r *Router) handleCalendar(ctx context.Context, chatID int64, args string) {
	u, _, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.fail(ctx, chatID, "ensureUser failed", err, "Error reading your profile.")
		return
	}
	loc := r.location(u)
	year, month, err := parseMonth(args, r.clock.Now().In(loc))
	if err != nil {
		r.sendText(ctx, chatID, "Usage: /calendar [MM] [YYYY], e.g. /calendar 03 2025")
		return
	}
	from, to := domain.MonthRange(loc, year, month)
	entries, err := r.repo.ListEntriesBetween(ctx, chatID, from, to)
	if err != nil {
		r.fail(ctx, chatID, "calendar failed", err, "Error reading your journal.")
		return
	}
	r.sendText(ctx, chatID, renderCalendar(year, month, domain.EntryDays(entries, loc, year, month)))
}

func (r *Router) handleCancel(ctx context.Context, chatID int64) {
	if _, ok := r.pending.Take(chatID); ok {
		r.sendText(ctx, chatID, cancelledText)
		return
	}
	r.sendText(ctx, chatID, nothingToCancel)
}

// --- Free-form dispatcher (for pending inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	p, ok := r.pending.Take(chatID)
	if !ok {
		// No pending flow: ignore free-form message
		return
	}
	switch p.kind {
	case pendingLog:
		r.saveEntry(ctx, chatID, text)
	case pendingEdit:
		e, err := r.repo.GetEntry(ctx, chatID, p.localID)
		if errors.Is(err, store.ErrNotFound) {
			r.sendText(ctx, chatID, fmt.Sprintf("Entry %s no longer exists.", domain.FormatLocalID(p.localID)))
			return
		}
		if err != nil {
			r.fail(ctx, chatID, "get entry failed", err, "Error reading your journal.")
			return
		}
		r.applyEdit(ctx, chatID, e, text)
	}
}
