package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Numbzin/Logzito/internal/cache"
	"github.com/Numbzin/Logzito/internal/clock"
	"github.com/Numbzin/Logzito/internal/domain"
	"github.com/Numbzin/Logzito/internal/store"
)

// Pending input kinds used in conversational flows.
type pendingKind int

const (
	pendingLog pendingKind = iota + 1
	pendingEdit
)

type pending struct {
	kind    pendingKind
	localID int // pendingEdit only
}

// Config holds the router settings taken from the app config.
type Config struct {
	Defaults   domain.Subscription // new profiles start from this
	PendingTTL time.Duration
}

// Router wires Telegram updates to handlers. Multi-step input lives in a
// TTL cache keyed by chat.
type Router struct {
	sender  *Sender
	log     *zap.Logger
	repo    store.Repo
	cfg     Config
	clock   clock.Clock
	pending *cache.TTLCache[int64, pending]
}

// NewRouter creates a new Telegram router.
func NewRouter(sender *Sender, log *zap.Logger, repo store.Repo, cfg Config, c clock.Clock) *Router {
	if c == nil {
		c = clock.SystemClock{}
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	return &Router{
		sender:  sender,
		log:     log.Named("telegram"),
		repo:    repo,
		cfg:     cfg,
		clock:   c,
		pending: cache.NewTTLCache[int64, pending](c),
	}
}

// Run handles updates one at a time until ctx is done or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	sweep := time.NewTicker(r.cfg.PendingTTL)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			r.HandleUpdate(ctx, upd)
		case <-sweep.C:
			if n := r.pending.Sweep(); n > 0 {
				r.log.Debug("expired pending inputs dropped", zap.Int("count", n))
			}
		}
	}
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panic", zap.Any("panic", p), zap.Int("update_id", upd.UpdateID))
		}
	}()

	if msg := upd.Message; msg != nil {
		chatID := msg.Chat.ID
		if !msg.IsCommand() {
			r.handleFreeForm(ctx, chatID, msg.Text)
			return
		}
		args := strings.TrimSpace(msg.CommandArguments())

		switch msg.Command() {
		case "start":
			r.handleStart(ctx, chatID)
		case "help":
			r.sendText(ctx, chatID, helpText)
		case "status":
			r.handleStatus(ctx, chatID)
		case "remind":
			r.handleRemind(ctx, chatID, args)
		case "log":
			r.handleLog(ctx, chatID, args)
		case "entries":
			r.handleEntries(ctx, chatID, parsePage(args))
		case "entry":
			r.handleEntry(ctx, chatID, args)
		case "tag":
			r.handleTag(ctx, chatID, args)
		case "edit":
			r.handleEdit(ctx, chatID, args)
		case "delete":
			r.handleDelete(ctx, chatID, args)
		case "export":
			r.handleExport(ctx, chatID)
		case "calendar":
			r.handleCalendar(ctx, chatID, args)
		case "cancel":
			r.handleCancel(ctx, chatID)
		default:
			r.sendText(ctx, chatID, unknownText)
		}
		return
	}

	// Callback queries (inline buttons)
	if cb := upd.CallbackQuery; cb != nil && cb.Message != nil {
		r.answerCallback(ctx, cb.ID)
		if page, ok := strings.CutPrefix(cb.Data, pagePrefix); ok {
			r.handleEntries(ctx, cb.Message.Chat.ID, parsePage(page))
		}
	}
}
