package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/Numbzin/Logzito/internal/reminder"
)

// Client is the subset of *tgbotapi.BotAPI used by the bot.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Sender pushes outgoing messages through a shared rate limiter.
// It implements reminder.Deliverer.
type Sender struct {
	client  Client
	limiter *rate.Limiter
}

// NewSender allows perSecond messages per second with a burst of the same size.
func NewSender(client Client, perSecond float64) *Sender {
	burst := max(int(perSecond), 1)
	return &Sender{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Deliver sends a plain text reminder. Bot API failures come back as
// *reminder.DeliveryError so the dispatcher can classify them.
func (s *Sender) Deliver(ctx context.Context, chatID int64, text string) error {
	return s.Send(ctx, tgbotapi.NewMessage(chatID, text))
}

// Send waits for the limiter and sends c.
func (s *Sender) Send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.client.Send(c)
	return deliveryError(err)
}

// Request performs a call that does not produce a message, e.g. a callback answer.
func (s *Sender) Request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.client.Request(c)
	return deliveryError(err)
}

func deliveryError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &reminder.DeliveryError{Code: apiErr.Code, Description: apiErr.Message, Err: err}
	}
	return err
}
