package subscription

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/store"
)

const (
	msgInvalidEmail      = "Please enter a valid email address"
	msgUnavailable       = "Unable to connect to the database. Please try again later."
	msgAlreadySubscribed = "You are already subscribed!"
	msgSubscribed        = "Thank you for subscribing!"
)

type Store interface {
	Ping(ctx context.Context) error
	InsertSubscription(ctx context.Context, email string) error
}

type Config struct {
	Store Store
}

// Service manages the mailing list.
type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(c Config) *Service {
	return &Service{
		store:    c.Store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Subscribe adds an email to the mailing list. Only an invalid email or an unreachable database
// produce an unsuccessful result. Other storage failures are logged and reported as success.
func (s *Service) Subscribe(ctx context.Context, email string) domain.SubscriptionResult {
	email = strings.TrimSpace(email)
	if err := s.validate.VarCtx(ctx, email, "required,email"); err != nil {
		return domain.SubscriptionResult{Success: false, Message: msgInvalidEmail}
	}

	if err := s.store.Ping(ctx); err != nil {
		if !stderrors.Is(err, store.ErrNotConfigured) {
			slog.ErrorContext(ctx, "subscription: database unreachable", "error", err)
		}
		return domain.SubscriptionResult{Success: false, Message: msgUnavailable}
	}

	err := s.store.InsertSubscription(ctx, email)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "subscription: subscribed")
	case store.IsUniqueViolation(err):
		return domain.SubscriptionResult{Success: true, Message: msgAlreadySubscribed}
	case store.IsMissingTable(err):
		slog.InfoContext(ctx, "subscription: email_subscriptions table does not exist")
	default:
		slog.ErrorContext(ctx, "subscription: insert failed", "error", err)
	}

	return domain.SubscriptionResult{Success: true, Message: msgSubscribed}
}
