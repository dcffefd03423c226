package telegramrepo

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned at send time; an unconfigured
// notifier is not a startup failure.
var ErrMissingCredentials = errors.New("telegram credentials missing: set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")

type Repo interface {
	SendMessage(ctx context.Context, text string) error
}
