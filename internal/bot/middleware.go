package bot

import (
	"context"
	"strconv"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow fails open: a limiter outage must not silence professionals.
func (b *Bot) allow(ctx context.Context, chatID int64) bool {
	if b.limiter == nil || b.rateLimit.Messages <= 0 {
		return true
	}
	ok, err := b.limiter.Allow(ctx, "bot:"+strconv.FormatInt(chatID, 10), b.rateLimit.Messages, b.rateLimit.Window)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Rate limit check failed")
		return true
	}
	return ok
}
