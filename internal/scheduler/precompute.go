package scheduler

import (
	"context"
	"time"

	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/idempotency"
	"github.com/greetday/greetday/internal/idgen"
	"github.com/greetday/greetday/internal/logging"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/store"
	"github.com/greetday/greetday/internal/strategy"
	"github.com/greetday/greetday/internal/tz"
)

// precomputeWindow bounds how far ahead of now the daily precomputer will
// materialize a SCHEDULED log. It must exceed 24h so that every IANA
// offset (UTC-12 .. UTC+14) has its local "today" fully covered by one run
// at 00:00 UTC, without being so large that it starts scheduling next
// year's occurrence early — the idempotency key makes re-running this
// window on each tick safe regardless of its exact width.
const precomputeWindow = 48 * time.Hour

// Precomputer runs once daily (and on every restart, to self-heal a missed
// run) and materializes a SCHEDULED message_logs row for every user/
// strategy occurrence falling within precomputeWindow of now.
type Precomputer struct {
	Users    store.UserRepository
	Logs     store.MessageLogStore
	Registry *strategy.Registry
	Clock    clock.Clock
	Logger   *logging.Logger
}

func (p *Precomputer) Tick(ctx context.Context) error {
	now := p.Clock.Now()
	users, err := p.Users.FindEventCandidates(ctx)
	if err != nil {
		return err
	}

	for _, user := range users {
		for _, s := range p.Registry.All() {
			if err := p.precomputeOne(ctx, user, s, now); err != nil {
				if p.Logger != nil {
					p.Logger.Error(ctx, "precompute: failed for user/strategy", "user", user.ID, "messageType", s.MessageType(), "error", err)
				}
			}
		}
	}
	return nil
}

func (p *Precomputer) precomputeOne(ctx context.Context, user *models.User, s strategy.Strategy, now time.Time) error {
	eventDate, ok := s.EventDate(user)
	if !ok {
		return nil
	}

	sendTime, err := tz.CalculateSendTime(tz.EventDate(eventDate), user.Timezone, now)
	if err != nil {
		return err
	}
	if sendTime.Before(now) || sendTime.After(now.Add(precomputeWindow)) {
		return nil
	}

	localDate, err := tz.LocalDate(sendTime, user.Timezone)
	if err != nil {
		return err
	}
	key, err := idempotency.Key(user.ID, s.MessageType(), localDate)
	if err != nil {
		return err
	}

	log := &models.MessageLog{
		ID:                idgen.NewMessageLogID(),
		UserID:            user.ID,
		MessageType:       s.MessageType(),
		IdempotencyKey:    key,
		Status:            models.StatusScheduled,
		ScheduledSendTime: sendTime,
	}
	if err := p.Logs.Insert(ctx, log); err != nil {
		if err == models.ErrDuplicateKey {
			return nil
		}
		return err
	}
	if p.Logger != nil {
		p.Logger.Audit(ctx, "precompute: scheduled message", "messageId", log.ID, "userId", user.ID, "messageType", s.MessageType(), "sendTime", sendTime)
	}
	return nil
}
