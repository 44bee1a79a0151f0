package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/events"
	"github.com/maxnotes/storefront/internal/lock"
	"github.com/maxnotes/storefront/internal/obs"
	"github.com/maxnotes/storefront/internal/resilience"
)

// EmailWorker delivers queued purchase confirmations. A Redis marker records delivered
// references so a retried task never emails twice.
type EmailWorker struct {
	Mail    common.EmailSender
	R       *redis.Client
	Locker  lock.Locker
	LockTTL time.Duration
	SentTTL time.Duration
	Logger  zerolog.Logger
}

func sentKey(ref string) string { return "email:sent:" + ref }

// ProcessTask implements asynq.Handler.
func (w EmailWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.Mail == nil {
		return errors.New("email worker: sender not configured")
	}
	var payload events.CheckoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("email worker: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Reference == "" || payload.Email == "" {
		return fmt.Errorf("email worker: incomplete payload: %w", asynq.SkipRetry)
	}
	if w.R == nil {
		return w.send(payload)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "email:"+payload.Reference, ttl, func(ctx context.Context) error {
		sent, err := w.R.Exists(ctx, sentKey(payload.Reference)).Result()
		if err != nil {
			return err
		}
		if sent > 0 {
			w.Logger.Debug().Str("reference", payload.Reference).Msg("purchase email already sent")
			return nil
		}
		if err := w.send(payload); err != nil {
			return err
		}
		keep := w.SentTTL
		if keep <= 0 {
			keep = 7 * 24 * time.Hour
		}
		return w.R.Set(ctx, sentKey(payload.Reference), time.Now().UTC().Unix(), keep).Err()
	})
}

func (w EmailWorker) send(p events.CheckoutPayload) error {
	msg := RenderPurchaseConfirmation(p)
	if err := w.Mail.Send(p.Email, msg.Subject, msg.HTML); err != nil {
		obs.IncCounter(obs.EmailDeliveriesTotal, "error")
		w.Logger.Warn().Err(err).Str("reference", p.Reference).Msg("purchase email failed")
		return err
	}
	obs.IncCounter(obs.EmailDeliveriesTotal, "sent")
	w.Logger.Info().Str("reference", p.Reference).Msg("purchase email sent")
	return nil
}

// NewServeMux routes notification task types to their handlers.
func NewServeMux(w EmailWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypePurchaseConfirmation, w)
	return mux
}

// RetryDelay backs failed deliveries off exponentially from base, capped at max.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		d := resilience.Backoff(base, n+1, 0.2)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// TaskLogger adapts zerolog to asynq's logger interface.
type TaskLogger struct {
	Log zerolog.Logger
}

func (l TaskLogger) Debug(args ...interface{}) { l.Log.Debug().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Info(args ...interface{})  { l.Log.Info().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Warn(args ...interface{})  { l.Log.Warn().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Error(args ...interface{}) { l.Log.Error().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Fatal(args ...interface{}) { l.Log.Fatal().Msg(fmt.Sprint(args...)) }
