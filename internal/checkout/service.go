package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/maxnotes/storefront/internal/cart"
	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/events"
	"github.com/maxnotes/storefront/internal/lock"
	"github.com/maxnotes/storefront/internal/obs"
	"github.com/maxnotes/storefront/internal/payment"
	"github.com/maxnotes/storefront/internal/pricing"
)

var (
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNothingToPay is returned when the priced total is zero.
	ErrNothingToPay = errors.New("cart total is zero")
	// ErrSessionNotFound indicates an unknown or expired checkout reference.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrAmountMismatch is returned when a provider reports a different amount than was priced.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrProviderMismatch is returned when a settlement arrives from another provider.
	ErrProviderMismatch = errors.New("provider mismatch")
)

// Carts is the cart surface checkout needs.
type Carts interface {
	Get(ctx context.Context, id string) (cart.Cart, error)
	Clear(ctx context.Context, id string) (cart.Cart, error)
}

// Counter records how many units have been sold.
type Counter interface {
	Add(ctx context.Context, n int64) (int64, error)
}

// Service opens payment intents for priced carts and settles them.
type Service struct {
	R        *redis.Client
	Carts    Carts
	Bundles  cart.BundleResolver
	Schedule pricing.Schedule
	Provider payment.Provider
	Locker   lock.Locker
	Counter  Counter
	Events   *events.Bus
	Validate *validator.Validate
	Currency string
	// SessionTTL is how long the buyer has to pay. Sessions stay readable for a day longer.
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger
}

func sessionKey(ref string) string { return "checkout:" + ref }

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL <= 0 {
		return time.Hour
	}
	return s.SessionTTL
}

func (s *Service) schedule() pricing.Schedule {
	if s.Schedule == (pricing.Schedule{}) {
		return pricing.DefaultSchedule()
	}
	return s.Schedule
}

func newReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "MXN-" + strings.ToUpper(raw[:12])
}

// Start prices the cart and opens a payment intent for the engine total.
func (s *Service) Start(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.R == nil || s.Carts == nil || s.Provider == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	in.CartID = strings.TrimSpace(in.CartID)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate(in); err != nil {
		return Output{}, err
	}

	ctx, span := otel.Tracer("maxnotes/checkout").Start(ctx, "Checkout.Start")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", in.CartID), attribute.String("payment.provider", s.Provider.Name()))

	c, err := s.Carts.Get(ctx, in.CartID)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrNotFound):
			return Output{}, common.NewAppError("CART_NOT_FOUND", "cart not found", http.StatusNotFound, err)
		case errors.Is(err, cart.ErrInvalidInput):
			return Output{}, common.NewAppError("BAD_REQUEST", "invalid cart id", http.StatusBadRequest, err)
		}
		return Output{}, fmt.Errorf("load cart: %w", err)
	}
	if len(c.Items) == 0 {
		return Output{}, common.NewAppError("EMPTY_CART", "cart is empty", http.StatusBadRequest, ErrEmptyCart)
	}

	bundleID := ""
	if s.Bundles != nil {
		if bundleID, err = s.Bundles.BundleID(ctx); err != nil {
			return Output{}, fmt.Errorf("resolve bundle: %w", err)
		}
	}
	totals := c.Price(s.schedule(), bundleID)
	if payment.MinorUnits(totals.Total) <= 0 {
		return Output{}, common.NewAppError("NOTHING_TO_PAY", "cart total is zero", http.StatusBadRequest, ErrNothingToPay)
	}
	span.SetAttributes(attribute.Float64("checkout.amount", totals.Total), attribute.String("pricing.tier", string(totals.Tier)))

	now := s.now()
	ref := newReference()
	provider := s.Provider.Name()
	intent, err := s.Provider.CreateIntent(ctx, payment.IntentRequest{
		Reference:   ref,
		Amount:      totals.Total,
		Currency:    s.Currency,
		Description: describe(c, totals),
		Email:       in.Email,
		ExpiresIn:   s.sessionTTL(),
	})
	if err != nil {
		obs.IncCounter(obs.CheckoutIntentTotal, provider, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "create intent")
		s.Logger.Error().Err(err).Str("reference", ref).Str("provider", provider).Msg("payment intent failed")
		return Output{}, common.NewAppError("PAYMENT_PROVIDER_ERROR", "payment provider unavailable", http.StatusBadGateway, err)
	}
	obs.IncCounter(obs.CheckoutIntentTotal, provider, "ok")
	obs.IncCounter(obs.PricingTierTotal, string(totals.Tier))

	expiresAt := intent.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.sessionTTL())
	}
	sess := Session{
		Reference:     ref,
		CartID:        c.ID,
		Email:         in.Email,
		Provider:      provider,
		ProviderToken: intent.Token,
		Status:        payment.StatusPending,
		Amount:        totals.Total,
		Currency:      s.Currency,
		Message:       totals.Message,
		Tier:          totals.Tier,
		Units:         c.Count(),
		Items:         c.Items,
		RedirectURL:   intent.RedirectURL,
		QRPayload:     intent.QRPayload,
		Steps:         intent.Steps,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     expiresAt,
	}
	if err := s.save(ctx, sess); err != nil {
		return Output{}, err
	}
	s.emit(ctx, events.TopicCheckoutStarted, sess)
	s.Logger.Info().
		Str("reference", ref).
		Str("provider", provider).
		Float64("amount", sess.Amount).
		Str("tier", string(sess.Tier)).
		Msg("checkout started")

	return Output{
		Reference:   sess.Reference,
		Status:      sess.Status,
		Provider:    sess.Provider,
		Amount:      sess.Amount,
		Currency:    sess.Currency,
		Message:     sess.Message,
		Tier:        sess.Tier,
		RedirectURL: sess.RedirectURL,
		QRPayload:   sess.QRPayload,
		Steps:       sess.Steps,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// Status returns the stored checkout session. A pending session past its expiry is settled
// as EXPIRED before it is returned.
func (s *Service) Status(ctx context.Context, reference string) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	reference = strings.TrimSpace(reference)
	sess, err := s.load(ctx, reference)
	if err != nil {
		return Session{}, err
	}
	if !s.expired(sess) {
		return sess, nil
	}
	return s.complete(ctx, reference, "", payment.StatusExpired, 0)
}

// Complete applies a payment outcome. Terminal sessions are never changed again, so repeated
// confirmations are harmless. A positive amount must match the priced amount to the cent.
func (s *Service) Complete(ctx context.Context, reference string, status payment.Status, amount float64) (Session, error) {
	return s.complete(ctx, reference, "", status, amount)
}

// Settle implements payment.Settler for verified webhooks.
func (s *Service) Settle(ctx context.Context, provider string, result payment.WebhookVerifyResult) error {
	_, err := s.complete(ctx, result.Reference, provider, result.Status, result.Amount)
	return err
}

func (s *Service) complete(ctx context.Context, reference, provider string, status payment.Status, amount float64) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	reference = strings.TrimSpace(reference)
	ctx, span := otel.Tracer("maxnotes/checkout").Start(ctx, "Checkout.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.reference", reference), attribute.String("payment.status", string(status)))

	var (
		out     Session
		changed bool
	)
	err := s.Locker.WithLock(ctx, sessionKey(reference), 10*time.Second, func(ctx context.Context) error {
		sess, err := s.load(ctx, reference)
		if err != nil {
			return err
		}
		if provider != "" && !strings.EqualFold(provider, sess.Provider) {
			return common.NewAppError("PROVIDER_MISMATCH", "settlement from unexpected provider", http.StatusBadRequest, ErrProviderMismatch)
		}
		out = sess
		if s.expired(sess) {
			status, amount = payment.StatusExpired, 0
		}
		if sess.Status.Terminal() || !status.Terminal() {
			return nil
		}
		if amount > 0 && !payment.SameAmount(amount, sess.Amount) {
			return common.NewAppError("AMOUNT_MISMATCH", "paid amount does not match checkout", http.StatusBadRequest, ErrAmountMismatch).
				WithDetails(map[string]any{"expected": sess.Amount, "received": amount})
		}
		now := s.now()
		sess.Status = status
		sess.UpdatedAt = now
		sess.SettledAt = &now
		if err := s.save(ctx, sess); err != nil {
			return err
		}
		out = sess
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}
	if changed {
		s.afterSettle(ctx, out)
	}
	return out, nil
}

// afterSettle runs side effects once per terminal transition. Failures are logged because the
// payment itself has already been recorded.
func (s *Service) afterSettle(ctx context.Context, sess Session) {
	logger := s.Logger.With().Str("reference", sess.Reference).Str("status", string(sess.Status)).Logger()
	switch sess.Status {
	case payment.StatusPaid:
		if _, err := s.Carts.Clear(ctx, sess.CartID); err != nil && !errors.Is(err, cart.ErrNotFound) {
			logger.Warn().Err(err).Str("cart_id", sess.CartID).Msg("clear cart after payment")
		}
		if s.Counter != nil && sess.Units > 0 {
			if _, err := s.Counter.Add(ctx, int64(sess.Units)); err != nil {
				logger.Warn().Err(err).Msg("increment students counter")
			}
		}
		if obs.UnitsSoldTotal != nil {
			obs.UnitsSoldTotal.Add(float64(sess.Units))
		}
		s.emit(ctx, events.TopicCheckoutCompleted, sess)
	case payment.StatusFailed:
		s.emit(ctx, events.TopicCheckoutFailed, sess)
	case payment.StatusExpired:
		s.emit(ctx, events.TopicCheckoutExpired, sess)
	}
	logger.Info().Float64("amount", sess.Amount).Int("units", sess.Units).Msg("checkout settled")
}

func (s *Service) emit(ctx context.Context, topic string, sess Session) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, sess.Reference, sess.payload()); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("reference", sess.Reference).Msg("emit checkout event")
	}
}

func (s *Service) validate(in Input) error {
	v := s.Validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate checkout input: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonField(fe.Field())] = fe.Tag()
	}
	return common.NewAppError("VALIDATION_FAILED", "invalid checkout request", http.StatusUnprocessableEntity, err).WithDetails(fields)
}

func jsonField(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(c cart.Cart, totals pricing.Totals) string {
	switch {
	case totals.Tier == pricing.TierBundle:
		return "MAXNotes DaBao Full Access"
	case totals.NoteCount > 0:
		return fmt.Sprintf("MAXNotes study notes (%d items)", c.Count())
	default:
		return fmt.Sprintf("MAXNotes order (%d items)", c.Count())
	}
}

func (s *Service) load(ctx context.Context, ref string) (Session, error) {
	if ref == "" {
		return Session{}, common.NewAppError("SESSION_NOT_FOUND", "checkout session not found", http.StatusNotFound, ErrSessionNotFound)
	}
	raw, err := s.R.Get(ctx, sessionKey(ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, common.NewAppError("SESSION_NOT_FOUND", "checkout session not found", http.StatusNotFound, ErrSessionNotFound)
		}
		return Session{}, fmt.Errorf("load checkout session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return sess, nil
}

func (s *Service) expired(sess Session) bool {
	return sess.Status == payment.StatusPending && !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt)
}

func (s *Service) save(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode checkout session: %w", err)
	}
	ttl := s.sessionTTL() + 24*time.Hour
	if err := s.R.Set(ctx, sessionKey(sess.Reference), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}
