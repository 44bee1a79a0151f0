package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/obs"
)

// Settler applies a verified payment outcome to the checkout it belongs to.
type Settler interface {
	Settle(ctx context.Context, provider string, result WebhookVerifyResult) error
}

// Webhook handles payment provider callbacks, including signature verification and settlement.
type Webhook struct {
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Settler   Settler
}

// Handle processes webhook callbacks for the configured payment provider(s).
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Settler == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	logger := zerolog.Ctx(r.Context()).With().Str("provider", providerKey).Logger()
	result := "error"
	defer func() { obs.IncCounter(obs.PaymentWebhookTotal, providerKey, result) }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	verified, err := provider.VerifyWebhook(r, body)
	if err != nil {
		result = "invalid"
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !verified.Valid {
		result = "bad_signature"
		logger.Warn().Err(verified.Err).Msg("payment webhook signature rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", providerKey, common.Digest(string(body)))
		fresh, err := h.Replay.SetNX(r.Context(), replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			result = "replay"
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}
	if verified.ProviderPayload == nil {
		verified.ProviderPayload = body
	}

	if err := h.Settler.Settle(r.Context(), provider.Name(), verified); err != nil {
		if replayKey != "" {
			// allow the provider to redeliver
			_ = h.Replay.Del(context.WithoutCancel(r.Context()), replayKey).Err()
		}
		logger.Error().Err(err).Str("reference", verified.Reference).Msg("payment settlement failed")
		common.WriteError(w, err)
		return
	}
	result = strings.ToLower(string(verified.Status))
	logger.Info().
		Str("reference", verified.Reference).
		Str("status", string(verified.Status)).
		Msg("payment webhook processed")
	w.WriteHeader(http.StatusNoContent)
}
