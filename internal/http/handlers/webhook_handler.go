// Webhook HTTP handlers.
//
// This file exposes the relay's single business endpoint:
//   - POST /webhook/deal   (Bitrix24 business-process callback)
//
// The handler is transport-thin and deliberately fire-and-forget: it decodes
// the payload, acknowledges the portal immediately, and hands the event to
// the relay service on a detached background context. Bitrix24 disables
// outgoing hooks that answer slowly, so nothing downstream (not even a
// malformed payload) may delay or change the acknowledgment.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-b24-relay/internal/services"
	"github.com/tbourn/go-b24-relay/internal/webhook"
)

// RelayProcessor is the post-acknowledgment pipeline consumed by the webhook
// handler. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type RelayProcessor interface {
	Process(ctx context.Context, ev webhook.Event) services.Outcome
}

// Handlers groups the HTTP endpoints of the relay.
type Handlers struct {
	relay RelayProcessor

	// taskTimeout bounds one background processing task (lookup plus two
	// remote calls). There is no caller left to cancel us, so this is the
	// only lifetime limit the task has.
	taskTimeout time.Duration

	// launch runs the background task. Overridden in tests to run inline.
	launch func(fn func())
}

// New constructs a Handlers instance bound to the given relay service.
// taskTimeout <= 0 selects a default generous enough for both outbound calls.
func New(relay RelayProcessor, taskTimeout time.Duration) *Handlers {
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	return &Handlers{
		relay:       relay,
		taskTimeout: taskTimeout,
		launch:      func(fn func()) { go fn() },
	}
}

// AcceptedResponse is the acknowledgment body returned to the portal.
type AcceptedResponse struct {
	Status    string `json:"status" example:"accepted"`
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// HandleDealWebhook godoc
// @ID          dealWebhook
// @Summary     Bitrix24 deal webhook
// @Description Accepts a business-process callback and closes the open-lines chat attached to the deal. The response acknowledges receipt only; processing is asynchronous and its outcome is reported via logs and metrics.
// @Tags        Webhooks
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       deal_id  query  string  false  "Numeric deal id override"  example(475509)
//
// @Success     202  {object}  handlers.AcceptedResponse
// @Router      /webhook/deal [post]
func (h *Handlers) HandleDealWebhook(c *gin.Context) {
	rid := c.Writer.Header().Get("X-Request-ID")

	ev, decodeErr := decodeEvent(c)
	ev.QueryDealID = c.Query("deal_id")

	// Acknowledge before any processing. Decode failures are logged after
	// the ack like every other skip; the portal never sees them.
	ok(c, http.StatusAccepted, AcceptedResponse{Status: "accepted", RequestID: rid})

	lg := log.With().Str("request_id", rid).Logger()
	if decodeErr != nil {
		lg.Warn().Err(decodeErr).Msg("webhook body not decodable")
	}

	h.launch(func() {
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error().Interface("panic", rec).Msg("webhook task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.taskTimeout)
		defer cancel()

		out := h.relay.Process(ctx, ev)
		logOutcome(lg, out)
	})
}

// decodeEvent normalizes the two body encodings Bitrix24 uses. A body that
// fits neither yields a zero Event and the decode error; identifier
// extraction then fails naturally downstream.
func decodeEvent(c *gin.Context) (webhook.Event, error) {
	ct := c.ContentType()
	if strings.Contains(ct, "json") {
		var ev webhook.Event
		err := c.ShouldBindJSON(&ev)
		return ev, err
	}
	if err := c.Request.ParseForm(); err != nil {
		return webhook.Event{}, err
	}
	return webhook.FromForm(c.Request.PostForm), nil
}

// logOutcome maps the tagged pipeline outcome onto the log taxonomy: info
// for terminal successes, warn for benign skips, error for configuration
// and integration failures.
func logOutcome(lg zerolog.Logger, out services.Outcome) {
	ev := lg.With().
		Str("deal_id", out.DealID).
		Str("member_id", out.MemberID).
		Logger()

	switch out.Status {
	case services.StatusClosed:
		ev.Info().
			Int64("chat_id", out.Chat.ChatID).
			Str("tenant", tenantName(out)).
			Msg("chat closed")
	case services.StatusNoChat:
		ev.Info().
			Str("tenant", tenantName(out)).
			Msg("no chat for deal")
	case services.StatusSkipped:
		if out.Reason == services.SkipNoWebhookURL {
			// Enabled tenant without a webhook URL is a directory
			// misconfiguration, not an expected outcome.
			ev.Error().
				Str("tenant", tenantName(out)).
				Msg("tenant has no webhook url")
			return
		}
		ev.Warn().Str("reason", string(out.Reason)).Msg("webhook skipped")
	case services.StatusFailed:
		ev.Error().Err(out.Err).Msg("webhook processing failed")
	}
}

func tenantName(out services.Outcome) string {
	if out.Tenant != nil {
		return out.Tenant.Name
	}
	return ""
}

// Healthz godoc
// @ID          healthz
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
