// Package services – RelayService
//
// This file implements RelayService, the application-level component that
// processes one acknowledged webhook: extract identifiers, resolve the
// tenant, and run the chat closure workflow against the tenant's portal.
//
// The pipeline is expressed as a sequence of validation steps, each of which
// returns a tagged Outcome instead of performing its own side-effecting exit.
// The transport layer decides what to log at which level from the tag alone,
// which keeps the core testable without a network or database.
//
// Observability: Process is OpenTelemetry-instrumented; spans carry the
// member id and deal id, and a Prometheus counter tracks outcome frequencies.
package services

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-b24-relay/internal/bitrix"
	"github.com/tbourn/go-b24-relay/internal/domain"
	"github.com/tbourn/go-b24-relay/internal/webhook"
)

// Status tags the terminal state of one processed webhook.
type Status string

const (
	// StatusClosed: a chat was found and finished.
	StatusClosed Status = "closed"
	// StatusNoChat: the deal has no open-lines chat; nothing to do.
	StatusNoChat Status = "no_chat"
	// StatusSkipped: a precondition failed before any remote call; see Reason.
	StatusSkipped Status = "skipped"
	// StatusFailed: a remote call or the directory lookup failed; see Err.
	StatusFailed Status = "failed"
)

// SkipReason narrows StatusSkipped.
type SkipReason string

const (
	SkipNoDealID       SkipReason = "no_deal_id"
	SkipNoMemberID     SkipReason = "no_member_id"
	SkipTenantNotFound SkipReason = "tenant_not_found"
	SkipTenantDisabled SkipReason = "tenant_disabled"
	// SkipNoWebhookURL is a configuration error rather than a benign skip;
	// the transport layer logs it at error level.
	SkipNoWebhookURL SkipReason = "no_webhook_url"
)

// Outcome is the result record for one processed webhook.
type Outcome struct {
	Status Status
	Reason SkipReason // set when Status == StatusSkipped
	Err    error      // set when Status == StatusFailed

	DealID   string
	MemberID string
	Tenant   *domain.Tenant // set once the lookup succeeded
	Chat     bitrix.ChatOutcome
}

// label returns the metric label for the outcome, folding skip reasons in.
func (o Outcome) label() string {
	if o.Status == StatusSkipped {
		return string(o.Reason)
	}
	return string(o.Status)
}

// TenantDirectory is the lookup capability the pipeline depends on.
type TenantDirectory interface {
	// GetByMemberID returns the tenant for the exact member id, or
	// ErrTenantNotFound. Backing-store failures are returned as-is.
	GetByMemberID(ctx context.Context, memberID string) (*domain.Tenant, error)
}

// ChatCloser is the remote closure capability the pipeline depends on.
type ChatCloser interface {
	CloseDealChat(ctx context.Context, baseURL, dealID string) (bitrix.ChatOutcome, error)
}

var webhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relay_webhooks_total",
		Help: "Processed webhook outcomes, including skip reasons.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(webhooksTotal)
}

// RelayService runs the post-acknowledgment pipeline for inbound webhooks.
type RelayService struct {
	Directory TenantDirectory
	Closer    ChatCloser
}

// NewRelayService constructs a RelayService over the given capabilities.
func NewRelayService(dir TenantDirectory, closer ChatCloser) *RelayService {
	return &RelayService{Directory: dir, Closer: closer}
}

// Process runs the full pipeline for one event and returns a tagged Outcome.
// It never panics past its own frame and performs no transport I/O of its
// own; remote calls and DB access go through the injected capabilities.
func (s *RelayService) Process(ctx context.Context, ev webhook.Event) Outcome {
	tr := otel.Tracer("services/RelayService")
	ctx, span := tr.Start(ctx, "Process")
	defer span.End()

	out := s.process(ctx, ev, span)
	webhooksTotal.WithLabelValues(out.label()).Inc()
	return out
}

func (s *RelayService) process(ctx context.Context, ev webhook.Event, span trace.Span) Outcome {
	out := Outcome{Status: StatusSkipped}

	out.DealID = ev.DealID()
	if out.DealID == "" {
		out.Reason = SkipNoDealID
		return out
	}
	span.SetAttributes(attribute.String("deal.id", out.DealID))

	out.MemberID = ev.MemberID()
	if out.MemberID == "" {
		out.Reason = SkipNoMemberID
		return out
	}
	span.SetAttributes(attribute.String("tenant.member_id", out.MemberID))

	tenant, err := s.Directory.GetByMemberID(ctx, out.MemberID)
	switch {
	case err == nil:
	case isNotFound(err):
		out.Reason = SkipTenantNotFound
		return out
	default:
		return Outcome{Status: StatusFailed, Err: err, DealID: out.DealID, MemberID: out.MemberID}
	}
	out.Tenant = tenant

	if !tenant.Enabled {
		out.Reason = SkipTenantDisabled
		return out
	}
	if !tenant.HasWebhookURL() {
		out.Reason = SkipNoWebhookURL
		return out
	}

	chat, err := s.Closer.CloseDealChat(ctx, tenant.WebhookURL, out.DealID)
	out.Chat = chat
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if !chat.Found {
		out.Status = StatusNoChat
		return out
	}
	out.Status = StatusClosed
	return out
}

// isNotFound matches both the service sentinel and the repo/gorm sentinel so
// directory implementations can return either.
func isNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
