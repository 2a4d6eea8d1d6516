package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
)

// WebhookService é a porta de entrada dos eventos da Stripe: verifica a
// autenticidade do payload, normaliza e reconcilia. É também o caminho dos
// eventos sintéticos de override do operador — que passam pelas MESMAS
// checagens de idempotência e ordenação, nunca por escrita direta.
type WebhookService struct {
	segredoWebhook string
	normalizer     *Normalizer
	reconciler     *Reconciler
	now            func() time.Time
}

func NewWebhookService(segredoWebhook string, normalizer *Normalizer, reconciler *Reconciler) *WebhookService {
	return &WebhookService{
		segredoWebhook: segredoWebhook,
		normalizer:     normalizer,
		reconciler:     reconciler,
		now:            time.Now,
	}
}

// HandleStripeWebhook processa uma entrega de webhook da Stripe.
// A verificação de assinatura acontece ANTES de qualquer interpretação do
// payload; só depois o evento chega ao Normalizer e ao Reconciler.
func (s *WebhookService) HandleStripeWebhook(ctx context.Context, payload []byte, assinatura string) (*domain.Transicao, error) {
	event, err := webhook.ConstructEvent(payload, assinatura, s.segredoWebhook)
	if err != nil {
		slog.Error("Erro ao verificar a assinatura do webhook", "error", err)
		return nil, domain.ErrWebhookStripe
	}

	evt, err := s.normalizer.Normalize(ctx, event)
	if err != nil {
		return nil, err
	}

	return s.reconciler.Process(ctx, *evt)
}

// Override constrói um evento sintético de operador e o alimenta no
// Reconciler. tier=premium ativa por `dias` dias; tier=free cancela
// imediatamente. Substitui os antigos scripts que escreviam direto na
// tabela.
func (s *WebhookService) Override(ctx context.Context, userID string, tier domain.Tier, dias int) (*domain.Transicao, error) {
	agora := s.now().UTC()
	evt := domain.BillingEvent{
		UserID:     userID,
		RawEventID: "override-" + uuid.NewString(),
		OccurredAt: agora,
	}

	switch tier {
	case domain.TierPremium:
		evt.Kind = domain.KindSubscriptionActivated
		evt.ProviderStatus = domain.StatusActive
		evt.PeriodStart = agora
		evt.PeriodEnd = agora.AddDate(0, 0, dias)
	case domain.TierFree:
		evt.Kind = domain.KindSubscriptionCanceled
		evt.CancelAtPeriodEnd = false
	default:
		return nil, domain.ErrTierInvalido
	}

	slog.Info("Override manual de assinatura",
		"user_id", userID, "tier", tier, "dias", dias)
	return s.reconciler.Process(ctx, evt)
}
