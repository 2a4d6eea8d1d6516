package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
)

// reconciliacoesTotal conta o desfecho de cada reconciliação.
// Resultados: aplicada, duplicada, obsoleta, noop, falha.
var reconciliacoesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entitlement_reconciliacoes_total",
		Help: "Número total de reconciliações por desfecho.",
	},
	[]string{"evento", "resultado"},
)

// TransitionNotifier recebe transições efetivadas. A implementação real é o
// Notifier; o efeito é melhor esforço e nunca bloqueia a reconciliação.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, t domain.Transicao, a domain.Assinatura)
}

// Reconciler é o ÚNICO mutador autorizado dos registros de assinatura.
// Webhooks, varredura de expiração e overrides de operador passam todos
// por Process — nenhum outro componente escreve no registro.
type Reconciler struct {
	repo     repository.AssinaturaRepository
	notifier TransitionNotifier

	// maxTentativas limita os retries de conflito otimista antes de
	// desistir com ErrReconciliacaoFalhou.
	maxTentativas int

	// now é injetável para os testes controlarem o relógio.
	now func() time.Time
}

func NewReconciler(repo repository.AssinaturaRepository, notifier TransitionNotifier) *Reconciler {
	return &Reconciler{
		repo:          repo,
		notifier:      notifier,
		maxTentativas: 3,
		now:           time.Now,
	}
}

// Process aplica um evento normalizado ao registro do usuário, honrando os
// contratos de idempotência (raw_event_id), ordenação (last-writer por
// occurred_at, com precedência de cancelamento) e concorrência otimista
// (releitura + retry em conflito de versão).
//
// Eventos duplicados ou obsoletos retornam uma Transicao não aplicada e
// erro nil: para o provedor, a entrega foi processada com sucesso.
func (r *Reconciler) Process(ctx context.Context, evt domain.BillingEvent) (*domain.Transicao, error) {
	var ultimoErr error

	for tentativa := 0; tentativa < r.maxTentativas; tentativa++ {
		a, err := r.repo.GetByUserID(ctx, evt.UserID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			// Criação preguiçosa: o primeiro evento de cobrança materializa
			// o registro (Version 0 => INSERT condicional no repositório).
			a = domain.NovaAssinaturaFree(evt.UserID)
		}

		t := domain.Transicao{
			UserID:   evt.UserID,
			TierDe:   a.Tier,
			StatusDe: a.Status,
			Evento:   evt.Kind,
			Valor:    evt.Amount,
		}

		// Regra de obsolescência: um evento mais antigo que o último
		// aplicado é ignorado — exceto cancelamento dentro do período
		// vigente, que nunca é "desfeito" por uma renovação atrasada.
		if r.eventoObsoleto(a, evt) {
			t.TierPara, t.StatusPara = a.Tier, a.Status
			slog.Info("Evento obsoleto ignorado",
				"user_id", evt.UserID, "evento", evt.Kind,
				"occurred_at", evt.OccurredAt, "last_event_at", a.LastEventAt)
			reconciliacoesTotal.WithLabelValues(string(evt.Kind), "obsoleta").Inc()
			return &t, nil
		}

		aplicar := r.decidir(a, evt)
		t.TierPara, t.StatusPara = a.Tier, a.Status
		if !aplicar {
			slog.Info("Evento sem efeito sobre o registro",
				"user_id", evt.UserID, "evento", evt.Kind)
			reconciliacoesTotal.WithLabelValues(string(evt.Kind), "noop").Inc()
			return &t, nil
		}

		if evt.OccurredAt.After(a.LastEventAt) {
			a.LastEventAt = evt.OccurredAt
		}
		a.UpdatedAt = r.now().UTC()

		err = r.repo.ApplyTransition(ctx, a, evt.RawEventID)
		switch {
		case err == nil:
			t.Aplicada = true
			slog.Info("Reconciliação aplicada",
				"user_id", evt.UserID, "evento", evt.Kind,
				"tier", fmt.Sprintf("%s->%s", t.TierDe, t.TierPara),
				"status", fmt.Sprintf("%s->%s", t.StatusDe, t.StatusPara))
			reconciliacoesTotal.WithLabelValues(string(evt.Kind), "aplicada").Inc()
			r.notificar(ctx, t, *a)
			return &t, nil

		case errors.Is(err, domain.ErrEventoDuplicado):
			// Replay do mesmo raw_event_id: no-op reconhecido com sucesso.
			slog.Info("Evento duplicado ignorado",
				"user_id", evt.UserID, "raw_event_id", evt.RawEventID)
			reconciliacoesTotal.WithLabelValues(string(evt.Kind), "duplicada").Inc()
			t.TierPara, t.StatusPara = t.TierDe, t.StatusDe
			return &t, nil

		case errors.Is(err, domain.ErrConflitoDeVersao):
			// Outra reconciliação venceu a corrida: relê o estado e
			// reavalia — o evento pode ter virado no-op ou obsoleto.
			slog.Warn("Conflito de versão, reavaliando",
				"user_id", evt.UserID, "tentativa", tentativa+1)
			ultimoErr = err
			continue

		default:
			reconciliacoesTotal.WithLabelValues(string(evt.Kind), "falha").Inc()
			return nil, err
		}
	}

	reconciliacoesTotal.WithLabelValues(string(evt.Kind), "falha").Inc()
	return nil, fmt.Errorf("%w: %w", domain.ErrReconciliacaoFalhou, ultimoErr)
}

// eventoObsoleto implementa a regra last-writer-by-occurredAt com a exceção
// de precedência do cancelamento.
func (r *Reconciler) eventoObsoleto(a *domain.Assinatura, evt domain.BillingEvent) bool {
	if a.LastEventAt.IsZero() || !evt.OccurredAt.Before(a.LastEventAt) {
		return false
	}
	// A precedência vale só para cancelamentos reais do provedor. O
	// cancelamento sintético da varredura é datado do period_end antigo;
	// numa renovação contígua esse instante cai dentro do período novo e a
	// exceção rebaixaria um registro recém-renovado.
	if evt.Kind == domain.KindSubscriptionCanceled && !evt.Sintetico &&
		!evt.OccurredAt.Before(a.PeriodStart) {
		// Cancelamento dentro do período vigente sempre prevalece.
		return false
	}
	return true
}

// decidir aplica a tabela de transição de assinatura ao registro,
// mutando-o in place. Retorna false quando o evento não produz escrita.
func (r *Reconciler) decidir(a *domain.Assinatura, evt domain.BillingEvent) bool {
	switch evt.Kind {
	case domain.KindCheckoutCompleted, domain.KindSubscriptionActivated:
		// Nova assinatura (ou reativação). Se a referência de assinatura
		// muda, a antiga é preservada no campo de histórico — nunca
		// sobrescrita em silêncio.
		if a.StripeSubscriptionID != "" && evt.StripeSubscriptionID != "" &&
			a.StripeSubscriptionID != evt.StripeSubscriptionID {
			a.PreviousSubscriptionID = a.StripeSubscriptionID
		}
		if evt.StripeSubscriptionID != "" {
			a.StripeSubscriptionID = evt.StripeSubscriptionID
		}
		if evt.StripeCustomerID != "" {
			a.StripeCustomerID = evt.StripeCustomerID
		}
		a.Tier = domain.TierPremium
		a.Status = domain.StatusActive
		if evt.ProviderStatus == domain.StatusTrialing {
			a.Status = domain.StatusTrialing
		}
		a.PeriodStart = evt.PeriodStart
		a.PeriodEnd = evt.PeriodEnd
		a.CancelAtPeriodEnd = evt.CancelAtPeriodEnd
		return true

	case domain.KindSubscriptionRenewed:
		a.Tier = domain.TierPremium
		a.Status = domain.StatusActive
		if !evt.PeriodStart.IsZero() {
			a.PeriodStart = evt.PeriodStart
		}
		if !evt.PeriodEnd.IsZero() {
			a.PeriodEnd = evt.PeriodEnd
		}
		a.CancelAtPeriodEnd = false
		if evt.StripeSubscriptionID != "" && a.StripeSubscriptionID == "" {
			a.StripeSubscriptionID = evt.StripeSubscriptionID
		}
		if evt.StripeCustomerID != "" && a.StripeCustomerID == "" {
			a.StripeCustomerID = evt.StripeCustomerID
		}
		return true

	case domain.KindSubscriptionCanceled:
		if evt.Sintetico && a.PeriodEnd.After(evt.OccurredAt) {
			// O registro foi renovado entre a listagem da varredura e a
			// reconciliação: a expiração sintética não vale mais.
			return false
		}
		if evt.CancelAtPeriodEnd && a.Tier == domain.TierPremium {
			// Rebaixamento adiado: acesso mantido até PeriodEnd; a
			// varredura de expiração completa a demoção.
			if a.CancelAtPeriodEnd {
				return false
			}
			a.CancelAtPeriodEnd = true
			return true
		}
		if a.Tier == domain.TierFree && a.Status == domain.StatusCanceled {
			return false
		}
		a.Tier = domain.TierFree
		a.Status = domain.StatusCanceled
		a.CancelAtPeriodEnd = false
		return true

	case domain.KindPaymentFailed:
		// Política de carência: o acesso premium é mantido até PeriodEnd,
		// apenas o status muda para past_due.
		if a.Tier != domain.TierPremium || a.Status == domain.StatusPastDue {
			return false
		}
		a.Status = domain.StatusPastDue
		return true
	}

	return false
}

// notificar dispara o efeito colateral de forma assíncrona: falha de
// notificação jamais desfaz ou atrasa a mutação já commitada.
func (r *Reconciler) notificar(ctx context.Context, t domain.Transicao, a domain.Assinatura) {
	if r.notifier == nil || !t.MudouAcesso() {
		return
	}
	go r.notifier.NotifyTransition(context.WithoutCancel(ctx), t, a)
}
