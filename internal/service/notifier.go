package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
)

// EmailResolver mapeia um user_id para o endereço de e-mail cadastrado.
// O cadastro de contas é um sistema externo; quando nenhum resolver é
// configurado, o Notifier grava apenas o registro de notificação.
type EmailResolver interface {
	EmailDoUsuario(ctx context.Context, userID string) (string, error)
}

// Notifier é o canal lateral de melhor esforço: grava a notificação
// visível ao usuário e, opcionalmente, dispara um e-mail. Falhas aqui são
// logadas e contidas — jamais desfazem ou bloqueiam a mutação de
// entitlement que já foi commitada.
type Notifier struct {
	repo      repository.AssinaturaRepository
	email     EmailService
	enderecos EmailResolver

	timeout time.Duration
}

func NewNotifier(repo repository.AssinaturaRepository, email EmailService, enderecos EmailResolver) *Notifier {
	return &Notifier{
		repo:      repo,
		email:     email,
		enderecos: enderecos,
		timeout:   10 * time.Second,
	}
}

// NotifyTransition implementa TransitionNotifier. At-most-once: nenhum erro
// é propagado nem reprocessado de forma síncrona.
func (n *Notifier) NotifyTransition(ctx context.Context, t domain.Transicao, a domain.Assinatura) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := mensagemDaTransicao(t, a)
	notif := domain.Notificacao{
		ID:         uuid.NewString(),
		UserID:     t.UserID,
		TierDe:     t.TierDe,
		TierPara:   t.TierPara,
		StatusDe:   t.StatusDe,
		StatusPara: t.StatusPara,
		Mensagem:   msg,
		CreatedAt:  time.Now().UTC(),
	}
	if err := n.repo.SaveNotification(ctx, notif); err != nil {
		slog.Error("Falha ao gravar notificação", "user_id", t.UserID, "error", err)
	}

	if n.enderecos == nil {
		return
	}
	destinatario, err := n.enderecos.EmailDoUsuario(ctx, t.UserID)
	if err != nil || destinatario == "" {
		slog.Warn("E-mail do usuário não resolvido, notificação apenas gravada",
			"user_id", t.UserID, "error", err)
		return
	}
	if err := n.email.SendEmail(ctx, destinatario, "Bakiye360 — sua assinatura mudou", "<p>"+msg+"</p>"); err != nil {
		slog.Error("Falha ao enviar e-mail de notificação",
			"user_id", t.UserID, "error", err)
	}
}

func mensagemDaTransicao(t domain.Transicao, a domain.Assinatura) string {
	switch {
	case t.TierDe != domain.TierPremium && t.TierPara == domain.TierPremium:
		return fmt.Sprintf("Sua assinatura premium está ativa até %s.",
			a.PeriodEnd.Format("02/01/2006"))
	case t.TierDe == domain.TierPremium && t.TierPara != domain.TierPremium:
		return "Sua assinatura premium foi encerrada. Você voltou ao plano gratuito."
	case t.StatusPara == domain.StatusPastDue:
		if !t.Valor.IsZero() {
			return fmt.Sprintf("Não conseguimos cobrar %s da sua assinatura. Seu acesso continua até %s.",
				t.Valor.StringFixed(2), a.PeriodEnd.Format("02/01/2006"))
		}
		return fmt.Sprintf("Não conseguimos cobrar sua assinatura. Seu acesso continua até %s.",
			a.PeriodEnd.Format("02/01/2006"))
	case t.StatusDe == domain.StatusPastDue && t.StatusPara == domain.StatusActive:
		if !t.Valor.IsZero() {
			return fmt.Sprintf("Pagamento de %s confirmado. Sua assinatura segue ativa até %s.",
				t.Valor.StringFixed(2), a.PeriodEnd.Format("02/01/2006"))
		}
		return fmt.Sprintf("Pagamento confirmado. Sua assinatura segue ativa até %s.",
			a.PeriodEnd.Format("02/01/2006"))
	default:
		return fmt.Sprintf("Sua assinatura mudou de %s/%s para %s/%s.",
			t.TierDe, t.StatusDe, t.TierPara, t.StatusPara)
	}
}
