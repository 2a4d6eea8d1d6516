package service

import (
	"context"
	"time"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
)

// EntitlementView é a resposta da consulta de entitlement. Todos os
// chamadores (dashboard, calculadoras, área premium) consultam ESTA
// interface — ninguém rederiva "tem acesso?" a partir dos campos crus.
type EntitlementView struct {
	UserID            string        `json:"user_id"`
	Tier              domain.Tier   `json:"tier"`
	Status            domain.Status `json:"status"`
	PeriodEnd         *time.Time    `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool          `json:"cancel_at_period_end"`
	PremiumAtivo      bool          `json:"premium_ativo"`
}

// ConsultaService é o caminho de leitura: sem efeitos colaterais.
type ConsultaService struct {
	repo repository.AssinaturaRepository
	now  func() time.Time
}

func NewConsultaService(repo repository.AssinaturaRepository) *ConsultaService {
	return &ConsultaService{
		repo: repo,
		now:  time.Now,
	}
}

// GetEntitlement responde o estado vigente do usuário. Quem nunca gerou
// evento de cobrança recebe o padrão free — respondido virtualmente, sem
// persistir nada (a criação preguiçosa acontece no primeiro evento).
func (s *ConsultaService) GetEntitlement(ctx context.Context, userID string) (*EntitlementView, error) {
	a, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		a = domain.NovaAssinaturaFree(userID)
	}

	view := &EntitlementView{
		UserID:            a.UserID,
		Tier:              a.Tier,
		Status:            a.Status,
		CancelAtPeriodEnd: a.CancelAtPeriodEnd,
		PremiumAtivo:      a.PremiumAtivo(s.now()),
	}
	if !a.PeriodEnd.IsZero() {
		pe := a.PeriodEnd
		view.PeriodEnd = &pe
	}
	return view, nil
}

// ListNotifications retorna o histórico de notificações de entitlement.
func (s *ConsultaService) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notificacao, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListNotificationsByUser(ctx, userID, limit)
}
