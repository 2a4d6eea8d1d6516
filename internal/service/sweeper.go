package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
)

// Sweeper é a varredura periódica de expiração: rebaixa registros premium
// cujo período pago venceu sem sinal de renovação. Ela NUNCA escreve no
// banco diretamente — sintetiza um evento de cancelamento e o alimenta no
// Reconciler, preservando o caminho único de mutação.
type Sweeper struct {
	repo       repository.AssinaturaRepository
	reconciler *Reconciler

	intervalo time.Duration
	lote      int
	now       func() time.Time
}

// ResultadoVarredura resume uma passada, para logs e para o endpoint
// administrativo de disparo manual.
type ResultadoVarredura struct {
	Examinadas int  `json:"examinadas"`
	Rebaixadas int  `json:"rebaixadas"`
	Falhas     int  `json:"falhas"`
	DryRun     bool `json:"dry_run"`
}

func NewSweeper(repo repository.AssinaturaRepository, reconciler *Reconciler, intervalo time.Duration) *Sweeper {
	return &Sweeper{
		repo:       repo,
		reconciler: reconciler,
		intervalo:  intervalo,
		lote:       500,
		now:        time.Now,
	}
}

// Run executa a varredura no intervalo configurado até o contexto ser
// cancelado. Pensado para rodar em uma goroutine a partir do main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.intervalo)
	defer ticker.Stop()

	slog.Info("Varredura de expiração agendada", "intervalo", s.intervalo.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("Varredura de expiração encerrada")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx, false); err != nil {
				slog.Error("Falha na varredura de expiração", "error", err)
			}
		}
	}
}

// SweepOnce faz uma passada única. É idempotente e segura contra execuções
// sobrepostas: registros já rebaixados saem do predicado de busca, e uma
// renovação que chegue no meio da passada vence pela concorrência otimista
// do Reconciler (occurred_at mais novo).
func (s *Sweeper) SweepOnce(ctx context.Context, dryRun bool) (*ResultadoVarredura, error) {
	agora := s.now().UTC()
	expiradas, err := s.repo.ListExpired(ctx, agora, s.lote)
	if err != nil {
		return nil, err
	}

	res := &ResultadoVarredura{Examinadas: len(expiradas), DryRun: dryRun}
	for _, a := range expiradas {
		if dryRun {
			slog.Info("Varredura (dry run): registro expirado",
				"user_id", a.UserID, "period_end", a.PeriodEnd)
			continue
		}

		// Evento sintético: cancelamento imediato datado do fim do período.
		// A marca Sintetico nega a precedência de cancelamento, então uma
		// renovação que chegue entre a listagem e esta chamada prevalece.
		evt := domain.BillingEvent{
			Kind:                 domain.KindSubscriptionCanceled,
			UserID:               a.UserID,
			StripeCustomerID:     a.StripeCustomerID,
			StripeSubscriptionID: a.StripeSubscriptionID,
			CancelAtPeriodEnd:    false,
			Sintetico:            true,
			RawEventID:           "sweep-" + uuid.NewString(),
			OccurredAt:           a.PeriodEnd,
		}

		t, err := s.reconciler.Process(ctx, evt)
		if err != nil {
			res.Falhas++
			slog.Error("Falha ao rebaixar assinatura expirada",
				"user_id", a.UserID, "error", err)
			continue
		}
		if t.Aplicada {
			res.Rebaixadas++
		}
	}

	slog.Info("Varredura de expiração concluída",
		"examinadas", res.Examinadas, "rebaixadas", res.Rebaixadas,
		"falhas", res.Falhas, "dry_run", dryRun)
	return res, nil
}
