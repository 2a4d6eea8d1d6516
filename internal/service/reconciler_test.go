package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
	"github.com/bakiye360/go-entitlement-api/migrations"
)

// novoRepoDeTeste abre um SQLite em memória com o schema real das migrações.
func novoRepoDeTeste(t *testing.T) repository.AssinaturaRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	assert.NoError(t, err)
	// Cada conexão de um ':memory:' é um banco distinto; o pool precisa
	// ficar em uma só.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := migrations.FS.ReadFile("0001_criar_tabelas.up.sql")
	assert.NoError(t, err)
	_, err = db.Exec(string(schema))
	assert.NoError(t, err)

	return repository.NewSQLiteRepository(db)
}

func dataUTC(ano int, mes time.Month, dia int) time.Time {
	return time.Date(ano, mes, dia, 12, 0, 0, 0, time.UTC)
}

func eventoCheckout(userID, rawID string, inicio, fim time.Time) domain.BillingEvent {
	return domain.BillingEvent{
		Kind:                 domain.KindCheckoutCompleted,
		UserID:               userID,
		StripeCustomerID:     "cus_123",
		StripeSubscriptionID: "sub_123",
		PeriodStart:          inicio,
		PeriodEnd:            fim,
		ProviderStatus:       domain.StatusActive,
		RawEventID:           rawID,
		OccurredAt:           inicio,
	}
}

func TestReconciler_Idempotencia(t *testing.T) {
	t.Run("replay do mesmo raw_event_id deve produzir exatamente uma transição", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		evt := eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1))

		t1, err := r.Process(ctx, evt)
		assert.NoError(t, err)
		assert.True(t, t1.Aplicada)

		depoisDeUma, err := repo.GetByUserID(ctx, "user-1")
		assert.NoError(t, err)

		// N replays não mudam nada.
		for i := 0; i < 5; i++ {
			tn, err := r.Process(ctx, evt)
			assert.NoError(t, err)
			assert.False(t, tn.Aplicada)
		}

		depoisDeN, err := repo.GetByUserID(ctx, "user-1")
		assert.NoError(t, err)
		assert.Equal(t, depoisDeUma, depoisDeN)
		assert.Equal(t, domain.TierPremium, depoisDeN.Tier)
		assert.Equal(t, domain.StatusActive, depoisDeN.Status)
	})
}

func TestReconciler_Obsolescencia(t *testing.T) {
	t.Run("evento com occurred_at anterior ao último aplicado é ignorado", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		evt := eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1))
		evt.OccurredAt = dataUTC(2026, 1, 10)
		_, err := r.Process(ctx, evt)
		assert.NoError(t, err)

		antes, _ := repo.GetByUserID(ctx, "user-1")

		// Renovação atrasada, datada de antes do checkout.
		atrasado := domain.BillingEvent{
			Kind:        domain.KindSubscriptionRenewed,
			UserID:      "user-1",
			PeriodStart: dataUTC(2025, 12, 1),
			PeriodEnd:   dataUTC(2026, 1, 1),
			RawEventID:  "evt_velho",
			OccurredAt:  dataUTC(2026, 1, 5),
		}
		tr, err := r.Process(ctx, atrasado)
		assert.NoError(t, err)
		assert.False(t, tr.Aplicada)

		depois, _ := repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, antes, depois)
	})
}

func TestReconciler_PrecedenciaDeCancelamento(t *testing.T) {
	t.Run("cancelamento dentro do período vigente prevalece mesmo chegando atrasado", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		_, err := r.Process(ctx, eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
		assert.NoError(t, err)

		// Renovação aplicada em 20/01 move o last_event_at para frente.
		_, err = r.Process(ctx, domain.BillingEvent{
			Kind:        domain.KindSubscriptionRenewed,
			UserID:      "user-1",
			PeriodStart: dataUTC(2026, 1, 1),
			PeriodEnd:   dataUTC(2026, 2, 1),
			RawEventID:  "evt_renova",
			OccurredAt:  dataUTC(2026, 1, 20),
		})
		assert.NoError(t, err)

		// Cancelamento datado de 15/01: mais antigo que a renovação, mas
		// dentro do período vigente — deve ser aplicado mesmo assim.
		tc, err := r.Process(ctx, domain.BillingEvent{
			Kind:       domain.KindSubscriptionCanceled,
			UserID:     "user-1",
			RawEventID: "evt_cancela",
			OccurredAt: dataUTC(2026, 1, 15),
		})
		assert.NoError(t, err)
		assert.True(t, tc.Aplicada)

		a, _ := repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, domain.TierFree, a.Tier)
		assert.Equal(t, domain.StatusCanceled, a.Status)

		// Replay fora de ordem de uma renovação ainda mais antiga não
		// "desfaz" o cancelamento.
		tr, err := r.Process(ctx, domain.BillingEvent{
			Kind:       domain.KindSubscriptionRenewed,
			UserID:     "user-1",
			PeriodEnd:  dataUTC(2026, 2, 1),
			RawEventID: "evt_renova_velha",
			OccurredAt: dataUTC(2026, 1, 10),
		})
		assert.NoError(t, err)
		assert.False(t, tr.Aplicada)

		a, _ = repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, domain.TierFree, a.Tier)
	})
}

func TestReconciler_FalhaDePagamento(t *testing.T) {
	t.Run("past_due mantém o acesso até o fim do período (carência)", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		_, err := r.Process(ctx, eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
		assert.NoError(t, err)

		tf, err := r.Process(ctx, domain.BillingEvent{
			Kind:       domain.KindPaymentFailed,
			UserID:     "user-1",
			RawEventID: "evt_falha",
			OccurredAt: dataUTC(2026, 1, 20),
		})
		assert.NoError(t, err)
		assert.True(t, tf.Aplicada)

		a, _ := repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, domain.TierPremium, a.Tier)
		assert.Equal(t, domain.StatusPastDue, a.Status)
		assert.True(t, a.PremiumAtivo(dataUTC(2026, 1, 25)))
		assert.False(t, a.PremiumAtivo(dataUTC(2026, 2, 2)))
	})

	t.Run("renovação após past_due volta para active", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		_, _ = r.Process(ctx, eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
		_, _ = r.Process(ctx, domain.BillingEvent{
			Kind: domain.KindPaymentFailed, UserID: "user-1",
			RawEventID: "evt_falha", OccurredAt: dataUTC(2026, 1, 20),
		})

		_, err := r.Process(ctx, domain.BillingEvent{
			Kind: domain.KindSubscriptionRenewed, UserID: "user-1",
			PeriodStart: dataUTC(2026, 2, 1), PeriodEnd: dataUTC(2026, 3, 1),
			RawEventID: "evt_renova", OccurredAt: dataUTC(2026, 1, 22),
		})
		assert.NoError(t, err)

		a, _ := repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, domain.StatusActive, a.Status)
		assert.Equal(t, dataUTC(2026, 3, 1), a.PeriodEnd.UTC())
	})
}

func TestReconciler_CorridaEntreEventos(t *testing.T) {
	// PaymentFailed(T) e SubscriptionRenewed(T+1) submetidos em qualquer
	// ordem de chegada devem convergir para premium/active.
	cenarios := []struct {
		nome     string
		primeiro domain.EventKind
	}{
		{"falha chega antes da renovação", domain.KindPaymentFailed},
		{"renovação chega antes da falha", domain.KindSubscriptionRenewed},
	}

	for _, c := range cenarios {
		t.Run(c.nome, func(t *testing.T) {
			repo := novoRepoDeTeste(t)
			r := NewReconciler(repo, nil)
			ctx := context.Background()

			_, err := r.Process(ctx, eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
			assert.NoError(t, err)

			falha := domain.BillingEvent{
				Kind: domain.KindPaymentFailed, UserID: "user-1",
				RawEventID: "evt_falha", OccurredAt: dataUTC(2026, 1, 20),
			}
			renovacao := domain.BillingEvent{
				Kind: domain.KindSubscriptionRenewed, UserID: "user-1",
				PeriodStart: dataUTC(2026, 1, 1), PeriodEnd: dataUTC(2026, 2, 1),
				RawEventID: "evt_renova", OccurredAt: dataUTC(2026, 1, 21),
			}

			ordem := []domain.BillingEvent{falha, renovacao}
			if c.primeiro == domain.KindSubscriptionRenewed {
				ordem = []domain.BillingEvent{renovacao, falha}
			}
			for _, evt := range ordem {
				_, err := r.Process(ctx, evt)
				assert.NoError(t, err)
			}

			a, _ := repo.GetByUserID(ctx, "user-1")
			assert.Equal(t, domain.TierPremium, a.Tier)
			assert.Equal(t, domain.StatusActive, a.Status)
		})
	}
}

func TestReconciler_SubstituicaoDeReferencia(t *testing.T) {
	t.Run("nova assinatura preserva a referência antiga no histórico", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		r := NewReconciler(repo, nil)
		ctx := context.Background()

		_, err := r.Process(ctx, eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
		assert.NoError(t, err)

		_, err = r.Process(ctx, domain.BillingEvent{
			Kind:                 domain.KindSubscriptionActivated,
			UserID:               "user-1",
			StripeCustomerID:     "cus_123",
			StripeSubscriptionID: "sub_456",
			PeriodStart:          dataUTC(2026, 3, 1),
			PeriodEnd:            dataUTC(2026, 4, 1),
			ProviderStatus:       domain.StatusActive,
			RawEventID:           "evt_nova",
			OccurredAt:           dataUTC(2026, 3, 1),
		})
		assert.NoError(t, err)

		a, _ := repo.GetByUserID(ctx, "user-1")
		assert.Equal(t, "sub_456", a.StripeSubscriptionID)
		assert.Equal(t, "sub_123", a.PreviousSubscriptionID)
	})
}

// mockNotifier captura as transições notificadas (o disparo é assíncrono).
type mockNotifier struct {
	mu         sync.Mutex
	transicoes []domain.Transicao
	recebido   chan struct{}
}

func (m *mockNotifier) NotifyTransition(_ context.Context, t domain.Transicao, _ domain.Assinatura) {
	m.mu.Lock()
	m.transicoes = append(m.transicoes, t)
	m.mu.Unlock()
	m.recebido <- struct{}{}
}

func TestReconciler_Notificacao(t *testing.T) {
	t.Run("transição que muda acesso aciona o notifier", func(t *testing.T) {
		repo := novoRepoDeTeste(t)
		notifier := &mockNotifier{recebido: make(chan struct{}, 1)}
		r := NewReconciler(repo, notifier)

		_, err := r.Process(context.Background(),
			eventoCheckout("user-1", "evt_1", dataUTC(2026, 1, 1), dataUTC(2026, 2, 1)))
		assert.NoError(t, err)

		select {
		case <-notifier.recebido:
		case <-time.After(2 * time.Second):
			t.Fatal("notifier não foi acionado")
		}

		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		assert.Len(t, notifier.transicoes, 1)
		assert.Equal(t, domain.TierFree, notifier.transicoes[0].TierDe)
		assert.Equal(t, domain.TierPremium, notifier.transicoes[0].TierPara)
	})
}
