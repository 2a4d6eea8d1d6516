package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/migrations"
)

func novoBancoDeTeste(t *testing.T) AssinaturaRepository {
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

	return NewSQLiteRepository(db)
}

func assinaturaDeTeste(userID string) *domain.Assinatura {
	return &domain.Assinatura{
		UserID:               userID,
		Tier:                 domain.TierPremium,
		Status:               domain.StatusActive,
		PeriodStart:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:            time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		LastEventAt:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:            time.Now().UTC(),
	}
}

func TestSQLiteRepository_ApplyTransition(t *testing.T) {
	t.Run("primeiro evento insere o registro com versão 1", func(t *testing.T) {
		repo := novoBancoDeTeste(t)
		ctx := context.Background()

		a := assinaturaDeTeste("user-1")
		err := repo.ApplyTransition(ctx, a, "evt_1")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), a.Version)

		lido, err := repo.GetByUserID(ctx, "user-1")
		assert.NoError(t, err)
		assert.Equal(t, domain.TierPremium, lido.Tier)
		assert.Equal(t, "sub_1", lido.StripeSubscriptionID)
	})

	t.Run("mesmo raw_event_id é rejeitado como duplicado", func(t *testing.T) {
		repo := novoBancoDeTeste(t)
		ctx := context.Background()

		a := assinaturaDeTeste("user-1")
		assert.NoError(t, repo.ApplyTransition(ctx, a, "evt_1"))

		err := repo.ApplyTransition(ctx, a, "evt_1")
		assert.ErrorIs(t, err, domain.ErrEventoDuplicado)
	})

	t.Run("versão defasada é rejeitada como conflito", func(t *testing.T) {
		repo := novoBancoDeTeste(t)
		ctx := context.Background()

		a := assinaturaDeTeste("user-1")
		assert.NoError(t, repo.ApplyTransition(ctx, a, "evt_1"))

		// Duas cópias partindo da mesma versão: a segunda escrita perde.
		copia1 := *a
		copia2 := *a
		assert.NoError(t, repo.ApplyTransition(ctx, &copia1, "evt_2"))

		err := repo.ApplyTransition(ctx, &copia2, "evt_3")
		assert.ErrorIs(t, err, domain.ErrConflitoDeVersao)

		// O rollback do conflito não pode ter consumido o raw_event_id.
		copia2.Version = copia1.Version
		assert.NoError(t, repo.ApplyTransition(ctx, &copia2, "evt_3"))
	})

	t.Run("inserção concorrente do mesmo usuário é conflito", func(t *testing.T) {
		repo := novoBancoDeTeste(t)
		ctx := context.Background()

		a := assinaturaDeTeste("user-1")
		assert.NoError(t, repo.ApplyTransition(ctx, a, "evt_1"))

		outra := assinaturaDeTeste("user-1") // Version 0 => tenta INSERT
		err := repo.ApplyTransition(ctx, outra, "evt_2")
		assert.ErrorIs(t, err, domain.ErrConflitoDeVersao)
	})
}

func TestSQLiteRepository_GetByStripeCustomerID(t *testing.T) {
	repo := novoBancoDeTeste(t)
	ctx := context.Background()

	assert.NoError(t, repo.ApplyTransition(ctx, assinaturaDeTeste("user-1"), "evt_1"))

	a, err := repo.GetByStripeCustomerID(ctx, "cus_1")
	assert.NoError(t, err)
	assert.Equal(t, "user-1", a.UserID)

	ausente, err := repo.GetByStripeCustomerID(ctx, "cus_999")
	assert.NoError(t, err)
	assert.Nil(t, ausente)
}

func TestSQLiteRepository_ListExpired(t *testing.T) {
	repo := novoBancoDeTeste(t)
	ctx := context.Background()

	vencida := assinaturaDeTeste("user-vencida")
	assert.NoError(t, repo.ApplyTransition(ctx, vencida, "evt_1"))

	vigente := assinaturaDeTeste("user-vigente")
	vigente.StripeCustomerID = "cus_2"
	vigente.PeriodEnd = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, repo.ApplyTransition(ctx, vigente, "evt_2"))

	gratuita := assinaturaDeTeste("user-free")
	gratuita.StripeCustomerID = "cus_3"
	gratuita.Tier = domain.TierFree
	gratuita.Status = domain.StatusCanceled
	assert.NoError(t, repo.ApplyTransition(ctx, gratuita, "evt_3"))

	expiradas, err := repo.ListExpired(ctx, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), 100)
	assert.NoError(t, err)
	assert.Len(t, expiradas, 1)
	assert.Equal(t, "user-vencida", expiradas[0].UserID)
}

func TestSQLiteRepository_Notificacoes(t *testing.T) {
	repo := novoBancoDeTeste(t)
	ctx := context.Background()

	n := domain.Notificacao{
		ID:         "n-1",
		UserID:     "user-1",
		TierDe:     domain.TierFree,
		TierPara:   domain.TierPremium,
		StatusDe:   domain.StatusCanceled,
		StatusPara: domain.StatusActive,
		Mensagem:   "Sua assinatura premium está ativa.",
		CreatedAt:  time.Now().UTC(),
	}
	assert.NoError(t, repo.SaveNotification(ctx, n))

	lista, err := repo.ListNotificationsByUser(ctx, "user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, lista, 1)
	assert.Equal(t, domain.TierPremium, lista[0].TierPara)

	vazia, err := repo.ListNotificationsByUser(ctx, "user-2", 10)
	assert.NoError(t, err)
	assert.Empty(t, vazia)
}
