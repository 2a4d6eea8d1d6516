package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
)

// AssinaturaRepository define a interface de persistência dos registros de
// entitlement. Usar uma interface nos permite 'mockar' o repositório em
// testes e trocar a implementação do banco de dados facilmente.
type AssinaturaRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Assinatura, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Assinatura, error)

	// ApplyTransition é o ÚNICO caminho de escrita do registro de assinatura.
	// Em uma única transação: registra o raw_event_id na tabela de
	// deduplicação (violação de chave => ErrEventoDuplicado) e grava o
	// registro com escrita condicional na versão esperada
	// (nenhuma linha afetada => ErrConflitoDeVersao).
	ApplyTransition(ctx context.Context, a *domain.Assinatura, rawEventID string) error

	// ListExpired retorna registros premium cujo período pago já venceu —
	// a entrada da varredura de expiração.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Assinatura, error)

	SaveNotification(ctx context.Context, n domain.Notificacao) error
	ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.Notificacao, error)
}

// sqliteRepository é a implementação do AssinaturaRepository para SQLite.
type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository cria uma nova instância do repositório sobre a
// conexão fornecida.
func NewSQLiteRepository(db *sql.DB) AssinaturaRepository {
	return &sqliteRepository{
		db: db,
	}
}

const colunasAssinatura = `user_id, tier, status, period_start, period_end,
	cancel_at_period_end, stripe_customer_id, stripe_subscription_id,
	previous_subscription_id, last_event_at, updated_at, version`

func scanAssinatura(row *sql.Row) (*domain.Assinatura, error) {
	var a domain.Assinatura
	var periodStart, periodEnd, lastEventAt sql.NullTime
	err := row.Scan(
		&a.UserID, &a.Tier, &a.Status, &periodStart, &periodEnd,
		&a.CancelAtPeriodEnd, &a.StripeCustomerID, &a.StripeSubscriptionID,
		&a.PreviousSubscriptionID, &lastEventAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Retorna nil, nil se o registro não existir — criação é
			// responsabilidade do Reconciler, nunca da leitura.
			return nil, nil
		}
		return nil, err
	}
	a.PeriodStart = periodStart.Time
	a.PeriodEnd = periodEnd.Time
	a.LastEventAt = lastEventAt.Time
	return &a, nil
}

func (r *sqliteRepository) GetByUserID(ctx context.Context, userID string) (*domain.Assinatura, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+colunasAssinatura+" FROM assinaturas WHERE user_id = ?", userID)
	return scanAssinatura(row)
}

func (r *sqliteRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Assinatura, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+colunasAssinatura+" FROM assinaturas WHERE stripe_customer_id = ?", customerID)
	return scanAssinatura(row)
}

// violacaoDeChave identifica erro de constraint UNIQUE/PRIMARY KEY do driver.
func violacaoDeChave(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

func (r *sqliteRepository) ApplyTransition(ctx context.Context, a *domain.Assinatura, rawEventID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Deduplicação: a chave primária (user_id, raw_event_id) transforma
	// a segunda entrega do mesmo evento em violação de constraint.
	_, err = tx.ExecContext(ctx,
		"INSERT INTO eventos_processados(user_id, raw_event_id, processed_at) VALUES(?, ?, ?)",
		a.UserID, rawEventID, time.Now().UTC())
	if err != nil {
		if violacaoDeChave(err) {
			return domain.ErrEventoDuplicado
		}
		return err
	}

	// 2. Escrita condicional na versão esperada (concorrência otimista).
	if a.Version == 0 {
		// Primeiro evento deste usuário: INSERT. Se outra reconciliação
		// inseriu no meio do caminho, a PK de user_id acusa o conflito.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assinaturas(`+colunasAssinatura+`)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			a.UserID, a.Tier, a.Status, a.PeriodStart, a.PeriodEnd,
			a.CancelAtPeriodEnd, a.StripeCustomerID, a.StripeSubscriptionID,
			a.PreviousSubscriptionID, a.LastEventAt, a.UpdatedAt)
		if err != nil {
			if violacaoDeChave(err) {
				return domain.ErrConflitoDeVersao
			}
			return err
		}
		a.Version = 1
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE assinaturas SET
				tier = ?, status = ?, period_start = ?, period_end = ?,
				cancel_at_period_end = ?, stripe_customer_id = ?,
				stripe_subscription_id = ?, previous_subscription_id = ?,
				last_event_at = ?, updated_at = ?, version = version + 1
			WHERE user_id = ? AND version = ?`,
			a.Tier, a.Status, a.PeriodStart, a.PeriodEnd,
			a.CancelAtPeriodEnd, a.StripeCustomerID, a.StripeSubscriptionID,
			a.PreviousSubscriptionID, a.LastEventAt, a.UpdatedAt,
			a.UserID, a.Version)
		if err != nil {
			return err
		}
		afetadas, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if afetadas == 0 {
			// Outra escrita venceu a corrida: o chamador deve reler o
			// estado e reavaliar a decisão de reconciliação.
			return domain.ErrConflitoDeVersao
		}
		a.Version++
	}

	return tx.Commit()
}

func (r *sqliteRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Assinatura, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+colunasAssinatura+`
		FROM assinaturas
		WHERE tier = ? AND period_end < ?
		ORDER BY period_end
		LIMIT ?`,
		domain.TierPremium, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assinaturas []domain.Assinatura
	for rows.Next() {
		var a domain.Assinatura
		var periodStart, periodEnd, lastEventAt sql.NullTime
		if err := rows.Scan(
			&a.UserID, &a.Tier, &a.Status, &periodStart, &periodEnd,
			&a.CancelAtPeriodEnd, &a.StripeCustomerID, &a.StripeSubscriptionID,
			&a.PreviousSubscriptionID, &lastEventAt, &a.UpdatedAt, &a.Version,
		); err != nil {
			return nil, err
		}
		a.PeriodStart = periodStart.Time
		a.PeriodEnd = periodEnd.Time
		a.LastEventAt = lastEventAt.Time
		assinaturas = append(assinaturas, a)
	}
	return assinaturas, rows.Err()
}

func (r *sqliteRepository) SaveNotification(ctx context.Context, n domain.Notificacao) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notificacoes(id, user_id, tier_de, tier_para, status_de, status_para, mensagem, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.TierDe, n.TierPara, n.StatusDe, n.StatusPara, n.Mensagem, n.CreatedAt)
	return err
}

func (r *sqliteRepository) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.Notificacao, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, tier_de, tier_para, status_de, status_para, mensagem, created_at
		FROM notificacoes
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notificacoes []domain.Notificacao
	for rows.Next() {
		var n domain.Notificacao
		if err := rows.Scan(&n.ID, &n.UserID, &n.TierDe, &n.TierPara, &n.StatusDe, &n.StatusPara, &n.Mensagem, &n.CreatedAt); err != nil {
			return nil, err
		}
		notificacoes = append(notificacoes, n)
	}
	return notificacoes, rows.Err()
}
