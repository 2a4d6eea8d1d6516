package domain

import "time"

// Tier representa o nível de acesso do usuário.
// Qualquer valor fora desta enumeração é um erro de normalização,
// nunca uma string aceita silenciosamente.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier valida uma string vinda de fora (payload, banco, operador).
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	}
	return "", ErrTierInvalido
}

// Status espelha o vocabulário de status do provedor de cobrança (Stripe).
type Status string

const (
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusPaused     Status = "paused"
)

// ParseStatus valida um status vindo do provedor contra a enumeração fechada.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusPastDue, StatusCanceled, StatusIncomplete, StatusTrialing, StatusPaused:
		return Status(s), nil
	}
	return "", ErrStatusInvalido
}

// Assinatura é o registro de entitlement de um usuário: a fonte da verdade
// interna sobre o que ele pode acessar. Existe no máximo um registro por
// usuário; ele é criado na primeira reconciliação e nunca é deletado,
// apenas rebaixado para free/canceled (preserva histórico para suporte).
type Assinatura struct {
	UserID string `json:"user_id"`

	Tier   Tier   `json:"tier"`
	Status Status `json:"status"`

	// Intervalo pago vigente. PeriodEnd é o instante autoritativo de expiração.
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// Se true, o registro deve ser rebaixado em PeriodEnd em vez de renovar.
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`

	// Referências opacas no Stripe (ex: "cus_...", "sub_...").
	// Usadas para correlacionar eventos quando o user_id não vem no payload.
	StripeCustomerID     string `json:"-"`
	StripeSubscriptionID string `json:"-"`

	// Assinatura anterior quando a referência é substituída por um evento
	// explícito de nova assinatura. Nunca sobrescrevemos sub_... diferente
	// sem guardar o antigo aqui.
	PreviousSubscriptionID string `json:"-"`

	// Instante (occurred_at) do último evento aplicado. É a âncora da regra
	// de obsolescência: eventos mais antigos que isto são ignorados.
	LastEventAt time.Time `json:"-"`

	// Carimbo da última reconciliação e contador de versão para a escrita
	// condicional (concorrência otimista).
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"-"`
}

// NovaAssinaturaFree é o registro padrão de quem nunca gerou evento de
// cobrança. O endpoint de consulta responde com ele sem persistir nada.
func NovaAssinaturaFree(userID string) *Assinatura {
	return &Assinatura{
		UserID: userID,
		Tier:   TierFree,
		Status: StatusCanceled,
	}
}

// PremiumAtivo é a ÚNICA derivação de "tem acesso premium agora?".
// Nenhum chamador deve reimplementar esta regra a partir dos campos crus.
func (a *Assinatura) PremiumAtivo(now time.Time) bool {
	if a == nil {
		return false
	}
	if a.Tier != TierPremium {
		return false
	}
	if a.Status != StatusActive && a.Status != StatusTrialing && a.Status != StatusPastDue {
		return false
	}
	// past_due mantém acesso até o fim do período pago (política de carência).
	return a.PeriodEnd.After(now)
}

// Notificacao é o registro visível ao usuário de uma transição de
// entitlement, gravado pelo Notifier em melhor esforço.
type Notificacao struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TierDe     Tier      `json:"tier_de"`
	TierPara   Tier      `json:"tier_para"`
	StatusDe   Status    `json:"status_de"`
	StatusPara Status    `json:"status_para"`
	Mensagem   string    `json:"mensagem"`
	CreatedAt  time.Time `json:"created_at"`
}
