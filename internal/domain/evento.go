package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind é o conjunto fechado de variantes internas de evento de
// cobrança. O Normalizer converte os tipos do provedor para cá; o
// Reconciler só conhece estas variantes.
type EventKind string

const (
	KindCheckoutCompleted     EventKind = "checkout_completed"
	KindSubscriptionActivated EventKind = "subscription_activated"
	KindSubscriptionRenewed   EventKind = "subscription_renewed"
	KindSubscriptionCanceled  EventKind = "subscription_canceled"
	KindPaymentFailed         EventKind = "payment_failed"
)

// BillingEvent é o formato interno único de notificação de cobrança,
// já autenticado e normalizado. É a única entrada do Reconciler —
// webhooks, varredura de expiração e overrides manuais produzem todos
// a mesma struct.
type BillingEvent struct {
	Kind EventKind

	UserID string

	StripeCustomerID     string
	StripeSubscriptionID string

	PeriodStart time.Time
	PeriodEnd   time.Time

	// Para SubscriptionCanceled: true adia o rebaixamento até PeriodEnd,
	// false rebaixa imediatamente.
	CancelAtPeriodEnd bool

	// Status informado pelo provedor em eventos de ativação, já validado
	// contra a enumeração fechada (active ou trialing). Vazio nos demais.
	ProviderStatus Status

	// Valor cobrado/devido quando o evento vem de uma fatura (renovação ou
	// falha de pagamento). Zero para os demais tipos.
	Amount decimal.Decimal

	// Sintetico marca os cancelamentos gerados pela varredura de expiração.
	// Eles não recebem a precedência de cancelamento: uma renovação
	// concorrente com occurred_at mais novo sempre prevalece.
	Sintetico bool

	// Identificador do evento no provedor (ex: "evt_...") ou sintético
	// ("sweep-...", "override-..."). Chave de deduplicação.
	RawEventID string

	// Instante em que o evento ocorreu no provedor. Base da regra
	// last-writer-by-occurredAt; NÃO é o instante de chegada.
	OccurredAt time.Time
}

// Transicao descreve o efeito de uma reconciliação, para métricas e para o
// Notifier. Aplicada=false significa no-op (duplicado ou obsoleto).
type Transicao struct {
	UserID     string
	Aplicada   bool
	TierDe     Tier
	TierPara   Tier
	StatusDe   Status
	StatusPara Status
	Evento     EventKind

	// Valor da fatura quando a transição veio de um evento de cobrança
	// (renovação ou falha de pagamento). Zero nos demais casos.
	Valor decimal.Decimal
}

// MudouAcesso informa se a transição alterou tier ou status — só nesses
// casos o Notifier é acionado.
func (t Transicao) MudouAcesso() bool {
	return t.Aplicada && (t.TierDe != t.TierPara || t.StatusDe != t.StatusPara)
}
