package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/subscription"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
)

// UserResolver resolve o usuário dono de um evento quando o payload só traz
// a referência de cliente do Stripe. O AssinaturaRepository satisfaz esta
// interface diretamente.
type UserResolver interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Assinatura, error)
}

// SubscriptionResolver busca os dados completos de uma assinatura no
// provedor quando o payload traz apenas o ID (caso do checkout.session.completed).
type SubscriptionResolver interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// stripeSubscriptionResolver é a implementação real sobre a API da Stripe.
type stripeSubscriptionResolver struct{}

func NewStripeSubscriptionResolver() SubscriptionResolver {
	return stripeSubscriptionResolver{}
}

func (stripeSubscriptionResolver) GetSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return subscription.Get(subscriptionID, nil)
}

// Normalizer converte eventos heterogêneos da Stripe para o formato interno
// único (domain.BillingEvent). O chamador JÁ verificou a autenticidade do
// payload (webhook.ConstructEvent) antes de chegar aqui — o Normalizer não
// toma nenhuma decisão de confiança.
type Normalizer struct {
	users UserResolver
	subs  SubscriptionResolver
}

func NewNormalizer(users UserResolver, subs SubscriptionResolver) *Normalizer {
	return &Normalizer{
		users: users,
		subs:  subs,
	}
}

// Normalize mapeia um evento autenticado da Stripe para um BillingEvent.
// Retorna ErrEventoNaoSuportado para tipos fora do conjunto tratado e
// ErrUsuarioNaoResolvido quando nenhum meio de correlação funciona —
// este último nunca deve ser descartado em silêncio pelo chamador.
func (n *Normalizer) Normalize(ctx context.Context, event stripe.Event) (*domain.BillingEvent, error) {
	switch event.Type {
	case "checkout.session.completed":
		return n.normalizeCheckout(ctx, event)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return n.normalizeSubscription(ctx, event)

	case "invoice.paid", "invoice.payment_succeeded":
		return n.normalizeInvoice(ctx, event, domain.KindSubscriptionRenewed)

	case "invoice.payment_failed":
		return n.normalizeInvoice(ctx, event, domain.KindPaymentFailed)

	default:
		return nil, domain.ErrEventoNaoSuportado
	}
}

func (n *Normalizer) normalizeCheckout(ctx context.Context, event stripe.Event) (*domain.BillingEvent, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, err
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	evt := &domain.BillingEvent{
		Kind:             domain.KindCheckoutCompleted,
		StripeCustomerID: customerID,
		ProviderStatus:   domain.StatusActive,
		RawEventID:       event.ID,
		OccurredAt:       time.Unix(event.Created, 0).UTC(),
	}

	// O user_id vem preferencialmente do client_reference_id (é assim que o
	// frontend do Bakiye360 amarra a sessão de checkout ao usuário logado).
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if err := n.resolveUser(ctx, evt, userID); err != nil {
		return nil, err
	}

	// A sessão de checkout não carrega o período pago — só o ID da
	// assinatura. Buscamos a assinatura completa para ter a vigência.
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		sub, err := n.subs.GetSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			return nil, err
		}
		evt.StripeSubscriptionID = sub.ID
		evt.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
		evt.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		evt.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.Status == stripe.SubscriptionStatusTrialing {
			evt.ProviderStatus = domain.StatusTrialing
		}
	}

	return evt, nil
}

func (n *Normalizer) normalizeSubscription(ctx context.Context, event stripe.Event) (*domain.BillingEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, err
	}

	// Guarda contra vocabulário solto: status fora da enumeração fechada é
	// erro de normalização, não uma string aceita.
	status, err := domain.ParseStatus(string(sub.Status))
	if err != nil {
		return nil, err
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	evt := &domain.BillingEvent{
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		PeriodStart:          time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:            time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		RawEventID:           event.ID,
		OccurredAt:           time.Unix(event.Created, 0).UTC(),
	}

	switch {
	case event.Type == "customer.subscription.deleted" || status == domain.StatusCanceled:
		// Cancelamento imediato: a assinatura não existe mais no provedor.
		evt.Kind = domain.KindSubscriptionCanceled
		evt.CancelAtPeriodEnd = false

	case sub.CancelAtPeriodEnd:
		// Cancelamento agendado: acesso mantido até o fim do período.
		evt.Kind = domain.KindSubscriptionCanceled
		evt.CancelAtPeriodEnd = true

	case event.Type == "customer.subscription.created":
		evt.Kind = domain.KindSubscriptionActivated
		evt.ProviderStatus = status

	default:
		evt.Kind = domain.KindSubscriptionRenewed
		evt.ProviderStatus = status
	}

	userID := sub.Metadata["user_id"]
	if err := n.resolveUser(ctx, evt, userID); err != nil {
		return nil, err
	}
	return evt, nil
}

func (n *Normalizer) normalizeInvoice(ctx context.Context, event stripe.Event, kind domain.EventKind) (*domain.BillingEvent, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, err
	}

	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}
	subscriptionID := ""
	if inv.Subscription != nil {
		subscriptionID = inv.Subscription.ID
	}

	// Valores da Stripe chegam em centavos.
	cents := inv.AmountPaid
	if kind == domain.KindPaymentFailed {
		cents = inv.AmountDue
	}

	evt := &domain.BillingEvent{
		Kind:                 kind,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		Amount:               decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)),
		RawEventID:           event.ID,
		OccurredAt:           time.Unix(event.Created, 0).UTC(),
	}
	if kind == domain.KindSubscriptionRenewed {
		evt.ProviderStatus = domain.StatusActive
		// A fatura paga delimita o novo período de vigência.
		evt.PeriodStart = time.Unix(inv.PeriodStart, 0).UTC()
		evt.PeriodEnd = time.Unix(inv.PeriodEnd, 0).UTC()
	}

	userID := inv.Metadata["user_id"]
	if err := n.resolveUser(ctx, evt, userID); err != nil {
		return nil, err
	}
	return evt, nil
}

// resolveUser preenche evt.UserID: primeiro pelo metadata, depois pela
// referência de cliente via repositório. Falha com ErrUsuarioNaoResolvido
// quando nenhum meio funciona.
func (n *Normalizer) resolveUser(ctx context.Context, evt *domain.BillingEvent, metadataUserID string) error {
	if metadataUserID != "" {
		evt.UserID = metadataUserID
		return nil
	}
	if evt.StripeCustomerID != "" {
		a, err := n.users.GetByStripeCustomerID(ctx, evt.StripeCustomerID)
		if err != nil {
			return err
		}
		if a != nil {
			evt.UserID = a.UserID
			return nil
		}
	}
	return domain.ErrUsuarioNaoResolvido
}
