package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bakiye360/go-entitlement-api/internal/domain"
	"github.com/bakiye360/go-entitlement-api/internal/service"
)

// Para facilitar os testes, os handlers dependem destas interfaces, não das
// implementações concretas dos serviços.

type ConsultaService interface {
	GetEntitlement(ctx context.Context, userID string) (*service.EntitlementView, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notificacao, error)
}

type WebhookService interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, assinatura string) (*domain.Transicao, error)
	Override(ctx context.Context, userID string, tier domain.Tier, dias int) (*domain.Transicao, error)
}

type SweepService interface {
	SweepOnce(ctx context.Context, dryRun bool) (*service.ResultadoVarredura, error)
}

// AssinaturaHandler gerencia as rotas de consulta de /assinaturas.
type AssinaturaHandler struct {
	consulta ConsultaService
}

func NewAssinaturaHandler(consulta ConsultaService) *AssinaturaHandler {
	return &AssinaturaHandler{
		consulta: consulta,
	}
}

// Routes define e retorna todas as rotas que este handler gerencia.
func (h *AssinaturaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{userId}", h.GetEntitlement)                // GET /assinaturas/{userId}
	r.Get("/{userId}/notificacoes", h.ListNotificacoes) // GET /assinaturas/{userId}/notificacoes

	return r
}

// @Summary      Consulta o entitlement de um usuário
// @Description  Retorna tier, status, vigência e a derivação única de acesso premium
// @Tags         assinaturas
// @Produce      json
// @Param        userId  path      string  true  "ID do Usuário"
// @Success      200     {object}  service.EntitlementView
// @Failure      500     {object}  map[string]string
// @Router       /assinaturas/{userId} [get]
func (h *AssinaturaHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	view, err := h.consulta.GetEntitlement(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Erro ao consultar assinatura")
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// @Summary      Lista notificações de assinatura do usuário
// @Description  Histórico de transições de entitlement gravadas pelo Notifier
// @Tags         assinaturas
// @Produce      json
// @Param        userId  path   string  true   "ID do Usuário"
// @Param        limit   query  int     false  "Máximo de itens (padrão 20)"
// @Success      200  {array}   domain.Notificacao
// @Failure      500  {object}  map[string]string
// @Router       /assinaturas/{userId}/notificacoes [get]
func (h *AssinaturaHandler) ListNotificacoes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notificacoes, err := h.consulta.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Erro ao listar notificações")
		return
	}
	if notificacoes == nil {
		notificacoes = []domain.Notificacao{}
	}
	respondWithJSON(w, http.StatusOK, notificacoes)
}

// StripeWebhookHandler recebe as entregas de webhook da Stripe.
type StripeWebhookHandler struct {
	webhooks WebhookService
}

func NewStripeWebhookHandler(webhooks WebhookService) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		webhooks: webhooks,
	}
}

// @Summary      Recebe eventos de cobrança da Stripe
// @Description  Verifica a assinatura do payload, normaliza e reconcilia o entitlement
// @Tags         webhooks
// @Accept       json
// @Success      200  {string}  string "evento processado (ou no-op idempotente)"
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /webhooks/stripe [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536) // Limite de 64KB
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Erro ao ler o corpo do webhook", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Erro ao ler corpo da requisição")
		return
	}

	assinatura := r.Header.Get("Stripe-Signature")

	_, err = h.webhooks.HandleStripeWebhook(r.Context(), payload, assinatura)
	switch {
	case err == nil:
		// 200 para a Stripe saber que a entrega foi processada — inclusive
		// quando a reconciliação foi um no-op (duplicado/obsoleto).
		w.WriteHeader(http.StatusOK)

	case errors.Is(err, domain.ErrEventoNaoSuportado):
		slog.Info("Webhook da Stripe recebido, mas não tratado")
		w.WriteHeader(http.StatusOK)

	case errors.Is(err, domain.ErrWebhookStripe):
		respondWithError(w, http.StatusBadRequest, "Falha na verificação da assinatura do webhook")

	case errors.Is(err, domain.ErrUsuarioNaoResolvido),
		errors.Is(err, domain.ErrStatusInvalido),
		errors.Is(err, domain.ErrTierInvalido):
		// Não processável automaticamente: exige investigação manual.
		// O log em nível error é o gatilho de alerta — nunca descartar.
		slog.Error("Evento de cobrança não processável", "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		// 5xx: a Stripe reentrega em caso de status não-2xx.
		slog.Error("Erro interno ao processar webhook", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Erro interno ao processar webhook")
	}
}

// AdminHandler expõe o override de operador e o disparo manual da
// varredura, protegidos por token.
type AdminHandler struct {
	webhooks WebhookService
	sweeper  SweepService
	token    string
}

func NewAdminHandler(webhooks WebhookService, sweeper SweepService, token string) *AdminHandler {
	return &AdminHandler{
		webhooks: webhooks,
		sweeper:  sweeper,
		token:    token,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.exigirToken)

	r.Post("/assinaturas/{userId}/override", h.Override) // POST /admin/assinaturas/{userId}/override
	r.Post("/sweep", h.Sweep)                            // POST /admin/sweep

	return r
}

// exigirToken é o middleware de autenticação das rotas administrativas.
func (h *AdminHandler) exigirToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" || r.Header.Get("Authorization") != "Bearer "+h.token {
			respondWithError(w, http.StatusUnauthorized, "Token administrativo inválido")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type overrideRequest struct {
	Tier string `json:"tier"`
	Dias int    `json:"dias"`
}

// @Summary      Override manual de assinatura
// @Description  Constrói um evento sintético de operador e o reconcilia pelo caminho normal — nunca escrita direta
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        userId   path      string           true  "ID do Usuário"
// @Param        override body      overrideRequest  true  "tier desejado e dias de vigência (para premium)"
// @Success      200      {object}  domain.Transicao
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /admin/assinaturas/{userId}/override [post]
func (h *AdminHandler) Override(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if tier == domain.TierPremium && req.Dias <= 0 {
		respondWithError(w, http.StatusBadRequest, "dias deve ser maior que zero para premium")
		return
	}

	t, err := h.webhooks.Override(r.Context(), userID, tier, req.Dias)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Erro ao aplicar override")
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// @Summary      Dispara a varredura de expiração
// @Description  Rebaixa registros premium com período vencido; dry_run=1 apenas relata
// @Tags         admin
// @Produce      json
// @Param        dry_run  query     string  false  "1 para apenas relatar, sem reconciliar"
// @Success      200      {object}  service.ResultadoVarredura
// @Failure      401      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /admin/sweep [post]
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "1"

	res, err := h.sweeper.SweepOnce(r.Context(), dryRun)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Erro ao executar varredura")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// --- FUNÇÕES AUXILIARES ---

func respondWithError(w http.ResponseWriter, code int, message string) {
	slog.Error("API Error", "code", code, "message", message)
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
