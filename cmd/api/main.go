package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	stripe "github.com/stripe/stripe-go/v78"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/bakiye360/go-entitlement-api/docs" // Importa a pasta docs gerada

	// Nossos pacotes internos da aplicação!
	httphandler "github.com/bakiye360/go-entitlement-api/internal/handler/http"
	"github.com/bakiye360/go-entitlement-api/internal/repository"
	"github.com/bakiye360/go-entitlement-api/internal/service"
	"github.com/bakiye360/go-entitlement-api/migrations"
)

// @title           API de Assinaturas Bakiye360
// @version         1.0
// @description     Serviço de reconciliação de entitlement: recebe eventos de cobrança da Stripe, mantém o registro de assinatura de cada usuário e expõe a consulta única de acesso premium.
//
// @contact.name   Equipe Bakiye360
// @contact.email  dev@bakiye360.com
//
// @host      localhost:8080
// @BasePath  /
func main() {
	// --- 1. CONFIGURAÇÃO ---
	// .env é opcional: em produção as variáveis vêm do ambiente.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Iniciando a API de Assinaturas Bakiye360...")

	porta := envOuPadrao("PORT", "8080")
	dbPath := envOuPadrao("DATABASE_PATH", "./bakiye360.db")
	segredoWebhook := os.Getenv("STRIPE_WEBHOOK_SECRET")
	adminToken := os.Getenv("ADMIN_TOKEN")
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	intervaloVarredura, err := time.ParseDuration(envOuPadrao("SWEEP_INTERVAL", "1h"))
	if err != nil {
		slog.Error("SWEEP_INTERVAL inválido", "error", err)
		os.Exit(1)
	}

	// --- 2. BANCO DE DADOS E MIGRAÇÕES ---
	db, err := initDB(dbPath)
	if err != nil {
		slog.Error("Erro ao inicializar o banco de dados", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("💾 Banco de dados pronto e migrado com sucesso.")

	// --- 3. INJEÇÃO DE DEPENDÊNCIAS (WIRING) ---
	// DB -> Repository -> Services -> Handlers

	repo := repository.NewSQLiteRepository(db)
	slog.Info("Camada de repositório inicializada")

	var email service.EmailService
	if apiKey := os.Getenv("SENDGRID_API_KEY"); apiKey != "" {
		email = service.NewSendGridService(apiKey,
			envOuPadrao("EMAIL_SENDER", "no-reply@bakiye360.com"),
			envOuPadrao("EMAIL_SENDER_NAME", "Bakiye360"))
		slog.Info("Transporte de e-mail: SendGrid")
	} else {
		email = service.NewNoopEmailService()
		slog.Info("Transporte de e-mail: desativado (SENDGRID_API_KEY ausente)")
	}

	// O cadastro de contas (e-mails dos usuários) é um sistema externo;
	// sem resolver configurado o Notifier só grava o registro.
	notifier := service.NewNotifier(repo, email, nil)

	reconciler := service.NewReconciler(repo, notifier)
	normalizer := service.NewNormalizer(repo, service.NewStripeSubscriptionResolver())
	webhookSvc := service.NewWebhookService(segredoWebhook, normalizer, reconciler)
	consultaSvc := service.NewConsultaService(repo)
	sweeper := service.NewSweeper(repo, reconciler, intervaloVarredura)
	slog.Info("Camada de serviço inicializada")

	assinaturaHandler := httphandler.NewAssinaturaHandler(consultaSvc)
	webhookHandler := httphandler.NewStripeWebhookHandler(webhookSvc)
	adminHandler := httphandler.NewAdminHandler(webhookSvc, sweeper, adminToken)
	slog.Info("Camada de handler inicializada")

	// --- 4. ROTEADOR E ROTAS ---
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(prometheusMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("API de Assinaturas Bakiye360 está no ar! 🚀"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// A URL será http://localhost:8080/swagger/index.html
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	slog.Info("📖 Documentação Swagger disponível em /swagger/index.html")

	r.Mount("/assinaturas", assinaturaHandler.Routes())
	r.Post("/webhooks/stripe", webhookHandler.HandleStripeWebhook)
	r.Mount("/admin", adminHandler.Routes())
	slog.Info("🛰️  Rotas registradas")

	// --- 5. VARREDURA DE EXPIRAÇÃO ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sweeper.Run(ctx)

	// --- 6. SERVIDOR HTTP COM DESLIGAMENTO GRACIOSO ---
	srv := &http.Server{
		Addr:         ":" + porta,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("✅ Servidor pronto para receber requisições", "porta", porta)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Erro ao iniciar o servidor", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Encerrando o servidor...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Erro no desligamento gracioso", "error", err)
	}
}

func envOuPadrao(chave, padrao string) string {
	if v := os.Getenv(chave); v != "" {
		return v
	}
	return padrao
}

// initDB abre a conexão SQLite e aplica as migrações embutidas pendentes.
func initDB(filepath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filepath)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, err
	}
	fonte, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", fonte, "sqlite3", driver)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, err
	}
	return db, nil
}
