package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/database"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/handlers/admin"
	"bazaar_back_end/internal/handlers/order"
	"bazaar_back_end/internal/handlers/payment"
	"bazaar_back_end/internal/handlers/product"
	"bazaar_back_end/internal/handlers/user"
	"bazaar_back_end/internal/jobs"
	"bazaar_back_end/internal/logger"
	"bazaar_back_end/internal/middleware"
	gateway "bazaar_back_end/internal/payment"
	"bazaar_back_end/internal/routes"
	"bazaar_back_end/internal/services"
	"bazaar_back_end/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration invalide: %v", err)
	}

	zl := logger.Init(cfg.Log)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	conns, err := database.Connect(connectCtx, cfg)
	cancel()
	if err != nil {
		zap.S().Fatalf("❌ Connexion aux bases impossible: %v", err)
	}

	store := database.Store(conns.Mongo, conns.DB)

	var auditor *utils.Auditor
	if conns.Scylla != nil {
		auditor = utils.NewAuditor(database.NewScyllaAuditStore(conns.Scylla))
	}

	var index services.ProductIndexer = services.NoopIndexer{}
	if conns.Elastic != nil {
		index = services.NewElasticIndexer(conns.Elastic, cfg.Elastic.Index)
	}
	var images services.ImageStore
	if conns.MinIO != nil {
		images = services.NewMinioImageStore(conns.MinIO, cfg.MinIO.Bucket, cfg.MinIO.PublicURL)
	}

	if !cfg.Stripe.Enabled() {
		zap.S().Warn("⚠️ STRIPE_SECRET_KEY absent, paiement Stripe désactivé")
	}

	mailer := utils.NewMailer(cfg.SMTP)
	tokens := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL)

	catalog := services.NewCatalogService(store, images, index, auditor, cfg.Orders.LowStockThreshold)
	orders := services.NewOrderService(store, auditor, mailer, cfg.Orders)
	payments := services.NewPaymentService(store, orders, gateway.NewEsewa(cfg.Esewa), gateway.NewStripe(cfg.Stripe),
		auditor, cfg.Orders.PaymentSessionTTL)
	reporting := services.NewReportingService(store, orders, cfg.Orders.LowStockThreshold)
	otp := services.NewOTPService(conns.Redis, mailer, cfg.Auth.OTPTTL, cfg.Auth.VerifiedTTL)
	users := services.NewUserService(store, conns.Redis, tokens, cache.NewRefreshTokens(conns.Redis, cfg.JWT.RefreshTTL),
		otp, auditor, cfg.Auth)

	scheduler, err := jobs.New(cfg.Jobs, catalog, payments)
	if err != nil {
		zap.S().Fatalf("❌ Scheduler: %v", err)
	}
	scheduler.Start()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS(cfg.Server.AllowedOrigins))
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	routes.RegisterRoutes(r, routes.Handlers{
		Auth:     middleware.AuthRequired(tokens, users),
		Limiter:  middleware.NewRateLimiter(conns.Redis, cfg.RateLimit),
		Users:    user.New(users, otp),
		Products: product.New(catalog, cfg.Server.MaxUploadMB),
		Orders:   order.New(orders, utils.ChromePDF{}),
		Payments: payment.New(payments),
		Admin:    admin.New(users, reporting, auditor),
		Health:   healthChecks(conns),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zap.S().Infof("🚀 Serveur Bazaar lancé sur %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("❌ Serveur HTTP: %v", err)
		}
	}()

	<-ctx.Done()
	zap.S().Info("🛑 Arrêt demandé, fermeture du serveur...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorf("❌ Arrêt du serveur HTTP: %v", err)
	}
	scheduler.Stop(shutdownCtx)
	conns.Close(shutdownCtx)
	zap.S().Info("👋 Serveur arrêté")
}

func healthChecks(conns *database.Connections) []handlers.Check {
	checks := []handlers.Check{
		{Name: "mongodb", Ping: func(ctx context.Context) error { return conns.Mongo.Ping(ctx, nil) }},
		{Name: "redis", Ping: func(ctx context.Context) error { return conns.Redis.Client().Ping(ctx).Err() }},
	}
	if conns.Scylla != nil {
		checks = append(checks, handlers.Check{Name: "scylladb", Ping: func(ctx context.Context) error {
			return conns.Scylla.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
		}})
	}
	return checks
}
