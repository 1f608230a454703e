// Command scribe runs the notes service: user registration with OTP
// verification, cookie sessions and the notes API, backed by MongoDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/panyam/scribe"
	"github.com/panyam/scribe/config"
	mongostore "github.com/panyam/scribe/stores/mongo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	development := cfg.Env == "development"
	var logger *zap.Logger
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		logger.Fatal("failed to ping mongodb", zap.Error(err))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect from mongodb", zap.Error(err))
		}
	}()
	db := client.Database(cfg.MongoDB)
	logger.Info("connected to mongodb", zap.String("database", cfg.MongoDB))

	users := mongostore.NewUserStore(db, logger)
	notes := mongostore.NewNoteStore(db, logger)

	dispatcher := buildDispatcher(cfg, logger)

	sessionManager := scs.New()
	sessionManager.Lifetime = time.Duration(cfg.CookieExpireDays) * 24 * time.Hour
	sessionManager.Cookie.HttpOnly = true

	issuer := (&scribe.SessionIssuer{
		SecretKey: cfg.JWTSecret,
		TokenTTL:  time.Duration(cfg.JWTExpireHours) * time.Hour,
		CookieTTL: time.Duration(cfg.CookieExpireDays) * 24 * time.Hour,
		Session:   sessionManager,
	}).EnsureDefaults()

	server := &scribe.Server{
		Auth: &scribe.Auth{
			Users:       users,
			Dispatcher:  dispatcher,
			Sessions:    issuer,
			FrontendURL: cfg.FrontendURL,
			Logger:      logger.Named("Auth"),
		},
		Notes: &scribe.Notes{
			Store:  notes,
			Logger: logger.Named("Notes"),
		},
		Gate: &scribe.Middleware{
			Users:    users,
			Sessions: issuer,
			Logger:   logger.Named("Middleware"),
		},
		Session:     sessionManager,
		Logger:      logger.Named("Server"),
		Development: development,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildDispatcher picks real transports when they are configured and falls
// back to logging in development.
func buildDispatcher(cfg *config.Config, logger *zap.Logger) scribe.Dispatcher {
	dispatcher := &scribe.MessagingDispatcher{Logger: logger.Named("Dispatcher")}
	if cfg.SMTPHost != "" {
		dispatcher.Email = scribe.NewSMTPSender(
			cfg.SMTPHost, cfg.SMTPPort,
			cfg.SMTPMail, cfg.SMTPPassword,
			cfg.SMTPMail, "Scribe", logger)
	}
	if cfg.SMSAPIURL != "" {
		dispatcher.SMS = scribe.NewHTTPSMSSender(cfg.SMSAPIURL, cfg.SMSFrom, cfg.SMSAPIKey, logger)
	}
	if dispatcher.Email == nil && dispatcher.SMS == nil {
		logger.Warn("no email or sms transport configured, codes will be logged")
		return &scribe.ConsoleDispatcher{Logger: logger.Named("Dispatcher")}
	}
	return dispatcher
}
