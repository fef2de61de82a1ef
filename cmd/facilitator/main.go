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

	"github.com/joho/godotenv"
	"github.com/stellar/go/clients/horizonclient"
	stellarnet "github.com/stellar/go/network"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/config"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/facilitator"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/job"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/logging"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/metrics"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/notify"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/queue"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/requirements"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/internal/server"
	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadConfig(".")
	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	passphrase := cfg.Stellar.NetworkPassphrase
	if passphrase == "" {
		switch cfg.Stellar.Network {
		case x402.NetworkStellarPubnet:
			passphrase = stellarnet.PublicNetworkPassphrase
		default:
			passphrase = stellarnet.TestNetworkPassphrase
		}
	}
	networkID := cfg.Stellar.Network
	if networkID == "" {
		networkID = x402.NetworkStellarTestnet
	}

	horizon := &horizonclient.Client{
		HorizonURL: cfg.Stellar.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	engine, err := facilitator.NewEngine(horizon, facilitator.Options{
		NetworkPassphrase: passphrase,
		Network:           networkID,
		SigningSeed:       cfg.Stellar.SigningSeed,
		BaseFee:           cfg.Stellar.BaseFee,
		PollInterval:      time.Duration(cfg.Stellar.PollIntervalMs) * time.Millisecond,
		MaxPollAttempts:   cfg.Stellar.MaxPollAttempts,
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("Failed to create facilitator engine: %v", err)
	}

	submissionQueue := queue.New(cfg.Queue.Buffer, logger)
	defer submissionQueue.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhook(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutMs)*time.Millisecond, logger)
	}

	registry, err := job.NewRegistry(job.Options{
		Requirements: requirements.Config{
			Network:        networkID,
			Asset:          cfg.Payment.Asset,
			TimeoutSeconds: cfg.Payment.TimeoutSeconds,
			FeeSponsorship: cfg.Payment.FeeSponsorship,
		},
		Fiat: requirements.FiatConfig{
			Enabled:      cfg.Fiat.Enabled,
			Currency:     cfg.Fiat.Currency,
			Symbol:       cfg.Fiat.Symbol,
			ProofChannel: cfg.Fiat.ProofChannel,
			RateUSD:      cfg.Fiat.RateUSD,
		},
		DefaultPayTo:   cfg.Payment.PayTo,
		Retention:      time.Duration(cfg.Jobs.RetentionMs) * time.Millisecond,
		ProcessTimeout: time.Duration(cfg.Jobs.ProcessTimeoutMs) * time.Millisecond,
		Engine:         engine,
		Queue:          submissionQueue,
		Notifier:       notifier,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to create payment registry: %v", err)
	}
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepInterval := time.Duration(cfg.Jobs.SweepIntervalMs) * time.Millisecond
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.SweepExpired()
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := server.New(server.Options{
		Registry: registry,
		Engine:   engine,
		Queue:    submissionQueue,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("payment facilitator listening",
			"port", cfg.Server.Port, "network", networkID, "feePayer", engine.SignerAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}
