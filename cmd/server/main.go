package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/bankcore/ledger-service/internal/auth"
	"github.com/bankcore/ledger-service/internal/config"
	"github.com/bankcore/ledger-service/internal/events/kafka"
	"github.com/bankcore/ledger-service/internal/interfaces"
	"github.com/bankcore/ledger-service/internal/ledger"
	"github.com/bankcore/ledger-service/internal/server"
	"github.com/bankcore/ledger-service/internal/storage/memory"
	"github.com/bankcore/ledger-service/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	var store interfaces.LedgerStore
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pg.Close()
		store = pg
		log.Println("using postgres ledger store")
	} else {
		store = memory.NewStore()
		log.Println("using in-memory ledger store")
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		log.Printf("publishing events to kafka %v", cfg.KafkaBrokers)
	}

	if cfg.JWTSecret == "dev-secret" {
		log.Println("warning: JWT_SECRET not set, using development secret")
	}

	ledgerService := ledger.New(store, publisher)
	srv := server.New(ledgerService, auth.NewTokenAuthenticator(cfg.JWTSecret))

	log.Printf("starting server on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, srv.Router()))
}
