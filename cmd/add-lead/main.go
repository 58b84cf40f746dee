// add-lead inserts a lead directly into the store, for local testing.
//
//	go run ./cmd/add-lead <phone> [name]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/env"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/utils"
)

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		log.Fatal("usage: add-lead <phone> [name]")
	}
	phone := utils.CanonicalPhone(os.Args[1])
	if phone == "" {
		log.Fatalf("%q is not a valid 10 or 11-digit US number", os.Args[1])
	}
	name := strings.Join(os.Args[2:], " ")

	leadStore, err := store.Open(cfg.DatabasePath, logger.Log)
	if err != nil {
		log.Fatalf("Failed to open lead store: %v", err)
	}
	defer leadStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := leadStore.UpsertLead(ctx, store.Lead{Phone: phone, Name: name}); err != nil {
		log.Fatalf("Failed to add lead: %v", err)
	}

	fmt.Printf("Added lead %s", phone)
	if name != "" {
		fmt.Printf(" (%s)", name)
	}
	fmt.Println()
}
