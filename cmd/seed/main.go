package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Le-Sourcier/servcraft-sub004/internal/config"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	pg "github.com/Le-Sourcier/servcraft-sub004/internal/infra/db/postgres"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/web"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planRepo := pg.NewPostgresPlanRepo(pool)

	// If plans already exist, do nothing
	plans, err := planRepo.ListActive(ctx, nil)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		for _, p := range plans {
			fmt.Printf("  - %s (%d %s / %s)\n", p.Name, p.Amount, p.Currency, p.Interval)
		}
		return
	}

	// Sample plans for exercising the subscription flow
	seed := []struct {
		Name     string
		Amount   int64
		Interval model.BillingInterval
	}{
		{"Starter", 9_99, model.IntervalMonthly},
		{"Pro", 29_99, model.IntervalMonthly},
		{"Pro Annual", 299_00, model.IntervalYearly},
	}

	for _, s := range seed {
		p, err := model.NewPlan(uuid.NewString(), s.Name, s.Amount, cfg.Payment.DefaultCurrency, s.Interval)
		if err != nil {
			log.Fatalf("build plan %q: %v", s.Name, err)
		}
		if err := planRepo.Save(ctx, nil, p); err != nil {
			log.Fatalf("save plan %q: %v", s.Name, err)
		}
		fmt.Printf("seeded: %s (id=%s, %d %s / %s)\n", p.Name, p.ID, p.Amount, p.Currency, p.Interval)
	}

	// A dev API token makes curl against /api/v1 immediate.
	if cfg.HTTP.JWTSecret != "" {
		tok, err := web.NewAuthManager(cfg.HTTP.JWTSecret).Mint("dev-merchant", 24*time.Hour)
		if err == nil {
			fmt.Printf("dev API token (24h): %s\n", tok)
		}
	}

	fmt.Println("Seeding complete.")
}
