package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"promptaat/internal/config"
	"promptaat/internal/domain/services"
	"promptaat/internal/infrastructure/billing"
	"promptaat/internal/infrastructure/database"
)

func main() {
	fix := flag.Bool("fix", false, "apply fixes; without it the sweep only reports drift")
	verbose := flag.Bool("verbose", false, "emit detailed per-item output")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Load()
	if cfg.Billing.StripeSecret == "" {
		fmt.Fprintln(os.Stderr, "STRIPE_SECRET is required")
		os.Exit(1)
	}

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	provider := billing.NewStripeClient(cfg.Billing.StripeSecret)

	subscriptionRepo := database.NewSubscriptionRepository(db.DB)
	userRepo := database.NewUserRepository(db.DB)

	resolver := services.NewUserResolver(provider, userRepo, logger)
	syncService := services.NewSyncService(subscriptionRepo, resolver, provider, logger)
	reconciler := services.NewReconciler(subscriptionRepo, resolver, provider, syncService, logger)

	isDryRun := !*fix
	if isDryRun {
		fmt.Println("Dry run: reporting drift only; pass --fix to apply changes.")
	}

	report, err := reconciler.Run(context.Background(), services.SweepOptions{IsDryRun: isDryRun})
	if err != nil {
		logger.Error("reconciliation sweep failed", "error", err)
		os.Exit(1)
	}

	printReport(report, isDryRun, *verbose)
}

func printReport(report *services.DriftReport, isDryRun, verbose bool) {
	fmt.Printf("Compared %d provider subscriptions against %d local rows.\n",
		report.ProviderCount, report.LocalCount)

	printCategory("Missing in database", report.MissingInDB, verbose)
	printCategory("Missing at provider (orphaned)", report.Orphaned, verbose)
	printCategory("Status mismatches", report.StatusMismatches, verbose)

	if report.Skipped > 0 {
		fmt.Printf("Skipped %d provider subscriptions with no resolvable owner.\n", report.Skipped)
	}

	if isDryRun {
		fmt.Println("No changes applied (dry run).")
		return
	}

	fmt.Printf("Applied: %d created, %d canceled, %d corrected, %d failed.\n",
		report.Created, report.Canceled, report.Corrected, report.Failed)
}

func printCategory(title string, items []services.DriftItem, verbose bool) {
	fmt.Printf("%s: %d\n", title, len(items))
	if !verbose {
		return
	}
	for _, item := range items {
		line := fmt.Sprintf("  %s", item.StripeSubscriptionID)
		if item.UserID != "" {
			line += fmt.Sprintf(" user=%s", item.UserID)
		}
		if item.UserEmail != "" {
			line += fmt.Sprintf(" email=%s", item.UserEmail)
		}
		fmt.Printf("%s (%s)\n", line, item.Detail)
	}
}
