package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lakewatch/thermal-service/config"
	"github.com/lakewatch/thermal-service/internal/app"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/regions"
)

var doctorSkipProvider bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and connectivity",
	Long: `Verify that the database, regions file, artifact directory, Redis token
cache and provider credentials are usable. Each check runs independently.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipProvider, "skip-provider", false, "Do not log in to the provider")
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		return fmt.Errorf("config could not be loaded")
	}
	checks := []check{
		{"database", checkDatabase},
		{"regions", checkRegions},
		{"storage", checkStorage},
		{"redis", checkRedis},
	}
	if !doctorSkipProvider {
		checks = append(checks, check{"provider", checkProvider})
	}

	out := cmd.OutOrStdout()
	colorize := isTerminal(out)
	rows := make([][]string, 0, len(checks))
	failed := 0
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		detail, err := c.run(ctx)
		cancel()
		status := "ok"
		if err != nil {
			status = "failed"
			detail = err.Error()
			failed++
		}
		rows = append(rows, []string{c.name, colorStatus(status, colorize), detail})
	}
	renderTable(out, []string{"CHECK", "STATUS", "DETAIL"}, rows)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// checkDatabase goes through database/sql so a broken pgx pool
// configuration does not hide a reachable server.
func checkDatabase(ctx context.Context) (string, error) {
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return "", fmt.Errorf("DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return "", fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("ping: %w", err)
	}
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	var migrated bool
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('public.processing_requests') IS NOT NULL").Scan(&migrated); err != nil {
		return "", fmt.Errorf("schema check: %w", err)
	}
	if !migrated {
		return "postgres " + version + ", schema not applied", nil
	}
	return "postgres " + version, nil
}

func checkRegions(context.Context) (string, error) {
	catalog, err := regions.Load(cfg.Pipeline.RegionsPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d regions from %s", catalog.Len(), cfg.Pipeline.RegionsPath), nil
}

func checkStorage(context.Context) (string, error) {
	dir := cfg.Storage.BasePath
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return "", fmt.Errorf("not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	abs, _ := filepath.Abs(dir)
	return abs, nil
}

func checkRedis(ctx context.Context) (string, error) {
	if cfg.Redis.Addr == "" {
		return "not configured, tokens cached in memory", nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return "", err
	}
	return cfg.Redis.Addr, nil
}

func checkProvider(ctx context.Context) (string, error) {
	client, err := provider.NewClient(app.ProviderConfig(cfg))
	if err != nil {
		return "", err
	}
	if err := client.Login(ctx); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return "logged in as " + cfg.Provider.Username, nil
}
