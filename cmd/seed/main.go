package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/config"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/logger"
)

func main() {
	if err := newSeedCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newSeedCommand() *cobra.Command {
	var (
		configPath string
		users      int
		seed       int64
		tokens     bool
		tokenTTL   time.Duration
	)

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Reset the database to demo builders, swipes and matches",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.InitFromConfig(cfg)

			database, err := db.NewDB(cfg)
			if err != nil {
				return fmt.Errorf("failed to init db: %w", err)
			}

			sum, err := db.SeedDemoData(database, users, seed)
			if err != nil {
				return fmt.Errorf("failed to seed: %w", err)
			}
			logger.Info("seeding completed",
				"profiles", len(sum.UserIDs), "swipes", sum.Swipes,
				"matches", sum.Matches, "messages", sum.Messages)

			if !tokens {
				return nil
			}
			secret := cfg.Auth.JWTSecret
			if secret == "" {
				if !cfg.IsDevelopment() {
					return fmt.Errorf("AUTH_JWT_SECRET is required to print tokens")
				}
				secret = auth.DevSecret
			}
			verifier := auth.NewJWTVerifier(secret, cfg.Auth.Issuer)
			out := cmd.OutOrStdout()
			for _, id := range sum.UserIDs {
				token, err := verifier.Issue(id, tokenTTL, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", id, token)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Optional YAML config file")
	cmd.Flags().IntVar(&users, "users", 20, "Number of demo profiles")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed for reproducible data")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print a bearer token for every demo user")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of printed tokens")
	return cmd
}
