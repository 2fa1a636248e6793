package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/models"
)

const (
	Version = "0.1.0"
	appName = "dailyink"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Daily writing quota and feedback unlock service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			db, err := config.Open(cfg.Database, cfg.Log.Level)
			if err != nil {
				return err
			}
			if err := config.Migrate(db); err != nil {
				return err
			}
			fmt.Println("migration complete")
			return nil
		},
	})

	tier := &cobra.Command{Use: "tier", Short: "Manage user tiers"}
	tier.AddCommand(&cobra.Command{
		Use:   "set <user-id> <standard|promoted>",
		Short: "Change a user's refill cadence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.writing.SetTier(cmd.Context(), args[0], models.Tier(args[1])); err != nil {
				return err
			}
			fmt.Printf("user %s is now %s\n", args[0], args[1])
			return nil
		},
	})
	cmd.AddCommand(tier)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}
