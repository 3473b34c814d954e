package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	githubToken string
)

var rootCmd = &cobra.Command{
	Use:   "mergemate-cli",
	Short: "mergemate-cli is the command-line interface for MergeMate.",
	Long:  `A CLI for interacting with the MergeMate service: run one-shot reviews of local patch files and inspect recently delivered reviews.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&githubToken, "github-token", "t", "", "GitHub Token")

	if err := viper.BindPFlag("GITHUB_TOKEN", rootCmd.PersistentFlags().Lookup("github-token")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads the same .env file and environment variables the server
// uses, so a checkout configured for the service works for the CLI unchanged.
func initConfig() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("AI_PROVIDER", "ollama")
	viper.SetDefault("AI_MODEL_NAME", "gemma3:latest")
	viper.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	viper.SetDefault("AI_CALL_TIMEOUT", "120s")
	viper.SetDefault("AI_TOKEN_BUDGET", 16000)

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "mergemate")
	viper.SetDefault("DB_NAME", "mergemate")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Debug("no .env file found, relying on environment", "error", err)
		}
	}
}
