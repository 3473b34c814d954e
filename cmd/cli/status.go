package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/db"
	"github.com/mergemate/mergemate/internal/storage"
)

var (
	outputJSON  bool
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the most recently delivered reviews",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		dbConn, cleanup, err := db.NewDatabase(&config.DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer cleanup()

		store := storage.NewStore(dbConn.DB)
		reviews, err := store.ListRecentReviews(ctx, statusLimit)
		if err != nil {
			return fmt.Errorf("failed to retrieve reviews: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(reviews)
		}

		if len(reviews) == 0 {
			slog.Info("No reviews have been delivered yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tSOURCE\tREPOSITORY\tVERDICT\tSUGGESTIONS\tDELIVERED")
		for _, rev := range reviews {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				shortKey(rev.RequestKey),
				rev.Source,
				orDash(rev.RepoFullName),
				rev.Recommended,
				rev.Suggestions,
				rev.CreatedAt.Format(time.RFC822),
			)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output status as JSON")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "Maximum number of reviews to show")
	rootCmd.AddCommand(statusCmd)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
