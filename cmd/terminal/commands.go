package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/viper"

	"github.com/mergemate/mergemate/internal/config"
	"github.com/mergemate/mergemate/internal/db"
	"github.com/mergemate/mergemate/internal/storage"
)

// reviewPageSize bounds how many stored reviews one /list fetch returns.
const reviewPageSize = 50

func connectStoreCmd() tea.Cmd {
	return func() tea.Msg {
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
			return storeConnectedMsg{err: err}
		}
		return storeConnectedMsg{store: storage.NewStore(dbConn.DB), cleanup: cleanup}
	}
}

func loadReviewsCmd(store storage.Store) tea.Cmd {
	return func() tea.Msg {
		reviews, err := store.ListRecentReviews(context.Background(), reviewPageSize)
		return reviewsLoadedMsg{reviews: reviews, err: err}
	}
}

func renderReviewCmd(rec storage.ReviewRecord, width int) tea.Cmd {
	return func() tea.Msg {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return reviewRenderedMsg{requestKey: rec.RequestKey, err: err}
		}

		out, err := renderer.Render(reviewMarkdown(rec))
		if err != nil {
			return reviewRenderedMsg{requestKey: rec.RequestKey, err: err}
		}
		return reviewRenderedMsg{requestKey: rec.RequestKey, content: out}
	}
}

// reviewMarkdown lays one stored review out as a markdown document for
// glamour to render.
func reviewMarkdown(rec storage.ReviewRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review `%s`\n\n", rec.RequestKey)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Source | %s |\n", rec.Source)
	if rec.RepoFullName != "" {
		fmt.Fprintf(&b, "| Repository | %s |\n", rec.RepoFullName)
	}
	if rec.Branch != "" {
		fmt.Fprintf(&b, "| Branch | %s |\n", rec.Branch)
	}
	if rec.CommitSHA != "" {
		fmt.Fprintf(&b, "| Commit | %s |\n", shortSHA(rec.CommitSHA))
	}
	fmt.Fprintf(&b, "| Verdict | %s |\n", rec.Recommended)
	fmt.Fprintf(&b, "| Suggestions | %d |\n", rec.Suggestions)
	if rec.Truncated {
		fmt.Fprintf(&b, "| Payload | truncated |\n")
	}
	fmt.Fprintf(&b, "| Slack channel | %s |\n", rec.SlackChannel)
	fmt.Fprintf(&b, "| Delivered | %s |\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "\n## Summary\n\n%s\n", rec.Summary)
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
