package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/repository"
)

var reportSince string

func init() {
	reportCmd.PersistentFlags().StringVar(&reportSince, "since", "", "Restrict to publications after this date (YYYY-MM-DD)")

	for _, name := range reportNames {
		reportCmd.AddCommand(newReportCmd(name))
	}
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print reports over the publication index",
}

// reportNames lists the report subcommands in help order.
var reportNames = []string{
	"summary",
	"new-publications",
	"keywords",
	"keywords-per-group",
	"multi-group",
	"group-author-multi-group",
	"papers-per-group",
}

func newReportCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "Print the " + name + " report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			return printReport(cmd.Context(), repository.NewPgReportRepository(db), name, reportSince, cmd.OutOrStdout())
		},
	}
}

// printReport computes one report and writes it as JSON.
func printReport(ctx context.Context, reports repository.ReportRepository, name, since string, out io.Writer) error {
	var sincePtr *time.Time
	if since != "" {
		t, err := parseSince(since, time.Time{})
		if err != nil {
			return err
		}
		sincePtr = &t
	}

	var (
		result interface{}
		err    error
	)
	switch name {
	case "summary":
		result, err = reports.Summary(ctx)
	case "new-publications":
		if sincePtr == nil {
			return domain.NewValidationError("since", "is required")
		}
		result, err = reports.NewPublications(ctx, *sincePtr)
	case "keywords":
		var counts []domain.KeywordCount
		counts, err = reports.KeywordCounts(ctx, sincePtr)
		result = map[string]interface{}{"keywords": nonNil(counts)}
	case "keywords-per-group":
		var groups []domain.GroupKeywordCounts
		groups, err = reports.KeywordCountsPerGroup(ctx)
		result = map[string]interface{}{"groups": nonNil(groups)}
	case "multi-group":
		var pubs []*domain.MultiGroupPublication
		pubs, err = reports.MultiGroupPublications(ctx)
		result = map[string]interface{}{"count": len(pubs), "publications": nonNil(pubs)}
	case "group-author-multi-group":
		var counts []domain.AuthorMultiGroupCount
		counts, err = reports.GroupAuthorMultiGroup(ctx)
		result = map[string]interface{}{"authors": nonNil(counts)}
	case "papers-per-group":
		var groups []domain.GroupPublications
		groups, err = reports.TotalPapersPerGroup(ctx)
		result = map[string]interface{}{"groups": nonNil(groups)}
	default:
		return fmt.Errorf("unknown report %q", name)
	}
	if err != nil {
		return fmt.Errorf("%s report: %w", name, err)
	}
	return outputJSON(out, result)
}

// nonNil keeps empty reports encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
