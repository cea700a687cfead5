package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/reconcile"
	"github.com/yohaboy/research-tracker/internal/repository"
)

func init() {
	reconcileCmd.PersistentFlags().StringVar(&sinceFlag, "since", "", "Only keep publications after this date (YYYY-MM-DD); defaults to reconcile.default_since")

	reconcileCmd.AddCommand(reconcileAuthorCmd)
	reconcileCmd.AddCommand(reconcileAllCmd)
	rootCmd.AddCommand(reconcileCmd)

	jobCmd.AddCommand(jobStatusCmd)
	rootCmd.AddCommand(jobCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Submit reconciliation jobs",
}

var reconcileAuthorCmd = &cobra.Command{
	Use:   "author <id>",
	Short: "Submit a job for one author",
	Long: `Submit a background job that fetches, deduplicates and stores the
publications of one author. Prints the job reference immediately.

Example:
  pubctl reconcile author 42 --since 2024-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcileAuthor,
}

var reconcileAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Submit a job for every author",
	Args:  cobra.NoArgs,
	RunE:  runReconcileAll,
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect reconciliation jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Print the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

// authorGetter checks that an author exists before a job is submitted.
type authorGetter interface {
	Get(ctx context.Context, id int64) (*domain.Author, error)
}

// JobStatusResponse is the output of "job status".
type JobStatusResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

func runReconcileAuthor(cmd *cobra.Command, args []string) error {
	authorID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || authorID <= 0 {
		return domain.NewValidationError("author_id", fmt.Sprintf("expected a positive integer, got %q", args[0]))
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	since, err := parseSince(sinceFlag, e.defaultSince)
	if err != nil {
		return err
	}

	db, err := e.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	scheduler, err := e.openScheduler()
	if err != nil {
		return err
	}
	defer scheduler.Close()

	return submitAuthor(cmd.Context(), repository.NewPgAuthorRepository(db), scheduler, authorID, since, cmd.OutOrStdout())
}

func submitAuthor(ctx context.Context, authors authorGetter, scheduler reconcile.JobScheduler, authorID int64, since time.Time, out io.Writer) error {
	if _, err := authors.Get(ctx, authorID); err != nil {
		return fmt.Errorf("load author %d: %w", authorID, err)
	}
	ref, err := scheduler.Submit(ctx, domain.Job{AuthorID: authorID, Since: since})
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	return outputJSON(out, ref)
}

func runReconcileAll(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	since, err := parseSince(sinceFlag, e.defaultSince)
	if err != nil {
		return err
	}

	scheduler, err := e.openScheduler()
	if err != nil {
		return err
	}
	defer scheduler.Close()

	return submitAll(cmd.Context(), scheduler, since, cmd.OutOrStdout())
}

func submitAll(ctx context.Context, scheduler reconcile.JobScheduler, since time.Time, out io.Writer) error {
	ref, err := scheduler.SubmitAll(ctx, since)
	if err != nil {
		return fmt.Errorf("submit reconcile-all: %w", err)
	}
	return outputJSON(out, ref)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	scheduler, err := e.openScheduler()
	if err != nil {
		return err
	}
	defer scheduler.Close()

	return printJobStatus(cmd.Context(), scheduler, args[0], cmd.OutOrStdout())
}

func printJobStatus(ctx context.Context, scheduler reconcile.JobScheduler, jobID string, out io.Writer) error {
	status, err := scheduler.Status(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	return outputJSON(out, JobStatusResponse{JobID: jobID, Status: status})
}
