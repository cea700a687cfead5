package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/roster"
	"github.com/yohaboy/research-tracker/internal/staffpage"
)

var authorInput domain.AuthorInput

func init() {
	authorAddCmd.Flags().StringVar(&authorInput.FirstName, "first", "", "First name (required)")
	authorAddCmd.Flags().StringVar(&authorInput.LastName, "last", "", "Last name (required)")
	authorAddCmd.Flags().StringVar(&authorInput.Group, "group", "", "Research group name (required)")
	authorAddCmd.Flags().StringVar(&authorInput.ScopusID, "scopus", "", "Scopus author ID")
	authorAddCmd.Flags().StringVar(&authorInput.ScholarID, "scholar", "", "Google Scholar user ID")
	authorAddCmd.Flags().StringVar(&authorInput.ORCIDID, "orcid", "", "ORCID iD")
	authorAddCmd.Flags().StringVar(&authorInput.StaffURL, "staff-url", "", "Staff profile URL")

	authorCmd.AddCommand(authorAddCmd)
	rootCmd.AddCommand(authorCmd)
}

var authorCmd = &cobra.Command{
	Use:   "author",
	Short: "Manage the author roster",
}

var authorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update an author",
	Long: `Create an author, or update the identifiers of the author with the
same first name, last name and group. Empty identifiers never overwrite
stored ones.

Example:
  pubctl author add --first Ada --last Lovelace --group Analytics --orcid 0000-0002-1825-0097`,
	Args: cobra.NoArgs,
	RunE: runAuthorAdd,
}

// authorAdder is the roster operation behind "author add".
type authorAdder interface {
	Add(ctx context.Context, in domain.AuthorInput) (*domain.Author, bool, error)
}

// AuthorAddResponse is the output of "author add".
type AuthorAddResponse struct {
	Created bool           `json:"created"`
	Author  *domain.Author `json:"author"`
}

func runAuthorAdd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	db, err := e.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	var enricher roster.Enricher
	if e.cfg.StaffPage.Enabled {
		enricher = staffpage.New(e.cfg.StaffPage.Scraper(), e.logger, nil)
	}
	svc := roster.NewService(repository.NewPgGroupRepository(db), repository.NewPgAuthorRepository(db), enricher, e.logger)

	return addAuthor(cmd.Context(), svc, authorInput, cmd.OutOrStdout())
}

func addAuthor(ctx context.Context, svc authorAdder, in domain.AuthorInput, out io.Writer) error {
	author, created, err := svc.Add(ctx, in)
	if err != nil {
		return fmt.Errorf("add author: %w", err)
	}
	return outputJSON(out, AuthorAddResponse{Created: created, Author: author})
}
