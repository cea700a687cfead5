// Package roster applies roster rows to the author index: it validates each
// row, fills missing identifiers from the author's staff page, resolves the
// research group and upserts the author.
package roster

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/staffpage"
)

// Enricher looks up missing identifiers on a staff profile page.
type Enricher interface {
	StaffURL(first, last string) string
	Enrich(ctx context.Context, staffURL string, ids staffpage.Identifiers) staffpage.Identifiers
}

// RowError reports a roster row that was not applied.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result summarises an applied roster.
type Result struct {
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Authors  []*domain.Author `json:"authors"`
	Rejected []RowError       `json:"rejected,omitempty"`
}

// Service applies roster rows.
type Service struct {
	groups   repository.GroupRepository
	authors  repository.AuthorRepository
	enricher Enricher
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates a Service. enricher may be nil to skip staff-page lookups.
func NewService(groups repository.GroupRepository, authors repository.AuthorRepository, enricher Enricher, logger zerolog.Logger) *Service {
	return &Service{
		groups:   groups,
		authors:  authors,
		enricher: enricher,
		validate: NewValidator(),
		logger:   observability.WithComponent(logger, "roster"),
	}
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a value against its validate tags and converts the first
// failure into a domain.ValidationError.
func Validate(v *validator.Validate, value interface{}) error {
	err := v.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Field(), describeTag(fe))
	}
	return domain.NewValidationError("body", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Add validates and upserts one roster row.
func (s *Service) Add(ctx context.Context, in domain.AuthorInput) (*domain.Author, bool, error) {
	in = in.Trimmed()
	if err := Validate(s.validate, in); err != nil {
		return nil, false, err
	}

	in = s.enrich(ctx, in)

	group, err := s.groups.GetOrCreate(ctx, in.Group)
	if err != nil {
		return nil, false, fmt.Errorf("resolve group %q: %w", in.Group, err)
	}

	author, created, err := s.authors.Upsert(ctx, group, in)
	if err != nil {
		return nil, false, fmt.Errorf("upsert author: %w", err)
	}

	s.logger.Info().
		Int64("author_id", author.ID).
		Str("group", group.Name).
		Bool("created", created).
		Msg("roster row applied")
	return author, created, nil
}

// AddAll applies rows in order. Invalid rows are reported in Result.Rejected
// and do not stop the batch; storage failures abort it.
func (s *Service) AddAll(ctx context.Context, rows []domain.AuthorInput) (*Result, error) {
	res := &Result{Authors: make([]*domain.Author, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		author, created, err := s.Add(ctx, row)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				res.Rejected = append(res.Rejected, RowError{Row: i + 1, Error: err.Error()})
				continue
			}
			return res, fmt.Errorf("row %d: %w", i+1, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		res.Authors = append(res.Authors, author)
	}
	return res, nil
}

// enrich fills empty identifiers from the staff page and records the page URL.
func (s *Service) enrich(ctx context.Context, in domain.AuthorInput) domain.AuthorInput {
	if s.enricher == nil {
		return in
	}
	if in.StaffURL == "" {
		in.StaffURL = s.enricher.StaffURL(in.FirstName, in.LastName)
	}
	ids := s.enricher.Enrich(ctx, in.StaffURL, staffpage.Identifiers{
		ScopusID:  in.ScopusID,
		ScholarID: in.ScholarID,
		ORCIDID:   in.ORCIDID,
	})
	in.ScopusID = ids.ScopusID
	in.ScholarID = ids.ScholarID
	in.ORCIDID = ids.ORCIDID
	return in
}
