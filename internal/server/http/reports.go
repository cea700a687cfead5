package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// reportFunc computes a report body.
type reportFunc func(ctx context.Context) (interface{}, error)

// serveReport writes the cached report for key, computing and caching it on a miss.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, key string, compute reportFunc) {
	if s.reports != nil {
		if cached, found := s.reports.Get(key); found {
			s.deps.Metrics.RecordReportCache(true)
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
		s.deps.Metrics.RecordReportCache(false)
	}

	body, err := compute(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Str("report", key).Msg("report failed")
		writeDomainError(w, err)
		return
	}

	if s.reports != nil {
		s.reports.Set(key, body, cache.DefaultExpiration)
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, body)
}

// invalidateReports drops every cached report after a write.
func (s *Server) invalidateReports() {
	if s.reports != nil {
		s.reports.Flush()
	}
}

// newPublicationsReport handles GET /reports/new-publications?since=YYYY-MM-DD.
func (s *Server) newPublicationsReport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "since is required")
		return
	}
	since, err := domain.ParseDate(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.serveReport(w, r, "new-publications:"+since.Format(domain.DateLayout), func(ctx context.Context) (interface{}, error) {
		return s.deps.Reports.NewPublications(ctx, since)
	})
}

// keywordsReport handles GET /reports/keywords?since=YYYY-MM-DD (since optional).
func (s *Server) keywordsReport(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	key := "keywords:all"
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := domain.ParseDate(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		since = &t
		key = "keywords:" + t.Format(domain.DateLayout)
	}

	s.serveReport(w, r, key, func(ctx context.Context) (interface{}, error) {
		counts, err := s.deps.Reports.KeywordCounts(ctx, since)
		if err != nil {
			return nil, err
		}
		if counts == nil {
			counts = []domain.KeywordCount{}
		}
		return map[string]interface{}{"keywords": counts}, nil
	})
}

// keywordsPerGroupReport handles GET /reports/keywords-per-group.
func (s *Server) keywordsPerGroupReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "keywords-per-group", func(ctx context.Context) (interface{}, error) {
		groups, err := s.deps.Reports.KeywordCountsPerGroup(ctx)
		if err != nil {
			return nil, err
		}
		if groups == nil {
			groups = []domain.GroupKeywordCounts{}
		}
		return map[string]interface{}{"groups": groups}, nil
	})
}

// multiGroupReport handles GET /reports/multi-group.
func (s *Server) multiGroupReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "multi-group", func(ctx context.Context) (interface{}, error) {
		pubs, err := s.deps.Reports.MultiGroupPublications(ctx)
		if err != nil {
			return nil, err
		}
		if pubs == nil {
			pubs = []*domain.MultiGroupPublication{}
		}
		return map[string]interface{}{"count": len(pubs), "publications": pubs}, nil
	})
}

// groupAuthorMultiGroupReport handles GET /reports/group-author-multi-group.
func (s *Server) groupAuthorMultiGroupReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "group-author-multi-group", func(ctx context.Context) (interface{}, error) {
		rows, err := s.deps.Reports.GroupAuthorMultiGroup(ctx)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []domain.AuthorMultiGroupCount{}
		}
		return map[string]interface{}{"authors": rows}, nil
	})
}

// papersPerGroupReport handles GET /reports/papers-per-group.
func (s *Server) papersPerGroupReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "papers-per-group", func(ctx context.Context) (interface{}, error) {
		groups, err := s.deps.Reports.TotalPapersPerGroup(ctx)
		if err != nil {
			return nil, err
		}
		if groups == nil {
			groups = []domain.GroupPublications{}
		}
		return map[string]interface{}{"groups": groups}, nil
	})
}
