package download

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// Scan log request/response.
type ScanLogsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanLogsResponse struct {
	Items []*models.DownloadLog `json:"items"`
	Total int64                 `json:"total"`
}

// filtersAnd joins a filter list into a single AND expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w.filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}

// ScanLogs implements paginated admin listing of the audit trail with filters.
func (s *Service) ScanLogs(ctx context.Context, req *ScanLogsRequest) (*ScanLogsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.DownloadLog{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count download logs: %w", err)
	}

	var rows []*models.DownloadLog

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list download logs: %w", err)
	}

	return &ScanLogsResponse{Items: rows, Total: total}, nil
}
