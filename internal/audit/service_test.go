package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/shared"
)

type stubRepo struct {
	rows  []TimelineRow
	err   error
	calls []Query
}

func (s *stubRepo) Timeline(_ context.Context, q Query) ([]TimelineRow, error) {
	s.calls = append(s.calls, q)
	if s.err != nil {
		return nil, s.err
	}
	rows := s.rows
	if q.Offset < len(rows) {
		rows = rows[q.Offset:]
	} else {
		rows = nil
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func seedRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{ID: int64(n - i), At: at, Action: "order:created", Entity: "order", EntityID: "7"}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: seedRows(45)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Zero(t, res.Paging.PrevPage)
	require.Equal(t, 21, repo.calls[0].Limit)

	res, err = svc.Timeline(context.Background(), TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.PrevPage)
	require.Equal(t, 40, repo.calls[1].Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{rows: seedRows(80)}
	res, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, res.Paging.PageSize)
	require.Len(t, res.Rows, maxPageSize)
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := NewService(&stubRepo{}).Timeline(context.Background(), TimelineFilters{From: from, To: from.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTimelineEmptyIsNotNil(t *testing.T) {
	res, err := NewService(&stubRepo{}).Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.NotNil(t, res.Rows)
}

func TestExportIgnoresPaging(t *testing.T) {
	repo := &stubRepo{rows: seedRows(60)}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Page: 2, PageSize: 5, Entity: " order "})
	require.NoError(t, err)
	require.Len(t, rows, 60)
	require.Zero(t, repo.calls[0].Limit)
	require.Equal(t, "order", repo.calls[0].Entity)

	_, err = NewService(&stubRepo{err: errors.New("boom")}).Export(context.Background(), TimelineFilters{})
	require.ErrorContains(t, err, "audit: export")
}

func TestHandlerFiltersAndCSV(t *testing.T) {
	repo := &stubRepo{rows: seedRows(2)}
	h := NewHandler(slogDiscard(), NewService(repo))
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/?entity=order&from=2024-03-01&to=2024-03-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"has_next":false`)
	q := repo.calls[0]
	require.Equal(t, "order", q.Entity)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), q.To)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/?from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "id,occurred_at,action,entity,entity_id,meta", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "2,2024-03-01T09:00:00Z,order:created,order,7"))
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
