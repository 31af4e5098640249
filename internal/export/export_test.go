package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/loomledger/loomledger/internal/shared"
)

type staticSource struct {
	tables []Table
	err    error
	calls  int
}

func (s *staticSource) Tables(ctx context.Context) ([]Table, error) {
	s.calls++
	return s.tables, s.err
}

func sampleSource() *staticSource {
	return &staticSource{tables: []Table{
		{Name: "contractors", Columns: []string{"id", "name", "contact_info"}, Rows: [][]any{
			{int64(1), "Alice", nil},
			{int64(2), "Bob", "555-0100"},
		}},
		{Name: "stock_items", Columns: []string{"id", "type", "price_per_kg"}, Rows: [][]any{
			{int64(1), "Wool", decimal.RequireFromString("100.5")},
		}},
		{Name: "orders", Columns: []string{"id"}},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWorkbookWritesOneSheetPerTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(context.Background(), sampleSource(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"contractors", "stock_items", "orders"}, f.GetSheetList())

	rows, err := f.GetRows("contractors")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "contact_info"}, rows[0])
	require.Equal(t, "Alice", rows[1][1])
	require.Equal(t, "555-0100", rows[2][2])

	price, err := f.GetCellValue("stock_items", "C2")
	require.NoError(t, err)
	require.Equal(t, "100.5", price)

	empty, err := f.GetRows("orders")
	require.NoError(t, err)
	require.Len(t, empty, 1)
}

func TestSaveFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "ledger.xlsx")
	require.NoError(t, SaveFile(context.Background(), sampleSource(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	failing := &staticSource{err: errors.New("db down")}
	require.Error(t, SaveFile(context.Background(), failing, path))

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info.Size(), after.Size())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExporterSerialisesOnLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)
	ctx := context.Background()

	exp := NewExporter(ExporterConfig{
		Source: sampleSource(),
		Path:   filepath.Join(t.TempDir(), "ledger.xlsx"),
		Locker: locker,
		Wait:   300 * time.Millisecond,
		Logger: discardLogger(),
	})
	require.NoError(t, exp.Run(ctx))

	held, err := locker.Obtain(ctx, lockKey, time.Minute, nil)
	require.NoError(t, err)
	require.ErrorIs(t, exp.Run(ctx), ErrBusy)

	require.NoError(t, held.Release(ctx))
	require.NoError(t, exp.Run(ctx))
}

type recordingQueue struct {
	reasons []string
	err     error
}

func (q *recordingQueue) EnqueueExport(ctx context.Context, reason string) error {
	q.reasons = append(q.reasons, reason)
	return q.err
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type failureCount map[string]int

func (c failureCount) ExportFailed(stage string) { c[stage]++ }

func TestNotifierModes(t *testing.T) {
	ctx := context.Background()
	evt := shared.CommitEvent{Entity: "order", EntityID: 7, Action: "created"}

	queue := &recordingQueue{}
	failures := failureCount{}
	NewNotifier(ModeQueue, queue, nil, failures, discardLogger()).Committed(ctx, evt)
	require.Equal(t, []string{"order:created:7"}, queue.reasons)

	queue.err = errors.New("redis down")
	NewNotifier(ModeQueue, queue, nil, failures, discardLogger()).Committed(ctx, evt)
	require.Equal(t, 1, failures["enqueue"])

	runs := 0
	inline := NewNotifier(ModeInline, nil, runnerFunc(func(ctx context.Context) error {
		runs++
		return errors.New("disk full")
	}), failures, discardLogger())
	inline.spawn = func(fn func()) { fn() }
	inline.Committed(ctx, evt)
	require.Equal(t, 1, runs)
	require.Equal(t, 1, failures["run"])

	off := NewNotifier(ModeOff, queue, nil, failures, discardLogger())
	off.Committed(ctx, evt)
	require.Len(t, queue.reasons, 2)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeQueue, m)
	m, err = ParseMode(" Inline ")
	require.NoError(t, err)
	require.Equal(t, ModeInline, m)
	_, err = ParseMode("email")
	require.Error(t, err)
}

func TestDownloadStreamsWorkbook(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(discardLogger(), sampleSource()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "spreadsheetml")

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()
	require.Len(t, f.GetSheetList(), 3)
}
