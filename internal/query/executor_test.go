package query

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TobiSchelling/resultsdash/internal/cache"
	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

const ttl = 600 * time.Second

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
// Every ExpectQuery stands for exactly one round trip to the warehouse.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func newTestExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock, *clockwork.FakeClock, *Metrics) {
	t.Helper()
	db, mock := newMockDB(t)
	clock := clockwork.NewFakeClock()
	metrics := NewMetrics(prometheus.NewRegistry())
	exec := NewExecutor(
		warehouse.NewConn("mock", "snowflake", db),
		cache.New[*warehouse.Table](clock, ttl),
		WithMetrics(metrics),
	)
	return exec, mock, clock, metrics
}

func rows(value string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"V"}).AddRow(value)
}

func TestRunCacheHit(t *testing.T) {
	exec, mock, clock, metrics := newTestExecutor(t)
	ctx := context.Background()
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("A"))

	first, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	clock.Advance(10 * time.Second)
	second, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached table differs (-first +second):\n%s", diff)
	}
	if got := testutil.ToFloat64(metrics.Hits); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Misses); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}
}

func TestRunCacheExpiry(t *testing.T) {
	exec, mock, clock, _ := newTestExecutor(t)
	ctx := context.Background()
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("A"))
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("A"))

	if _, err := exec.Run(ctx, "SELECT * FROM T"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	clock.Advance(ttl)
	if _, err := exec.Run(ctx, "SELECT * FROM T"); err != nil {
		t.Fatalf("Run after ttl: %v", err)
	}
}

func TestRunDistinctTextsDoNotShareEntries(t *testing.T) {
	exec, mock, _, _ := newTestExecutor(t)
	ctx := context.Background()
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("same"))
	mock.ExpectQuery("select * from T").WillReturnRows(rows("same"))

	a, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("Run upper: %v", err)
	}
	b, err := exec.Run(ctx, "select * from T")
	if err != nil {
		t.Fatalf("Run lower: %v", err)
	}
	if a == b {
		t.Error("distinct query texts must not return the same cached table")
	}
}

func TestRunScenario(t *testing.T) {
	exec, mock, clock, _ := newTestExecutor(t)
	ctx := context.Background()
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("A"))

	// t=0: one warehouse call.
	a, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("t=0: %v", err)
	}
	start := clock.Now()
	if !a.FetchedAt.Equal(start) {
		t.Errorf("FetchedAt = %s, want %s", a.FetchedAt, start)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("t=0: %v", err)
	}

	// t=500: served from cache, sqlmock fails the call if it reaches the db.
	clock.Advance(500 * time.Second)
	cached, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("t=500: %v", err)
	}
	if cached != a {
		t.Error("t=500: expected table A from cache")
	}

	// t=650: exactly one more call returning B.
	clock.Advance(150 * time.Second)
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("B"))
	b, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("t=650: %v", err)
	}
	if got := b.Value(0, "V"); got != "B" {
		t.Errorf("t=650: expected table B, got %v", got)
	}
	if age, ok := exec.Age("SELECT * FROM T"); !ok || age != 0 {
		t.Errorf("t=650: Age = %s, %v", age, ok)
	}
}

func TestRunErrorsAreNotCached(t *testing.T) {
	exec, mock, _, metrics := newTestExecutor(t)
	ctx := context.Background()
	mock.ExpectQuery("SELECT * FROM T").WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery("SELECT * FROM T").WillReturnRows(rows("A"))

	_, err := exec.Run(ctx, "SELECT * FROM T")
	var qErr *warehouse.QueryExecutionError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}

	// No clock advance: the retry must still reach the warehouse.
	table, err := exec.Run(ctx, "SELECT * FROM T")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 row, got %d", table.Len())
	}
	if got := testutil.ToFloat64(metrics.Errors); got != 1 {
		t.Errorf("expected 1 error counted, got %v", got)
	}
}

type countingSource struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *countingSource) Query(ctx context.Context, q string) (*warehouse.Table, error) {
	s.calls.Add(1)
	<-s.release
	return &warehouse.Table{Columns: []string{"Q"}, Rows: [][]any{{q}}}, nil
}

func TestRunConcurrentFirstAccess(t *testing.T) {
	src := &countingSource{release: make(chan struct{})}
	exec := NewExecutor(src, cache.New[*warehouse.Table](clockwork.NewFakeClock(), ttl))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*warehouse.Table, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = exec.Run(context.Background(), "SELECT 1")
		}(i)
	}
	close(src.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if got := results[i].Value(0, "Q"); got != "SELECT 1" {
			t.Errorf("caller %d got %v", i, got)
		}
	}
	if n := src.calls.Load(); n < 1 || n > callers {
		t.Errorf("unexpected number of warehouse calls: %d", n)
	}

	// Once settled, the next call is a hit.
	before := src.calls.Load()
	if _, err := exec.Run(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("settled Run: %v", err)
	}
	if src.calls.Load() != before {
		t.Error("expected a cache hit after concurrent first access")
	}
}

// blockingSource holds every query until release is closed, honouring ctx.
type blockingSource struct {
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
	canceled atomic.Bool
}

func (s *blockingSource) Query(ctx context.Context, q string) (*warehouse.Table, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-ctx.Done():
		s.canceled.Store(true)
		return nil, &warehouse.QueryExecutionError{Query: q, Err: ctx.Err()}
	case <-s.release:
		return &warehouse.Table{Columns: []string{"Q"}, Rows: [][]any{{q}}}, nil
	}
}

func TestRunCallerCancelDoesNotFailSharedQuery(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	exec := NewExecutor(src, cache.New[*warehouse.Table](clockwork.NewFakeClock(), ttl))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := exec.Run(ctxA, "SELECT 1")
		errA <- err
	}()
	<-src.started

	// A gives up while its round trip is still in flight.
	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("caller A: expected context.Canceled, got %v", err)
	}

	resB := make(chan error, 1)
	go func() {
		table, err := exec.Run(context.Background(), "SELECT 1")
		if err == nil && table.Value(0, "Q") != "SELECT 1" {
			err = errors.New("unexpected table")
		}
		resB <- err
	}()
	close(src.release)

	if err := <-resB; err != nil {
		t.Fatalf("caller B: %v", err)
	}
	if src.canceled.Load() {
		t.Error("the shared warehouse call saw caller A's cancellation")
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected one warehouse call, got %d", n)
	}
}
