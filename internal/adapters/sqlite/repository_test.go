package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var ist = time.FixedZone("IST", 5*3600+1800)

// setupTestDB creates a repository backed by a fresh database file.
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err, "Failed to create test repository")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTrade(id, symbol string, pnl float64, exit time.Time) *domain.Trade {
	return &domain.Trade{
		PositionID:  id,
		Symbol:      symbol,
		Side:        domain.Long,
		EntryPrice:  100,
		ExitPrice:   100 + pnl/50,
		Quantity:    50,
		PNL:         pnl,
		PNLPct:      pnl / 50,
		EntryTime:   exit.Add(-10 * time.Minute),
		ExitTime:    exit,
		ExitReason:  domain.ExitTargetHit,
		ExitOrderID: "B" + id,
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRecord_IsIdempotentOnPositionID(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	exit := time.Date(2026, 10, 19, 11, 0, 0, 0, ist)

	trade := newTrade("pos1", "NIFTY", 300, exit)
	require.NoError(t, repo.Record(ctx, trade))
	assert.NotZero(t, trade.ID)

	dup := newTrade("pos1", "NIFTY", 999, exit)
	require.NoError(t, repo.Record(ctx, dup))

	trades, err := repo.FindBetween(ctx, exit.Add(-time.Hour), exit.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 300.0, trades[0].PNL)
	assert.Equal(t, domain.ExitTargetHit, trades[0].ExitReason)
	assert.Equal(t, "Bpos1", trades[0].ExitOrderID)
	assert.True(t, trades[0].ExitTime.Equal(exit))
}

func TestFindBetween_HalfOpenRangeOrdered(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 10, 0, 0, 0, ist)

	require.NoError(t, repo.Record(ctx, newTrade("c", "NIFTY", 10, base.Add(2*time.Hour))))
	require.NoError(t, repo.Record(ctx, newTrade("a", "NIFTY", 10, base)))
	require.NoError(t, repo.Record(ctx, newTrade("b", "NIFTY", 10, base.Add(time.Hour))))

	trades, err := repo.FindBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].PositionID)
	assert.Equal(t, "b", trades[1].PositionID)
}

func TestDayStats(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, ist)

	require.NoError(t, repo.Record(ctx, newTrade("prev", "NIFTY", -5000, day.Add(-time.Hour))))
	require.NoError(t, repo.Record(ctx, newTrade("p1", "NIFTY", -100, day.Add(10*time.Hour))))
	require.NoError(t, repo.Record(ctx, newTrade("p2", "BANKNIFTY25OCT52000CE", 400, day.Add(11*time.Hour))))
	require.NoError(t, repo.Record(ctx, newTrade("p3", "NIFTY25OCT25000PE", -150, day.Add(12*time.Hour))))
	require.NoError(t, repo.Record(ctx, newTrade("p4", "NIFTY", -50, day.Add(13*time.Hour))))

	stats, err := repo.DayStats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Trades)
	assert.InDelta(t, 100.0, stats.RealizedPNL, 1e-9)
	assert.Equal(t, 2, stats.ConsecutiveLosses)
	assert.True(t, stats.LastExitByRoot["NIFTY"].Equal(day.Add(13*time.Hour)))
	assert.True(t, stats.LastExitByRoot["BANKNIFTY"].Equal(day.Add(11*time.Hour)))
}

func TestPositionStore_SaveLoadDelete(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	entry := time.Date(2026, 10, 19, 10, 0, 0, 0, ist)

	older := &domain.Position{ID: "old", Symbol: "NIFTY", Side: domain.Long, Quantity: 50, EntryPrice: 25000,
		StopLoss: 24975, Target: 25040, EntryTime: entry, Status: domain.StatusOpen}
	newer := &domain.Position{ID: "new", Symbol: "NIFTY", Side: domain.Short, Quantity: 50, EntryPrice: 25010,
		StopLoss: 25030, Target: 24970, EntryTime: entry.Add(time.Minute), Status: domain.StatusClosing,
		PendingExitReason: domain.ExitStopHit, ExitAttempts: 2, ExitUnconfirmed: true}
	closed := &domain.Position{ID: "done", Symbol: "NIFTY", EntryTime: entry, Status: domain.StatusClosed}

	for _, p := range []*domain.Position{older, newer, closed} {
		require.NoError(t, repo.Save(ctx, p))
	}

	// Upsert replaces the snapshot.
	older.StopLoss = 25000
	older.BreakevenApplied = true
	require.NoError(t, repo.Save(ctx, older))

	active, err := repo.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "new", active[0].ID)
	assert.Equal(t, domain.ExitStopHit, active[0].PendingExitReason)
	assert.Equal(t, 2, active[0].ExitAttempts)
	assert.True(t, active[0].ExitUnconfirmed)
	assert.Equal(t, "old", active[1].ID)
	assert.Equal(t, 25000.0, active[1].StopLoss)
	assert.True(t, active[1].BreakevenApplied)

	require.NoError(t, repo.Delete(ctx, "new"))
	require.NoError(t, repo.Delete(ctx, "missing"))
	active, err = repo.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "old", active[0].ID)
}

func TestRecord_ExecErrorIsQueryFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryFromDB(db, &mockLogger{})

	mock.ExpectExec("INSERT OR IGNORE INTO trade_history").WillReturnError(errors.New("disk I/O error"))

	err = repo.Record(context.Background(), newTrade("p1", "NIFTY", 10, time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
	assert.True(t, ports.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_DuplicateLeavesIDUnset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryFromDB(db, &mockLogger{})

	mock.ExpectExec("INSERT OR IGNORE INTO trade_history").WillReturnResult(sqlmock.NewResult(0, 0))

	trade := newTrade("p1", "NIFTY", 10, time.Now())
	require.NoError(t, repo.Record(context.Background(), trade))
	assert.Zero(t, trade.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadActive_CorruptSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryFromDB(db, &mockLogger{})

	mock.ExpectQuery("SELECT snapshot FROM positions").
		WithArgs("PENDING_ENTRY", "OPEN", "CLOSING").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).AddRow("{not json"))

	_, err = repo.LoadActive(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDayStats_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepositoryFromDB(db, &mockLogger{})

	mock.ExpectQuery("SELECT id, position_id").WillReturnError(errors.New("database is locked"))

	_, err = repo.DayStats(context.Background(), time.Now())
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
