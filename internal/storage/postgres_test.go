package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/pricebot/internal/common"
)

func newMockStorage(t *testing.T, dialect Dialect) (*Storage, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return NewWithDB(db, dialect, WithClock(func() time.Time { return now })), mock, now
}

func TestRebind(t *testing.T) {
	query := `SELECT id FROM products WHERE name = ? AND id <> ?`

	if got := DialectSQLite.rebind(query); got != query {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	want := `SELECT id FROM products WHERE name = $1 AND id <> $2`
	if got := DialectPostgres.rebind(query); got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{input: "", want: DialectSQLite},
		{input: "sqlite3", want: DialectSQLite},
		{input: "Postgres", want: DialectPostgres},
		{input: "postgresql", want: DialectPostgres},
		{input: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDialect(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !DialectPostgres.isUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("pq unique_violation not detected")
	}
	if DialectPostgres.isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("pq foreign_key_violation reported as unique")
	}
	if !DialectSQLite.isUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}) {
		t.Error("sqlite unique constraint not detected")
	}
	if DialectSQLite.isUniqueViolation(errors.New("boom")) {
		t.Error("plain error reported as unique")
	}
}

func TestPostgres_FindOrCreateBusiness(t *testing.T) {
	store, mock, now := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO business \(name, created_at\) VALUES \(\$1, \$2\) ON CONFLICT \(name\) DO NOTHING RETURNING id`).
		WithArgs("Dia", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	b, created, err := store.FindOrCreateBusiness(ctx, "Dia")
	if err != nil {
		t.Fatalf("FindOrCreateBusiness() error = %v", err)
	}
	if !created || b.ID != 7 {
		t.Errorf("FindOrCreateBusiness() = %+v created=%v", b, created)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO business`).
		WithArgs("Dia", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id, name, created_at FROM business WHERE name = \$1`).
		WithArgs("Dia").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow(7, "Dia", now.Add(-time.Hour)))
	mock.ExpectCommit()

	b, created, err = store.FindOrCreateBusiness(ctx, "Dia")
	if err != nil {
		t.Fatalf("FindOrCreateBusiness() error = %v", err)
	}
	if created || b.ID != 7 || !b.CreatedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("FindOrCreateBusiness() = %+v created=%v", b, created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	store, mock, _ := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	if _, _, err := store.FindOrCreateProduct(ctx, "Milk"); !errors.Is(err, common.ErrStore) {
		t.Errorf("FindOrCreateProduct() error = %v, want store error", err)
	}

	mock.ExpectQuery(`SELECT id, name, created_at FROM products`).
		WithArgs("%milk%").
		WillReturnError(errors.New("server closed the connection"))
	if _, err := store.SearchProducts(ctx, "milk"); !errors.Is(err, common.ErrStore) {
		t.Errorf("SearchProducts() error = %v, want store error", err)
	}

	mock.ExpectQuery(`ROW_NUMBER\(\) OVER`).
		WillReturnError(context.DeadlineExceeded)
	_, err := store.LatestPrices(ctx, "")
	if !errors.Is(err, common.ErrStore) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("LatestPrices() error = %v, want store error wrapping deadline", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_RenameUniqueViolation(t *testing.T) {
	store, mock, now := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, created_at FROM products WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow(3, "Milk", now))
	mock.ExpectQuery(`SELECT id FROM products WHERE LOWER\(name\) = LOWER\(\$1\) AND id <> \$2`).
		WithArgs("Bread", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`UPDATE products SET name = \$1 WHERE id = \$2`).
		WithArgs("Bread", int64(3)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := store.RenameProduct(ctx, 3, "Bread")
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("RenameProduct() error = %v, want duplicate", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_LatestPrices(t *testing.T) {
	store, mock, now := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	columns := []string{"id", "name", "created_at", "id", "name", "created_at", "price", "created_at"}
	mock.ExpectQuery(`WHERE l.rn = 1 AND LOWER\(p.name\) LIKE LOWER\(\$1\)`).
		WithArgs("%milk%").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "Milk", now, 2, "Dia", now, "2.5000", now.Add(-49*time.Hour)).
			AddRow(1, "Milk", now, 3, "Coto", now, "1.7500", now.Add(-50*time.Hour)).
			AddRow(4, "Oat Milk", now, 2, "Dia", now, "3.0000", now.Add(-time.Hour)))

	latest, err := store.LatestPrices(ctx, "milk")
	if err != nil {
		t.Fatalf("LatestPrices() error = %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("LatestPrices() returned %d rows", len(latest))
	}

	if latest[0].Product.Name != "Oat Milk" || latest[0].AgeDays != 0 {
		t.Errorf("row 0 = %+v", latest[0])
	}
	if latest[1].Business.Name != "Coto" || latest[1].AgeDays != 2 || latest[1].Price.String() != "1.75" {
		t.Errorf("row 1 = %s@%s %s age %d", latest[1].Product.Name, latest[1].Business.Name, latest[1].Price, latest[1].AgeDays)
	}
	if latest[2].Business.Name != "Dia" || latest[2].AgeDays != 2 {
		t.Errorf("row 2 = %+v", latest[2])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_MigrateAlreadyCurrent(t *testing.T) {
	store, mock, _ := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(ExpectedSchemaVersion))
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_MigrateFromScratch(t *testing.T) {
	store, mock, _ := newMockStorage(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE`).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS business \(\s+id BIGSERIAL PRIMARY KEY`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS products`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`price NUMERIC\(14, 4\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_prices_pair`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs(1, "Initial schema").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`idx_business_name_lower`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`idx_products_name_lower`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs(2, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE`).WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
