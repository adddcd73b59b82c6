package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imovel-monitor/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDBFromConn(conn), mock
}

var listingCols = []string{
	"id", "agency", "external_code", "deal_type", "title", "property_type", "price", "area",
	"bedrooms", "bathrooms", "parking_spaces", "address", "neighborhood", "url",
	"active", "deactivated_at", "collected_at",
}

func TestDBFindByKey(t *testing.T) {
	db, mock := newMockDB(t)
	key := models.ListingKey{Agency: "X", ExternalCode: "1", DealType: models.DealTypeRent}

	mock.ExpectQuery(`(?s)SELECT .+FROM listings\s+WHERE agency = \$1 AND external_code = \$2 AND deal_type = \$3`).
		WithArgs("X", "1", "RENT").
		WillReturnRows(sqlmock.NewRows(listingCols).AddRow(
			"id-1", "X", "1", "RENT", "Apartamento no Centro", "Apartamento", "R$ 1.500,00", "70m²",
			"2", "1", nil, "Centro - Chapecó", "Centro", "https://x/imovel/1",
			true, nil, t0,
		))

	l, err := db.FindByKey(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "id-1", l.ID)
	assert.Equal(t, models.DealTypeRent, l.DealType)
	assert.Equal(t, "", l.ParkingSpaces)
	assert.Nil(t, l.DeactivatedAt)
	assert.True(t, l.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBFindByKeyMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`(?s)SELECT .+FROM listings`).WillReturnError(sql.ErrNoRows)

	l, err := db.FindByKey(context.Background(), models.ListingKey{Agency: "X", ExternalCode: "9", DealType: models.DealTypeSale})
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestDBFindByKeyError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`(?s)SELECT .+FROM listings`).WillReturnError(errors.New("connection reset"))

	_, err := db.FindByKey(context.Background(), models.ListingKey{Agency: "X", ExternalCode: "9", DealType: models.DealTypeSale})
	assert.Error(t, err)
}

func TestDBInsertOnConflictDoNothing(t *testing.T) {
	db, mock := newMockDB(t)
	l := listing("X", "1", models.DealTypeRent, t0)

	mock.ExpectExec(`(?s)INSERT INTO listings .+ON CONFLICT \(agency, external_code, deal_type\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO listings`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := db.Insert(context.Background(), l)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, l.ID)

	inserted, err = db.Insert(context.Background(), listing("X", "1", models.DealTypeRent, t0))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWhereClause(t *testing.T) {
	since := t0
	where, args := whereClause(ListingFilters{
		DealType:     models.DealTypeSale,
		Neighborhood: "Efapi",
		Since:        &since,
	})
	assert.Equal(t, " WHERE active = TRUE AND deal_type = $1 AND (neighborhood ILIKE $2 OR address ILIKE $2) AND collected_at >= $3", where)
	assert.Equal(t, []any{"SALE", "%Efapi%", since}, args)

	where, args = whereClause(ListingFilters{IncludeInactive: true})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestDBListAppliesLimit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM listings WHERE active = TRUE AND LOWER\(agency\) = LOWER\(\$1\) ORDER BY collected_at DESC, id ASC LIMIT \$2`).
		WithArgs("Plaza Chapecó", 50).
		WillReturnRows(sqlmock.NewRows(listingCols).AddRow(
			"id-2", "Plaza Chapecó", "202", "SALE", "Casa no Efapi com pátio", "Casa", nil, nil,
			nil, nil, nil, nil, "Efapi", nil,
			true, nil, t0,
		))

	listings, err := db.List(context.Background(), ListingFilters{Agency: "Plaza Chapecó"}, 50)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Efapi", listings[0].Neighborhood)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBCountByAgency(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT agency, COUNT\(\*\) FROM listings WHERE active = TRUE GROUP BY agency`).
		WillReturnRows(sqlmock.NewRows([]string{"agency", "count"}).AddRow("Plaza Chapecó", 3).AddRow("Formiga Imóveis", 1))

	counts, err := db.CountByAgency(context.Background(), ListingFilters{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Plaza Chapecó": 3, "Formiga Imóveis": 1}, counts)
}

func TestDBDeactivateUnknownID(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE listings SET active = FALSE`).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.Deactivate(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBRunRecordLifecycle(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)INSERT INTO run_records .+RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	rec := &models.RunRecord{RunUUID: "u", StartedAt: t0, Status: models.RunStatusRunning}
	require.NoError(t, db.AppendRunRecord(ctx, rec))
	assert.Equal(t, uint(7), rec.ID)

	mock.ExpectExec(`UPDATE run_records`).
		WithArgs("SUCCESS", 12, 3, 1.5, "", 7, "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, db.UpdateRunRecord(ctx, 7, models.RunUpdate{
		Status: models.RunStatusSuccess, CollectedCount: 12, NewCount: 3, DurationSeconds: 1.5, ErrorMessage: "dropped",
	}))

	mock.ExpectExec(`UPDATE run_records`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	err := db.UpdateRunRecord(ctx, 7, models.RunUpdate{Status: models.RunStatusFailed})
	assert.ErrorIs(t, err, ErrRunFinalized)

	mock.ExpectQuery(`FROM run_records\s+ORDER BY started_at DESC, id DESC\s+LIMIT \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_uuid", "started_at", "status", "collected_count", "new_count", "duration_seconds", "error_message"}).
			AddRow(7, "u", t0, "SUCCESS", 12, 3, 1.5, nil))
	last, err := db.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.RunStatusSuccess, last.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}
