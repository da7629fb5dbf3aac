package repo

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
)

func newSnapshotRepo(t *testing.T) (*snapshotRepo, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewSnapshotRepo(db).(*snapshotRepo)
	r.now = func() time.Time { return now }
	return r, mock, now
}

func TestSnapshotRepoWrite_Upserts(t *testing.T) {
	r, mock, now := newSnapshotRepo(t)
	blob := []byte(`{"tier":"long-lived","items":[]}`)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_snapshots (tier_key, payload, saved_at)`)).
		WithArgs("cart:client:c1", blob, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Write(context.Background(), "cart:client:c1", blob))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepoWrite_Error(t *testing.T) {
	r, mock, _ := newSnapshotRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_snapshots`)).
		WillReturnError(errors.New("disk full"))

	err := r.Write(context.Background(), "k", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSnapshotRepoRead(t *testing.T) {
	r, mock, _ := newSnapshotRepo(t)
	blob := []byte(`{"items":[]}`)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM cart_snapshots WHERE tier_key = $1`)).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(blob))

	got, err := r.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestSnapshotRepoRead_NotFound(t *testing.T) {
	r, mock, _ := newSnapshotRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM cart_snapshots`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := r.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestSnapshotRepoDelete(t *testing.T) {
	r, mock, _ := newSnapshotRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_snapshots WHERE tier_key = $1`)).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background(), "k"))
	require.NoError(t, mock.ExpectationsWereMet())
}
