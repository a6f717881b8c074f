package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func noticeRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "posted_by", "audience", "target_batch_ids", "is_active", "is_scheduled", "scheduled_at", "expires_at", "is_important", "created_at", "updated_at"}).
		AddRow("n1", "Holiday", "Closed next week", "t1", string(models.NoticeAudienceAll), pq.StringArray{}, true, false, nil, nil, false, now, now)
}

func TestNoticeListForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM notices WHERE .+ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(noticeRows(now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notices WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	notices, total, err := repo.List(context.Background(), models.NoticeFilter{
		ViewerRole:     models.RoleStudent,
		ViewerBatchIDs: []string{"b1"},
		Now:            now,
	})
	require.NoError(t, err)
	assert.Len(t, notices, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM notices WHERE id = \\$1").
		WithArgs("n1").
		WillReturnRows(noticeRows(now))

	notice, err := repo.FindByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", notice.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeListDue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "posted_by", "audience", "target_batch_ids", "is_active", "is_scheduled", "scheduled_at", "expires_at", "is_important", "created_at", "updated_at"}).
		AddRow("n2", "Exam", "Tryout on Monday", "t1", string(models.NoticeAudienceStudents), pq.StringArray{}, false, true, now.Add(-time.Minute), nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+noticeColumns+" FROM notices WHERE is_scheduled = TRUE AND scheduled_at <= $1")).
		WithArgs(now).
		WillReturnRows(rows)

	due, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].IsScheduled)
	assert.False(t, due[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticePublishIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	now := time.Now().UTC()
	query := regexp.QuoteMeta("UPDATE notices SET is_active = TRUE, is_scheduled = FALSE, updated_at = $2 WHERE id = $1 AND is_scheduled = TRUE")

	mock.ExpectExec(query).WithArgs("n2", now).WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := repo.Publish(context.Background(), "n2", now)
	require.NoError(t, err)
	assert.True(t, applied)

	// a second publish matches zero rows and reports a no-op
	mock.ExpectExec(query).WithArgs("n2", now).WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err = repo.Publish(context.Background(), "n2", now)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}
