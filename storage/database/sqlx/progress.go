package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core/course"
)

type lessonViewRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	LessonID         string    `db:"lesson_id"`
	CourseID         string    `db:"course_id"`
	SessionID        string    `db:"session_id"`
	StartedAt        time.Time `db:"started_at"`
	WatchTimeSeconds int       `db:"watch_time_seconds"`
	Completed        bool      `db:"completed"`
	EndedAt          null.Time `db:"ended_at"`
}

type viewRepository struct {
	db *sqlx.DB
}

var _ course.ViewRepository = (*viewRepository)(nil) // interface compliance check

func NewViewRepository(db *sqlx.DB) *viewRepository {
	return &viewRepository{db: db}
}

func (repo viewRepository) pack(view course.LessonView) lessonViewRow {
	return lessonViewRow{
		ID:               view.ID,
		UserID:           view.UserID,
		LessonID:         view.LessonID,
		CourseID:         view.CourseID,
		SessionID:        view.SessionID,
		StartedAt:        view.StartedAt.UTC(),
		WatchTimeSeconds: view.WatchTimeSeconds,
		Completed:        view.Completed,
		EndedAt:          view.EndedAt,
	}
}

func (repo viewRepository) unpack(row lessonViewRow) course.LessonView {
	return course.LessonView{
		ID:               row.ID,
		UserID:           row.UserID,
		LessonID:         row.LessonID,
		CourseID:         row.CourseID,
		SessionID:        row.SessionID,
		StartedAt:        row.StartedAt,
		WatchTimeSeconds: row.WatchTimeSeconds,
		Completed:        row.Completed,
		EndedAt:          row.EndedAt,
	}
}

func (repo viewRepository) CreateLessonView(ctx context.Context, view course.LessonView) (course.LessonView, error) {
	row := repo.pack(view)
	query := `
		INSERT INTO lesson_view (id, user_id, lesson_id, course_id, session_id, started_at, watch_time_seconds, completed, ended_at)
		VALUES (:id, :user_id, :lesson_id, :course_id, :session_id, :started_at, :watch_time_seconds, :completed, :ended_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		return course.LessonView{}, errors.Wrap(err, "inserting lesson view")
	}
	return repo.unpack(row), nil
}

func (repo viewRepository) UpdateLessonView(ctx context.Context, view course.LessonView) (course.LessonView, error) {
	row := repo.pack(view)
	query := `
		UPDATE lesson_view
		SET watch_time_seconds = :watch_time_seconds, completed = :completed, ended_at = :ended_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return course.LessonView{}, errors.Wrap(err, "updating lesson view")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.LessonView{}, course.ErrViewNotFound
	}
	return repo.unpack(row), nil
}

func (repo viewRepository) GetOpenLessonView(ctx context.Context, sessionID, lessonID string) (course.LessonView, error) {
	var row lessonViewRow
	query := `SELECT * FROM lesson_view WHERE session_id = $1 AND lesson_id = $2 AND ended_at IS NULL`
	if err := repo.db.GetContext(ctx, &row, query, sessionID, lessonID); err != nil {
		return course.LessonView{}, trapNoRowsErr(err, course.ErrViewNotFound, "getting open lesson view")
	}
	return repo.unpack(row), nil
}

func (repo viewRepository) QueryCompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	var ids []string
	query := `SELECT DISTINCT lesson_id FROM lesson_view WHERE user_id = $1 AND course_id = $2 AND completed`
	if err := repo.db.SelectContext(ctx, &ids, query, userID, courseID); err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	return ids, nil
}
