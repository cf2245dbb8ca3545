package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
)

type courseRow struct {
	ID               string    `db:"id"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	CoverURL         string    `db:"cover_url"`
	CompletionPoints int       `db:"completion_points"`
	IsPublished      bool      `db:"is_published"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type lessonRow struct {
	ID              string    `db:"id"`
	CourseID        string    `db:"course_id"`
	Title           string    `db:"title"`
	VideoURL        string    `db:"video_url"`
	Position        int       `db:"position"`
	DurationSeconds int       `db:"duration_seconds"`
	CreatedAt       time.Time `db:"created_at"`
}

type resourceRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	FileURL     string    `db:"file_url"`
	CreatedAt   time.Time `db:"created_at"`
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) packCourse(crs course.Course) courseRow {
	return courseRow{
		ID:               crs.ID,
		Title:            crs.Title,
		Description:      crs.Description,
		CoverURL:         crs.CoverURL,
		CompletionPoints: crs.CompletionPoints,
		IsPublished:      crs.IsPublished,
		CreatedAt:        crs.CreatedAt.UTC(),
		UpdatedAt:        crs.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) unpackCourse(row courseRow) course.Course {
	return course.Course{
		ID:               row.ID,
		Title:            row.Title,
		Description:      row.Description,
		CoverURL:         row.CoverURL,
		CompletionPoints: row.CompletionPoints,
		IsPublished:      row.IsPublished,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (repo courseRepository) unpackLesson(row lessonRow) course.Lesson {
	return course.Lesson{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Title:           row.Title,
		VideoURL:        row.VideoURL,
		Position:        row.Position,
		DurationSeconds: row.DurationSeconds,
		CreatedAt:       row.CreatedAt,
	}
}

func (repo courseRepository) unpackResource(row resourceRow) course.Resource {
	return course.Resource{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		FileURL:     row.FileURL,
		CreatedAt:   row.CreatedAt,
	}
}

func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}
	row := repo.packCourse(crs)
	query := `
		INSERT INTO course (id, title, description, cover_url, completion_points, is_published, created_at, updated_at)
		VALUES (:id, :title, :description, :cover_url, :completion_points, :is_published, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unpackCourse(row), nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return repo.unpackCourse(row), nil
}

func (repo courseRepository) FilterCourses(ctx context.Context, filter course.QueryFilter, ordering ...core.DBOrdering) ([]course.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Search != "" {
		conds = append(conds, `(title ILIKE ? OR description ILIKE ?)`)
		search := "%" + filter.Search + "%"
		args = append(args, search, search)
	}
	if filter.IsPublished != nil {
		conds = append(conds, `is_published = ?`)
		args = append(args, *filter.IsPublished)
	}

	query := `SELECT * FROM course`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += orderBy(ordering, "created_at ASC")

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unpackCourse(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isPublished *bool) (course.Course, error) {
	// only save set fields
	sets := []string{"updated_at = ?"}
	args := []interface{}{crs.UpdatedAt.UTC()}
	if crs.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, crs.Title)
	}
	if crs.Description != "" {
		sets = append(sets, "description = ?")
		args = append(args, crs.Description)
	}
	if crs.CoverURL != "" {
		sets = append(sets, "cover_url = ?")
		args = append(args, crs.CoverURL)
	}
	if crs.CompletionPoints != 0 {
		sets = append(sets, "completion_points = ?")
		args = append(args, crs.CompletionPoints)
	}
	if isPublished != nil {
		sets = append(sets, "is_published = ?")
		args = append(args, *isPublished)
	}
	args = append(args, crs.ID)

	query := fmt.Sprintf(`UPDATE course SET %s WHERE id = ?`, strings.Join(sets, ", "))
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourseByID(ctx, crs.ID)
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM course WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	if lsn.ID == "" {
		lsn.ID = uuid.New().String()
	}
	row := lessonRow{
		ID:              lsn.ID,
		CourseID:        lsn.CourseID,
		Title:           lsn.Title,
		VideoURL:        lsn.VideoURL,
		Position:        lsn.Position,
		DurationSeconds: lsn.DurationSeconds,
		CreatedAt:       lsn.CreatedAt.UTC(),
	}
	query := `
		INSERT INTO lesson (id, course_id, title, video_url, position, duration_seconds, created_at)
		VALUES (:id, :course_id, :title, :video_url, :position, :duration_seconds, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.unpackLesson(row), nil
}

func (repo courseRepository) GetLessonByID(ctx context.Context, id string) (course.Lesson, error) {
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM lesson WHERE id = $1`, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "getting lesson")
	}
	return repo.unpackLesson(row), nil
}

func (repo courseRepository) QueryLessonsByCourse(ctx context.Context, courseID string) ([]course.Lesson, error) {
	var rows []lessonRow
	query := `SELECT * FROM lesson WHERE course_id = $1 ORDER BY position ASC`
	if err := repo.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, repo.unpackLesson(row))
	}
	return lessons, nil
}

func (repo courseRepository) DeleteLessonsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM lesson WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting lessons")
	}
	return nil
}

func (repo courseRepository) CreateResource(ctx context.Context, res course.Resource) (course.Resource, error) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	row := resourceRow{
		ID:          res.ID,
		Title:       res.Title,
		Description: res.Description,
		FileURL:     res.FileURL,
		CreatedAt:   res.CreatedAt.UTC(),
	}
	query := `
		INSERT INTO resource (id, title, description, file_url, created_at)
		VALUES (:id, :title, :description, :file_url, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		return course.Resource{}, errors.Wrap(err, "inserting resource")
	}
	return repo.unpackResource(row), nil
}

func (repo courseRepository) GetResourceByID(ctx context.Context, id string) (course.Resource, error) {
	var row resourceRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM resource WHERE id = $1`, id); err != nil {
		return course.Resource{}, trapNoRowsErr(err, course.ErrResourceNotFound, "getting resource")
	}
	return repo.unpackResource(row), nil
}

func (repo courseRepository) QueryAllResources(ctx context.Context) ([]course.Resource, error) {
	var rows []resourceRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM resource ORDER BY created_at ASC`); err != nil {
		return nil, errors.Wrap(err, "querying resources")
	}

	resources := make([]course.Resource, 0, len(rows))
	for _, row := range rows {
		resources = append(resources, repo.unpackResource(row))
	}
	return resources, nil
}

func (repo courseRepository) AddFavorite(ctx context.Context, userID, courseID string) error {
	query := `
		INSERT INTO favorite (user_id, course_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, course_id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, userID, courseID); err != nil {
		return errors.Wrap(err, "adding favorite")
	}
	return nil
}

func (repo courseRepository) RemoveFavorite(ctx context.Context, userID, courseID string) error {
	query := `DELETE FROM favorite WHERE user_id = $1 AND course_id = $2`
	if _, err := repo.db.ExecContext(ctx, query, userID, courseID); err != nil {
		return errors.Wrap(err, "removing favorite")
	}
	return nil
}

func (repo courseRepository) QueryFavoriteCourseIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	query := `SELECT course_id FROM favorite WHERE user_id = $1 ORDER BY created_at ASC`
	if err := repo.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying favorites")
	}
	return ids, nil
}
