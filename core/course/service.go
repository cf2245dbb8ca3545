package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrNoLessons        = errors.New("course has no lessons")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		FilterCourses(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, isPublished *bool) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...string) error

		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		GetLessonByID(ctx context.Context, id string) (Lesson, error)
		// QueryLessonsByCourse returns the course's lessons ordered by position.
		QueryLessonsByCourse(ctx context.Context, courseID string) ([]Lesson, error)
		DeleteLessonsByID(ctx context.Context, ids ...string) error

		CreateResource(ctx context.Context, res Resource) (Resource, error)
		GetResourceByID(ctx context.Context, id string) (Resource, error)
		QueryAllResources(ctx context.Context) ([]Resource, error)

		AddFavorite(ctx context.Context, userID, courseID string) error
		RemoveFavorite(ctx context.Context, userID, courseID string) error
		QueryFavoriteCourseIDs(ctx context.Context, userID string) ([]string, error)
	}

	// ViewRepository persists lesson viewing records.
	ViewRepository interface {
		CreateLessonView(ctx context.Context, view LessonView) (LessonView, error)
		UpdateLessonView(ctx context.Context, view LessonView) (LessonView, error)
		// GetOpenLessonView finds the not-yet-ended view for a lesson within a visit.
		GetOpenLessonView(ctx context.Context, sessionID, lessonID string) (LessonView, error)
		QueryCompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error)
	}

	Service struct {
		repo  Repository
		views ViewRepository
		log   core.Logger
	}
)

var ErrViewNotFound = errors.New("lesson view not found")

func NewService(repo Repository, views ViewRepository, log core.Logger) *Service {
	return &Service{repo: repo, views: views, log: log}
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		ID:               uuid.New().String(),
		Title:            nc.Title,
		Description:      nc.Description,
		CoverURL:         nc.CoverURL,
		CompletionPoints: nc.CompletionPoints,
		IsPublished:      nc.IsPublished,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	crs := Course{
		ID:        id,
		Title:     uc.Title,
		UpdatedAt: time.Now().UTC(),
	}
	if uc.Description != nil {
		crs.Description = *uc.Description
	}
	if uc.CoverURL != nil {
		crs.CoverURL = *uc.CoverURL
	}
	if uc.CompletionPoints != nil {
		crs.CompletionPoints = *uc.CompletionPoints
	}
	return svc.repo.UpdateCourse(ctx, crs, uc.IsPublished)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	crs, err := svc.repo.GetCourseByID(ctx, id)
	if err != nil {
		return Course{}, err
	}
	lessons, err := svc.repo.QueryLessonsByCourse(ctx, id)
	if err != nil {
		return Course{}, errors.Wrap(err, "querying course lessons")
	}
	crs.Lessons = lessons
	return crs, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.FilterCourses(ctx, *filter, ordering...)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

func (svc *Service) AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Lesson{}, err
	}
	lsn := Lesson{
		ID:              uuid.New().String(),
		CourseID:        courseID,
		Title:           nl.Title,
		VideoURL:        nl.VideoURL,
		Position:        nl.Position,
		DurationSeconds: nl.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *Service) DeleteLessons(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteLessonsByID(ctx, ids...)
}

func (svc *Service) CreateResource(ctx context.Context, nr NewResource) (Resource, error) {
	res := Resource{
		ID:          uuid.New().String(),
		Title:       nr.Title,
		Description: nr.Description,
		FileURL:     nr.FileURL,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateResource(ctx, res)
}

func (svc *Service) GetResource(ctx context.Context, id string) (Resource, error) {
	return svc.repo.GetResourceByID(ctx, id)
}

func (svc *Service) QueryResources(ctx context.Context) ([]Resource, error) {
	return svc.repo.QueryAllResources(ctx)
}

func (svc *Service) Favorite(ctx context.Context, userID, courseID string) error {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return err
	}
	return svc.repo.AddFavorite(ctx, userID, courseID)
}

func (svc *Service) Unfavorite(ctx context.Context, userID, courseID string) error {
	return svc.repo.RemoveFavorite(ctx, userID, courseID)
}

func (svc *Service) FavoriteCourseIDs(ctx context.Context, userID string) ([]string, error) {
	return svc.repo.QueryFavoriteCourseIDs(ctx, userID)
}

func (svc *Service) CompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	return svc.views.QueryCompletedLessonIDs(ctx, userID, courseID)
}
