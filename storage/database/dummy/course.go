package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.Lessons = nil
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) FilterCourses(_ context.Context, filter course.QueryFilter, ordering ...core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		courses = append(courses, *crs)
	}

	if filter.Search != "" {
		var filtered []course.Course
		for _, crs := range courses {
			if strings.Contains(strings.ToLower(crs.Title), strings.ToLower(filter.Search)) ||
				strings.Contains(strings.ToLower(crs.Description), strings.ToLower(filter.Search)) {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.IsPublished != nil {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.IsPublished == *filter.IsPublished {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course, isPublished *bool) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origCrs, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if crs.Title != "" {
		origCrs.Title = crs.Title
	}
	if crs.Description != "" {
		origCrs.Description = crs.Description
	}
	if crs.CoverURL != "" {
		origCrs.CoverURL = crs.CoverURL
	}
	if crs.CompletionPoints != 0 {
		origCrs.CompletionPoints = crs.CompletionPoints
	}
	if isPublished != nil {
		origCrs.IsPublished = *isPublished
	}
	origCrs.UpdatedAt = crs.UpdatedAt

	repo.db.courses[crs.ID] = origCrs
	return *origCrs, nil
}

func (repo *courseRepository) DeleteCoursesByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.courses, id)
		for lid, lsn := range repo.db.lessons {
			if lsn.CourseID == id {
				delete(repo.db.lessons, lid)
			}
		}
	}
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[lsn.CourseID]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLessonByID(_ context.Context, id string) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lsn, ok := repo.db.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessonsByCourse(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var lessons []course.Lesson
	for _, lsn := range repo.db.lessons {
		if lsn.CourseID == courseID {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func (repo *courseRepository) DeleteLessonsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.lessons, id)
	}
	return nil
}

func (repo *courseRepository) CreateResource(_ context.Context, res course.Resource) (course.Resource, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.resources[res.ID] = &res
	return res, nil
}

func (repo *courseRepository) GetResourceByID(_ context.Context, id string) (course.Resource, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if res, ok := repo.db.resources[id]; ok {
		return *res, nil
	}
	return course.Resource{}, course.ErrResourceNotFound
}

func (repo *courseRepository) QueryAllResources(_ context.Context) ([]course.Resource, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	resources := make([]course.Resource, 0, len(repo.db.resources))
	for _, res := range repo.db.resources {
		resources = append(resources, *res)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].CreatedAt.Before(resources[j].CreatedAt) })
	return resources, nil
}

func (repo *courseRepository) AddFavorite(_ context.Context, userID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	favs, ok := repo.db.favorites[userID]
	if !ok {
		favs = make(map[string]bool)
		repo.db.favorites[userID] = favs
	}
	favs[courseID] = true
	return nil
}

func (repo *courseRepository) RemoveFavorite(_ context.Context, userID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.favorites[userID], courseID)
	return nil
}

func (repo *courseRepository) QueryFavoriteCourseIDs(_ context.Context, userID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0, len(repo.db.favorites[userID]))
	for id := range repo.db.favorites[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
