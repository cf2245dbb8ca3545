package dummydb

import (
	"context"

	"github.com/trezcool/elimu/core/course"
)

type viewRepository struct {
	db *viewTable
}

var _ course.ViewRepository = (*viewRepository)(nil) // interface compliance check

func NewViewRepository(db *DB) course.ViewRepository {
	return &viewRepository{db: db.views}
}

func (repo *viewRepository) CreateLessonView(_ context.Context, view course.LessonView) (course.LessonView, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[view.ID] = &view
	return view, nil
}

func (repo *viewRepository) UpdateLessonView(_ context.Context, view course.LessonView) (course.LessonView, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[view.ID]; !ok {
		return course.LessonView{}, course.ErrViewNotFound
	}
	repo.db.table[view.ID] = &view
	return view, nil
}

func (repo *viewRepository) GetOpenLessonView(_ context.Context, sessionID, lessonID string) (course.LessonView, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, view := range repo.db.table {
		if view.SessionID == sessionID && view.LessonID == lessonID && !view.EndedAt.Valid {
			return *view, nil
		}
	}
	return course.LessonView{}, course.ErrViewNotFound
}

func (repo *viewRepository) QueryCompletedLessonIDs(_ context.Context, userID, courseID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, view := range repo.db.table {
		if view.UserID == userID && view.CourseID == courseID && view.Completed && !seen[view.LessonID] {
			seen[view.LessonID] = true
			ids = append(ids, view.LessonID)
		}
	}
	return ids, nil
}
