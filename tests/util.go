package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role user.Role,
	supervisorID string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Role:         role,
		SupervisorID: null.NewString(supervisorID, supervisorID != ""),
		IsActive:     isActive,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title string,
	completionPoints int,
	isPublished bool,
	lessons ...course.Lesson,
) course.Course {
	tstamp := time.Now().UTC()
	crs := course.Course{
		ID:               uuid.New().String(),
		Title:            title,
		CompletionPoints: completionPoints,
		IsPublished:      isPublished,
		CreatedAt:        tstamp,
		UpdatedAt:        tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	for i, les := range lessons {
		les.ID = uuid.New().String()
		les.CourseID = crs.ID
		if les.Position == 0 {
			les.Position = i + 1
		}
		les.CreatedAt = tstamp
		les, err = repo.CreateLesson(context.Background(), les)
		if err != nil {
			t.Fatalf("createCourse() failed: %v", err)
		}
		crs.Lessons = append(crs.Lessons, les)
	}
	return crs
}

func CreateResource(
	t *testing.T,
	repo course.Repository,
	title, fileURL string,
) course.Resource {
	res := course.Resource{
		ID:        uuid.New().String(),
		Title:     title,
		FileURL:   fileURL,
		CreatedAt: time.Now().UTC(),
	}
	res, err := repo.CreateResource(context.Background(), res)
	if err != nil {
		t.Fatalf("createResource() failed: %v", err)
	}
	return res
}
