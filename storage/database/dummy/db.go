package dummydb

import (
	"sync"

	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/points"
	"github.com/trezcool/elimu/core/user"
)

type (
	DB struct {
		user   *userTable
		course *courseTable
		views  *viewTable
		points *pointsTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		courses   map[string]*course.Course
		lessons   map[string]*course.Lesson
		resources map[string]*course.Resource
		favorites map[string]map[string]bool // userID -> courseID set
	}

	viewTable struct {
		sync.RWMutex
		table map[string]*course.LessonView
	}

	pointsTable struct {
		sync.RWMutex
		entries map[string]*points.Entry
		totals  map[string]int // userID -> total points
		config  *points.Config
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			courses:   make(map[string]*course.Course),
			lessons:   make(map[string]*course.Lesson),
			resources: make(map[string]*course.Resource),
			favorites: make(map[string]map[string]bool),
		},
		views: &viewTable{table: make(map[string]*course.LessonView)},
		points: &pointsTable{
			entries: make(map[string]*points.Entry),
			totals:  make(map[string]int),
		},
	}
	return db, nil
}
