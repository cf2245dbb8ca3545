package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
)

type Course struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	CoverURL         string    `json:"cover_url"`
	CompletionPoints int       `json:"completion_points"`
	IsPublished      bool      `json:"is_published"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC

	Lessons []Lesson `json:"lessons,omitempty"`
}

type Lesson struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Title           string    `json:"title"`
	VideoURL        string    `json:"video_url"`
	Position        int       `json:"position"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

type Resource struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FileURL     string    `json:"file_url"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// LessonView is one viewing record: opened when playback begins for a lesson
// with no open record in the current visit, updated by watch-time heartbeats,
// closed (EndedAt set) on pause/end/navigation-away.
type LessonView struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	LessonID         string    `json:"lesson_id"`
	CourseID         string    `json:"course_id"`
	SessionID        string    `json:"session_id"`
	StartedAt        time.Time `json:"started_at"` // UTC
	WatchTimeSeconds int       `json:"watch_time_seconds"`
	Completed        bool      `json:"completed"`
	EndedAt          null.Time `json:"ended_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	CoverURL         string `json:"cover_url" validate:"omitempty,url"`
	CompletionPoints int    `json:"completion_points" validate:"min=0"`
	IsPublished      bool   `json:"is_published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify a Course.
type UpdateCourse struct {
	Title            string  `json:"title"`
	Description      *string `json:"description"`
	CoverURL         *string `json:"cover_url"`
	CompletionPoints *int    `json:"completion_points" validate:"omitempty,min=0"`
	IsPublished      *bool   `json:"is_published"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	return validate.Struct(uc)
}

// NewLesson contains information needed to add a Lesson to a Course.
type NewLesson struct {
	Title           string `json:"title" validate:"required"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	Position        int    `json:"position" validate:"min=0"`
	DurationSeconds int    `json:"duration_seconds" validate:"min=0"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

// NewResource contains information needed to publish a Resource.
type NewResource struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	FileURL     string `json:"file_url" validate:"required,url"`
}

func (nr *NewResource) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}

type QueryFilter struct {
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
