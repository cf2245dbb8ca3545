package course

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/points"
)

// Player states.
type State string

const (
	StateIdle    State = "idle"
	StateViewing State = "viewing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Player-state-change signals, as reported by the video player.
type Signal string

const (
	SignalPlaying Signal = "playing"
	SignalPaused  Signal = "paused"
	SignalEnded   Signal = "ended"
)

const (
	heartbeatInterval = 30 * time.Second
	countdownSeconds  = 5
	countdownTick     = time.Second
)

var (
	nowFunc = time.Now // mockable

	ErrUnknownLesson = errors.New("lesson does not belong to this course")
	ErrUnknownSignal = errors.New("unknown player signal")
)

// Player tracks a learner's position within a course's ordered lesson list
// for the duration of one visit. It persists watch-heartbeats while viewing,
// snapshots immediately on pause, closes the view record on end/teardown and
// triggers the one-time point award on completion.
//
// All transitions come from a single stream of player-state-change events;
// every transition quiesces the heartbeat before doing async work, so no two
// transitions are ever in flight concurrently.
type Player struct {
	mu sync.Mutex

	userID    string
	sessionID string
	course    Course
	lessons   []Lesson
	idx       int

	state        State
	view         LessonView
	viewOpen     bool
	playingSince time.Time

	views     ViewRepository
	pointsSvc *points.Service
	log       core.Logger
	sched     Scheduler

	stopHeartbeat func()
	stopCountdown func()
	countdownLeft int
	onRedirect    func()

	completed  map[string]bool
	courseDone bool
}

// PlayerStatus is a snapshot of the player state for API consumption.
type PlayerStatus struct {
	State              State    `json:"state"`
	Lesson             Lesson   `json:"lesson"`
	WatchTimeSeconds   int      `json:"watch_time_seconds"`
	CountdownRemaining int      `json:"countdown_remaining"`
	CourseDone         bool     `json:"course_done"`
	CompletedLessonIDs []string `json:"completed_lesson_ids"`
}

// StartPlayer opens a player visit on a course for a user. onRedirect fires
// when the end-of-course countdown expires without user action.
func (svc *Service) StartPlayer(
	ctx context.Context,
	pointsSvc *points.Service,
	sched Scheduler,
	userID, courseID string,
	onRedirect func(),
) (*Player, error) {
	crs, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(crs.Lessons) == 0 {
		return nil, ErrNoLessons
	}

	completedIDs, err := svc.views.QueryCompletedLessonIDs(ctx, userID, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	completed := make(map[string]bool, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = true
	}

	lessons := make([]Lesson, len(crs.Lessons))
	copy(lessons, crs.Lessons)
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })

	return &Player{
		userID:     userID,
		sessionID:  uuid.New().String(),
		course:     crs,
		lessons:    lessons,
		state:      StateIdle,
		views:      svc.views,
		pointsSvc:  pointsSvc,
		log:        svc.log,
		sched:      sched,
		onRedirect: onRedirect,
		completed:  completed,
	}, nil
}

func (p *Player) SessionID() string { return p.sessionID }

func (p *Player) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	watchTime := p.view.WatchTimeSeconds
	if p.state == StateViewing && !p.playingSince.IsZero() {
		watchTime += int(nowFunc().Sub(p.playingSince) / time.Second)
	}
	completedIDs := make([]string, 0, len(p.completed))
	for _, lsn := range p.lessons {
		if p.completed[lsn.ID] {
			completedIDs = append(completedIDs, lsn.ID)
		}
	}
	return PlayerStatus{
		State:              p.state,
		Lesson:             p.lessons[p.idx],
		WatchTimeSeconds:   watchTime,
		CountdownRemaining: p.countdownLeft,
		CourseDone:         p.courseDone,
		CompletedLessonIDs: completedIDs,
	}
}

// Signal feeds one player-state-change event for a lesson into the state
// machine. Signalling a different lesson than the current one first closes
// any open view (navigation within the course).
func (p *Player) Signal(ctx context.Context, lessonID string, sig Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lessonID != p.lessons[p.idx].ID {
		found := -1
		for i, lsn := range p.lessons {
			if lsn.ID == lessonID {
				found = i
				break
			}
		}
		if found < 0 {
			return ErrUnknownLesson
		}
		if err := p.closeViewLocked(ctx); err != nil {
			return err
		}
		p.idx = found
		p.state = StateIdle
	}

	switch sig {
	case SignalPlaying:
		return p.playLocked(ctx)
	case SignalPaused:
		return p.pauseLocked(ctx)
	case SignalEnded:
		return p.endLocked(ctx)
	default:
		return ErrUnknownSignal
	}
}

func (p *Player) playLocked(ctx context.Context) error {
	// tear down before rebuild
	p.stopHeartbeatLocked()

	if !p.viewOpen {
		// a play-after-pause within the same visit resumes the open view
		// instead of opening a second one
		view, err := p.views.GetOpenLessonView(ctx, p.sessionID, p.lessons[p.idx].ID)
		switch errors.Cause(err) {
		case nil:
		case ErrViewNotFound:
			view, err = p.views.CreateLessonView(ctx, LessonView{
				ID:        uuid.New().String(),
				UserID:    p.userID,
				LessonID:  p.lessons[p.idx].ID,
				CourseID:  p.course.ID,
				SessionID: p.sessionID,
				StartedAt: nowFunc().UTC(),
			})
			if err != nil {
				return errors.Wrap(err, "opening lesson view")
			}
		default:
			return errors.Wrap(err, "looking up open lesson view")
		}
		p.view = view
		p.viewOpen = true
	}

	p.playingSince = nowFunc()
	p.state = StateViewing
	// heartbeats outlive the request that started playback
	p.stopHeartbeat = p.sched.Every(heartbeatInterval, func() { p.heartbeat(context.Background()) })
	return nil
}

func (p *Player) pauseLocked(ctx context.Context) error {
	if p.state != StateViewing {
		return nil
	}
	p.stopHeartbeatLocked()
	p.accumulateLocked()
	p.state = StatePaused

	// immediate snapshot; do not wait for the next heartbeat
	view, err := p.views.UpdateLessonView(ctx, p.view)
	if err != nil {
		return errors.Wrap(err, "snapshotting watch time")
	}
	p.view = view
	return nil
}

func (p *Player) endLocked(ctx context.Context) error {
	p.stopHeartbeatLocked()
	if err := p.closeViewLocked(ctx); err != nil {
		return err
	}
	p.state = StateEnded

	if p.idx == len(p.lessons)-1 {
		p.startCountdownLocked()
	}
	return nil
}

// heartbeat periodically persists a watch-time snapshot while viewing.
func (p *Player) heartbeat(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateViewing || !p.viewOpen {
		return
	}
	p.accumulateLocked()
	p.playingSince = nowFunc()

	view, err := p.views.UpdateLessonView(ctx, p.view)
	if err != nil {
		// non-critical; next heartbeat or pause retries the full total
		p.log.Error("persisting watch-time heartbeat", err)
		return
	}
	p.view = view
}

// CompleteAndAdvance idempotently awards the current lesson's points, marks
// it completed and moves on to the next lesson in position order — or to
// course completion when at the last lesson. Cancels any running countdown.
func (p *Player) CompleteAndAdvance(ctx context.Context) (next Lesson, awarded int, done bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopCountdownLocked()
	p.stopHeartbeatLocked()

	cur := p.lessons[p.idx]

	if p.viewOpen {
		p.accumulateLocked()
		p.view.EndedAt.SetValid(nowFunc().UTC())
		p.viewOpen = false
	}
	if p.view.ID != "" && p.view.LessonID == cur.ID {
		p.view.Completed = true
		if p.view, err = p.views.UpdateLessonView(ctx, p.view); err != nil {
			return Lesson{}, 0, false, errors.Wrap(err, "closing lesson view")
		}
	} else if !p.completed[cur.ID] {
		// completing a lesson that was never played still leaves a view
		// record, so the completion survives into future visits
		now := nowFunc().UTC()
		if _, err = p.views.CreateLessonView(ctx, LessonView{
			ID:        uuid.New().String(),
			UserID:    p.userID,
			LessonID:  cur.ID,
			CourseID:  p.course.ID,
			SessionID: p.sessionID,
			StartedAt: now,
			EndedAt:   null.TimeFrom(now),
			Completed: true,
		}); err != nil {
			return Lesson{}, 0, false, errors.Wrap(err, "recording lesson completion")
		}
	}

	awarded, err = p.pointsSvc.AwardLessonCompletion(ctx, p.userID, cur.ID, p.course.CompletionPoints)
	if err != nil {
		return Lesson{}, 0, false, errors.Wrap(err, "awarding lesson points")
	}
	p.completed[cur.ID] = true

	if p.idx < len(p.lessons)-1 {
		p.idx++
		p.view = LessonView{}
		p.state = StateIdle
		return p.lessons[p.idx], awarded, false, nil
	}

	p.courseDone = true
	p.state = StateEnded
	return Lesson{}, awarded, true, nil
}

// Close tears the player down on navigation away or unmount: timers are
// cancelled and any open view is closed with its final watch time.
func (p *Player) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopHeartbeatLocked()
	p.stopCountdownLocked()
	return p.closeViewLocked(ctx)
}

func (p *Player) accumulateLocked() {
	if !p.playingSince.IsZero() {
		p.view.WatchTimeSeconds += int(nowFunc().Sub(p.playingSince) / time.Second)
		p.playingSince = time.Time{}
	}
}

func (p *Player) closeViewLocked(ctx context.Context) error {
	if !p.viewOpen {
		return nil
	}
	p.accumulateLocked()
	p.view.EndedAt.SetValid(nowFunc().UTC())
	p.viewOpen = false

	view, err := p.views.UpdateLessonView(ctx, p.view)
	if err != nil {
		return errors.Wrap(err, "closing lesson view")
	}
	p.view = view
	return nil
}

func (p *Player) stopHeartbeatLocked() {
	if p.stopHeartbeat != nil {
		p.stopHeartbeat()
		p.stopHeartbeat = nil
	}
}

func (p *Player) startCountdownLocked() {
	p.stopCountdownLocked()
	p.countdownLeft = countdownSeconds
	p.stopCountdown = p.sched.Every(countdownTick, p.countdownStep)
}

func (p *Player) countdownStep() {
	p.mu.Lock()
	var redirect func()
	if p.countdownLeft > 0 {
		p.countdownLeft--
		if p.countdownLeft == 0 {
			p.stopCountdownLocked()
			p.courseDone = true
			redirect = p.onRedirect
		}
	}
	p.mu.Unlock()

	if redirect != nil {
		redirect()
	}
}

func (p *Player) stopCountdownLocked() {
	if p.stopCountdown != nil {
		p.stopCountdown()
		p.stopCountdown = nil
	}
	p.countdownLeft = 0
}
