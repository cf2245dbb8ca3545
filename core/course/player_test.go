package course

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/points"
)

// fakeScheduler collects scheduled callbacks so tests drive every tick by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	interval time.Duration
	fn       func()
	stopped  bool
}

var _ Scheduler = (*fakeScheduler)(nil)

func (s *fakeScheduler) Every(interval time.Duration, fn func()) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{interval: interval, fn: fn}
	s.timers = append(s.timers, timer)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		timer.stopped = true
	}
}

func (s *fakeScheduler) After(delay time.Duration, fn func()) (stop func()) {
	return s.Every(delay, fn)
}

// fire runs every live timer callback once (one tick).
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	timers := make([]*fakeTimer, 0, len(s.timers))
	for _, timer := range s.timers {
		if !timer.stopped {
			timers = append(timers, timer)
		}
	}
	s.mu.Unlock()

	for _, timer := range timers {
		timer.fn()
	}
}

func (s *fakeScheduler) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, timer := range s.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

type fakeViewRepo struct {
	mu      sync.Mutex
	views   map[string]LessonView
	updates int
}

var _ ViewRepository = (*fakeViewRepo)(nil)

func newFakeViewRepo() *fakeViewRepo {
	return &fakeViewRepo{views: make(map[string]LessonView)}
}

func (r *fakeViewRepo) CreateLessonView(ctx context.Context, view LessonView) (LessonView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[view.ID] = view
	return view, nil
}

func (r *fakeViewRepo) UpdateLessonView(ctx context.Context, view LessonView) (LessonView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[view.ID]; !ok {
		return LessonView{}, ErrViewNotFound
	}
	r.views[view.ID] = view
	r.updates++
	return view, nil
}

func (r *fakeViewRepo) GetOpenLessonView(ctx context.Context, sessionID, lessonID string) (LessonView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, view := range r.views {
		if view.SessionID == sessionID && view.LessonID == lessonID && !view.EndedAt.Valid {
			return view, nil
		}
	}
	return LessonView{}, ErrViewNotFound
}

func (r *fakeViewRepo) QueryCompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, view := range r.views {
		if view.UserID == userID && view.CourseID == courseID && view.Completed && !seen[view.LessonID] {
			seen[view.LessonID] = true
			ids = append(ids, view.LessonID)
		}
	}
	return ids, nil
}

func (r *fakeViewRepo) viewFor(lessonID string) (LessonView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, view := range r.views {
		if view.LessonID == lessonID {
			return view, true
		}
	}
	return LessonView{}, false
}

type fakePointsRepo struct {
	mu      sync.Mutex
	entries map[string]points.Entry
	totals  map[string]int
}

var _ points.Repository = (*fakePointsRepo)(nil)

func newFakePointsRepo() *fakePointsRepo {
	return &fakePointsRepo{entries: make(map[string]points.Entry), totals: make(map[string]int)}
}

func (r *fakePointsRepo) InsertEntryOnce(ctx context.Context, entry points.Entry) (points.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entry.UserID + "|" + entry.SourceType + "|" + entry.ReferenceID
	if _, ok := r.entries[key]; ok {
		return points.Entry{}, points.ErrAlreadyAwarded
	}
	r.entries[key] = entry
	return entry, nil
}

func (r *fakePointsRepo) IncrementUserPoints(ctx context.Context, userID string, pointsToAdd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[userID] += pointsToAdd
	return nil
}

func (r *fakePointsRepo) GetUserPoints(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[userID], nil
}

func (r *fakePointsRepo) QueryHistory(ctx context.Context, userID string) ([]points.Entry, error) {
	return nil, nil
}

func (r *fakePointsRepo) QueryLeaderboard(ctx context.Context, limit int) ([]points.RankEntry, error) {
	return nil, nil
}

func (r *fakePointsRepo) GetConfig(ctx context.Context) (points.Config, error) {
	return points.Config{}, points.ErrConfigNotFound
}

func (r *fakePointsRepo) UpdateConfig(ctx context.Context, cfg points.Config) (points.Config, error) {
	return cfg, nil
}

// fakeCourseRepo serves one fixed course; everything else is out of scope.
type fakeCourseRepo struct {
	Repository
	crs Course
}

func (r fakeCourseRepo) GetCourseByID(ctx context.Context, id string) (Course, error) {
	if id != r.crs.ID {
		return Course{}, ErrNotFound
	}
	return r.crs, nil
}

func (r fakeCourseRepo) QueryLessonsByCourse(ctx context.Context, courseID string) ([]Lesson, error) {
	return r.crs.Lessons, nil
}

type playerFixture struct {
	player *Player
	sched  *fakeScheduler
	views  *fakeViewRepo
	points *fakePointsRepo
	crs    Course
}

func newPlayerFixture(t *testing.T, lessonCount int, onRedirect func()) *playerFixture {
	crs := Course{ID: "crs-1", Title: "Onboarding", CompletionPoints: 100, IsPublished: true}
	for i := 1; i <= lessonCount; i++ {
		crs.Lessons = append(crs.Lessons, Lesson{
			ID:       "lsn-" + string(rune('0'+i)),
			CourseID: crs.ID,
			Position: i,
		})
	}

	logger := core.NewStdLogger(log.New(os.Stderr, "TEST : ", log.LstdFlags))
	views := newFakeViewRepo()
	pointsRepo := newFakePointsRepo()
	sched := &fakeScheduler{}
	svc := NewService(fakeCourseRepo{crs: crs}, views, logger)

	player, err := svc.StartPlayer(
		context.Background(),
		points.NewService(pointsRepo, logger),
		sched,
		"usr-1", crs.ID,
		onRedirect,
	)
	if err != nil {
		t.Fatalf("StartPlayer() failed: %v", err)
	}
	return &playerFixture{player: player, sched: sched, views: views, points: pointsRepo, crs: crs}
}

func setNow(t *testing.T, at time.Time) func(d time.Duration) {
	t.Helper()
	now := at
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })
	return func(d time.Duration) { now = now.Add(d) }
}

func TestStartPlayer_noLessons(t *testing.T) {
	crs := Course{ID: "crs-1", Title: "Empty"}
	logger := core.NewStdLogger(log.New(os.Stderr, "TEST : ", log.LstdFlags))
	svc := NewService(fakeCourseRepo{crs: crs}, newFakeViewRepo(), logger)

	_, err := svc.StartPlayer(context.Background(), points.NewService(newFakePointsRepo(), logger), &fakeScheduler{}, "usr-1", crs.ID, nil)
	if err != ErrNoLessons {
		t.Errorf("StartPlayer() error = %v, want %v", err, ErrNoLessons)
	}
}

func TestPlayer_signalValidation(t *testing.T) {
	ctx := context.Background()
	fix := newPlayerFixture(t, 2, nil)

	if err := fix.player.Signal(ctx, "nope", SignalPlaying); err != ErrUnknownLesson {
		t.Errorf("Signal() error = %v, want %v", err, ErrUnknownLesson)
	}
	if err := fix.player.Signal(ctx, "lsn-1", Signal("rewinding")); err != ErrUnknownSignal {
		t.Errorf("Signal() error = %v, want %v", err, ErrUnknownSignal)
	}
}

func TestPlayer_playHeartbeatPause(t *testing.T) {
	ctx := context.Background()
	advance := setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	if got := fix.player.Status(); got.State != StateViewing {
		t.Fatalf("Status().State = %s, want %s", got.State, StateViewing)
	}
	view, ok := fix.views.viewFor("lsn-1")
	if !ok {
		t.Fatal("playing did not open a lesson view")
	}

	// a heartbeat 30s in persists the accumulated watch time
	advance(heartbeatInterval)
	fix.sched.fire()
	view, _ = fix.views.viewFor("lsn-1")
	if view.WatchTimeSeconds != 30 {
		t.Errorf("heartbeat persisted %ds, want 30", view.WatchTimeSeconds)
	}

	// live status keeps counting between heartbeats
	advance(10 * time.Second)
	if got := fix.player.Status(); got.WatchTimeSeconds != 40 {
		t.Errorf("Status().WatchTimeSeconds = %d, want 40", got.WatchTimeSeconds)
	}

	// pause snapshots immediately and stops the heartbeat
	if err := fix.player.Signal(ctx, "lsn-1", SignalPaused); err != nil {
		t.Fatalf("Signal(paused) failed: %v", err)
	}
	view, _ = fix.views.viewFor("lsn-1")
	if view.WatchTimeSeconds != 40 {
		t.Errorf("pause persisted %ds, want 40", view.WatchTimeSeconds)
	}
	if n := fix.sched.liveCount(); n != 0 {
		t.Errorf("heartbeat still scheduled after pause: %d live timers", n)
	}

	// pausing while already paused is a no-op
	updates := fix.views.updates
	if err := fix.player.Signal(ctx, "lsn-1", SignalPaused); err != nil {
		t.Fatalf("Signal(paused) failed: %v", err)
	}
	if fix.views.updates != updates {
		t.Error("redundant pause still hit the store")
	}

	// resume reuses the open view
	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	advance(5 * time.Second)
	if got := fix.player.Status(); got.WatchTimeSeconds != 45 {
		t.Errorf("Status().WatchTimeSeconds = %d, want 45", got.WatchTimeSeconds)
	}
}

func TestPlayer_playAdoptsOpenView(t *testing.T) {
	ctx := context.Background()
	advance := setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	// an open view already persisted for this session: playing resumes it
	if _, err := fix.views.CreateLessonView(ctx, LessonView{
		ID:               "view-prev",
		UserID:           "usr-1",
		LessonID:         "lsn-1",
		CourseID:         "crs-1",
		SessionID:        fix.player.SessionID(),
		StartedAt:        nowFunc().UTC(),
		WatchTimeSeconds: 21,
	}); err != nil {
		t.Fatalf("CreateLessonView() failed: %v", err)
	}

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	if n := len(fix.views.views); n != 1 {
		t.Fatalf("playing opened a second view: %d views in store", n)
	}
	advance(4 * time.Second)
	if got := fix.player.Status(); got.WatchTimeSeconds != 25 {
		t.Errorf("Status().WatchTimeSeconds = %d, want 25 (21 adopted + 4 live)", got.WatchTimeSeconds)
	}
}

func TestPlayer_navigationClosesOpenView(t *testing.T) {
	ctx := context.Background()
	advance := setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	advance(12 * time.Second)

	// jumping to another lesson closes the first view with its watch time
	if err := fix.player.Signal(ctx, "lsn-2", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	view, _ := fix.views.viewFor("lsn-1")
	if !view.EndedAt.Valid || view.WatchTimeSeconds != 12 {
		t.Errorf("navigation left view open: %+v", view)
	}
	if _, ok := fix.views.viewFor("lsn-2"); !ok {
		t.Error("navigation did not open the new lesson view")
	}
	if got := fix.player.Status(); got.Lesson.ID != "lsn-2" {
		t.Errorf("Status().Lesson.ID = %s, want lsn-2", got.Lesson.ID)
	}
}

func TestPlayer_completeAndAdvance(t *testing.T) {
	ctx := context.Background()
	setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}

	next, awarded, done, err := fix.player.CompleteAndAdvance(ctx)
	if err != nil {
		t.Fatalf("CompleteAndAdvance() failed: %v", err)
	}
	if done || next.ID != "lsn-2" {
		t.Errorf("CompleteAndAdvance() = (%s, done=%t), want (lsn-2, false)", next.ID, done)
	}
	if awarded != 10 { // a tenth of the course budget
		t.Errorf("CompleteAndAdvance() awarded = %d, want 10", awarded)
	}
	view, _ := fix.views.viewFor("lsn-1")
	if !view.Completed || !view.EndedAt.Valid {
		t.Errorf("completed view not closed: %+v", view)
	}

	_, awarded, done, err = fix.player.CompleteAndAdvance(ctx)
	if err != nil {
		t.Fatalf("CompleteAndAdvance() failed: %v", err)
	}
	if !done {
		t.Error("CompleteAndAdvance() at last lesson: done = false, want true")
	}
	if awarded != 10 {
		t.Errorf("CompleteAndAdvance() awarded = %d, want 10", awarded)
	}
	if got := fix.player.Status(); !got.CourseDone || len(got.CompletedLessonIDs) != 2 {
		t.Errorf("Status() = %+v, want course done with 2 completed lessons", got)
	}

	total, _ := fix.points.GetUserPoints(ctx, "usr-1")
	if total != 20 {
		t.Errorf("user total = %d, want 20", total)
	}
}

func TestPlayer_completeWithoutPlaying(t *testing.T) {
	ctx := context.Background()
	setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	// completing a lesson that was never played still records the completion
	next, awarded, done, err := fix.player.CompleteAndAdvance(ctx)
	if err != nil {
		t.Fatalf("CompleteAndAdvance() failed: %v", err)
	}
	if done || next.ID != "lsn-2" {
		t.Errorf("CompleteAndAdvance() = (%s, done=%t), want (lsn-2, false)", next.ID, done)
	}
	if awarded != 10 {
		t.Errorf("CompleteAndAdvance() awarded = %d, want 10", awarded)
	}

	view, ok := fix.views.viewFor("lsn-1")
	if !ok {
		t.Fatal("completion left no view record")
	}
	if !view.Completed || !view.EndedAt.Valid {
		t.Errorf("completion view = %+v, want completed and closed", view)
	}

	// a later visit sees the lesson as completed
	ids, err := fix.views.QueryCompletedLessonIDs(ctx, "usr-1", "crs-1")
	if err != nil {
		t.Fatalf("QueryCompletedLessonIDs() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "lsn-1" {
		t.Errorf("QueryCompletedLessonIDs() = %v, want [lsn-1]", ids)
	}
}

func TestPlayer_lastLessonCountdown(t *testing.T) {
	ctx := context.Background()
	setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))

	var redirected bool
	fix := newPlayerFixture(t, 1, func() { redirected = true })

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	if err := fix.player.Signal(ctx, "lsn-1", SignalEnded); err != nil {
		t.Fatalf("Signal(ended) failed: %v", err)
	}
	if got := fix.player.Status(); got.CountdownRemaining != countdownSeconds {
		t.Fatalf("Status().CountdownRemaining = %d, want %d", got.CountdownRemaining, countdownSeconds)
	}

	for i := 0; i < countdownSeconds; i++ {
		if redirected {
			t.Fatalf("redirect fired early, %d ticks in", i)
		}
		fix.sched.fire()
	}
	if !redirected {
		t.Error("countdown expiry did not redirect")
	}
	if got := fix.player.Status(); !got.CourseDone || got.CountdownRemaining != 0 {
		t.Errorf("Status() after countdown = %+v", got)
	}
}

func TestPlayer_completeCancelsCountdown(t *testing.T) {
	ctx := context.Background()
	setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))

	var redirected bool
	fix := newPlayerFixture(t, 1, func() { redirected = true })

	if err := fix.player.Signal(ctx, "lsn-1", SignalEnded); err != nil {
		t.Fatalf("Signal(ended) failed: %v", err)
	}
	fix.sched.fire()
	fix.sched.fire()

	if _, _, done, err := fix.player.CompleteAndAdvance(ctx); err != nil || !done {
		t.Fatalf("CompleteAndAdvance() = (done=%t, err=%v), want (true, nil)", done, err)
	}
	if n := fix.sched.liveCount(); n != 0 {
		t.Errorf("countdown still scheduled after completion: %d live timers", n)
	}

	// stale ticks after cancellation must not fire the redirect
	fix.sched.fire()
	fix.sched.fire()
	fix.sched.fire()
	if redirected {
		t.Error("cancelled countdown still redirected")
	}
}

func TestPlayer_close(t *testing.T) {
	ctx := context.Background()
	advance := setNow(t, time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC))
	fix := newPlayerFixture(t, 2, nil)

	if err := fix.player.Signal(ctx, "lsn-1", SignalPlaying); err != nil {
		t.Fatalf("Signal(playing) failed: %v", err)
	}
	advance(7 * time.Second)

	if err := fix.player.Close(ctx); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	view, _ := fix.views.viewFor("lsn-1")
	if !view.EndedAt.Valid || view.WatchTimeSeconds != 7 {
		t.Errorf("Close() left view open: %+v", view)
	}
	if n := fix.sched.liveCount(); n != 0 {
		t.Errorf("timers still scheduled after Close(): %d", n)
	}
}
