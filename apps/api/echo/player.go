package echoapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/points"
)

// sessions that receive no API call for this long are closed and dropped
const sessionIdleTTL = 30 * time.Minute

var nowFunc = time.Now // mockable

type (
	playerApi struct {
		svc    *course.Service
		points *points.Service
		sched  course.Scheduler
		log    core.Logger

		mu       sync.Mutex
		sessions map[string]*playerSession
	}

	playerSession struct {
		player *course.Player
		userID string

		// guarded by playerApi.mu
		deadline   time.Time
		stopReaper func()
	}
)

func registerPlayerAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *course.Service,
	pointsSvc *points.Service,
	sched course.Scheduler,
	log core.Logger,
) {
	api := &playerApi{
		svc:      svc,
		points:   pointsSvc,
		sched:    sched,
		log:      log,
		sessions: make(map[string]*playerSession),
	}

	g.POST("/courses/:id/player", api.start, jwt)

	pg := g.Group("/player/:session", jwt)
	pg.GET("", api.status)
	pg.POST("/signal", api.signal)
	pg.POST("/complete", api.complete)
	pg.DELETE("", api.teardown)
}

// start opens a player visit on a course and returns its session handle.
func (api *playerApi) start(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	player, err := api.startSession(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		switch errors.Cause(err) {
		case course.ErrNotFound:
			return errHttpNotFound
		case course.ErrNoLessons:
			return echo.NewHTTPError(http.StatusConflict, course.ErrNoLessons.Error())
		}
		return errors.Wrap(err, "starting player")
	}

	return ctx.JSON(http.StatusCreated, PlayerSessionResponse{
		SessionID: player.SessionID(),
		Status:    player.Status(),
	})
}

// startSession opens the player and registers the session for lifecycle
// management: the end-of-course countdown evicts it and an idle reaper
// closes it once no API call has touched it for sessionIdleTTL.
func (api *playerApi) startSession(ctx context.Context, userID, courseID string) (*course.Player, error) {
	sess := &playerSession{userID: userID}

	player, err := api.svc.StartPlayer(
		ctx, api.points, api.sched, userID, courseID,
		func() { api.evict(sess) },
	)
	if err != nil {
		return nil, err
	}
	sess.player = player

	id := player.SessionID()
	api.mu.Lock()
	api.sessions[id] = sess
	sess.deadline = nowFunc().Add(sessionIdleTTL)
	sess.stopReaper = api.sched.After(sessionIdleTTL, func() { api.reap(id) })
	api.mu.Unlock()

	return player, nil
}

// evict drops the session after the end-of-course countdown expired.
// The open view is already closed at that point; Close only stops timers.
func (api *playerApi) evict(sess *playerSession) {
	api.mu.Lock()
	for id, s := range api.sessions {
		if s == sess {
			delete(api.sessions, id)
			break
		}
	}
	if sess.stopReaper != nil {
		sess.stopReaper()
	}
	api.mu.Unlock()

	if err := sess.player.Close(context.Background()); err != nil {
		api.log.Error("closing redirected player session", err)
	}
}

// reap closes the session if its idle deadline passed, otherwise re-arms
// the timer for the remaining time.
func (api *playerApi) reap(id string) {
	api.mu.Lock()
	sess, ok := api.sessions[id]
	if !ok {
		api.mu.Unlock()
		return
	}
	if now := nowFunc(); now.Before(sess.deadline) {
		sess.stopReaper = api.sched.After(sess.deadline.Sub(now), func() { api.reap(id) })
		api.mu.Unlock()
		return
	}
	delete(api.sessions, id)
	api.mu.Unlock()

	if err := sess.player.Close(context.Background()); err != nil {
		api.log.Error("closing idle player session", err)
	}
}

func (api *playerApi) status(ctx echo.Context) error {
	player, err := api.getPlayer(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, player.Status())
}

// signal feeds one player-state-change event into the session's state machine.
func (api *playerApi) signal(ctx echo.Context) error {
	player, err := api.getPlayer(ctx)
	if err != nil {
		return err
	}

	var data SignalRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignalRequest")
	}

	if err := player.Signal(ctx.Request().Context(), data.LessonID, course.Signal(data.Signal)); err != nil {
		switch errors.Cause(err) {
		case course.ErrUnknownLesson:
			return errHttpNotFound
		case course.ErrUnknownSignal:
			return echo.NewHTTPError(http.StatusBadRequest, course.ErrUnknownSignal.Error())
		}
		return errors.Wrap(err, "signalling player")
	}
	return ctx.JSON(http.StatusOK, player.Status())
}

// complete marks the current lesson done, awards its points and advances.
func (api *playerApi) complete(ctx echo.Context) error {
	player, err := api.getPlayer(ctx)
	if err != nil {
		return err
	}

	next, awarded, done, err := player.CompleteAndAdvance(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, CompleteResponse{
		NextLesson:    next,
		AwardedPoints: awarded,
		CourseDone:    done,
		Status:        player.Status(),
	})
}

// teardown closes the visit: timers cancelled, open view closed.
func (api *playerApi) teardown(ctx echo.Context) error {
	player, err := api.getPlayer(ctx)
	if err != nil {
		return err
	}

	api.mu.Lock()
	if sess, ok := api.sessions[ctx.Param("session")]; ok {
		delete(api.sessions, ctx.Param("session"))
		if sess.stopReaper != nil {
			sess.stopReaper()
		}
	}
	api.mu.Unlock()

	if err := player.Close(context.Background()); err != nil {
		return errors.Wrap(err, "closing player")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *playerApi) getPlayer(ctx echo.Context) (*course.Player, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context claims")
	}

	api.mu.Lock()
	sess, ok := api.sessions[ctx.Param("session")]
	if ok {
		sess.deadline = nowFunc().Add(sessionIdleTTL)
	}
	api.mu.Unlock()

	if !ok || sess.userID != claims.Subject {
		return nil, errHttpNotFound
	}
	return sess.player, nil
}

type (
	PlayerSessionResponse struct {
		SessionID string              `json:"session_id"`
		Status    course.PlayerStatus `json:"status"`
	}

	SignalRequest struct {
		LessonID string `json:"lesson_id"`
		Signal   string `json:"signal"`
	}

	CompleteResponse struct {
		NextLesson    course.Lesson       `json:"next_lesson"`
		AwardedPoints int                 `json:"awarded_points"`
		CourseDone    bool                `json:"course_done"`
		Status        course.PlayerStatus `json:"status"`
	}
)
