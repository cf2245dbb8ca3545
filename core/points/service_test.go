package points_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/points"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/storage/database/dummy"
	"github.com/trezcool/elimu/tests"
)

func setup(t *testing.T) (*points.Service, user.Repository) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	logger := core.NewStdLogger(log.New(os.Stderr, "TEST : ", log.LstdFlags))
	return points.NewService(dummydb.NewPointsRepository(db), logger), dummydb.NewUserRepository(db)
}

func TestService_AwardLessonCompletion(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Awe Mdr", "awe@test.cd", "", user.RoleStudent, "", true)

	pts, err := svc.AwardLessonCompletion(ctx, usr.ID, "lesson-1", 100)
	if err != nil {
		t.Fatalf("AwardLessonCompletion() failed: %v", err)
	}
	if pts != 10 {
		t.Errorf("AwardLessonCompletion() = %d, want 10", pts)
	}

	// replay is a no-op
	pts, err = svc.AwardLessonCompletion(ctx, usr.ID, "lesson-1", 100)
	if err != nil {
		t.Fatalf("AwardLessonCompletion() replay failed: %v", err)
	}
	if pts != 0 {
		t.Errorf("AwardLessonCompletion() replay = %d, want 0", pts)
	}

	total, err := svc.GetUserPoints(ctx, usr.ID)
	if err != nil {
		t.Fatalf("GetUserPoints() failed: %v", err)
	}
	if total != 10 {
		t.Errorf("GetUserPoints() = %d, want 10", total)
	}

	history, err := svc.History(ctx, usr.ID)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History() returned %d entries, want 1", len(history))
	}
	if history[0].SourceType != points.SourceLesson || history[0].ReferenceID != "lesson-1" {
		t.Errorf("History() entry = %+v", history[0])
	}
}

func TestService_AwardLessonCompletion_defaultBudget(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Awe Mdr", "awe@test.cd", "", user.RoleStudent, "", true)

	// course without a budget of its own: built-in default of 100 applies
	pts, err := svc.AwardLessonCompletion(ctx, usr.ID, "lesson-1", 0)
	if err != nil {
		t.Fatalf("AwardLessonCompletion() failed: %v", err)
	}
	if pts != 10 {
		t.Errorf("AwardLessonCompletion() = %d, want default 10", pts)
	}

	if _, err := svc.UpdateConfig(ctx, points.Config{ResourceAccessPoints: 5, DefaultCompletionPoints: 200}); err != nil {
		t.Fatalf("UpdateConfig() failed: %v", err)
	}
	pts, err = svc.AwardLessonCompletion(ctx, usr.ID, "lesson-2", 0)
	if err != nil {
		t.Fatalf("AwardLessonCompletion() failed: %v", err)
	}
	if pts != 20 {
		t.Errorf("AwardLessonCompletion() = %d, want 20", pts)
	}
}

func TestService_AwardResourceAccess(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Awe Mdr", "awe@test.cd", "", user.RoleStudent, "", true)

	// no config row yet: built-in defaults apply
	pts, err := svc.AwardResourceAccess(ctx, usr.ID, "res-1")
	if err != nil {
		t.Fatalf("AwardResourceAccess() failed: %v", err)
	}
	if pts != 5 {
		t.Errorf("AwardResourceAccess() = %d, want default 5", pts)
	}

	if _, err := svc.UpdateConfig(ctx, points.Config{ResourceAccessPoints: 25, DefaultCompletionPoints: 100}); err != nil {
		t.Fatalf("UpdateConfig() failed: %v", err)
	}
	pts, err = svc.AwardResourceAccess(ctx, usr.ID, "res-2")
	if err != nil {
		t.Fatalf("AwardResourceAccess() failed: %v", err)
	}
	if pts != 25 {
		t.Errorf("AwardResourceAccess() = %d, want 25", pts)
	}

	// same resource again: no double award
	pts, err = svc.AwardResourceAccess(ctx, usr.ID, "res-2")
	if err != nil {
		t.Fatalf("AwardResourceAccess() replay failed: %v", err)
	}
	if pts != 0 {
		t.Errorf("AwardResourceAccess() replay = %d, want 0", pts)
	}
}

func TestService_Leaderboard(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := setup(t)

	awe := testutil.CreateUser(t, usrRepo, "Awe", "awe@test.cd", "", user.RoleStudent, "", true)
	lol := testutil.CreateUser(t, usrRepo, "Lol", "lol@test.cd", "", user.RoleStudent, "", true)
	gone := testutil.CreateUser(t, usrRepo, "Gone", "gone@test.cd", "", user.RoleStudent, "", false)

	if _, err := svc.AwardLessonCompletion(ctx, awe.ID, "lesson-1", 100); err != nil {
		t.Fatalf("AwardLessonCompletion() failed: %v", err)
	}
	for _, lessonID := range []string{"lesson-1", "lesson-2"} {
		if _, err := svc.AwardLessonCompletion(ctx, lol.ID, lessonID, 100); err != nil {
			t.Fatalf("AwardLessonCompletion() failed: %v", err)
		}
	}
	if _, err := svc.AwardLessonCompletion(ctx, gone.ID, "lesson-1", 1000); err != nil {
		t.Fatalf("AwardLessonCompletion() failed: %v", err)
	}

	board, err := svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("Leaderboard() returned %d entries, want 2 (inactive users excluded)", len(board))
	}
	if board[0].UserID != lol.ID || board[0].Points != 20 {
		t.Errorf("Leaderboard()[0] = %+v, want %s with 20 points", board[0], lol.ID)
	}
	if board[1].UserID != awe.ID || board[1].Points != 10 {
		t.Errorf("Leaderboard()[1] = %+v, want %s with 10 points", board[1], awe.ID)
	}

	board, err = svc.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(board) != 1 {
		t.Errorf("Leaderboard(1) returned %d entries, want 1", len(board))
	}
}
