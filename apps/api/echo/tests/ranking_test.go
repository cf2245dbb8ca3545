package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core/points"
	"github.com/trezcool/elimu/core/user"
	testutil "github.com/trezcool/elimu/tests"
)

func award(t *testing.T, userID, lessonID string, coursePoints int) {
	t.Helper()
	if _, err := pointsSvc.AwardLessonCompletion(context.Background(), userID, lessonID, coursePoints); err != nil {
		t.Fatalf("award() failed: %v", err)
	}
}

func Test_rankingApi_leaderboard(t *testing.T) {
	app := setup(t)

	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "LolC@t123", user.RoleStudent, "", true)
	zero := testutil.CreateUser(t, usrRepo, "Zero", "zero@test.cd", "LolC@t123", user.RoleStudent, "", true)
	ghost := testutil.CreateUser(t, usrRepo, "Ghost", "ghost@test.cd", "LolC@t123", user.RoleStudent, "", false)
	token := getToken(t, hero)

	award(t, hero.ID, "lsn-1", 100) // 10
	award(t, hero.ID, "lsn-2", 100) // 10
	award(t, zero.ID, "lsn-1", 50)  // 5
	award(t, ghost.ID, "lsn-1", 500)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Ranked by points, deactivated users hidden", token: token, wantCode: http.StatusOK,
			wantData: marchallList(t,
				points.RankEntry{UserID: hero.ID, Name: hero.Name, Points: 20},
				points.RankEntry{UserID: zero.ID, Name: zero.Name, Points: 5},
			),
		},
		{
			name: "Limited", path: "/v1/rankings?limit=1", token: token, wantCode: http.StatusOK,
			wantData: marchallList(t, points.RankEntry{UserID: hero.ID, Name: hero.Name, Points: 20}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/v1/rankings"
			if tt.path != "" {
				path = tt.path
			}
			req, rec := newAuthRequest(http.MethodGet, path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_rankingApi_me(t *testing.T) {
	app := setup(t)

	hero := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "LolC@t123", user.RoleStudent, "", true)
	token := getToken(t, hero)

	t.Run("No points yet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rankings/me", token)
		app.ServeHTTP(rec, req)
		wantData := marchallObj(t, echoapi.MyPointsResponse{Points: 0, History: []points.Entry{}})
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: wantData}, rec)
	})

	t.Run("Points and history", func(t *testing.T) {
		award(t, hero.ID, "lsn-1", 100)

		req, rec := newAuthRequest(http.MethodGet, "/v1/rankings/me", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.MyPointsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json.Unmarshal() failed, %v", err)
		}
		if resp.Points != 10 || len(resp.History) != 1 {
			t.Fatalf("failed! resp = %+v", resp)
		}
		entry := resp.History[0]
		if entry.SourceType != points.SourceLesson || entry.ReferenceID != "lsn-1" || entry.Points != 10 {
			t.Errorf("failed! entry = %+v", entry)
		}
	})
}

func Test_rankingApi_config(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "LolC@t123", user.RoleStudent, "", true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "LolC@t123", user.RoleAdmin, "", true)
	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)

	t.Run("Admin required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rankings/config", studentToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("Defaults", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rankings/config", adminToken)
		app.ServeHTTP(rec, req)
		wantData := marchallObj(t, points.Config{ResourceAccessPoints: 5, DefaultCompletionPoints: 100})
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: wantData}, rec)
	})

	t.Run("Negative points rejected", func(t *testing.T) {
		body := marchallObj(t, points.Config{ResourceAccessPoints: -1, DefaultCompletionPoints: 100})
		req, rec := newAuthRequest(http.MethodPut, "/v1/rankings/config", adminToken, body)
		app.ServeHTTP(rec, req)
		wantData := marchallObj(t, map[string]string{"resource_access_points": "resource_access_points must be 0 or greater"})
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: wantData}, rec)
	})

	t.Run("Updated", func(t *testing.T) {
		cfg := points.Config{ResourceAccessPoints: 25, DefaultCompletionPoints: 150}
		req, rec := newAuthRequest(http.MethodPut, "/v1/rankings/config", adminToken, marchallObj(t, cfg))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, cfg)}, rec)

		// it sticks
		req, rec = newAuthRequest(http.MethodGet, "/v1/rankings/config", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, cfg)}, rec)
	})
}
