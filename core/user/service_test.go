package user

import (
	"bytes"
	"context"
	"testing"

	"github.com/volatiletech/null/v8"
)

func Test_service_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(RoleCounts{})
	svc := newTestService(repo)

	usr, err := svc.EnsureAdmin(ctx, "Root", "ROOT@test.cd ", "lol")
	if err != nil {
		t.Fatalf("EnsureAdmin() failed: %v", err)
	}
	if usr.Email != "root@test.cd" {
		t.Errorf("EnsureAdmin() email = %s, want root@test.cd", usr.Email)
	}
	if usr.Role != RoleAdmin || !usr.IsActive {
		t.Errorf("EnsureAdmin() role = %s, active = %t", usr.Role, usr.IsActive)
	}

	// second call updates the password in place
	again, err := svc.EnsureAdmin(ctx, "", "root@test.cd", "lmao")
	if err != nil {
		t.Fatalf("EnsureAdmin() failed: %v", err)
	}
	if again.ID != usr.ID {
		t.Errorf("EnsureAdmin() created a new account: %s != %s", again.ID, usr.ID)
	}
	if again.Name != "Root" {
		t.Errorf("EnsureAdmin() dropped the name: %s", again.Name)
	}
	if bytes.Equal(again.PasswordHash, usr.PasswordHash) {
		t.Error("EnsureAdmin() failed to update the password")
	}
}

func Test_service_EligibleSupervisors(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(RoleCounts{})
	svc := newTestService(repo)

	sup, _ := repo.CreateUser(ctx, User{ID: "1", Name: "Sup", Email: "sup@test.cd", Role: RoleSuperintendent, IsActive: true})
	supervised, _ := repo.CreateUser(ctx, User{
		ID: "2", Name: "Mgr", Email: "mgr@test.cd", Role: RoleManager, IsActive: true,
		SupervisorID: null.StringFrom(sup.ID),
	})
	// a manager with no superintendent of their own cannot supervise students
	repo.CreateUser(ctx, User{ID: "3", Name: "Orphan", Email: "orphan@test.cd", Role: RoleManager, IsActive: true})

	t.Run("free-standing role has no supervisors", func(t *testing.T) {
		got, err := svc.EligibleSupervisors(ctx, RoleSuperintendent)
		if err != nil {
			t.Fatalf("EligibleSupervisors() failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("EligibleSupervisors() = %+v, want none", got)
		}
	})

	t.Run("only properly supervised managers are eligible", func(t *testing.T) {
		got, err := svc.EligibleSupervisors(ctx, RoleStudent)
		if err != nil {
			t.Fatalf("EligibleSupervisors() failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != supervised.ID {
			t.Errorf("EligibleSupervisors() = %+v, want only %s", got, supervised.ID)
		}
	})
}
