package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

// addUser updates or creates a user.User. Supervision prerequisites are not
// enforced here: the CLI is a break-glass tool, the API remains the gatekeeper.
func (cli *commandLine) addUser(name, email, role, supervisorID, team, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	if usr, err = cli.usrRepo.GetUserByEmail(ctx, email); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			ID:        uuid.New().String(),
			Email:     email,
			CreatedAt: now,
		}
	}
	usr.Name = name
	usr.Role = user.Role(core.CleanString(role, true /* lower */))
	usr.SupervisorID = null.NewString(supervisorID, supervisorID != "")
	usr.Team = null.NewString(team, team != "")
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
