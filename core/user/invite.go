package user

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

var (
	errInvalidEmail      = errors.New("invalid email address")
	errAlreadyRegistered = errors.New(alreadyRegisteredMarker)
)

// invitationService is the default in-process Inviter. For every record it
// attempts a user creation plus an invitation email, collecting a free-text
// message on failure; the batch always runs to completion.
type invitationService struct {
	svc *service
}

var _ Inviter = (*invitationService)(nil)

func (inv *invitationService) InviteUsers(ctx context.Context, records []PendingImport) (InviteResult, error) {
	var res InviteResult
	for _, rec := range records {
		if err := inv.inviteUser(ctx, rec); err != nil {
			res.Errors = append(res.Errors, rec.Email+": "+err.Error())
			continue
		}
		res.Success++
	}
	return res, nil
}

func (inv *invitationService) inviteUser(ctx context.Context, rec PendingImport) error {
	if _, err := mail.ParseAddress(rec.Email); err != nil {
		return errInvalidEmail
	}
	if err := inv.svc.repo.CheckEmailUniqueness(ctx, rec.Email); err != nil {
		if err == ErrEmailExists {
			return errAlreadyRegistered
		}
		return err
	}

	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      rec.Name,
		Email:     rec.Email,
		Role:      rec.Role,
		Team:      null.NewString(rec.Team, rec.Team != ""),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// throwaway password; the invitation email carries a reset link
	if err := usr.SetPassword(uuid.New().String()); err != nil {
		return err
	}
	usr, err := inv.svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return err
	}
	inv.svc.sendInvitationMail(usr)
	return nil
}
