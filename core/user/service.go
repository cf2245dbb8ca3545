package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrRoleLocked  = errors.New("role prerequisite not met")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		FilterUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		// CountUsersByRole counts active users per role.
		CountUsersByRole(ctx context.Context) (RoleCounts, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		Delete(ctx context.Context, ids ...string) error
		CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error
		RoleCounts(ctx context.Context) (RoleCounts, error)
		EligibleSupervisors(ctx context.Context, role Role) ([]User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		EnsureAdmin(ctx context.Context, name, email, pwd string) (User, error)
		ImportBatch(ctx context.Context, text string, role Role) (ImportReport, error)
	}

	service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
		log     core.Logger
		inviter Inviter
	}
)

var _ Service = (*service)(nil)

// NewService returns the default user Service. The batch import collaborator
// defaults to the in-process Inviter; pass one to override (tests).
func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, log core.Logger, inviter ...Inviter) *service {
	initTokenGen(conf)
	svc := &service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
		log:     log,
	}
	if len(inviter) > 0 {
		svc.inviter = inviter[0]
	} else {
		svc.inviter = &invitationService{svc: svc}
	}
	return svc
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:           uuid.New().String(),
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         nu.Role,
		SupervisorID: null.NewString(nu.SupervisorID, nu.SupervisorID != ""),
		Team:         null.NewString(nu.Team, nu.Team != ""),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:           id,
		Name:         uu.Name,
		Role:         uu.Role,
		SupervisorID: null.NewString(uu.SupervisorID, uu.SupervisorID != ""),
		UpdatedAt:    time.Now().UTC(),
	}
	if uu.Team != nil {
		team := core.CleanString(*uu.Team)
		usr.Team = null.NewString(team, team != "")
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.FilterUsers(ctx, *filter, ordering...)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// RoleCounts returns a fresh per-role count snapshot. Always re-fetched: the
// hierarchy lock is advisory and two admins may be provisioning concurrently.
func (svc *service) RoleCounts(ctx context.Context) (RoleCounts, error) {
	return svc.repo.CountUsersByRole(ctx)
}

// EligibleSupervisors returns the active users that may supervise `role`:
// holders of the required role that satisfy their own supervisor requirement.
func (svc *service) EligibleSupervisors(ctx context.Context, role Role) ([]User, error) {
	req, ok := RequiredSupervisorRole(role)
	if !ok {
		return []User{}, nil
	}
	active := true
	users, err := svc.repo.FilterUsers(ctx, QueryFilter{Roles: []Role{req}, IsActive: &active})
	if err != nil {
		return nil, err
	}
	eligible := make([]User, 0, len(users))
	for _, u := range users {
		if _, gated := RequiredSupervisorRole(u.Role); gated && !u.SupervisorID.Valid {
			continue
		}
		eligible = append(eligible, u)
	}
	return eligible, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, User{ID: usr.ID, LastLogin: usr.LastLogin, UpdatedAt: time.Now().UTC()}, nil)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token := makeToken(usr)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), token},
	})
}

func (svc *service) sendInvitationMail(usr User) {
	token := makeToken(usr)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome to Elimu",
		TemplateName: "invitation",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), token},
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, uid)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err := verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err := usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

// EnsureAdmin updates or creates the admin account. Idempotent: when the
// admin already exists its password is updated rather than erroring.
func (svc *service) EnsureAdmin(ctx context.Context, name, email, pwd string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := svc.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err != ErrNotFound {
			return User{}, err
		}
		usr = User{
			ID:        uuid.New().String(),
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
	}
	if name != "" {
		usr.Name = name
	}
	usr.Role = RoleAdmin
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.UpdateOrCreateUser(ctx, usr)
}
