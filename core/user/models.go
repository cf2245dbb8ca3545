package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/elimu/core"
)

// Role is one of the fixed organizational roles.
type Role string

const (
	RoleStudent        Role = "student"
	RoleManager        Role = "manager"
	RoleCoordinator    Role = "coordinator"
	RoleSuperintendent Role = "superintendent"
	RoleAdmin          Role = "admin"
)

var (
	AllRoles = []Role{RoleStudent, RoleManager, RoleCoordinator, RoleSuperintendent, RoleAdmin}

	// supervisorRoles maps a role to the role its supervisor must hold.
	// Roles absent from this table are free-standing.
	supervisorRoles = map[Role]Role{
		RoleStudent: RoleManager,
		RoleManager: RoleSuperintendent,
	}

	roleNames = map[Role]string{
		RoleStudent:        "Student",
		RoleManager:        "Manager",
		RoleCoordinator:    "Coordinator",
		RoleSuperintendent: "Superintendent",
		RoleAdmin:          "Admin",
	}
)

// Valid reports whether the role belongs to the fixed role set.
func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RequiredSupervisorRole returns the role a supervisor of `role` must hold,
// and whether `role` requires one at all.
func RequiredSupervisorRole(role Role) (Role, bool) {
	req, ok := supervisorRoles[role]
	return req, ok
}

// RoleCounts is a snapshot of the number of active users per role.
type RoleCounts map[Role]int

// IsLocked reports whether provisioning `role` is currently locked:
// the role requires a supervisor and no user holds the prerequisite role yet.
func IsLocked(role Role, counts RoleCounts) bool {
	req, ok := RequiredSupervisorRole(role)
	if !ok {
		return false
	}
	return counts[req] == 0
}

// RoleInfo describes a role for UI consumption: its prerequisite and whether
// provisioning it is currently locked given a RoleCounts snapshot.
type RoleInfo struct {
	Name           string `json:"name"`
	Value          Role   `json:"value"`
	SupervisorRole Role   `json:"supervisor_role,omitempty"`
	Count          int    `json:"count"`
	Locked         bool   `json:"locked"`
}

func RolesInfo(counts RoleCounts) []RoleInfo {
	infos := make([]RoleInfo, 0, len(AllRoles))
	for _, role := range AllRoles {
		req, _ := RequiredSupervisorRole(role)
		infos = append(infos, RoleInfo{
			Name:           roleNames[role],
			Value:          role,
			SupervisorRole: req,
			Count:          counts[role],
			Locked:         IsLocked(role, counts),
		})
	}
	return infos
}

type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         Role        `json:"role"`
	SupervisorID null.String `json:"supervisor_id"`
	Team         null.String `json:"team"`
	IsActive     bool        `json:"is_active"`
	PasswordHash []byte      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
	LastLogin    null.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            Role   `json:"role" validate:"required,role"`
	SupervisorID    string `json:"supervisor_id" validate:"omitempty,uuid4"`
	Team            string `json:"team"`
	Password        string `json:"password" validate:"required,pwdminlen,pwdnospace,pwdnotallnum,pwdnocommon"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Team = core.CleanString(nu.Team)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if err := validateSupervision(ctx, svc, nu.Role, nu.SupervisorID); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Email is the identity key and cannot be changed.
type UpdateUser struct {
	Name            string  `json:"name"`
	Role            Role    `json:"role" validate:"omitempty,role"`
	SupervisorID    string  `json:"supervisor_id" validate:"omitempty,uuid4"`
	Team            *string `json:"team"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty,pwdminlen,pwdnospace,pwdnotallnum,pwdnocommon"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	}

	// a role change invalidates the previous supervisor selection; keep the
	// original one only when the role is unchanged
	if uu.SupervisorID == "" && uu.Role == origUsr.Role {
		uu.SupervisorID = origUsr.SupervisorID.String
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return validateSupervision(ctx, svc, uu.Role, uu.SupervisorID)
}

// validateSupervision enforces the role prerequisite rules on a candidate
// (role, supervisor) pair: gated roles need an existing, eligible supervisor.
func validateSupervision(ctx context.Context, svc Service, role Role, supervisorID string) error {
	req, gated := RequiredSupervisorRole(role)
	if !gated {
		return nil
	}

	counts, err := svc.RoleCounts(ctx)
	if err != nil {
		return err
	}
	if IsLocked(role, counts) {
		return core.NewValidationError(ErrRoleLocked, core.FieldError{
			Field: "role",
			Error: "no " + string(req) + " exists yet; create one first",
		})
	}

	if supervisorID == "" {
		return core.NewValidationError(nil, core.FieldError{
			Field: "supervisor_id",
			Error: "a supervisor with role " + string(req) + " is required",
		})
	}
	sup, err := svc.GetByID(ctx, supervisorID)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "supervisor_id", Error: "supervisor not found"})
		}
		return err
	}
	if sup.Role != req || !sup.IsActive {
		return core.NewValidationError(nil, core.FieldError{
			Field: "supervisor_id",
			Error: "supervisor must be an active " + string(req),
		})
	}
	return nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,pwdminlen,pwdnospace,pwdnotallnum,pwdnocommon"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	Team        string    `query:"team"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Team == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Team = core.CleanString(qf.Team)
}
