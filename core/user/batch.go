package user

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

// alreadyRegisteredMarker reclassifies collaborator error messages as
// duplicates. The invitation contract is free text, so this is a substring
// match on whatever the collaborator reports for an existing account.
const alreadyRegisteredMarker = "already registered"

var ErrEmptyBatch = errors.New("no valid records found in file")

type (
	// PendingImport is one parsed line of an uploaded batch file. Ephemeral:
	// consumed exactly once by the invitation submission.
	PendingImport struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  Role   `json:"role"`
		Team  string `json:"team,omitempty"`
	}

	// InviteResult is the raw outcome reported by the invitation collaborator.
	InviteResult struct {
		Success int      `json:"success"`
		Errors  []string `json:"errors"`
	}

	// Inviter performs best-effort invitation of a whole batch in one call.
	Inviter interface {
		InviteUsers(ctx context.Context, records []PendingImport) (InviteResult, error)
	}

	// ImportReport is the reconciled outcome of a batch import.
	// Success + Skipped + len(Errors) may be less than Total: a record can
	// fail for reasons not classified as "already registered" and land only
	// in Errors, or be silently dropped at parse time.
	ImportReport struct {
		Total   int      `json:"total"`
		Success int      `json:"success"`
		Skipped int      `json:"skipped"`
		Errors  []string `json:"errors"`
	}
)

// ParseBatchRecords parses an uploaded delimited-text file into candidate
// records, forcing `role` onto the whole batch (any role column in the file
// itself is ignored). The first line is a header and is discarded. Each
// remaining non-empty line is split on ";" if present, else ",". Lines with
// fewer than 2 columns (name, email) are silently dropped; the third column
// (team) is optional.
func ParseBatchRecords(text string, role Role) []PendingImport {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 {
		lines = lines[1:] // header
	}

	records := make([]PendingImport, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sep := ","
		if strings.Contains(line, ";") {
			sep = ";"
		}
		cols := strings.Split(line, sep)
		if len(cols) < 2 {
			continue
		}
		rec := PendingImport{
			Name:  core.CleanString(cols[0]),
			Email: core.CleanString(cols[1], true /* lower */),
			Role:  role,
		}
		if len(cols) > 2 {
			rec.Team = core.CleanString(cols[2])
		}
		records = append(records, rec)
	}
	return records
}

// ImportBatch converts an uploaded file into a reconciled set of invited
// users, entirely under one forced role. The whole batch goes to the
// invitation collaborator as a single call; a collaborator/transport failure
// is returned as-is with no partial report.
func (svc *service) ImportBatch(ctx context.Context, text string, role Role) (ImportReport, error) {
	// the role arrives as a free-form form value; gate it before anything
	// else so no record outside the fixed role set ever reaches the inviter
	if !role.Valid() {
		return ImportReport{}, core.NewValidationError(nil, core.FieldError{
			Field: "role",
			Error: "invalid role",
		})
	}

	counts, err := svc.repo.CountUsersByRole(ctx)
	if err != nil {
		return ImportReport{}, errors.Wrap(err, "counting users per role")
	}
	if IsLocked(role, counts) {
		req, _ := RequiredSupervisorRole(role)
		return ImportReport{}, core.NewValidationError(ErrRoleLocked, core.FieldError{
			Field: "role",
			Error: "cannot import " + string(role) + "s: no " + string(req) + " exists yet",
		})
	}

	records := ParseBatchRecords(text, role)
	if len(records) == 0 {
		return ImportReport{}, core.NewValidationError(ErrEmptyBatch)
	}

	result, err := svc.inviter.InviteUsers(ctx, records)
	if err != nil {
		return ImportReport{}, errors.Wrap(err, "inviting users")
	}

	report := ImportReport{
		Total:   len(records),
		Success: result.Success,
		Errors:  make([]string, 0, len(result.Errors)),
	}
	for _, msg := range result.Errors {
		if strings.Contains(msg, alreadyRegisteredMarker) {
			report.Skipped++
			continue
		}
		report.Errors = append(report.Errors, msg)
	}
	return report, nil
}
