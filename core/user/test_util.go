package user

import (
	"context"

	"github.com/trezcool/elimu/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose mail side effects run synchronously.
func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService, log core.Logger, inviter ...Inviter) Service {
	initTokenGen(conf)
	mock := &serviceMock{
		service: service{
			conf:    conf,
			repo:    repo,
			mailSvc: mailSvc,
			log:     log,
		},
	}
	if len(inviter) > 0 {
		mock.inviter = inviter[0]
	} else {
		mock.inviter = &invitationService{svc: &mock.service}
	}
	return mock
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
