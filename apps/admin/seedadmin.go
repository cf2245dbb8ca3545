package main

import "context"

// seedAdmin ensures an active admin account exists with the given credentials.
func (cli *commandLine) seedAdmin(name, email, pwd string) error {
	_, err := cli.usrSvc.EnsureAdmin(context.Background(), name, email, pwd)
	return err
}
