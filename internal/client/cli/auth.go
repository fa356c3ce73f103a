package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for username, email and a confirmed password and creates
// the account. It does not log in.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	confirm, err := getPassword("Confirm password", a.out)
	if err != nil {
		return err
	}

	if err := a.rt.Register(ctx, username, email, password, confirm); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Registration successful! Please log in.")
	return nil
}

// Login prompts for credentials. A poll opened before login is joined right
// after it.
func (a *App) Login(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	name, err := a.rt.Login(ctx, username, password)
	if name != "" {
		fmt.Fprintf(a.out, "Logged in as %s\n", name)
	}
	if err != nil {
		return err
	}
	if a.rt.Engine().View().Poll != nil {
		a.render()
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.rt.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// WhoAmI prints the identity, token expiry and number of recorded votes.
func (a *App) WhoAmI(ctx context.Context) error {
	username, ok := a.rt.Session().Current()
	if !ok {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "Username: %s\n", username)

	if exp, ok := a.rt.Session().TokenExpiry(); ok {
		if exp.Before(a.now()) {
			fmt.Fprintf(a.out, "Token:    expired %s\n", humanize.Time(exp))
		} else {
			fmt.Fprintf(a.out, "Token:    expires %s\n", humanize.Time(exp))
		}
	}

	voted, err := a.rt.Ledger().Voted(ctx, username)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Votes:    %s\n", humanize.Comma(int64(len(voted))))
	return nil
}
