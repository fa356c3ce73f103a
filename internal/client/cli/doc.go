// Package cli provides the interactive livepoll command-line client.
//
// It drives a runtime.Runtime from a read–eval–print loop: register and log
// in, join a poll by id or share link, vote, watch results update live, and
// manage the polls the user created.
//
// Key features:
//   - Register / Login / Logout, whoami with token expiry
//   - Join by poll id or link; a link opened before login is joined after it
//   - Vote by option number or id; results with percentages
//   - Dashboard of own polls with totals, create / delete / toggle / schedule
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
