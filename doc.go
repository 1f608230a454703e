// Package scribe is a notes-taking web service with OTP and password
// authentication.
//
// The root package holds the domain: credential records and their store
// interfaces, the one-time-code and password engines, the session issuer,
// the verification dispatcher, and the HTTP handlers that tie them into
// the register / verify / login / reset flows. Storage backends live under
// stores/ (mongo is the primary backend, gorm and an in-memory store are
// alternatives) and the server binary under cmd/scribe.
//
// # Basic Usage
//
//	users := mem.NewUserStore()
//	notes := mem.NewNoteStore()
//	sessions := &scribe.SessionIssuer{SecretKey: secret}
//	auth := &scribe.Auth{
//	    Users:      users,
//	    Dispatcher: &scribe.ConsoleDispatcher{Logger: logger},
//	    Sessions:   sessions,
//	    Logger:     logger,
//	}
//	srv := &scribe.Server{
//	    Auth:  auth,
//	    Notes: &scribe.Notes{Store: notes, Logger: logger},
//	    Gate:  &scribe.Middleware{Users: users, Sessions: sessions, Logger: logger},
//	    Logger: logger,
//	}
//	http.ListenAndServe(":8080", srv.Handler())
//
// Every flow persists through the UserStore interface; the per-record
// read-modify-write sequences (attempt counting before create, code check
// before clear) are not atomic across concurrent requests.
package scribe
