package session

import "errors"

var (
	ErrMissingFields      = errors.New("username and password are required")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotSignedIn        = errors.New("sign in required")
	ErrAlreadySignedIn    = errors.New("already signed in")
)
