package auth

import "errors"

var (
	ErrInvalidSubject     = errors.New("invalid token subject")
	ErrInvalidAccessToken = errors.New("invalid access token")
)
