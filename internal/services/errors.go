package services

import "errors"

// ErrForbidden is returned when an authenticated caller tries to reach a
// resource that belongs to someone else. Handlers map it to 403.
var ErrForbidden = errors.New("you do not have access to this resource")
