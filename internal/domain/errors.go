package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrNotRefined   = errors.New("prompt not refined yet")
	ErrInvalidState = errors.New("invalid state transition")
	ErrCollaborator = errors.New("collaborator failure")
)
