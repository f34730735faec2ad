package util

import "errors"

// Stable error kinds returned to callers. Controllers match these with
// errors.Is; anything else is logged and reported as an internal error
// without detail.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("operation not allowed in current assessment state")
	ErrDuplicateAnswer        = errors.New("question already answered in this session")
	ErrExpiredAssessment      = errors.New("assessment session has expired")
	ErrAssessmentNotFound     = errors.New("assessment not found")
	ErrQuestionNotFound       = errors.New("question not found")
	ErrCandidateNotFound      = errors.New("candidate not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrPermissionDenied       = errors.New("permission denied")
)
