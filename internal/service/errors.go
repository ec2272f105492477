package service

import (
	"errors"

	"fairtrace/internal/repository"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientQuantity is returned when a source batch holds less than
	// the quantity a transaction consumes. Nothing is written.
	ErrInsufficientQuantity = repository.ErrInsufficientQuantity
	// ErrInvalidInput wraps request-level rule violations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller's node does not own the target.
	ErrForbidden = errors.New("resource does not belong to the caller's node")
	// ErrBatchArchived is returned when an archived batch is used as a source.
	ErrBatchArchived = errors.New("batch is archived")
	// ErrThemeMismatch is returned when a theme renders a batch of another node.
	ErrThemeMismatch = errors.New("theme does not match the batch's node")
	// ErrBatchNotVisible is returned when the batch is outside the caller's chain.
	ErrBatchNotVisible = errors.New("batch is not visible to the caller")
	// ErrInvalidCredentials covers unknown users, wrong passwords and bad tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Caller is the validated (user, node) context of a request.
type Caller struct {
	UserID uuid.UUID
	NodeID uuid.UUID
	Admin  bool
}
