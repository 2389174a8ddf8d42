package reconcile

import (
	"errors"
	"fmt"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// Common errors returned by the reconcilers.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, reconcile.ErrNotFound) {
//	    // Handle a missing definition or row
//	}
var (
	// ErrNotFound is returned when a definition directory or a stored row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDanglingReference is returned when a workflow node names an agent
	// that exists in no scope.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrAssociationExists is returned when deleting a tool that agents
	// still reference without forcing.
	ErrAssociationExists = errors.New("tool is still associated with agents")

	// ErrAmbiguousReference is returned when an id exists in more than one
	// scope.
	ErrAmbiguousReference = errors.New("ambiguous reference")

	// ErrAlreadyExists is returned when creating something whose name or id
	// is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidDefinition is returned when a definition is structurally
	// invalid or refers to nodes it does not declare.
	ErrInvalidDefinition = errors.New("invalid definition")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind  string
	Name  string
	Scope types.Scope
}

func (e *NotFoundError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %s not found in scope %s", e.Kind, e.Name, e.Scope)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DanglingReferenceError names the agent a workflow node could not resolve.
type DanglingReferenceError struct {
	AgentID string
	NodeID  string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("agent %s referenced by node %s does not exist in any scope", e.AgentID, e.NodeID)
}

// Is reports whether target is ErrDanglingReference.
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}

// AssociationExistsError reports how many associations block a tool delete.
type AssociationExistsError struct {
	ToolID string
	Count  int
}

func (e *AssociationExistsError) Error() string {
	return fmt.Sprintf("tool %s is associated with %d agent(s); use force to delete anyway", e.ToolID, e.Count)
}

// Is reports whether target is ErrAssociationExists.
func (e *AssociationExistsError) Is(target error) bool {
	return target == ErrAssociationExists
}

// IsRecoverable returns true if the error concerns a single definition and
// a batch can record it and continue with the next one.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDanglingReference),
		errors.Is(err, ErrAmbiguousReference),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrInvalidDefinition),
		errors.Is(err, ErrAssociationExists):
		return true
	}
	return false
}
