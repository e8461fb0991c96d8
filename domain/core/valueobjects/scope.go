package valueobjects

import (
	"fmt"

	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// ScopeKind discriminates the scope variants of containers and graphs
type ScopeKind string

const (
	ScopeFreestyle      ScopeKind = "freestyle"
	ScopeProject        ScopeKind = "project"
	ScopeContainerBound ScopeKind = "container_bound"
)

// Scope is a tagged union over the three scope variants. Invalid field
// combinations are unrepresentable: the project id is only set for Project
// scopes and the container id only for ContainerBound scopes. Containers
// carry Freestyle or Project scopes; ContainerBound is a graph-only scope.
type Scope struct {
	kind        ScopeKind
	projectID   ProjectID
	containerID ContainerID
}

// FreestyleScope creates an unscoped Scope
func FreestyleScope() Scope {
	return Scope{kind: ScopeFreestyle}
}

// ProjectScope creates a project-bound Scope
func ProjectScope(projectID ProjectID) (Scope, error) {
	if projectID.IsZero() {
		return Scope{}, pkgerrors.NewValidationError("project scope requires a project ID")
	}
	return Scope{kind: ScopeProject, projectID: projectID}, nil
}

// ContainerScope creates a container-bound Scope
func ContainerScope(containerID ContainerID) (Scope, error) {
	if containerID.IsZero() {
		return Scope{}, pkgerrors.NewValidationError("container-bound scope requires a container ID")
	}
	return Scope{kind: ScopeContainerBound, containerID: containerID}, nil
}

// ParseScope rehydrates a Scope from its persisted parts
func ParseScope(kind string, projectID string, containerID string) (Scope, error) {
	switch ScopeKind(kind) {
	case ScopeFreestyle:
		return FreestyleScope(), nil
	case ScopeProject:
		pid, err := NewProjectIDFromString(projectID)
		if err != nil {
			return Scope{}, pkgerrors.NewValidationError("invalid project ID in scope").WithCause(err)
		}
		return ProjectScope(pid)
	case ScopeContainerBound:
		cid, err := NewContainerIDFromString(containerID)
		if err != nil {
			return Scope{}, pkgerrors.NewValidationError("invalid container ID in scope").WithCause(err)
		}
		return ContainerScope(cid)
	default:
		return Scope{}, pkgerrors.NewValidationError(fmt.Sprintf("unknown scope kind %q", kind))
	}
}

// Kind returns the scope discriminator
func (s Scope) Kind() ScopeKind {
	return s.kind
}

// IsFreestyle reports whether the scope is unscoped
func (s Scope) IsFreestyle() bool {
	return s.kind == ScopeFreestyle
}

// IsProject reports whether the scope is project-bound
func (s Scope) IsProject() bool {
	return s.kind == ScopeProject
}

// IsContainerBound reports whether the scope is bound to a container
func (s Scope) IsContainerBound() bool {
	return s.kind == ScopeContainerBound
}

// IsZero reports whether the scope was never constructed
func (s Scope) IsZero() bool {
	return s.kind == ""
}

// ProjectID returns the linked project id for Project scopes
func (s Scope) ProjectID() (ProjectID, bool) {
	if s.kind != ScopeProject {
		return ProjectID{}, false
	}
	return s.projectID, true
}

// ContainerID returns the linked container id for ContainerBound scopes
func (s Scope) ContainerID() (ContainerID, bool) {
	if s.kind != ScopeContainerBound {
		return ContainerID{}, false
	}
	return s.containerID, true
}

// Equals checks if two scopes are identical, including linked ids
func (s Scope) Equals(other Scope) bool {
	return s.kind == other.kind &&
		s.projectID.Equals(other.projectID) &&
		s.containerID.Equals(other.containerID)
}

// String renders the scope for logs and error messages
func (s Scope) String() string {
	switch s.kind {
	case ScopeProject:
		return fmt.Sprintf("%s:%s", s.kind, s.projectID.String())
	case ScopeContainerBound:
		return fmt.Sprintf("%s:%s", s.kind, s.containerID.String())
	case ScopeFreestyle:
		return string(s.kind)
	default:
		return "unset"
	}
}
