package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// generalGraphID is the reserved, well-known identifier of the GeneralGraph.
// It is never minted by NewGraphID and never eligible for deletion.
const generalGraphID = "00000000-0000-0000-0000-000000000001"

// ContainerID is a value object representing a unique container identifier
// Value objects are immutable and have no identity beyond their value
type ContainerID struct {
	value string
}

// NewContainerID creates a new random ContainerID
func NewContainerID() ContainerID {
	return ContainerID{value: uuid.New().String()}
}

// NewContainerIDFromString creates a ContainerID from an existing string
func NewContainerIDFromString(id string) (ContainerID, error) {
	if id == "" {
		return ContainerID{}, errors.New("container ID cannot be empty")
	}
	if !isValidUUID(id) {
		return ContainerID{}, errors.New("container ID must be a valid UUID")
	}
	return ContainerID{value: id}, nil
}

// String returns the string representation of the ContainerID
func (id ContainerID) String() string {
	return id.value
}

// Equals checks if two ContainerIDs are equal
func (id ContainerID) Equals(other ContainerID) bool {
	return id.value == other.value
}

// IsZero checks if the ContainerID is the zero value
func (id ContainerID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ContainerID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ContainerID) UnmarshalJSON(data []byte) error {
	value, err := unquoteID(data, "ContainerID")
	if err != nil {
		return err
	}
	id.value = value
	return nil
}

// GraphID is a value object representing a unique graph identifier
type GraphID struct {
	value string
}

// NewGraphID creates a new random GraphID
func NewGraphID() GraphID {
	return GraphID{value: uuid.New().String()}
}

// NewGraphIDFromString creates a GraphID from an existing string
func NewGraphIDFromString(id string) (GraphID, error) {
	if id == "" {
		return GraphID{}, errors.New("graph ID cannot be empty")
	}
	if !isValidUUID(id) {
		return GraphID{}, errors.New("graph ID must be a valid UUID")
	}
	return GraphID{value: id}, nil
}

// GeneralGraphID returns the reserved identifier of the GeneralGraph
func GeneralGraphID() GraphID {
	return GraphID{value: generalGraphID}
}

// IsGeneral reports whether this is the reserved GeneralGraph identifier
func (id GraphID) IsGeneral() bool {
	return id.value == generalGraphID
}

// String returns the string representation of the GraphID
func (id GraphID) String() string {
	return id.value
}

// Equals checks if two GraphIDs are equal
func (id GraphID) Equals(other GraphID) bool {
	return id.value == other.value
}

// IsZero checks if the GraphID is the zero value
func (id GraphID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id GraphID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *GraphID) UnmarshalJSON(data []byte) error {
	value, err := unquoteID(data, "GraphID")
	if err != nil {
		return err
	}
	id.value = value
	return nil
}

// NodeID is a value object representing a unique graph-node identifier
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// NewNodeIDFromString creates a NodeID from an existing string
func NewNodeIDFromString(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	if !isValidUUID(id) {
		return NodeID{}, errors.New("node ID must be a valid UUID")
	}
	return NodeID{value: id}, nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	value, err := unquoteID(data, "NodeID")
	if err != nil {
		return err
	}
	id.value = value
	return nil
}

// ElementID is a value object representing a unique element identifier.
// Promotion always mints a fresh ElementID, never reusing node identity.
type ElementID struct {
	value string
}

// NewElementID creates a new random ElementID
func NewElementID() ElementID {
	return ElementID{value: uuid.New().String()}
}

// NewElementIDFromString creates an ElementID from an existing string
func NewElementIDFromString(id string) (ElementID, error) {
	if id == "" {
		return ElementID{}, errors.New("element ID cannot be empty")
	}
	if !isValidUUID(id) {
		return ElementID{}, errors.New("element ID must be a valid UUID")
	}
	return ElementID{value: id}, nil
}

// String returns the string representation of the ElementID
func (id ElementID) String() string {
	return id.value
}

// Equals checks if two ElementIDs are equal
func (id ElementID) Equals(other ElementID) bool {
	return id.value == other.value
}

// IsZero checks if the ElementID is the zero value
func (id ElementID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ElementID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ElementID) UnmarshalJSON(data []byte) error {
	value, err := unquoteID(data, "ElementID")
	if err != nil {
		return err
	}
	id.value = value
	return nil
}

// ProjectID is a value object identifying a project scope
type ProjectID struct {
	value string
}

// NewProjectID creates a new random ProjectID
func NewProjectID() ProjectID {
	return ProjectID{value: uuid.New().String()}
}

// NewProjectIDFromString creates a ProjectID from an existing string
func NewProjectIDFromString(id string) (ProjectID, error) {
	if id == "" {
		return ProjectID{}, errors.New("project ID cannot be empty")
	}
	if !isValidUUID(id) {
		return ProjectID{}, errors.New("project ID must be a valid UUID")
	}
	return ProjectID{value: id}, nil
}

// String returns the string representation of the ProjectID
func (id ProjectID) String() string {
	return id.value
}

// Equals checks if two ProjectIDs are equal
func (id ProjectID) Equals(other ProjectID) bool {
	return id.value == other.value
}

// IsZero checks if the ProjectID is the zero value
func (id ProjectID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ProjectID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ProjectID) UnmarshalJSON(data []byte) error {
	value, err := unquoteID(data, "ProjectID")
	if err != nil {
		return err
	}
	id.value = value
	return nil
}

// unquoteID strips the JSON quotes from an id value
func unquoteID(data []byte, typeName string) (string, error) {
	if string(data) == "null" {
		return "", nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", errors.New(typeName + " must be a string")
	}
	return string(data[1 : len(data)-1]), nil
}

// isValidUUID validates if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
