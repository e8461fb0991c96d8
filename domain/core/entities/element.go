package entities

import (
	"time"
	"unicode/utf8"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// ElementKind defines the type of a canvas element
type ElementKind string

const (
	ElementKindNote  ElementKind = "note"
	ElementKindImage ElementKind = "image"
	ElementKindLink  ElementKind = "link"
	ElementKindFrame ElementKind = "frame"
)

// Provenance records where a promoted element came from.
// Promotion copies are intentionally not deduplicated, so several
// elements may carry the same source node.
type Provenance struct {
	SourceNodeID  valueobjects.NodeID
	SourceGraphID valueobjects.GraphID
	PromotedAt    time.Time
}

// Element is a canvas item living at one level of the container hierarchy
type Element struct {
	ID         valueobjects.ElementID
	Name       string
	Kind       ElementKind
	Position   valueobjects.Position
	Provenance *Provenance // nil for elements authored directly on the canvas
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewElement creates an element with default configuration
func NewElement(name string, kind ElementKind, position valueobjects.Position) (Element, error) {
	return NewElementWithConfig(name, kind, position, config.DefaultDomainConfig())
}

// NewElementWithConfig creates an element with validation and configuration
func NewElementWithConfig(name string, kind ElementKind, position valueobjects.Position, cfg *config.DomainConfig) (Element, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if err := validateElementName(name, cfg); err != nil {
		return Element{}, err
	}

	if kind == "" {
		kind = ElementKindNote
	}
	if !ValidElementKind(kind) {
		return Element{}, pkgerrors.NewValidationError("unknown element kind: " + string(kind))
	}

	now := time.Now()
	return Element{
		ID:        valueobjects.NewElementID(),
		Name:      name,
		Kind:      kind,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewPromotedElement creates an element carrying promotion provenance
func NewPromotedElement(name string, kind ElementKind, position valueobjects.Position, sourceNodeID valueobjects.NodeID, sourceGraphID valueobjects.GraphID, promotedAt time.Time, cfg *config.DomainConfig) (Element, error) {
	element, err := NewElementWithConfig(name, kind, position, cfg)
	if err != nil {
		return Element{}, err
	}
	if sourceNodeID.IsZero() || sourceGraphID.IsZero() {
		return Element{}, pkgerrors.NewValidationError("promoted element requires source node and graph")
	}

	element.Provenance = &Provenance{
		SourceNodeID:  sourceNodeID,
		SourceGraphID: sourceGraphID,
		PromotedAt:    promotedAt,
	}
	return element, nil
}

// ReconstructElement recreates an element from stored data
func ReconstructElement(id valueobjects.ElementID, name string, kind ElementKind, position valueobjects.Position, provenance *Provenance, createdAt, updatedAt time.Time) Element {
	return Element{
		ID:         id,
		Name:       name,
		Kind:       kind,
		Position:   position,
		Provenance: provenance,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

// HasProvenance reports whether the element was produced by a promotion
func (e Element) HasProvenance() bool {
	return e.Provenance != nil
}

// Clone returns a deep copy of the element
func (e Element) Clone() Element {
	cloned := e
	if e.Provenance != nil {
		provenance := *e.Provenance
		cloned.Provenance = &provenance
	}
	return cloned
}

// ValidElementKind checks whether the kind is one of the known variants
func ValidElementKind(kind ElementKind) bool {
	switch kind {
	case ElementKindNote, ElementKindImage, ElementKindLink, ElementKindFrame:
		return true
	default:
		return false
	}
}

func validateElementName(name string, cfg *config.DomainConfig) error {
	length := utf8.RuneCountInString(name)
	if length < cfg.MinNameLength {
		return pkgerrors.NewValidationError("element name cannot be empty")
	}
	if length > cfg.MaxNameLength {
		return pkgerrors.NewValidationError("element name exceeds maximum length")
	}
	return nil
}
