package validators

import (
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// FlowValidator enforces the promotion flow-compatibility table.
//
// Freestyle work stays freestyle and project work stays within its own
// project. Container-bound graphs are narrower still: they feed their
// own bound container or a container their promotion created, nothing
// else.
type FlowValidator struct{}

// NewFlowValidator creates a new flow validator
func NewFlowValidator() *FlowValidator {
	return &FlowValidator{}
}

// ValidatePromotionFlow checks that a promotion from the source graph
// into the target container is permitted. The same table governs both
// new promotions and persisted promotion links during integrity checks.
func (v *FlowValidator) ValidatePromotionFlow(source *entities.Graph, target *entities.Container) error {
	if source == nil {
		return pkgerrors.NewValidationError("source graph required")
	}
	if target == nil {
		return pkgerrors.NewValidationError("target container required")
	}

	sourceScope := source.Scope()
	targetScope := target.Scope()

	switch {
	case sourceScope.IsZero():
		return pkgerrors.NewValidationError("source graph has no scope, run legacy migration first")

	case sourceScope.IsFreestyle():
		if !targetScope.IsFreestyle() {
			return v.flowError(source, target)
		}
		return nil

	case sourceScope.IsProject():
		sourceProject, _ := sourceScope.ProjectID()
		targetProject, ok := targetScope.ProjectID()
		if !ok || !sourceProject.Equals(targetProject) {
			return v.flowError(source, target)
		}
		return nil

	case sourceScope.IsContainerBound():
		boundContainerID, _ := sourceScope.ContainerID()
		if target.ID().Equals(boundContainerID) {
			return nil
		}
		if target.OriginGraphID().Equals(source.ID()) {
			return nil
		}
		return v.flowError(source, target)

	default:
		return pkgerrors.NewValidationError("unknown source graph scope")
	}
}

// IsCompatible reports whether the flow table permits the pairing
func (v *FlowValidator) IsCompatible(source *entities.Graph, target *entities.Container) bool {
	return v.ValidatePromotionFlow(source, target) == nil
}

func (v *FlowValidator) flowError(source *entities.Graph, target *entities.Container) error {
	return pkgerrors.NewFlowIncompatibleError(source.Scope().String(), target.Scope().String()).
		WithDetails(map[string]interface{}{
			"source_graph_id":     source.ID().String(),
			"target_container_id": target.ID().String(),
		})
}
