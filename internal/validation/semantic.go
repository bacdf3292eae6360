package validation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ModelLookup creates model instances by registered name.
// Satisfied by *flow.ModelRegistry.
type ModelLookup interface {
	Create(name string) (flow.NodeDataModel, error)
}

// ConverterLookup resolves converters between data type ids.
// Satisfied by *flow.ConverterRegistry.
type ConverterLookup interface {
	Lookup(fromID, toID string) (flow.ConverterFactory, bool)
}

// stateSchemaProvider is implemented by models that publish a JSON Schema
// for their saved state.
type stateSchemaProvider interface {
	StateSchema() string
}

// sceneIndex is the semantic view of a scene document built while checking nodes.
type sceneIndex struct {
	models map[string]flow.NodeDataModel
	order  []string
}

// validateNodes checks node identity, model names and model state.
// It returns an index of the nodes whose model could be instantiated.
func (v *SceneValidator) validateNodes(doc *schema.SceneDocument, report *schema.ValidationReport) *sceneIndex {
	idx := &sceneIndex{models: make(map[string]flow.NodeDataModel, len(doc.Nodes))}
	seen := make(map[string]bool, len(doc.Nodes))

	for i, rec := range doc.Nodes {
		path := fmt.Sprintf("/nodes/%d", i)

		if _, err := uuid.Parse(rec.ID); err != nil {
			report.AddError(path+"/id", schema.ErrCodeValidation, fmt.Sprintf("invalid node id %q", rec.ID))
			continue
		}
		if seen[rec.ID] {
			report.AddError(path+"/id", schema.ErrCodeConflict, fmt.Sprintf("duplicate node id %q", rec.ID))
			continue
		}
		seen[rec.ID] = true

		name := rec.ModelName()
		if name == "" {
			report.AddError(path+"/model/name", schema.ErrCodeValidation, "model name is required")
			continue
		}
		model, err := v.models.Create(name)
		if err != nil {
			report.AddError(path+"/model/name", schema.CodeOf(err), fmt.Sprintf("unknown model type %q", name))
			continue
		}

		if p, ok := model.(stateSchemaProvider); ok && v.schemas != nil {
			if err := v.schemas.ValidateState(rec.Model, []byte(p.StateSchema())); err != nil {
				report.AddError(path+"/model", schema.ErrCodeValidation, errorMessage(err))
				continue
			}
		}
		if err := model.Restore(rec.Model); err != nil {
			report.AddError(path+"/model", schema.ErrCodeValidation, err.Error())
			continue
		}

		idx.models[rec.ID] = model
		idx.order = append(idx.order, rec.ID)
	}
	return idx
}

// validateConnections checks connection endpoints against the node index:
// existence, port ranges, duplicates, input policy and type compatibility.
func (v *SceneValidator) validateConnections(doc *schema.SceneDocument, idx *sceneIndex, report *schema.ValidationReport) []schema.ConnectionRecord {
	type endpoint struct {
		node string
		port int
	}
	seen := make(map[[2]endpoint]bool, len(doc.Connections))
	inputUse := make(map[endpoint]int)
	var valid []schema.ConnectionRecord

	for i, rec := range doc.Connections {
		path := fmt.Sprintf("/connections/%d", i)

		outModel, ok := idx.models[rec.OutNodeID]
		if !ok {
			report.AddError(path+"/out_id", schema.ErrCodeNotFound, fmt.Sprintf("output node %q not found", rec.OutNodeID))
			continue
		}
		inModel, ok := idx.models[rec.InNodeID]
		if !ok {
			report.AddError(path+"/in_id", schema.ErrCodeNotFound, fmt.Sprintf("input node %q not found", rec.InNodeID))
			continue
		}

		if rec.OutPortIndex < 0 || rec.OutPortIndex >= outModel.NumPorts(flow.PortOut) {
			report.AddError(path+"/out_index", schema.ErrCodeInvalidPort,
				fmt.Sprintf("output port %d out of range", rec.OutPortIndex))
			continue
		}
		if rec.InPortIndex < 0 || rec.InPortIndex >= inModel.NumPorts(flow.PortIn) {
			report.AddError(path+"/in_index", schema.ErrCodeInvalidPort,
				fmt.Sprintf("input port %d out of range", rec.InPortIndex))
			continue
		}

		out := endpoint{rec.OutNodeID, rec.OutPortIndex}
		in := endpoint{rec.InNodeID, rec.InPortIndex}
		if seen[[2]endpoint{out, in}] {
			report.AddError(path, schema.ErrCodeConflict, "duplicate connection")
			continue
		}

		if inModel.PortPolicy(flow.PortIndex(rec.InPortIndex)) == flow.PolicyOne && inputUse[in] > 0 {
			report.AddError(path+"/in_index", schema.ErrCodePolicyViolation,
				fmt.Sprintf("input port %d accepts a single connection", rec.InPortIndex))
			continue
		}

		outType := outModel.DataType(flow.PortOut, flow.PortIndex(rec.OutPortIndex))
		inType := inModel.DataType(flow.PortIn, flow.PortIndex(rec.InPortIndex))
		if !flow.Compatible(outType, inType) {
			if _, ok := v.lookupConverter(outType.ID, inType.ID); !ok {
				report.AddError(path, schema.ErrCodeIncompatibleTypes,
					fmt.Sprintf("no converter from %s to %s", outType, inType))
				continue
			}
		}

		seen[[2]endpoint{out, in}] = true
		inputUse[in]++
		valid = append(valid, rec)
	}
	return valid
}

func (v *SceneValidator) lookupConverter(from, to string) (flow.ConverterFactory, bool) {
	if v.converters == nil {
		return nil, false
	}
	return v.converters.Lookup(from, to)
}

// errorMessage returns the FlowError message without its code prefix.
func errorMessage(err error) string {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe.Message
	}
	return err.Error()
}
