package bsync

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// TaskDef is a serializable reference to a registered task.
type TaskDef struct {
	// ID is the unique identifier of the task as registered in the
	// task registry.
	ID string `json:"id"`
	// Params are arbitrary key-value pairs handed to the task factory.
	Params map[string]any `json:"params,omitempty"`
}

// StageDef is a serializable representation of a Stage.
type StageDef struct {
	// Tasks is the ordered set of task definitions for this stage.
	// One entry makes a sequential step, several a parallel group.
	Tasks []TaskDef `json:"tasks"`
}

// SequenceDef is a serializable representation of a run plan. It can be
// stored, transmitted, and rebuilt into a Sequence through the registry.
type SequenceDef struct {
	// Name is a human-readable name for the plan.
	Name string `json:"name,omitempty"`
	// Stages contains all stage definitions in execution order.
	Stages []StageDef `json:"stages"`
	// InitialArgs seeds the shared context. Values must be
	// JSON-serializable.
	InitialArgs map[string]any `json:"initialArgs,omitempty"`
}

// ParseDef decodes a JSON sequence definition.
func ParseDef(data []byte) (*SequenceDef, error) {
	var def SequenceDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid sequence definition: %w", err)
	}
	return &def, nil
}

// BuildSequence instantiates every task of the definition through the
// registry and returns a Sequence ready to run. An unknown task ID fails
// the build before any validation or execution happens.
func BuildSequence(def *SequenceDef, onComplete CompleteFunc, opts ...Option) (*Sequence, error) {
	stages := make([]Stage, 0, len(def.Stages))
	for i, sd := range def.Stages {
		tasks := make([]Task, 0, len(sd.Tasks))
		for _, td := range sd.Tasks {
			task, err := NewTaskFromRegistry(td.ID, td.Params)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			tasks = append(tasks, task)
		}
		stages = append(stages, NewStage(tasks...))
	}

	return New(RunConfig{
		Stages:      stages,
		InitialArgs: def.InitialArgs,
		OnComplete:  onComplete,
	}, opts...), nil
}

// DefSchema returns a JSON Schema representation of SequenceDef
// documents, usable to validate definitions before parsing them.
func DefSchema() map[string]any {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	schema := reflector.Reflect(&SequenceDef{})

	// Marshal and unmarshal to convert to a map[string]interface{}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	if _, exists := schemaMap["type"]; !exists {
		schemaMap["type"] = "object"
	}
	if _, exists := schemaMap["properties"]; !exists {
		schemaMap["properties"] = map[string]any{}
	}

	return schemaMap
}
