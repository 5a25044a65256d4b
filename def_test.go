package bsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// emit completes with {key: value} taken from its parameters.
	RegisterTask("test/emit", func(params map[string]any) Task {
		return func(ctx *TaskContext, complete CompleteFunc) {
			key, _ := params["key"].(string)
			complete(nil, map[string]any{key: params["value"]})
		}
	})
	// sum adds the values accumulated under the given keys.
	RegisterTask("test/sum", func(params map[string]any) Task {
		return func(ctx *TaskContext, complete CompleteFunc) {
			total := 0.0
			keys, _ := params["keys"].([]any)
			for _, k := range keys {
				if v, ok := ctx.Args[k.(string)].(float64); ok {
					total += v
				}
			}
			complete(nil, map[string]any{"total": total})
		}
	})
}

func TestRegisterTaskDuplicatePanics(t *testing.T) {
	RegisterTask("test/unique", func(params map[string]any) Task {
		return func(ctx *TaskContext, complete CompleteFunc) { complete(nil, nil) }
	})
	assert.Panics(t, func() {
		RegisterTask("test/unique", func(params map[string]any) Task {
			return func(ctx *TaskContext, complete CompleteFunc) { complete(nil, nil) }
		})
	})
}

func TestNewTaskFromRegistryUnknownID(t *testing.T) {
	_, err := NewTaskFromRegistry("test/does-not-exist", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found in registry")
}

func TestBuildSequenceFromJSONDef(t *testing.T) {
	raw := []byte(`{
		"name": "totals",
		"stages": [
			{"tasks": [
				{"id": "test/emit", "params": {"key": "a", "value": 2}},
				{"id": "test/emit", "params": {"key": "b", "value": 3}}
			]},
			{"tasks": [
				{"id": "test/sum", "params": {"keys": ["a", "b"]}}
			]}
		],
		"initialArgs": {"x": 1}
	}`)

	def, err := ParseDef(raw)
	require.NoError(t, err)
	assert.Equal(t, "totals", def.Name)
	require.Len(t, def.Stages, 2)

	var gotData map[string]any
	seq, err := BuildSequence(def, func(err error, data map[string]any) {
		require.NoError(t, err)
		gotData = data
	})
	require.NoError(t, err)
	require.NoError(t, seq.Err())

	seq.Go()
	assert.Equal(t, 5.0, gotData["total"])
}

func TestBuildSequenceUnknownTask(t *testing.T) {
	def := &SequenceDef{
		Stages: []StageDef{{Tasks: []TaskDef{{ID: "test/missing"}}}},
	}
	_, err := BuildSequence(def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage 0")
}

func TestParseDefRejectsMalformedJSON(t *testing.T) {
	_, err := ParseDef([]byte(`{"stages": [`))
	assert.Error(t, err)
}

func TestDefSchemaShape(t *testing.T) {
	schema := DefSchema()

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "stages")
}
