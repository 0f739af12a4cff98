// Package models defines the public wire types and run-history records for
// Flowfile core: the flow file format of spec §6 and its conversion into a
// *graph.FlowGraph, plus the persisted records the HTTP surface (pkg/server)
// serves back to callers.
package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/smilemakc/flowfile/pkg/graph"
)

// flowFileValidate is shared across calls the way the teacher shares a single
// *validator.Validate rather than constructing one per request.
var flowFileValidate = validator.New()

// FlowFile is the on-disk/wire representation of a flow, loaded via
// GET /import_flow/ or written out by a UI client. Equivalent in YAML or
// JSON per spec §6.
type FlowFile struct {
	FlowfileVersion  string           `json:"flowfile_version" yaml:"flowfile_version" validate:"required"`
	FlowfileID       int64            `json:"flowfile_id" yaml:"flowfile_id"`
	FlowfileName     string           `json:"flowfile_name" yaml:"flowfile_name" validate:"required"`
	FlowfileSettings FlowFileSettings `json:"flowfile_settings" yaml:"flowfile_settings"`
	Nodes            []FlowFileNode   `json:"nodes" yaml:"nodes" validate:"dive"`
}

// FlowFileSettings mirrors graph.FlowSettings plus the UI-only/server-only
// fields the wire format carries that the execution engine does not need.
type FlowFileSettings struct {
	Description          string `json:"description,omitempty" yaml:"description,omitempty"`
	ExecutionMode         string `json:"execution_mode" yaml:"execution_mode"`
	ExecutionLocation     string `json:"execution_location" yaml:"execution_location"`
	AutoSave              bool   `json:"auto_save,omitempty" yaml:"auto_save,omitempty"`
	ShowDetailedProgress  bool   `json:"show_detailed_progress,omitempty" yaml:"show_detailed_progress,omitempty"`
	MaxParallelWorkers    int    `json:"max_parallel_workers" yaml:"max_parallel_workers"`
}

// FlowFileNode is one node entry in the flow file's node list.
type FlowFileNode struct {
	ID          int64   `json:"id" yaml:"id"`
	Type        string  `json:"type" yaml:"type" validate:"required"`
	IsStartNode bool    `json:"is_start_node,omitempty" yaml:"is_start_node,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	XPosition   float64 `json:"x_position,omitempty" yaml:"x_position,omitempty"`
	YPosition   float64 `json:"y_position,omitempty" yaml:"y_position,omitempty"`

	LeftInputID  *int64  `json:"left_input_id,omitempty" yaml:"left_input_id,omitempty"`
	RightInputID *int64  `json:"right_input_id,omitempty" yaml:"right_input_id,omitempty"`
	InputIDs     []int64 `json:"input_ids,omitempty" yaml:"input_ids,omitempty"`
	Outputs      []int64 `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	SettingInput map[string]interface{} `json:"setting_input,omitempty" yaml:"setting_input,omitempty"`
}

// ParseFlowFile decodes a flow file from JSON or YAML bytes and struct-tag
// validates the result before any graph construction is attempted. Both
// formats decode through the same struct tags since the field names
// coincide.
func ParseFlowFile(data []byte, format string) (*FlowFile, error) {
	var ff FlowFile
	switch format {
	case "json":
		if err := json.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("models: decode flow file json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("models: decode flow file yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("models: unsupported flow file format %q", format)
	}

	if err := flowFileValidate.Struct(&ff); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			errs := make(ValidationErrors, 0, len(ve))
			for _, fe := range ve {
				errs = append(errs, ValidationError{Field: fe.Namespace(), Message: fe.Tag()})
			}
			return nil, errs
		}
		return nil, fmt.Errorf("models: validate flow file: %w", err)
	}
	return &ff, nil
}

// ToGraph builds a *graph.FlowGraph from a parsed flow file, reproducing
// its node promises, settings, and edges in declaration order. cacheDir is
// the shared cache root this flow's runs will use.
func (ff *FlowFile) ToGraph(cacheDir string) (*graph.FlowGraph, error) {
	settings := graph.FlowSettings{
		ExecutionMode:      graph.ExecutionMode(ff.FlowfileSettings.ExecutionMode),
		ExecutionLocation:  graph.ExecutionLocation(ff.FlowfileSettings.ExecutionLocation),
		MaxParallelWorkers: ff.FlowfileSettings.MaxParallelWorkers,
	}
	if settings.ExecutionMode == "" {
		settings.ExecutionMode = graph.ExecutionModePerformance
	}
	if settings.ExecutionLocation == "" {
		settings.ExecutionLocation = graph.ExecutionLocationAuto
	}
	if settings.MaxParallelWorkers <= 0 {
		settings.MaxParallelWorkers = 4
	}

	g := graph.New(ff.FlowfileID, cacheDir, settings)

	for _, n := range ff.Nodes {
		_, err := g.AddNode(graph.NodePromise{
			ID:          n.ID,
			Kind:        graph.Kind(n.Type),
			Description: n.Description,
			PositionX:   n.XPosition,
			PositionY:   n.YPosition,
		})
		if err != nil {
			return nil, fmt.Errorf("models: add node %d: %w", n.ID, err)
		}
	}

	noop := func(int64) {}
	for _, n := range ff.Nodes {
		if len(n.SettingInput) > 0 {
			if err := g.SetNodeSettings(n.ID, n.SettingInput, noop); err != nil {
				return nil, fmt.Errorf("models: settings for node %d: %w", n.ID, err)
			}
		}
		for _, from := range n.InputIDs {
			if err := g.Connect(from, n.ID, graph.SlotMain, noop); err != nil {
				return nil, fmt.Errorf("models: connect %d->%d MAIN: %w", from, n.ID, err)
			}
		}
		if n.LeftInputID != nil {
			if err := g.Connect(*n.LeftInputID, n.ID, graph.SlotLeft, noop); err != nil {
				return nil, fmt.Errorf("models: connect %d->%d LEFT: %w", *n.LeftInputID, n.ID, err)
			}
		}
		if n.RightInputID != nil {
			if err := g.Connect(*n.RightInputID, n.ID, graph.SlotRight, noop); err != nil {
				return nil, fmt.Errorf("models: connect %d->%d RIGHT: %w", *n.RightInputID, n.ID, err)
			}
		}
	}

	return g, nil
}

// FromGraph serialises a live FlowGraph back into wire form, e.g. for
// GET /flow_data/v2 or for round-tripping a flow a UI client just built.
func FromGraph(g *graph.FlowGraph, version, name string) *FlowFile {
	nodes := g.Nodes()
	ff := &FlowFile{
		FlowfileVersion: version,
		FlowfileID:      g.FlowID,
		FlowfileName:    name,
		FlowfileSettings: FlowFileSettings{
			ExecutionMode:      string(g.Settings.ExecutionMode),
			ExecutionLocation:  string(g.Settings.ExecutionLocation),
			MaxParallelWorkers: g.Settings.MaxParallelWorkers,
		},
		Nodes: make([]FlowFileNode, 0, len(nodes)),
	}

	for _, n := range nodes {
		ffn := FlowFileNode{
			ID:           n.ID,
			Type:         string(n.Kind),
			Description:  n.Description,
			XPosition:    n.PositionX,
			YPosition:    n.PositionY,
			InputIDs:     n.Inputs.Main,
			LeftInputID:  n.Inputs.Left,
			RightInputID: n.Inputs.Right,
			SettingInput: n.Settings,
		}
		for out := range n.Outputs {
			ffn.Outputs = append(ffn.Outputs, out)
		}
		ff.Nodes = append(ff.Nodes, ffn)
	}
	return ff
}
