// Package config loads declarative component specs from a directory
// tree, renders environment-variable templates into them, and exposes
// the typed views the dependency extractor and builders need.
package config

// Type enumerates the declarable component kinds.
type Type string

const (
	TypeModel         Type = "model"
	TypeTool          Type = "tool"
	TypeAgent         Type = "agent"
	TypeWorkflow      Type = "workflow"
	TypeSessionStore  Type = "session_store"
	TypeTraceStore    Type = "trace_store"
	TypeCitationStore Type = "citation_store"
	TypeMemory        Type = "memory"
	TypeKnowledge     Type = "knowledge"
)

var validTypes = map[Type]bool{
	TypeModel: true, TypeTool: true, TypeAgent: true, TypeWorkflow: true,
	TypeSessionStore: true, TypeTraceStore: true, TypeCitationStore: true,
	TypeMemory: true, TypeKnowledge: true,
}

// Key identifies a component by its (type, name) pair.
type Key struct {
	Type Type
	Name string
}

// Component is the declarative spec for one component instance. Params
// holds the type-specific fields, decoded on demand by the dependency
// extractor and the builders via mapstructure.
type Component struct {
	Type        Type
	Name        string
	Description string
	Enabled     bool
	Tags        []string
	Params      map[string]any

	// SourceFile records where this entry was parsed from, for
	// duplicate-resolution warnings and error messages.
	SourceFile string
}

// Key returns the component's (type, name) identity.
func (c *Component) Key() Key { return Key{Type: c.Type, Name: c.Name} }

// ToolRef is one entry of an agent's `tools` list: either a bare tool
// name or a reference to another runnable exposed as a tool.
type ToolRef struct {
	Type     string `mapstructure:"type"`
	Name     string `mapstructure:"name"`
	Agent    string `mapstructure:"agent"`
	Workflow string `mapstructure:"workflow"`
}

// AgentParams is the typed view of an agent component's Params.
type AgentParams struct {
	Model        string    `mapstructure:"model"`
	Tools        []ToolRef `mapstructure:"tools"`
	Memory       string    `mapstructure:"memory"`
	Knowledge    string    `mapstructure:"knowledge"`
	SessionStore string    `mapstructure:"session_store"`
	SystemPrompt string    `mapstructure:"system_prompt"`
	MaxSteps     int       `mapstructure:"max_steps"`
}

// StageSpec is one stage of a workflow component, either a reference to
// a named runnable or a nested inline spec.
type StageSpec struct {
	ID        string         `mapstructure:"id"`
	Runnable  string         `mapstructure:"runnable"`
	Condition string         `mapstructure:"condition"`
	Inline    map[string]any `mapstructure:"inline"`
}

// WorkflowParams is the typed view of a workflow component's Params.
type WorkflowParams struct {
	SessionStore string      `mapstructure:"session_store"`
	Kind         string      `mapstructure:"kind"` // pipeline | parallel | loop
	Stages       []StageSpec `mapstructure:"stages"`
}

// ToolParams is the typed view of a tool component's Params.
type ToolParams struct {
	Dependencies map[string]string `mapstructure:"dependencies"`
}
