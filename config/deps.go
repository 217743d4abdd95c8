package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Dependencies returns the set of component keys c depends on, per its
// type's extraction rule. Tool and runnable references inside agent
// tools / workflow stages are resolved against all (the full loaded
// set) to classify them as agent vs workflow refs; a reference to a
// name not present in all is still returned (the caller's topological
// sort reports it as unresolved).
func Dependencies(c *Component, all map[Key]*Component) ([]Key, error) {
	switch c.Type {
	case TypeModel, TypeSessionStore, TypeTraceStore, TypeCitationStore, TypeMemory, TypeKnowledge:
		return nil, nil

	case TypeTool:
		var p ToolParams
		if err := decodeParams(c.Params, &p); err != nil {
			return nil, fmt.Errorf("tool %s: %w", c.Name, err)
		}
		deps := make([]Key, 0, len(p.Dependencies))
		for _, target := range p.Dependencies {
			if key, ok := resolveByName(target, all); ok {
				deps = append(deps, key)
			}
		}
		return deps, nil

	case TypeAgent:
		var p AgentParams
		if err := decodeParams(c.Params, &p); err != nil {
			return nil, fmt.Errorf("agent %s: %w", c.Name, err)
		}
		var deps []Key
		if p.Model != "" {
			deps = append(deps, Key{Type: TypeModel, Name: p.Model})
		}
		if p.Memory != "" {
			deps = append(deps, Key{Type: TypeMemory, Name: p.Memory})
		}
		if p.Knowledge != "" {
			deps = append(deps, Key{Type: TypeKnowledge, Name: p.Knowledge})
		}
		if p.SessionStore != "" {
			deps = append(deps, Key{Type: TypeSessionStore, Name: p.SessionStore})
		}
		for _, ref := range p.Tools {
			switch ref.Type {
			case "agent_tool":
				deps = append(deps, Key{Type: TypeAgent, Name: ref.Agent})
			case "workflow_tool":
				deps = append(deps, Key{Type: TypeWorkflow, Name: ref.Workflow})
			default:
				name := ref.Name
				if name == "" {
					continue
				}
				if key, ok := resolveByName(name, all); ok {
					deps = append(deps, key)
				} else {
					deps = append(deps, Key{Type: TypeTool, Name: name})
				}
			}
		}
		return deps, nil

	case TypeWorkflow:
		var p WorkflowParams
		if err := decodeParams(c.Params, &p); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", c.Name, err)
		}
		var deps []Key
		if p.SessionStore != "" {
			deps = append(deps, Key{Type: TypeSessionStore, Name: p.SessionStore})
		}
		for _, stage := range p.Stages {
			if stage.Runnable == "" {
				continue // inline nested spec: no named dependency
			}
			if key, ok := resolveByName(stage.Runnable, all); ok {
				deps = append(deps, key)
			} else {
				deps = append(deps, Key{Type: TypeAgent, Name: stage.Runnable})
			}
		}
		return deps, nil

	default:
		return nil, nil
	}
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}

// resolveByName finds the component named name across the types it
// could belong to, checked in the order agent, workflow, tool; when
// several share the name, the first of those types wins, so an agent
// beats a workflow or tool of the same name.
func resolveByName(name string, all map[Key]*Component) (Key, bool) {
	if key := (Key{Type: TypeAgent, Name: name}); all[key] != nil {
		return key, true
	}
	if key := (Key{Type: TypeWorkflow, Name: name}); all[key] != nil {
		return key, true
	}
	if key := (Key{Type: TypeTool, Name: name}); all[key] != nil {
		return key, true
	}
	return Key{}, false
}
