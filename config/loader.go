package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentflow/core/errs"
)

// LoadResult is the outcome of loading a config directory: the
// surviving components plus any per-entry errors encountered along the
// way (each is non-fatal to the overall load; the offending entry is
// simply skipped).
type LoadResult struct {
	Components []*Component
	Errors     []error
}

// Load walks dir recursively for *.yaml/*.yml files, renders
// environment templates, and decodes each YAML document into a
// Component. Entries missing type or name are skipped with an error
// recorded; entries with enabled: false are silently skipped;
// duplicate (type, name) pairs keep the last-seen entry and log a
// warning.
func Load(dir string) (LoadResult, error) {
	var result LoadResult
	seen := make(map[Key]int) // key -> index into result.Components

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("read %s: %w", path, err))
			return nil
		}

		dec := yaml.NewDecoder(strings.NewReader(string(raw)))
		for {
			var doc map[string]any
			if err := dec.Decode(&doc); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				result.Errors = append(result.Errors, fmt.Errorf("parse %s: %w", path, err))
				break
			}
			if len(doc) == 0 {
				continue
			}
			cc, err := decodeComponent(renderTree(doc).(map[string]any), path)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if cc == nil {
				continue // disabled
			}
			key := cc.Key()
			if idx, ok := seen[key]; ok {
				slog.Warn("duplicate component, keeping last-seen", "type", key.Type, "name", key.Name,
					"previous_file", result.Components[idx].SourceFile, "file", path)
				result.Components[idx] = cc
			} else {
				seen[key] = len(result.Components)
				result.Components = append(result.Components, cc)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk config dir %s: %w", dir, err)
	}
	return result, nil
}

func decodeComponent(doc map[string]any, sourceFile string) (*Component, error) {
	typeStr, _ := doc["type"].(string)
	name, _ := doc["name"].(string)
	if typeStr == "" {
		return nil, fmt.Errorf("%s: %w: type", sourceFile, errs.ErrMissingRequiredField)
	}
	if name == "" {
		return nil, fmt.Errorf("%s: %w: name", sourceFile, errs.ErrMissingRequiredField)
	}
	t := Type(typeStr)
	if !validTypes[t] {
		return nil, fmt.Errorf("%s: %w: %q", sourceFile, errs.ErrUnknownComponentType, typeStr)
	}

	enabled := true
	if v, ok := doc["enabled"]; ok {
		if b, ok := v.(bool); ok {
			enabled = b
		}
	}
	if !enabled {
		return nil, nil
	}

	description, _ := doc["description"].(string)
	var tags []string
	if raw, ok := doc["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	params := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case "type", "name", "description", "enabled", "tags":
			continue
		default:
			params[k] = v
		}
	}

	return &Component{
		Type:        t,
		Name:        name,
		Description: description,
		Enabled:     enabled,
		Tags:        tags,
		Params:      params,
		SourceFile:  sourceFile,
	}, nil
}
