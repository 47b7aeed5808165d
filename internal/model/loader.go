package model

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML keeps the declaration order of the properties mapping.
func (ps *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := ps.Get(name); dup {
			return fmt.Errorf("line %d: duplicate property '%s'", node.Content[i].Line, name)
		}
		var p Property
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("property '%s': %w", name, err)
		}
		p.Name = name
		ps.add(&p)
	}
	return nil
}

type rawDefinition struct {
	name  string
	model *Model
	plain any // same document decoded into plain maps, used for the version hash
}

// loadDefinitions reads every *.yml schema file of fsys.
func loadDefinitions(fsys fs.FS) ([]rawDefinition, error) {
	files, err := fs.Glob(fsys, "*.yml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no schema definitions (*.yml) found")
	}
	sort.Strings(files)

	defs := make([]rawDefinition, 0, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}

		// 1. Разбираем в yaml.Node для структурной валидации
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("YAML parse error in %s: %w", file, err)
		}
		if len(root.Content) == 0 {
			return nil, fmt.Errorf("empty YAML in %s", file)
		}
		if err := validateYAMLNode(root.Content[0], "model"); err != nil {
			return nil, fmt.Errorf("validation error in %s: %w", file, err)
		}

		// 2. Теперь уже Decode в модель
		var m Model
		if err := root.Decode(&m); err != nil {
			return nil, fmt.Errorf("unmarshal error in %s: %w", file, err)
		}
		var plain any
		if err := root.Decode(&plain); err != nil {
			return nil, fmt.Errorf("unmarshal error in %s: %w", file, err)
		}

		m.Name = strings.TrimSuffix(path.Base(file), path.Ext(file))
		defs = append(defs, rawDefinition{name: m.Name, model: &m, plain: plain})
	}
	return defs, nil
}
