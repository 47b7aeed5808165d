package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Разрешённые ключи для объектов
var allowedModelKeys = map[string]bool{
	"table":        true,
	"plural":       true,
	"endpoint":     true,
	"pk":           true,
	"sharing":      true,
	"translations": true,
	"attributes":   true,
	"presets":      true,
	"properties":   true,
}

var allowedPropertyKeys = map[string]bool{
	"column":          true,
	"type":            true,
	"model":           true,
	"fk":              true,
	"through":         true,
	"owner_fk":        true,
	"target_fk":       true,
	"readable":        true,
	"secret":          true,
	"translatable":    true,
	"translation_key": true,
	"localize":        true,
	"synthetic":       true,
	"source":          true,
	"identifiable":    true,
}

// Разрешённые значения для type в свойствах
var allowedPropertyTypeValues = map[string]bool{
	KindString:     true,
	KindText:       true,
	KindInt:        true,
	KindFloat:      true,
	KindBool:       true,
	KindDate:       true,
	KindDateTime:   true,
	KindUUID:       true,
	KindJSON:       true,
	KindArray:      true,
	KindReference:  true,
	KindCollection: true,
	KindSynthetic:  true,
}

var allowedSyntheticValues = map[string]bool{
	SyntheticHref:         true,
	SyntheticAccess:       true,
	SyntheticAPIEndpoints: true,
	SyntheticDisplayName:  true,
}

func validateYAMLNode(node *yaml.Node, context string) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := validateYAMLNode(child, "model"); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		var allowedKeys map[string]bool
		switch context {
		case "model":
			allowedKeys = allowedModelKeys
		case "property":
			allowedKeys = allowedPropertyKeys
		default:
			allowedKeys = nil // свободная форма
		}

		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			key := keyNode.Value

			if allowedKeys != nil && !allowedKeys[key] {
				return fmt.Errorf("line %d: unknown key '%s' in %s", keyNode.Line, key, context)
			}

			if context == "property" && key == "type" && !allowedPropertyTypeValues[valNode.Value] {
				return fmt.Errorf("line %d: unknown type value '%s' in property", valNode.Line, valNode.Value)
			}
			if context == "property" && key == "synthetic" && !allowedSyntheticValues[valNode.Value] {
				return fmt.Errorf("line %d: unknown synthetic value '%s' in property", valNode.Line, valNode.Value)
			}

			// Определяем новый контекст
			nextContext := ""
			switch {
			case context == "model" && key == "properties":
				nextContext = "properties-map"
			case context == "properties-map":
				nextContext = "property"
			case context == "model" && key == "presets":
				nextContext = "presets-map"
			}

			if context == "properties-map" && valNode.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: property '%s' must be a mapping", valNode.Line, key)
			}
			if context == "presets-map" && valNode.Kind != yaml.SequenceNode {
				return fmt.Errorf("line %d: preset '%s' must be a list of properties", valNode.Line, key)
			}

			if err := validateYAMLNode(valNode, nextContext); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		for _, item := range node.Content {
			if err := validateYAMLNode(item, context); err != nil {
				return err
			}
		}
	}

	return nil
}
