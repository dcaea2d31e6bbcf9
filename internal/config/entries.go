package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one key of an ordered mapping.
type Entry struct {
	Name  string
	Value string
}

// Entries is a YAML mapping of strings that keeps its document order.
// Parameter order fixes the grid axis order and output order fixes the
// column mapping of the solver result line.
type Entries []Entry

func (e Entries) Get(name string) (string, bool) {
	for _, en := range e {
		if en.Name == name {
			return en.Value, true
		}
	}
	return "", false
}

func (e Entries) Names() []string {
	names := make([]string, len(e))
	for i, en := range e {
		names[i] = en.Name
	}
	return names
}

// Set replaces the value of name, appending it when absent.
func (e *Entries) Set(name, value string) {
	for i := range *e {
		if (*e)[i].Name == name {
			(*e)[i].Value = value
			return
		}
	}
	*e = append(*e, Entry{Name: name, Value: value})
}

func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	out := make(Entries, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %s must be a string", val.Line, key.Value)
		}
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate key %s", key.Line, key.Value)
		}
		seen[key.Value] = true

		v := val.Value
		if val.Tag == "!!null" {
			v = ""
		}
		out = append(out, Entry{Name: key.Value, Value: v})
	}
	*e = out
	return nil
}

func (e Entries) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, en := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: en.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: en.Value},
		)
	}
	return node, nil
}
