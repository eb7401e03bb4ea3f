package heuristic

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bidsify/bidsify/internal/metadata"
)

// Config is a parsed study configuration.
type Config struct {
	Search   SearchDictionary
	Terms    TermMap
	Metadata metadata.StudyMetadata
	Exclude  []string
}

// Excluded reports whether path contains any exclusion term, ignoring case.
func (c *Config) Excluded(path string) bool {
	return ListInSubstr(c.Exclude, path)
}

// Load reads and parses the study configuration at path.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	return Parse(data)
}

// Parse decodes a study configuration. The YAML node tree is walked
// directly so that dictionary order is kept.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(doc.Content) == 0 {
		return nil, errorf("empty configuration")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errorf("top level must be a mapping")
	}

	cfg := &Config{}
	var searchNode, mapNode *yaml.Node
	haveSearch := false

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "modality_search":
			dict, err := parseSearch(val)
			if err != nil {
				return nil, err
			}
			cfg.Search = dict
			haveSearch = true
		case "bids_search":
			searchNode = val
		case "bids_map":
			mapNode = val
		case "metadata":
			md, err := parseMetadata(val)
			if err != nil {
				return nil, err
			}
			cfg.Metadata = md
		case "exclude":
			terms, err := stringList(val)
			if err != nil {
				return nil, fmt.Errorf("exclude: %w", err)
			}
			cfg.Exclude = terms
		}
	}

	if !haveSearch {
		return nil, errorf("modality_search is required")
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}

	switch {
	case searchNode == nil && mapNode == nil:
	case searchNode == nil || mapNode == nil:
		return nil, errorf("bids_search and bids_map must be given together")
	default:
		rules, err := parseTermRules(searchNode, mapNode)
		if err != nil {
			return nil, err
		}
		cfg.Terms = TermMap{Rules: rules}
	}

	return cfg, nil
}

func parseSearch(n *yaml.Node) (SearchDictionary, error) {
	if n.Kind != yaml.MappingNode {
		return SearchDictionary{}, errorf("modality_search must be a mapping")
	}
	var dict SearchDictionary
	for i := 0; i+1 < len(n.Content); i += 2 {
		branch := Branch{ModalityType: n.Content[i].Value}
		labels := n.Content[i+1]
		if labels.Kind != yaml.MappingNode {
			return SearchDictionary{}, errorf("modality type %q must map labels to terms", branch.ModalityType)
		}
		for j := 0; j+1 < len(labels.Content); j += 2 {
			label, val := labels.Content[j].Value, labels.Content[j+1]
			if val.Kind == yaml.MappingNode {
				for k := 0; k+1 < len(val.Content); k += 2 {
					terms, err := stringList(val.Content[k+1])
					if err != nil {
						return SearchDictionary{}, fmt.Errorf("modality_search.%s.%s: %w", branch.ModalityType, label, err)
					}
					branch.Entries = append(branch.Entries, TaskedEntry{
						ModalityLabel: label,
						TaskName:      val.Content[k].Value,
						Terms:         terms,
					})
				}
				continue
			}
			terms, err := stringList(val)
			if err != nil {
				return SearchDictionary{}, fmt.Errorf("modality_search.%s.%s: %w", branch.ModalityType, label, err)
			}
			branch.Entries = append(branch.Entries, SimpleEntry{ModalityLabel: label, Terms: terms})
		}
		dict.Branches = append(dict.Branches, branch)
	}
	return dict, nil
}

// parseTermRules walks bids_search and bids_map in lockstep. Both trees must
// have the same keys and the same list lengths.
func parseTermRules(search, mapping *yaml.Node) ([]TermRule, error) {
	var rules []TermRule
	var walk func(s, m *yaml.Node, path []string) error
	walk = func(s, m *yaml.Node, path []string) error {
		where := strings.Join(path, ".")
		if s.Kind != m.Kind {
			return errorf("bids_search and bids_map differ at %q", where)
		}
		if s.Kind == yaml.SequenceNode || s.Kind == yaml.ScalarNode {
			rule, err := leafRule(s, m, path)
			if err != nil {
				return err
			}
			rules = append(rules, rule)
			return nil
		}
		if s.Kind != yaml.MappingNode {
			return errorf("unexpected node at %q", where)
		}
		if len(s.Content) != len(m.Content) {
			return errorf("bids_search and bids_map have different keys at %q", where)
		}
		for i := 0; i+1 < len(s.Content); i += 2 {
			key := s.Content[i].Value
			other := mappingValue(m, key)
			if other == nil {
				return errorf("bids_map is missing %q", strings.Join(append(path, key), "."))
			}
			if err := walk(s.Content[i+1], other, append(path, key)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(search, mapping, nil); err != nil {
		return nil, err
	}
	return rules, nil
}

func leafRule(s, m *yaml.Node, path []string) (TermRule, error) {
	where := strings.Join(path, ".")
	terms, err := stringList(s)
	if err != nil {
		return TermRule{}, fmt.Errorf("bids_search.%s: %w", where, err)
	}
	values, err := stringList(m)
	if err != nil {
		return TermRule{}, fmt.Errorf("bids_map.%s: %w", where, err)
	}
	if len(terms) != len(values) {
		return TermRule{}, errorf("bids_search and bids_map lengths differ at %q", where)
	}

	var rule TermRule
	switch len(path) {
	case 3:
		rule = TermRule{ModalityType: path[0], ModalityLabel: path[1], Param: path[2]}
	case 4:
		rule = TermRule{ModalityType: path[0], ModalityLabel: path[1], Task: path[2], Param: path[3]}
	default:
		return TermRule{}, errorf("term rule %q must be modality.label[.task].param", where)
	}
	if !validParam(rule.Param) {
		return TermRule{}, errorf("term rule %q sets unsupported component %q", where, rule.Param)
	}
	rule.Terms = terms
	rule.Values = values
	return rule, nil
}

func parseMetadata(n *yaml.Node) (metadata.StudyMetadata, error) {
	md := metadata.StudyMetadata{Modalities: make(map[string]metadata.ModalityMetadata)}
	if n.Kind != yaml.MappingNode {
		return md, errorf("metadata must be a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		if val.Kind != yaml.MappingNode {
			return md, errorf("metadata.%s must be a mapping", key)
		}
		if strings.EqualFold(key, "common") {
			fields, err := fieldValues(val)
			if err != nil {
				return md, fmt.Errorf("metadata.common: %w", err)
			}
			md.Common = fields
			continue
		}
		mod := metadata.ModalityMetadata{Tasks: make(map[string]metadata.Values)}
		for j := 0; j+1 < len(val.Content); j += 2 {
			name, v := val.Content[j].Value, val.Content[j+1]
			if v.Kind == yaml.MappingNode {
				fields, err := fieldValues(v)
				if err != nil {
					return md, fmt.Errorf("metadata.%s.%s: %w", key, name, err)
				}
				mod.Tasks[name] = fields
				continue
			}
			value, err := decodeValue(v)
			if err != nil {
				return md, fmt.Errorf("metadata.%s.%s: %w", key, name, err)
			}
			mod.Fields = append(mod.Fields, metadata.Field{Key: name, Value: value})
		}
		md.Modalities[key] = mod
	}
	if err := validateMetadata(md); err != nil {
		return md, err
	}
	return md, nil
}

// validateMetadata rejects field names that would fail sidecar assembly, so
// a bad study configuration stops the run before any file is touched.
func validateMetadata(md metadata.StudyMetadata) error {
	check := func(where string, v metadata.Values) error {
		if err := metadata.ValidateNames(v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, where, err)
		}
		return nil
	}
	if err := check("metadata.common", md.Common); err != nil {
		return err
	}
	types := make([]string, 0, len(md.Modalities))
	for t := range md.Modalities {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		mod := md.Modalities[t]
		if err := check("metadata."+t, mod.Fields); err != nil {
			return err
		}
		tasks := make([]string, 0, len(mod.Tasks))
		for task := range mod.Tasks {
			tasks = append(tasks, task)
		}
		sort.Strings(tasks)
		for _, task := range tasks {
			if err := check("metadata."+t+"."+task, mod.Tasks[task]); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldValues(n *yaml.Node) (metadata.Values, error) {
	var out metadata.Values
	for i := 0; i+1 < len(n.Content); i += 2 {
		value, err := decodeValue(n.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Content[i].Value, err)
		}
		out.Set(n.Content[i].Value, value)
	}
	return out, nil
}

func decodeValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func stringList(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, errorf("list items must be scalars")
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, errorf("expected a string or list of strings")
	}
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
