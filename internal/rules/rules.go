// Package rules reads workflow rule files and installs them in the store.
package rules

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/validation"
	"github.com/rendis/procura/pkg/schema"
)

// file is the document shape: either a bare list of rules or {rules: [...]}.
type file struct {
	Rules []*schema.WorkflowRule `yaml:"rules"`
}

// LoadFile reads rules from a YAML or JSON file.
func LoadFile(path string) ([]*schema.WorkflowRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a rule document. JSON is accepted as a subset of YAML.
// A rule without is_active is treated as active.
func Parse(data []byte) ([]*schema.WorkflowRule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "rules document is empty")
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse rules: %s", err.Error()).WithCause(err)
	}
	if len(node.Content) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "rules document is empty")
	}
	root := node.Content[0]

	var list []*schema.WorkflowRule
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&list); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode rules: %s", err.Error()).WithCause(err)
		}
	case yaml.MappingNode:
		var f file
		if err := root.Decode(&f); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode rules: %s", err.Error()).WithCause(err)
		}
		list = f.Rules
	default:
		return nil, schema.NewError(schema.ErrCodeValidation, "rules document must be a list or a mapping with a rules key")
	}

	explicit := activeFlags(root)
	for i, r := range list {
		if r == nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %d is empty", i)
		}
		if i < len(explicit) && !explicit[i] {
			r.Active = true
		}
	}
	return list, nil
}

// activeFlags reports, per rule node, whether is_active was written out.
func activeFlags(root *yaml.Node) []bool {
	seq := root
	if root.Kind == yaml.MappingNode {
		seq = nil
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "rules" {
				seq = root.Content[i+1]
			}
		}
	}
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]bool, len(seq.Content))
	for i, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			if item.Content[j].Value == "is_active" {
				out[i] = true
			}
		}
	}
	return out
}

// Report summarises an Install run.
type Report struct {
	Loaded   []string                 `json:"loaded"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

// Install validates every rule and, only if all are valid, upserts them.
func Install(ctx context.Context, s store.Store, v *validation.Validator, list []*schema.WorkflowRule) (*Report, error) {
	report := &Report{}
	all := &schema.ValidationResult{}
	seen := make(map[string]struct{}, len(list))
	for i, r := range list {
		res := v.Validate(r)
		for _, issue := range res.Errors {
			issue.Path = fmt.Sprintf("/rules/%d%s", i, issue.Path)
			all.Errors = append(all.Errors, issue)
		}
		for _, issue := range res.Warnings {
			issue.Path = fmt.Sprintf("/rules/%d%s", i, issue.Path)
			all.Warnings = append(all.Warnings, issue)
		}
		if r == nil {
			continue
		}
		if _, dup := seen[r.ID]; dup && r.ID != "" {
			all.Errorf(fmt.Sprintf("/rules/%d/id", i), "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	if err := all.Err(); err != nil {
		return nil, err
	}
	report.Warnings = all.Warnings

	for _, r := range list {
		if err := s.CreateRule(ctx, r); err != nil {
			return report, schema.NewErrorf(schema.ErrCodeStore, "store rule %q: %s", r.ID, err.Error()).WithCause(err)
		}
		report.Loaded = append(report.Loaded, r.ID)
	}
	return report, nil
}
