package validation

import (
	"github.com/rendis/procura/pkg/schema"
)

// ActionLookup reports whether a handler exists for an action type.
// Satisfied by *actions.Registry.
type ActionLookup interface {
	Has(t schema.ActionType) bool
}

// Validator checks rules before they are stored and invocation bodies before
// they reach the controller. Safe for concurrent use.
type Validator struct {
	schemas *schemas
	actions ActionLookup
}

// New compiles the embedded schemas. lookup may be nil to skip handler checks.
func New(lookup ActionLookup) (*Validator, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Validator{schemas: s, actions: lookup}, nil
}

// Validate runs the structural then semantic stages on rule. Structural
// errors short-circuit the semantic stage.
func (v *Validator) Validate(rule *schema.WorkflowRule) *schema.ValidationResult {
	if rule == nil {
		r := &schema.ValidationResult{}
		r.Errorf("/", "rule is nil")
		return r
	}

	doc, err := toJSONValue(rule)
	if err != nil {
		r := &schema.ValidationResult{}
		r.Errorf("/", "serialize rule: %s", err.Error())
		return r
	}

	result := structural(v.schemas.rule, doc)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(rule, v.actions))
	return result
}

// ValidateRule returns a VALIDATION_ERROR when rule is invalid.
func (v *Validator) ValidateRule(rule *schema.WorkflowRule) error {
	return v.Validate(rule).Err()
}

// ValidateInvocation checks a decoded invocation body (as produced by
// encoding/json into any).
func (v *Validator) ValidateInvocation(body any) error {
	doc, err := toJSONValue(body)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invocation body is not JSON-serializable").WithCause(err)
	}
	return structural(v.schemas.invocation, doc).Err()
}
