package validation

import (
	"fmt"

	"github.com/rendis/procura/pkg/schema"
)

// validateSemantic checks what JSON Schema cannot express.
func validateSemantic(rule *schema.WorkflowRule, lookup ActionLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if len(rule.Actions) == 0 {
		result.Warnf("/actions", "rule has no actions; executions will complete without side effects")
	}

	for i, a := range rule.Actions {
		path := fmt.Sprintf("/actions/%d", i)

		if lookup != nil && !lookup.Has(a.Type) {
			result.Warnf(path+"/type", "no handler registered for %q; the action will be skipped", a.Type)
		}

		switch a.Type {
		case schema.ActionAutoAssign:
			if a.StringParam("method") != "smart_matching" {
				result.Warnf(path+"/params/method", "only smart_matching assigns vendors; this action is a no-op")
			}
		case schema.ActionEscalateApproval:
			if a.StringParam("escalate_to") != "admin" {
				result.Warnf(path+"/params/escalate_to", "only admin escalation is supported; this action is a no-op")
			}
		}
	}

	for key, v := range rule.TriggerConditions {
		if key == "" {
			result.Errorf("/trigger_conditions", "empty condition key")
			continue
		}
		if _, isMap := v.(map[string]any); isMap {
			result.Errorf("/trigger_conditions/"+key, "nested objects are not supported; use $expr or $cel")
		}
	}

	return result
}
