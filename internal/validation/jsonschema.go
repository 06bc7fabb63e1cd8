package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/procura/pkg/schema"
)

const (
	ruleSchemaURL       = "https://procura.dev/schemas/rule.json"
	invocationSchemaURL = "https://procura.dev/schemas/invocation.json"
)

// ruleSchemaJSON describes a WorkflowRule, including the params shape of every
// built-in action type. Unknown action types pass with free-form params.
const ruleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://procura.dev/schemas/rule.json",
  "type": "object",
  "required": ["id", "name", "trigger_type", "actions"],
  "additionalProperties": false,
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "trigger_type": { "type": "string", "pattern": "^[a-z][a-z0-9_]*$" },
    "trigger_conditions": {
      "type": "object",
      "properties": {
        "$expr": { "type": "string", "minLength": 1 },
        "$cel": { "type": "string", "minLength": 1 }
      }
    },
    "actions": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/action" }
    },
    "priority": { "type": "integer" },
    "delay_minutes": { "type": "integer", "minimum": 0 },
    "is_active": { "type": "boolean" },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "$defs": {
    "action": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "params": {
          "type": "object",
          "properties": {
            "timeout_seconds": { "type": "number", "exclusiveMinimum": 0 }
          }
        }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "send_notification" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/notify" } } }
        },
        {
          "if": { "properties": { "type": { "const": "auto_assign" } } },
          "then": { "properties": { "params": { "$ref": "#/$defs/assign" } } }
        },
        {
          "if": { "properties": { "type": { "const": "escalate_approval" } } },
          "then": { "properties": { "params": { "$ref": "#/$defs/escalate" } } }
        },
        {
          "if": { "properties": { "type": { "const": "auto_approve" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/approve" } } }
        },
        {
          "if": { "properties": { "type": { "const": "create_task" } } },
          "then": { "properties": { "params": { "$ref": "#/$defs/task" } } }
        },
        {
          "if": { "properties": { "type": { "const": "update_status" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/status" } } }
        }
      ]
    },
    "notify": {
      "type": "object",
      "required": ["recipients"],
      "properties": {
        "template": { "type": "string" },
        "recipients": {
          "type": "array",
          "minItems": 1,
          "items": { "enum": ["client", "vendor", "admin"] }
        },
        "title": { "type": "string" },
        "message": { "type": "string" }
      }
    },
    "assign": {
      "type": "object",
      "properties": {
        "method": { "type": "string" }
      }
    },
    "escalate": {
      "type": "object",
      "properties": {
        "escalate_to": { "type": "string" },
        "template": { "type": "string" },
        "title": { "type": "string" },
        "message": { "type": "string" }
      }
    },
    "approve": {
      "type": "object",
      "required": ["level"],
      "properties": {
        "level": { "enum": ["admin", "client"] },
        "mode": { "enum": ["combined", "two_party"] }
      }
    },
    "task": {
      "type": "object",
      "properties": {
        "title": { "type": "string" },
        "description": { "type": "string" },
        "priority": { "enum": ["low", "medium", "high", "urgent"] },
        "due_in_days": { "type": "integer", "minimum": 0 },
        "assignment": { "enum": ["client_default", "vendor_if_present", "rule_specified"] },
        "assign_to": { "enum": ["client", "vendor"] }
      },
      "if": {
        "required": ["assignment"],
        "properties": { "assignment": { "const": "rule_specified" } }
      },
      "then": { "required": ["assign_to"] }
    },
    "status": {
      "type": "object",
      "required": ["entity_type", "status"],
      "properties": {
        "entity_type": { "enum": ["request", "order"] },
        "status": { "type": "string", "minLength": 1 },
        "entity_id": { "type": "string" }
      }
    }
  }
}`

// invocationSchemaJSON describes the body of POST /functions/execute-workflow.
const invocationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://procura.dev/schemas/invocation.json",
  "type": "object",
  "required": ["execution_id"],
  "properties": {
    "trigger_type": { "type": "string" },
    "trigger_data": { "type": ["object", "null"] },
    "execution_id": { "type": "string", "minLength": 1 }
  }
}`

// schemas holds the compiled rule and invocation schemas. Compiled schemas
// are immutable and safe for concurrent use.
type schemas struct {
	rule       *jsonschema.Schema
	invocation *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		ruleSchemaURL:       ruleSchemaJSON,
		invocationSchemaURL: invocationSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	rule, err := c.Compile(ruleSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}
	inv, err := c.Compile(invocationSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile invocation schema: %w", err)
	}
	return &schemas{rule: rule, invocation: inv}, nil
}

// toJSONValue round-trips v through encoding/json so numbers reach the
// validator as json.Number.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// structural validates doc against s and records every leaf violation.
func structural(s *jsonschema.Schema, doc any) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	err := s.Validate(doc)
	if err == nil {
		return result
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		result.Errorf("/", "%s", err.Error())
		return result
	}
	collectViolations(verr, result)
	return result
}

// collectViolations walks the error tree and records its leaves.
func collectViolations(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		result.Errorf("/"+strings.Join(verr.InstanceLocation, "/"), "%s", verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, result)
	}
}
