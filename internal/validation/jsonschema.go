package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowgraph/pkg/schema"
)

const (
	workflowSchemaURL = "https://flowgraph.dev/schemas/workflow.json"
	cardsSchemaURL    = "https://flowgraph.dev/schemas/message-cards.json"
)

// workflowSchemaJSON describes the stored workflow shape. Node configs are
// checked per type by the semantic stage.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowgraph.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "nodes"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "composed": {"type": "boolean"},
    "metadata": {"type": "object"},
    "nodes": {
      "type": "array",
      "items": {"$ref": "#/$defs/node"}
    },
    "edges": {
      "type": "array",
      "items": {"$ref": "#/$defs/edge"}
    },
    "inputParams": {"type": "array", "items": {"$ref": "#/$defs/param"}},
    "outputParams": {"type": "array", "items": {"$ref": "#/$defs/param"}}
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {
          "type": "string",
          "enum": ["http_request", "condition", "multi_condition", "switch", "data_transform",
                   "message_reply", "message_push", "message_cards", "sub_workflow",
                   "trigger", "entry", "notification"]
        },
        "name": {"type": "string"},
        "config": {"type": ["object", "null"]}
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": {"type": "string"},
        "source": {"type": "string", "minLength": 1},
        "target": {"type": "string", "minLength": 1},
        "active": {"type": "boolean"},
        "branch": {"type": "string"}
      },
      "additionalProperties": false
    },
    "param": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "type": {"type": "string", "enum": ["string", "number", "boolean", "object", "array", "any"]},
        "required": {"type": "boolean"},
        "default": {},
        "description": {"type": "string"}
      },
      "additionalProperties": false
    }
  }
}`

// cardsSchemaJSON enforces the structural completeness of multi-card templates.
const cardsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowgraph.dev/schemas/message-cards.json",
  "type": "array",
  "minItems": 1,
  "maxItems": 10,
  "items": {
    "type": "object",
    "required": ["title", "text", "actions"],
    "properties": {
      "title": {"type": "string", "minLength": 1, "maxLength": 40},
      "text": {"type": "string", "minLength": 1, "maxLength": 120},
      "imageUrl": {"type": "string"},
      "actions": {
        "type": "array",
        "minItems": 1,
        "maxItems": 3,
        "items": {"$ref": "#/$defs/action"}
      }
    }
  },
  "$defs": {
    "action": {
      "type": "object",
      "required": ["type", "label"],
      "properties": {
        "type": {"type": "string", "enum": ["uri", "message", "postback"]},
        "label": {"type": "string", "minLength": 1, "maxLength": 20}
      },
      "allOf": [
        {"if": {"properties": {"type": {"const": "uri"}}}, "then": {"required": ["uri"], "properties": {"uri": {"type": "string", "minLength": 1}}}},
        {"if": {"properties": {"type": {"const": "message"}}}, "then": {"required": ["text"], "properties": {"text": {"type": "string", "minLength": 1}}}},
        {"if": {"properties": {"type": {"const": "postback"}}}, "then": {"required": ["data"], "properties": {"data": {"type": "string", "minLength": 1}}}}
      ]
    }
  }
}`

// JSONSchemaValidator validates workflows, card templates and inputs against
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
	cardsSchema    *jsonschema.Schema

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator compiles the built-in schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()
	for url, doc := range map[string]string{
		workflowSchemaURL: workflowSchemaJSON,
		cardsSchemaURL:    cardsSchemaJSON,
	} {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, parsed); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	wf, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	cards, err := c.Compile(cardsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile cards schema: %w", err)
	}

	return &JSONSchemaValidator{
		workflowSchema: wf,
		cardsSchema:    cards,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateWorkflow checks the workflow's structure.
func (v *JSONSchemaValidator) ValidateWorkflow(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	return v.validate(v.workflowSchema, wf)
}

// ValidateCards checks that every card carries a title, text and 1..3 complete actions.
func (v *JSONSchemaValidator) ValidateCards(cards []schema.Card) error {
	if cards == nil {
		cards = []schema.Card{}
	}
	return v.validate(v.cardsSchema, cards)
}

// ValidateInput validates input data against a JSON Schema provided as raw bytes.
// Compiled schemas are cached by content.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if len(inputSchema) == 0 {
		return nil
	}
	compiled, err := v.compileCached(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return v.validate(compiled, input)
}

func (v *JSONSchemaValidator) validate(s *jsonschema.Schema, value any) error {
	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize document").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

func (v *JSONSchemaValidator) compileCached(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	cached, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := fmt.Sprintf("flowgraph://input-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become json.Number,
// as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError flattens a jsonschema.ValidationError into a FlowError whose
// details list every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
