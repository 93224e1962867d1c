package schema

import (
	"encoding/json"
	"fmt"
)

// NodeType enumerates the fixed set of node behaviors.
type NodeType string

const (
	NodeTypeHTTPRequest    NodeType = "http_request"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeMultiCondition NodeType = "multi_condition"
	NodeTypeSwitch         NodeType = "switch"
	NodeTypeTransform      NodeType = "data_transform"
	NodeTypeMessageReply   NodeType = "message_reply"
	NodeTypeMessagePush    NodeType = "message_push"
	NodeTypeMessageCards   NodeType = "message_cards"
	NodeTypeSubWorkflow    NodeType = "sub_workflow"
	NodeTypeTrigger        NodeType = "trigger"
	NodeTypeEntry          NodeType = "entry"
	NodeTypeNotification   NodeType = "notification"
)

// AllNodeTypes lists every node type the engine must be able to execute.
var AllNodeTypes = []NodeType{
	NodeTypeHTTPRequest,
	NodeTypeCondition,
	NodeTypeMultiCondition,
	NodeTypeSwitch,
	NodeTypeTransform,
	NodeTypeMessageReply,
	NodeTypeMessagePush,
	NodeTypeMessageCards,
	NodeTypeSubWorkflow,
	NodeTypeTrigger,
	NodeTypeEntry,
	NodeTypeNotification,
}

// IsBranching reports whether nodes of this type populate ExecutionResult.Branch.
func (t NodeType) IsBranching() bool {
	switch t {
	case NodeTypeCondition, NodeTypeMultiCondition, NodeTypeSwitch:
		return true
	default:
		return false
	}
}

// IsBoolean reports whether the branch tags produced are "true"/"false".
func (t NodeType) IsBoolean() bool {
	return t == NodeTypeCondition || t == NodeTypeMultiCondition
}

// IsMarker reports whether the type is a no-op graph anchor.
func (t NodeType) IsMarker() bool {
	return t == NodeTypeTrigger || t == NodeTypeEntry || t == NodeTypeNotification
}

// Known reports whether the type is part of the fixed enumeration.
func (t NodeType) Known() bool {
	for _, k := range AllNodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Branch tags produced by branching nodes.
const (
	BranchTrue    = "true"
	BranchFalse   = "false"
	BranchDefault = "default"
)

// Comparison operators supported by condition, multi_condition and switch nodes.
var ComparisonOperators = []string{"==", "!=", "contains", "not_contains", ">", "<", ">=", "<="}

// IsComparisonOperator reports whether op is supported.
func IsComparisonOperator(op string) bool {
	for _, o := range ComparisonOperators {
		if o == op {
			return true
		}
	}
	return false
}

// Body sources for outbound calls.
const (
	UseDataNone           = "none"
	UseDataPreviousResult = "previous-result"
	UseDataLiteral        = "literal"
)

// NodeConfig is the typed configuration of one node variant.
// The set of implementations is closed to this package.
type NodeConfig interface {
	NodeType() NodeType
	nodeConfig()
}

// HTTPRequestConfig configures an outbound call.
type HTTPRequestConfig struct {
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	UseDataFrom string            `json:"useDataFrom,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	Retry       *RetryPolicy      `json:"retry,omitempty"`
}

// Condition is one field/operator/value comparison.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// ConditionConfig configures a single comparison node.
type ConditionConfig struct {
	Condition
}

// MultiConditionConfig combines several comparisons with and/or logic.
type MultiConditionConfig struct {
	Logic      string      `json:"logic,omitempty"` // and | or (default: and)
	Conditions []Condition `json:"conditions"`
}

// SwitchCase is one literal value a switch can match.
type SwitchCase struct {
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

// SwitchConfig configures a multi-way switch.
type SwitchConfig struct {
	Field string       `json:"field"`
	Cases []SwitchCase `json:"cases"`
}

// Mapping copies one path of the previous result into the reshaped output.
type Mapping struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Query string `json:"query,omitempty"` // optional jq program applied to the copied value
}

// TransformConfig configures a data reshape node.
type TransformConfig struct {
	Mappings []Mapping `json:"mappings"`
}

// MessageTarget holds the transport fields shared by all messaging variants.
type MessageTarget struct {
	Token      string `json:"token"` // authorization value, usually a secret placeholder
	ReplyToken string `json:"replyToken,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// MessageReplyConfig sends text messages, preferring reply transport.
type MessageReplyConfig struct {
	MessageTarget
	Messages []string `json:"messages"`
}

// MessagePushConfig sends text messages to a user id.
type MessagePushConfig struct {
	MessageTarget
	Messages []string `json:"messages"`
}

// CardAction is a button on a card.
type CardAction struct {
	Type  string `json:"type"` // uri | message | postback
	Label string `json:"label"`
	URI   string `json:"uri,omitempty"`
	Text  string `json:"text,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Card is one column of a multi-card template.
type Card struct {
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	ImageURL string       `json:"imageUrl,omitempty"`
	Actions  []CardAction `json:"actions"`
}

// MessageCardsConfig sends a multi-card template.
type MessageCardsConfig struct {
	MessageTarget
	AltText string `json:"altText,omitempty"`
	Cards   []Card `json:"cards"`
}

// ParamMapping sets Target in the sub-workflow context to the interpolated Source.
type ParamMapping struct {
	Target string `json:"target"`
	Source string `json:"source"`
}

// SubWorkflowConfig references another stored workflow.
type SubWorkflowConfig struct {
	WorkflowID string         `json:"workflowId"`
	Mappings   []ParamMapping `json:"mappings,omitempty"`
}

// MarkerConfig configures trigger, entry and notification markers.
type MarkerConfig struct {
	Kind    NodeType `json:"-"`
	Message string   `json:"message,omitempty"`
}

func (*HTTPRequestConfig) NodeType() NodeType    { return NodeTypeHTTPRequest }
func (*ConditionConfig) NodeType() NodeType      { return NodeTypeCondition }
func (*MultiConditionConfig) NodeType() NodeType { return NodeTypeMultiCondition }
func (*SwitchConfig) NodeType() NodeType         { return NodeTypeSwitch }
func (*TransformConfig) NodeType() NodeType      { return NodeTypeTransform }
func (*MessageReplyConfig) NodeType() NodeType   { return NodeTypeMessageReply }
func (*MessagePushConfig) NodeType() NodeType    { return NodeTypeMessagePush }
func (*MessageCardsConfig) NodeType() NodeType   { return NodeTypeMessageCards }
func (*SubWorkflowConfig) NodeType() NodeType    { return NodeTypeSubWorkflow }
func (c *MarkerConfig) NodeType() NodeType       { return c.Kind }

func (*HTTPRequestConfig) nodeConfig()    {}
func (*ConditionConfig) nodeConfig()      {}
func (*MultiConditionConfig) nodeConfig() {}
func (*SwitchConfig) nodeConfig()         {}
func (*TransformConfig) nodeConfig()      {}
func (*MessageReplyConfig) nodeConfig()   {}
func (*MessagePushConfig) nodeConfig()    {}
func (*MessageCardsConfig) nodeConfig()   {}
func (*SubWorkflowConfig) nodeConfig()    {}
func (*MarkerConfig) nodeConfig()         {}

// ParseConfig decodes the raw config into the typed variant for the node's type.
// Unknown types return an UNKNOWN_NODE_TYPE error.
func (n *Node) ParseConfig() (NodeConfig, error) {
	var cfg NodeConfig
	switch n.Type {
	case NodeTypeHTTPRequest:
		cfg = &HTTPRequestConfig{}
	case NodeTypeCondition:
		cfg = &ConditionConfig{}
	case NodeTypeMultiCondition:
		cfg = &MultiConditionConfig{}
	case NodeTypeSwitch:
		cfg = &SwitchConfig{}
	case NodeTypeTransform:
		cfg = &TransformConfig{}
	case NodeTypeMessageReply:
		cfg = &MessageReplyConfig{}
	case NodeTypeMessagePush:
		cfg = &MessagePushConfig{}
	case NodeTypeMessageCards:
		cfg = &MessageCardsConfig{}
	case NodeTypeSubWorkflow:
		cfg = &SubWorkflowConfig{}
	case NodeTypeTrigger, NodeTypeEntry, NodeTypeNotification:
		cfg = &MarkerConfig{Kind: n.Type}
	default:
		return nil, NewErrorf(ErrCodeUnknownNodeType, "unknown node type: %s", n.Type).WithNode(n.ID)
	}

	if len(n.Config) > 0 && string(n.Config) != "null" {
		if err := json.Unmarshal(n.Config, cfg); err != nil {
			return nil, NewErrorf(ErrCodeConfig, "invalid %s config: %s", n.Type, err.Error()).
				WithNode(n.ID).WithCause(err)
		}
	}
	return cfg, nil
}

// MustConfig marshals v into a raw config, panicking on failure. Intended for
// building workflows in code and tests.
func MustConfig(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("schema: marshal node config: %v", err))
	}
	return b
}
