package types

// Agent is a row of an agent table.
type Agent struct {
	ID           string `db:"id" json:"id" yaml:"id" toml:"id"`
	Name         string `db:"name" json:"name" yaml:"name" toml:"name"`
	Description  string `db:"description" json:"description" yaml:"description" toml:"description"`
	SystemPrompt string `db:"system_prompt" json:"systemPrompt" yaml:"systemPrompt" toml:"systemPrompt"`
	Model        string `db:"llm_model_id" json:"model" yaml:"model" toml:"model"`
	IsDefault    bool   `db:"is_default" json:"isDefault" yaml:"isDefault" toml:"isDefault"`

	// Scope is not stored; it is implied by the table the row came from.
	Scope Scope `db:"-" json:"scope" yaml:"scope" toml:"scope"`
}

// Tool is a row of the global tool table.
type Tool struct {
	ID              string `db:"id" json:"id" yaml:"id" toml:"id"`
	Name            string `db:"tool_name" json:"toolName" yaml:"toolName" toml:"toolName"`
	Description     string `db:"description_for_llm" json:"descriptionForLlm" yaml:"descriptionForLlm" toml:"descriptionForLlm"`
	JSONSchema      string `db:"json_schema" json:"jsonSchema" yaml:"jsonSchema" toml:"jsonSchema"`
	Type            string `db:"tool_type" json:"toolType" yaml:"toolType" toml:"toolType"`
	InternalAPIPath string `db:"internal_api_path" json:"internalApiPath,omitempty" yaml:"internalApiPath,omitempty" toml:"internalApiPath,omitempty"`
	IsSystemTool    bool   `db:"is_system_tool" json:"isSystemTool" yaml:"isSystemTool" toml:"isSystemTool"`
}

// Workflow is a row of a workflow table.
type Workflow struct {
	ID               string `db:"id" json:"id" yaml:"id" toml:"id"`
	Name             string `db:"name" json:"name" yaml:"name" toml:"name"`
	Description      string `db:"description" json:"description" yaml:"description" toml:"description"`
	IsConversational bool   `db:"is_conversational" json:"isConversational" yaml:"isConversational" toml:"isConversational"`
	EntrypointNodeID string `db:"entrypoint_node_id" json:"entrypointNodeId,omitempty" yaml:"entrypointNodeId,omitempty" toml:"entrypointNodeId,omitempty"`

	Scope Scope `db:"-" json:"scope" yaml:"scope" toml:"scope"`
}

// Node types the runtime understands. The set is open; stored values are
// not restricted to these.
const (
	NodeTypeRouter = "ROUTER"
	NodeTypeAgent  = "AGENT"
)

// ConditionAlways is the edge condition that is always taken.
const ConditionAlways = "ALWAYS"

// Node is a row of a workflow node table. AgentID is empty when the node
// does not invoke an agent.
type Node struct {
	ID         string `db:"id" json:"id" yaml:"id" toml:"id"`
	WorkflowID string `db:"workflow_id" json:"workflowId" yaml:"workflowId" toml:"workflowId"`
	AgentID    string `db:"agent_id" json:"agentId,omitempty" yaml:"agentId,omitempty" toml:"agentId,omitempty"`
	NodeType   string `db:"node_type" json:"nodeType" yaml:"nodeType" toml:"nodeType"`
	NodeName   string `db:"node_name" json:"nodeName" yaml:"nodeName" toml:"nodeName"`
}

// Edge is a row of a workflow edge table. TargetNodeID is empty for
// terminal edges.
type Edge struct {
	ID             string `db:"id" json:"id" yaml:"id" toml:"id"`
	WorkflowID     string `db:"workflow_id" json:"workflowId" yaml:"workflowId" toml:"workflowId"`
	SourceNodeID   string `db:"source_node_id" json:"sourceNodeId" yaml:"sourceNodeId" toml:"sourceNodeId"`
	TargetNodeID   string `db:"target_node_id" json:"targetNodeId,omitempty" yaml:"targetNodeId,omitempty" toml:"targetNodeId,omitempty"`
	ConditionType  string `db:"condition_type" json:"conditionType" yaml:"conditionType" toml:"conditionType"`
	ConditionValue string `db:"condition_value" json:"conditionValue,omitempty" yaml:"conditionValue,omitempty" toml:"conditionValue,omitempty"`
}

// AgentRef is an agent located in a specific scope. Returned by cross-scope
// queries.
type AgentRef struct {
	ID    string `db:"id" json:"id" yaml:"id" toml:"id"`
	Name  string `db:"name" json:"name" yaml:"name" toml:"name"`
	Scope Scope  `db:"scope" json:"scope" yaml:"scope" toml:"scope"`
}
