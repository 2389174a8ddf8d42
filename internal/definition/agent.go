package definition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// AgentDefinition is an agent as stored on disk: the prompt file plus the
// schema file, addressed by directory name.
type AgentDefinition struct {
	Name   string
	Scope  types.Scope
	Prompt string
	Schema AgentSchema
}

// AgentSchema is the content of jsonSchema.json. Keys not modeled here are
// kept and written back unchanged.
type AgentSchema struct {
	AgentID     string      `json:"agentId,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description"`
	Scope       types.Scope `json:"scope,omitempty"`
	Model       string      `json:"model,omitempty"`
	IsDefault   bool        `json:"isDefault,omitempty"`
	Tools       []ToolEntry `json:"tools"`

	hasTools bool
	extra    map[string]json.RawMessage
}

// ToolEntry is one declared tool in an agent schema.
type ToolEntry struct {
	ToolID          string       `json:"toolId,omitempty"`
	Type            string       `json:"type,omitempty"`
	Function        ToolFunction `json:"function"`
	InternalAPIPath string       `json:"internalApiPath,omitempty"`

	raw json.RawMessage
}

// ToolFunction is the model-facing description of a tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

var agentSchemaKeys = map[string]bool{
	"agentId": true, "name": true, "description": true, "scope": true,
	"model": true, "isDefault": true, "tools": true,
}

type agentSchemaAlias AgentSchema

// UnmarshalJSON implements json.Unmarshaler.
func (s *AgentSchema) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var alias agentSchemaAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = AgentSchema(alias)

	_, s.hasTools = fields["tools"]
	for key, value := range fields {
		if agentSchemaKeys[key] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[key] = value
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Modeled keys come first in
// declaration order, preserved unknown keys follow in sorted order.
func (s AgentSchema) MarshalJSON() ([]byte, error) {
	alias := agentSchemaAlias(s)
	if alias.Tools == nil {
		alias.Tools = []ToolEntry{}
	}
	data, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return data, nil
	}

	keys := make([]string, 0, len(s.extra))
	for key := range s.extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, key := range keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(s.extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DeclaresTools reports whether the schema carries a tools key. A schema
// without one leaves the agent's tool associations untouched.
func (s *AgentSchema) DeclaresTools() bool {
	return s.hasTools
}

// SetTools replaces the declared tools.
func (s *AgentSchema) SetTools(tools []ToolEntry) {
	s.Tools = tools
	s.hasTools = true
}

type toolEntryAlias ToolEntry

// UnmarshalJSON implements json.Unmarshaler and keeps the raw bytes, which
// are stored as the tool's JSON schema blob.
func (t *ToolEntry) UnmarshalJSON(data []byte) error {
	var alias toolEntryAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = ToolEntry(alias)
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Validate checks the fields required to store the tool.
func (t *ToolEntry) Validate() error {
	if strings.TrimSpace(t.Function.Name) == "" {
		return fmt.Errorf("function.name is required")
	}
	params := bytes.TrimSpace(t.Function.Parameters)
	if len(params) > 0 && !bytes.Equal(params, []byte("null")) {
		if params[0] != '{' {
			return fmt.Errorf("function.parameters must be a JSON object")
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(params, &obj); err != nil {
			return fmt.Errorf("function.parameters is malformed: %w", err)
		}
	}
	return nil
}

// SchemaBlob returns the compact JSON stored in the tool row. It is the
// entry exactly as declared when it was read from disk.
func (t *ToolEntry) SchemaBlob() (string, error) {
	data := t.raw
	if len(data) == 0 {
		var err error
		data, err = json.Marshal(toolEntryAlias(*t))
		if err != nil {
			return "", fmt.Errorf("failed to marshal tool %s: %w", t.Function.Name, err)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("failed to compact tool %s: %w", t.Function.Name, err)
	}
	return buf.String(), nil
}

// ToolEntryFromRow rebuilds a declared tool from its stored row. Parameters
// come from the stored blob when it decodes; row columns win for the rest.
func ToolEntryFromRow(tool types.Tool) ToolEntry {
	var entry ToolEntry
	if tool.JSONSchema != "" {
		_ = json.Unmarshal([]byte(tool.JSONSchema), &entry)
	}
	entry.raw = nil
	entry.ToolID = tool.ID
	entry.Type = tool.Type
	entry.InternalAPIPath = tool.InternalAPIPath
	entry.Function.Name = tool.Name
	entry.Function.Description = tool.Description
	return entry
}

// ReadAgent reads the agent definition directory <scope>/Agents/<name>.
// A missing directory yields an error wrapping fs.ErrNotExist.
func (l Layout) ReadAgent(scope types.Scope, name string) (*AgentDefinition, error) {
	dir, err := l.AgentDir(scope, name)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("agent directory not found: %s: %w", dir, fs.ErrNotExist)
	}

	prompt, err := os.ReadFile(filepath.Join(dir, PromptFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt for agent %s: %w", name, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SchemaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema for agent %s: %w", name, err)
	}

	var schema AgentSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse %s for agent %s: %w", SchemaFile, name, err)
	}

	return &AgentDefinition{
		Name:   name,
		Scope:  scope,
		Prompt: strings.TrimSpace(string(prompt)),
		Schema: schema,
	}, nil
}

// WriteAgent writes (overwriting) both files of an agent definition.
func (l Layout) WriteAgent(def *AgentDefinition) error {
	dir, err := l.AgentDir(def.Scope, def.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create agent directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, PromptFile), []byte(def.Prompt), 0644); err != nil {
		return fmt.Errorf("failed to write prompt for agent %s: %w", def.Name, err)
	}

	schema := def.Schema
	schema.Name = def.Name
	schema.Scope = def.Scope
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema for agent %s: %w", def.Name, err)
	}
	return writeJSONFile(filepath.Join(dir, SchemaFile), data)
}
