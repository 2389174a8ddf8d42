// Package types defines the core domain types shared by the definition
// store, the storage layer and the reconcilers.
package types

import (
	"fmt"
	"strings"
)

// Scope partitions agents and workflows into independent namespaces.
type Scope string

const (
	// ScopeSystem holds agents and workflows the product ships with.
	ScopeSystem Scope = "SYSTEM"
	// ScopeCommonBackground holds shared background agents and workflows.
	ScopeCommonBackground Scope = "COMMON_BACKGROUND"
)

// AllScopes lists every scope in resolution order. Cross-scope lookups
// search scopes in this order.
var AllScopes = []Scope{ScopeSystem, ScopeCommonBackground}

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeSystem, ScopeCommonBackground:
		return true
	}
	return false
}

// String returns the scope's canonical upper-case name.
func (s Scope) String() string {
	return string(s)
}

// ParseScope converts user input (any case) to a Scope.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid scope: %q (must be one of %s, %s)", s, ScopeSystem, ScopeCommonBackground)
	}
	return scope, nil
}

// ScopesOrAll returns the single scope when set, otherwise every scope.
func ScopesOrAll(s Scope) []Scope {
	if s == "" {
		return AllScopes
	}
	return []Scope{s}
}

// ResourceKind identifies a scope-partitioned resource.
type ResourceKind int

const (
	KindAgent ResourceKind = iota
	KindAgentTool
	KindWorkflow
	KindWorkflowNode
	KindWorkflowEdge
)

// String returns a human-readable representation of the kind.
func (k ResourceKind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindAgentTool:
		return "agent_tool"
	case KindWorkflow:
		return "workflow"
	case KindWorkflowNode:
		return "workflow_node"
	case KindWorkflowEdge:
		return "workflow_edge"
	default:
		return "unknown"
	}
}
