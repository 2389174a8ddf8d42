package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// agentSyncer implements the AgentSyncer interface.
type agentSyncer struct {
	cfg   Config
	tools ToolSyncer
	log   *zap.Logger
}

// NewAgentSyncer creates a new AgentSyncer.
func NewAgentSyncer(cfg Config) AgentSyncer {
	cfg = cfg.withDefaults()
	return &agentSyncer{
		cfg:   cfg,
		tools: NewToolSyncer(cfg),
		log:   cfg.Logger.Named("agent"),
	}
}

// Create implements AgentSyncer.Create.
func (s *agentSyncer) Create(ctx context.Context, name string, scope types.Scope, description, prompt string) (string, error) {
	if err := checkScope(scope); err != nil {
		return "", err
	}
	if _, err := s.cfg.Layout.AgentDir(scope, name); err != nil {
		return "", err
	}
	if prompt == "" {
		prompt = fmt.Sprintf("You are %s, a helpful AI assistant.", name)
	}

	agent := &types.Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		SystemPrompt: prompt,
		Model:        s.cfg.DefaultModel,
		Scope:        scope,
	}
	if err := s.cfg.DB.InsertAgent(ctx, scope, agent); err != nil {
		if store.IsConstraint(err) {
			return "", fmt.Errorf("agent %s in scope %s: %w", name, scope, ErrAlreadyExists)
		}
		return "", err
	}

	def := &definition.AgentDefinition{
		Name:   name,
		Scope:  scope,
		Prompt: prompt,
		Schema: definition.AgentSchema{
			AgentID:     agent.ID,
			Description: description,
		},
	}
	def.Schema.SetTools(nil)
	if err := s.cfg.Layout.WriteAgent(def); err != nil {
		return "", fmt.Errorf("agent %s stored but definition not written: %w", name, err)
	}

	s.log.Info("created agent", zap.String("name", name), zap.Stringer("scope", scope), zap.String("id", agent.ID))
	return agent.ID, nil
}

// SyncToDB implements AgentSyncer.SyncToDB.
func (s *agentSyncer) SyncToDB(ctx context.Context, name string, scope types.Scope) (*AgentSyncResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	def, err := s.cfg.Layout.ReadAgent(scope, name)
	if err != nil {
		return nil, notFound(err, "agent definition", name, scope)
	}

	agent, err := s.agentFromDefinition(ctx, def)
	if err != nil {
		return nil, err
	}

	// The agent row commits on its own so the associations below can
	// reference it.
	if err := s.cfg.DB.UpsertAgent(ctx, scope, agent); err != nil {
		return nil, fmt.Errorf("failed to sync agent %s: %w", name, err)
	}
	s.log.Info("synced agent", zap.String("name", name), zap.Stringer("scope", scope), zap.String("id", agent.ID))

	result := &AgentSyncResult{ID: agent.ID}
	if !def.Schema.DeclaresTools() {
		return result, nil
	}

	tools, err := s.tools.SyncAgentTools(ctx, agent.ID, def.Schema.Tools, scope)
	if err != nil {
		return result, fmt.Errorf("agent %s synced but tools failed: %w", name, err)
	}
	result.Tools = tools
	return result, nil
}

// agentFromDefinition builds the row to store. The id comes from the
// schema, else from the stored agent with the same name, else it is new.
// A schema without a model keeps the stored one.
func (s *agentSyncer) agentFromDefinition(ctx context.Context, def *definition.AgentDefinition) (*types.Agent, error) {
	var existing *types.Agent
	var err error
	if def.Schema.AgentID != "" {
		existing, err = s.cfg.DB.GetAgent(ctx, def.Scope, def.Schema.AgentID)
	} else {
		existing, err = s.cfg.DB.GetAgentByName(ctx, def.Scope, def.Name)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	agent := &types.Agent{
		ID:           def.Schema.AgentID,
		Name:         def.Name,
		Description:  def.Schema.Description,
		SystemPrompt: def.Prompt,
		Model:        def.Schema.Model,
		IsDefault:    def.Schema.IsDefault,
		Scope:        def.Scope,
	}
	if agent.ID == "" {
		if existing != nil {
			agent.ID = existing.ID
		} else {
			agent.ID = uuid.NewString()
		}
	}
	if agent.Model == "" {
		if existing != nil && existing.Model != "" {
			agent.Model = existing.Model
		} else {
			agent.Model = s.cfg.DefaultModel
		}
	}
	return agent, nil
}

// SyncFromDB implements AgentSyncer.SyncFromDB.
func (s *agentSyncer) SyncFromDB(ctx context.Context, name string, scope types.Scope) (string, error) {
	if err := checkScope(scope); err != nil {
		return "", err
	}

	agent, err := s.cfg.DB.GetAgentByName(ctx, scope, name)
	if err != nil {
		return "", notFound(err, "agent", name, scope)
	}

	tools, err := s.cfg.DB.AgentTools(ctx, scope, agent.ID)
	if err != nil {
		return "", err
	}

	// Start from the current schema, if any, so keys the database does not
	// know about survive.
	def, err := s.cfg.Layout.ReadAgent(scope, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("replacing unreadable agent definition", zap.String("name", name), zap.Error(err))
		}
		def = &definition.AgentDefinition{Name: name, Scope: scope}
	}

	def.Prompt = agent.SystemPrompt
	def.Schema.AgentID = agent.ID
	def.Schema.Description = agent.Description
	def.Schema.Model = agent.Model
	def.Schema.IsDefault = agent.IsDefault

	entries := make([]definition.ToolEntry, 0, len(tools))
	for _, tool := range tools {
		entries = append(entries, definition.ToolEntryFromRow(tool))
	}
	def.Schema.SetTools(entries)

	if err := s.cfg.Layout.WriteAgent(def); err != nil {
		return "", err
	}

	s.log.Info("materialized agent", zap.String("name", name), zap.Stringer("scope", scope), zap.Int("tools", len(entries)))
	return agent.ID, nil
}

// Delete implements AgentSyncer.Delete.
func (s *agentSyncer) Delete(ctx context.Context, name string, scope types.Scope) (bool, error) {
	if err := checkScope(scope); err != nil {
		return false, err
	}

	agent, err := s.cfg.DB.GetAgentByName(ctx, scope, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if wfs, err := s.cfg.DB.AgentWorkflows(ctx, agent.ID); err != nil {
		s.log.Warn("could not check workflows using agent", zap.String("name", name), zap.Error(err))
	} else if len(wfs) > 0 {
		ids := make([]string, 0, len(wfs))
		for _, wf := range wfs {
			ids = append(ids, fmt.Sprintf("%s:%s", wf.Scope, wf.ID))
		}
		s.log.Warn("deleting agent still used by workflows",
			zap.String("name", name), zap.String("id", agent.ID), zap.Strings("workflows", ids))
	}

	deleted, err := s.cfg.DB.DeleteAgent(ctx, scope, agent.ID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := s.cfg.Layout.Remove(scope, types.KindAgent, name); err != nil {
		return true, fmt.Errorf("agent %s deleted but definition not removed: %w", name, err)
	}

	s.log.Info("deleted agent", zap.String("name", name), zap.Stringer("scope", scope))
	return true, nil
}

// List implements AgentSyncer.List.
func (s *agentSyncer) List(ctx context.Context, scope types.Scope) ([]types.Agent, error) {
	return s.cfg.DB.ListAgents(ctx, types.ScopesOrAll(scope)...)
}

// Tools implements AgentSyncer.Tools.
func (s *agentSyncer) Tools(ctx context.Context, name string, scope types.Scope) ([]types.Tool, error) {
	agent, err := s.cfg.DB.GetAgentByName(ctx, scope, name)
	if err != nil {
		return nil, notFound(err, "agent", name, scope)
	}
	return s.tools.AgentTools(ctx, agent.ID, scope)
}
