package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// DefaultToolType is stored for tools that do not declare a type.
const DefaultToolType = "custom"

// toolNamespace seeds the ids of tools declared without a toolId, so the
// same function name always maps to the same tool.
var toolNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ccsync.dev/system_tool"))

// ToolIDForName returns the id given to a tool declared without a toolId.
func ToolIDForName(name string) string {
	return uuid.NewSHA1(toolNamespace, []byte(name)).String()
}

// toolSyncer implements the ToolSyncer interface.
type toolSyncer struct {
	db  *store.DB
	log *zap.Logger
}

// NewToolSyncer creates a new ToolSyncer.
func NewToolSyncer(cfg Config) ToolSyncer {
	cfg = cfg.withDefaults()
	return &toolSyncer{
		db:  cfg.DB,
		log: cfg.Logger.Named("tool"),
	}
}

// SyncAgentTools implements ToolSyncer.SyncAgentTools.
func (s *toolSyncer) SyncAgentTools(ctx context.Context, agentID string, declared []definition.ToolEntry, scope types.Scope) (*ToolSyncResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	current, err := s.db.AgentToolIDs(ctx, scope, agentID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	result := &ToolSyncResult{Added: []string{}, Removed: []string{}}

	// Upsert every valid declared tool. want keeps declaration order.
	var want []string
	wanted := make(map[string]bool, len(declared))
	for i := range declared {
		entry := declared[i]
		label := entry.Function.Name
		if label == "" {
			label = fmt.Sprintf("tools[%d]", i)
		}

		if err := entry.Validate(); err != nil {
			s.skip(result, agentID, label, err, entry.ToolID, wanted)
			continue
		}

		tool, err := s.toolFromEntry(ctx, &entry)
		if err != nil {
			s.skip(result, agentID, label, err, entry.ToolID, wanted)
			continue
		}
		if err := s.db.UpsertTool(ctx, tool); err != nil {
			s.skip(result, agentID, label, err, tool.ID, wanted)
			continue
		}

		if !wanted[tool.ID] {
			wanted[tool.ID] = true
			want = append(want, tool.ID)
		}
	}

	for _, id := range current {
		if wanted[id] {
			continue
		}
		if _, err := s.db.RemoveAgentTool(ctx, scope, agentID, id); err != nil {
			s.log.Warn("failed to remove tool association",
				zap.String("agent", agentID), zap.String("tool", id), zap.Error(err))
			result.Failed = append(result.Failed, fmt.Sprintf("remove %s: %v", id, err))
			continue
		}
		result.Removed = append(result.Removed, id)
	}

	for _, id := range want {
		if have[id] {
			continue
		}
		if err := s.db.AddAgentTool(ctx, scope, agentID, id); err != nil {
			s.log.Warn("failed to add tool association",
				zap.String("agent", agentID), zap.String("tool", id), zap.Error(err))
			result.Failed = append(result.Failed, fmt.Sprintf("add %s: %v", id, err))
			continue
		}
		result.Added = append(result.Added, id)
	}

	s.log.Info("synced agent tools",
		zap.String("agent", agentID), zap.Stringer("scope", scope),
		zap.Strings("added", result.Added), zap.Strings("removed", result.Removed),
		zap.Int("skipped", len(result.Skipped)), zap.Int("failed", len(result.Failed)))
	return result, nil
}

// skip records a declared entry that was not stored. A skipped entry with a
// known id keeps any existing association: it is marked wanted but never
// queued for adding.
func (s *toolSyncer) skip(result *ToolSyncResult, agentID, label string, err error, toolID string, wanted map[string]bool) {
	s.log.Warn("skipping declared tool", zap.String("agent", agentID), zap.String("tool", label), zap.Error(err))
	result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", label, err))
	if toolID != "" {
		wanted[toolID] = true
	}
}

// toolFromEntry builds the tool row for a declared entry. The id is the
// declared toolId, else the id of a stored tool with the same name, else
// derived from the name.
func (s *toolSyncer) toolFromEntry(ctx context.Context, entry *definition.ToolEntry) (*types.Tool, error) {
	id := entry.ToolID
	if id == "" {
		existing, err := s.db.GetToolByName(ctx, entry.Function.Name)
		switch {
		case err == nil:
			id = existing.ID
		case errors.Is(err, sql.ErrNoRows):
			id = ToolIDForName(entry.Function.Name)
		default:
			return nil, err
		}
	}

	blob, err := entry.SchemaBlob()
	if err != nil {
		return nil, err
	}

	toolType := entry.Type
	if toolType == "" {
		toolType = DefaultToolType
	}

	return &types.Tool{
		ID:              id,
		Name:            entry.Function.Name,
		Description:     entry.Function.Description,
		JSONSchema:      blob,
		Type:            toolType,
		InternalAPIPath: entry.InternalAPIPath,
		IsSystemTool:    true,
	}, nil
}

// Create implements ToolSyncer.Create.
func (s *toolSyncer) Create(ctx context.Context, spec ToolSpec) (*types.Tool, error) {
	entry := definition.ToolEntry{
		Type: spec.Type,
		Function: definition.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		},
		InternalAPIPath: spec.InternalAPIPath,
	}
	if entry.Type == "" {
		entry.Type = DefaultToolType
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: tool %q: %v", ErrInvalidDefinition, spec.Name, err)
	}

	if _, err := s.db.GetToolByName(ctx, spec.Name); err == nil {
		return nil, fmt.Errorf("tool %s: %w", spec.Name, ErrAlreadyExists)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id := ToolIDForName(spec.Name)
	taken, err := s.db.ToolExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if taken {
		// The derived id belongs to a tool that has since been renamed.
		id = uuid.NewString()
	}
	entry.ToolID = id

	tool, err := s.toolFromEntry(ctx, &entry)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpsertTool(ctx, tool); err != nil {
		return nil, err
	}

	s.log.Info("created tool", zap.String("name", tool.Name), zap.String("id", tool.ID))
	return tool, nil
}

// Update implements ToolSyncer.Update.
func (s *toolSyncer) Update(ctx context.Context, id string, patch store.ToolPatch) (bool, error) {
	updated, err := s.db.UpdateTool(ctx, id, patch)
	if err != nil {
		return false, err
	}
	if updated {
		s.log.Info("updated tool", zap.String("id", id))
	}
	return updated, nil
}

// Get implements ToolSyncer.Get.
func (s *toolSyncer) Get(ctx context.Context, id string) (*types.Tool, error) {
	tool, err := s.db.GetTool(ctx, id)
	if err != nil {
		return nil, notFound(err, "tool", id, "")
	}
	return tool, nil
}

// List implements ToolSyncer.List.
func (s *toolSyncer) List(ctx context.Context) ([]types.Tool, error) {
	return s.db.ListTools(ctx)
}

// FindOrphaned implements ToolSyncer.FindOrphaned.
func (s *toolSyncer) FindOrphaned(ctx context.Context) ([]types.Tool, error) {
	return s.db.OrphanedTools(ctx)
}

// Delete implements ToolSyncer.Delete.
func (s *toolSyncer) Delete(ctx context.Context, id string, force bool) (bool, error) {
	var deleted bool
	err := s.db.WithTx(ctx, func(q *store.Queries) error {
		count, err := q.CountToolAssociations(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			if !force {
				return &AssociationExistsError{ToolID: id, Count: count}
			}
			removed, err := q.DeleteToolAssociations(ctx, id)
			if err != nil {
				return err
			}
			s.log.Info("removed tool associations", zap.String("tool", id), zap.Int64("count", removed))
		}

		deleted, err = q.DeleteTool(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.log.Info("deleted tool", zap.String("id", id), zap.Bool("force", force))
	}
	return deleted, nil
}

// CleanupOrphaned implements ToolSyncer.CleanupOrphaned.
func (s *toolSyncer) CleanupOrphaned(ctx context.Context, force bool) ([]types.Tool, int, error) {
	orphans, err := s.FindOrphaned(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !force || len(orphans) == 0 {
		return orphans, 0, nil
	}

	deleted := 0
	var errs []error
	for _, tool := range orphans {
		// Not forced: a tool associated since the scan is kept.
		ok, err := s.Delete(ctx, tool.ID, false)
		if err != nil {
			s.log.Warn("failed to delete orphaned tool", zap.String("id", tool.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("tool %s: %w", tool.ID, err))
			continue
		}
		if ok {
			deleted++
		}
	}
	return orphans, deleted, errors.Join(errs...)
}

// AgentTools implements ToolSyncer.AgentTools.
func (s *toolSyncer) AgentTools(ctx context.Context, agentID string, scope types.Scope) ([]types.Tool, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.db.AgentTools(ctx, scope, agentID)
}
