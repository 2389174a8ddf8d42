package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// Batch syncs every definition of the definition tree to the database.
type Batch struct {
	cfg       Config
	agents    AgentSyncer
	workflows WorkflowSyncer
	log       *zap.Logger
}

// SyncAllResult is the outcome of SyncAll.
type SyncAllResult struct {
	Agents    *BatchResult `json:"agents"`
	Workflows *BatchResult `json:"workflows"`
}

// NewBatch creates a Batch.
func NewBatch(cfg Config) *Batch {
	cfg = cfg.withDefaults()
	return &Batch{
		cfg:       cfg,
		agents:    NewAgentSyncer(cfg),
		workflows: NewWorkflowSyncer(cfg),
		log:       cfg.Logger.Named("batch"),
	}
}

// SyncAllAgents syncs every agent definition of the given scopes. A
// failing agent is recorded and the batch continues. The returned error is
// set only when a scope directory cannot be read or ctx is cancelled.
func (b *Batch) SyncAllAgents(ctx context.Context, scopes []types.Scope) (*BatchResult, error) {
	return b.run(ctx, scopes, types.KindAgent, func(name string, scope types.Scope) (string, error) {
		res, err := b.agents.SyncToDB(ctx, name, scope)
		if err != nil {
			return "", err
		}
		return res.ID, nil
	})
}

// SyncAllWorkflows syncs every workflow definition of the given scopes.
// Each workflow commits on its own.
func (b *Batch) SyncAllWorkflows(ctx context.Context, scopes []types.Scope) (*BatchResult, error) {
	return b.run(ctx, scopes, types.KindWorkflow, func(id string, scope types.Scope) (string, error) {
		return b.workflows.SyncToDB(ctx, id, scope)
	})
}

// SyncAll syncs agents, then workflows, so workflow nodes can resolve
// agents synced in the same run.
func (b *Batch) SyncAll(ctx context.Context, scopes []types.Scope) (*SyncAllResult, error) {
	agents, err := b.SyncAllAgents(ctx, scopes)
	if err != nil {
		return &SyncAllResult{Agents: agents}, err
	}
	workflows, err := b.SyncAllWorkflows(ctx, scopes)
	return &SyncAllResult{Agents: agents, Workflows: workflows}, err
}

func (b *Batch) run(ctx context.Context, scopes []types.Scope, kind types.ResourceKind, sync func(name string, scope types.Scope) (string, error)) (*BatchResult, error) {
	if len(scopes) == 0 {
		scopes = types.AllScopes
	}
	result := &BatchResult{Success: []string{}, Errors: []string{}}

	for _, scope := range scopes {
		names, err := b.cfg.Layout.List(scope, kind)
		if err != nil {
			return result, err
		}
		if len(names) == 0 {
			b.log.Debug("no definitions", zap.Stringer("scope", scope), zap.Stringer("kind", kind))
			continue
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			id, err := sync(name, scope)
			if err != nil {
				b.log.Warn("sync failed", zap.Stringer("kind", kind), zap.Stringer("scope", scope),
					zap.String("name", name), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("%s:%s - %v", scope, name, err))
				continue
			}
			result.Success = append(result.Success, fmt.Sprintf("%s:%s (ID: %s)", scope, name, id))
		}
	}

	b.log.Info("batch sync complete", zap.Stringer("kind", kind),
		zap.Int("synced", len(result.Success)), zap.Int("failed", len(result.Errors)))
	return result, nil
}
