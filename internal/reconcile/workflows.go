package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// workflowSyncer implements the WorkflowSyncer interface.
type workflowSyncer struct {
	cfg Config
	log *zap.Logger
}

// NewWorkflowSyncer creates a new WorkflowSyncer.
func NewWorkflowSyncer(cfg Config) WorkflowSyncer {
	cfg = cfg.withDefaults()
	return &workflowSyncer{
		cfg: cfg,
		log: cfg.Logger.Named("workflow"),
	}
}

// pendingEntrypoint is the entrypoint of a workflow whose shell has been
// stored with the entrypoint cleared. It is written back by finalize once
// the node it names exists.
type pendingEntrypoint struct {
	workflowID string
	nodeID     string
}

func (p pendingEntrypoint) finalize(ctx context.Context, q *store.Queries, scope types.Scope) error {
	if p.nodeID == "" {
		return nil
	}
	return q.SetWorkflowEntrypoint(ctx, scope, p.workflowID, p.nodeID)
}

// SyncToDB implements WorkflowSyncer.SyncToDB.
func (s *workflowSyncer) SyncToDB(ctx context.Context, id string, scope types.Scope) (string, error) {
	if err := checkScope(scope); err != nil {
		return "", err
	}

	def, err := s.cfg.Layout.ReadWorkflow(scope, id)
	if err != nil {
		return "", notFound(err, "workflow definition", id, scope)
	}
	if def.EntrypointNodeID != "" && !def.HasNode(def.EntrypointNodeID) {
		return "", fmt.Errorf("%w: workflow %s: entrypoint node %s is not declared", ErrInvalidDefinition, id, def.EntrypointNodeID)
	}

	err = s.cfg.DB.WithTx(ctx, func(q *store.Queries) error {
		pending, err := s.upsertShell(ctx, q, scope, def)
		if err != nil {
			return err
		}
		if err := s.replaceNodes(ctx, q, scope, def); err != nil {
			return err
		}
		if err := s.replaceEdges(ctx, q, scope, def); err != nil {
			return err
		}
		return pending.finalize(ctx, q, scope)
	})
	if err != nil {
		return "", fmt.Errorf("failed to sync workflow %s: %w", id, err)
	}

	s.log.Info("synced workflow",
		zap.String("id", id), zap.Stringer("scope", scope),
		zap.Int("nodes", len(def.Nodes)), zap.Int("edges", len(def.Edges)))
	return def.ID, nil
}

func (s *workflowSyncer) upsertShell(ctx context.Context, q *store.Queries, scope types.Scope, def *definition.WorkflowDefinition) (pendingEntrypoint, error) {
	wf := &types.Workflow{
		ID:               def.ID,
		Name:             def.Name,
		Description:      def.Description,
		IsConversational: def.IsConversational,
	}
	if err := q.UpsertWorkflowShell(ctx, scope, wf); err != nil {
		return pendingEntrypoint{}, err
	}
	return pendingEntrypoint{workflowID: def.ID, nodeID: def.EntrypointNodeID}, nil
}

func (s *workflowSyncer) replaceNodes(ctx context.Context, q *store.Queries, scope types.Scope, def *definition.WorkflowDefinition) error {
	if err := q.DeleteWorkflowNodes(ctx, scope, def.ID); err != nil {
		return err
	}
	for _, n := range def.Nodes {
		if n.AgentID != "" {
			if _, err := resolveAgent(ctx, q, n.AgentID, n.ID); err != nil {
				return err
			}
		}
		node := &types.Node{
			ID:         n.ID,
			WorkflowID: def.ID,
			AgentID:    n.AgentID,
			NodeType:   n.NodeType,
			NodeName:   n.NodeName,
		}
		if err := q.InsertNode(ctx, scope, node); err != nil {
			return err
		}
	}
	return nil
}

func (s *workflowSyncer) replaceEdges(ctx context.Context, q *store.Queries, scope types.Scope, def *definition.WorkflowDefinition) error {
	if err := q.DeleteWorkflowEdges(ctx, scope, def.ID); err != nil {
		return err
	}
	for _, e := range def.Edges {
		edge := &types.Edge{
			ID:             e.ID,
			WorkflowID:     def.ID,
			SourceNodeID:   e.SourceNodeID,
			TargetNodeID:   e.TargetNodeID,
			ConditionType:  e.ConditionType,
			ConditionValue: e.ConditionValue,
		}
		if err := q.InsertEdge(ctx, scope, edge); err != nil {
			return err
		}
	}
	return nil
}

// SyncFromDB implements WorkflowSyncer.SyncFromDB.
func (s *workflowSyncer) SyncFromDB(ctx context.Context, id string, scope types.Scope) (string, error) {
	if err := checkScope(scope); err != nil {
		return "", err
	}

	wf, err := s.cfg.DB.GetWorkflow(ctx, scope, id)
	if err != nil {
		return "", notFound(err, "workflow", id, scope)
	}
	nodes, err := s.cfg.DB.WorkflowNodes(ctx, scope, id)
	if err != nil {
		return "", err
	}
	edges, err := s.cfg.DB.WorkflowEdges(ctx, scope, id)
	if err != nil {
		return "", err
	}

	def := &definition.WorkflowDefinition{
		ID:               wf.ID,
		Name:             wf.Name,
		Description:      wf.Description,
		Scope:            scope,
		IsConversational: wf.IsConversational,
		EntrypointNodeID: wf.EntrypointNodeID,
		Nodes:            make([]definition.NodeDef, 0, len(nodes)),
		Edges:            make([]definition.EdgeDef, 0, len(edges)),
	}
	for _, n := range nodes {
		def.Nodes = append(def.Nodes, definition.NodeDef{
			ID:         n.ID,
			WorkflowID: n.WorkflowID,
			NodeType:   n.NodeType,
			NodeName:   n.NodeName,
			AgentID:    n.AgentID,
		})
	}
	for _, e := range edges {
		def.Edges = append(def.Edges, definition.EdgeDef{
			ID:             e.ID,
			WorkflowID:     e.WorkflowID,
			SourceNodeID:   e.SourceNodeID,
			TargetNodeID:   e.TargetNodeID,
			ConditionType:  e.ConditionType,
			ConditionValue: e.ConditionValue,
		})
	}

	if err := s.cfg.Layout.WriteWorkflow(def); err != nil {
		return "", err
	}

	s.log.Info("materialized workflow", zap.String("id", id), zap.Stringer("scope", scope))
	return wf.ID, nil
}

// Create implements WorkflowSyncer.Create.
func (s *workflowSyncer) Create(ctx context.Context, id, name string, scope types.Scope, description string) (string, error) {
	if err := checkScope(scope); err != nil {
		return "", err
	}
	dir, err := s.cfg.Layout.WorkflowDir(scope, id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("workflow definition %s in scope %s: %w", id, scope, ErrAlreadyExists)
	}

	entrypoint := uuid.NewString()
	def := &definition.WorkflowDefinition{
		ID:               id,
		Name:             name,
		Description:      description,
		Scope:            scope,
		EntrypointNodeID: entrypoint,
		Nodes: []definition.NodeDef{{
			ID:         entrypoint,
			WorkflowID: id,
			NodeType:   types.NodeTypeRouter,
			NodeName:   "Start",
		}},
		Edges: []definition.EdgeDef{},
	}
	if err := s.cfg.Layout.WriteWorkflow(def); err != nil {
		return "", err
	}

	return s.SyncToDB(ctx, id, scope)
}

// AddNode implements WorkflowSyncer.AddNode.
func (s *workflowSyncer) AddNode(ctx context.Context, workflowID string, scope types.Scope, spec NodeSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("%w: node name is required", ErrInvalidDefinition)
	}
	nodeID := uuid.NewString()

	err := s.edit(ctx, workflowID, scope, func(def *definition.WorkflowDefinition) error {
		if spec.AgentID != "" {
			if _, err := resolveAgent(ctx, s.cfg.DB.Queries, spec.AgentID, nodeID); err != nil {
				return err
			}
		}
		nodeType := spec.NodeType
		if nodeType == "" {
			nodeType = types.NodeTypeAgent
		}
		def.Nodes = append(def.Nodes, definition.NodeDef{
			ID:         nodeID,
			WorkflowID: def.ID,
			NodeType:   nodeType,
			NodeName:   spec.Name,
			AgentID:    spec.AgentID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return nodeID, nil
}

// AddEdge implements WorkflowSyncer.AddEdge.
func (s *workflowSyncer) AddEdge(ctx context.Context, workflowID string, scope types.Scope, spec EdgeSpec) (string, error) {
	edgeID := uuid.NewString()

	err := s.edit(ctx, workflowID, scope, func(def *definition.WorkflowDefinition) error {
		if !def.HasNode(spec.Source) {
			return fmt.Errorf("%w: source node %s does not exist in workflow %s", ErrInvalidDefinition, spec.Source, def.ID)
		}
		if spec.Target != "" && !def.HasNode(spec.Target) {
			return fmt.Errorf("%w: target node %s does not exist in workflow %s", ErrInvalidDefinition, spec.Target, def.ID)
		}
		condition := spec.ConditionType
		if condition == "" {
			condition = types.ConditionAlways
		}
		def.Edges = append(def.Edges, definition.EdgeDef{
			ID:             edgeID,
			WorkflowID:     def.ID,
			SourceNodeID:   spec.Source,
			TargetNodeID:   spec.Target,
			ConditionType:  condition,
			ConditionValue: spec.ConditionValue,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return edgeID, nil
}

// edit applies mutate to the local definition and syncs it. If the sync
// fails the previous definition is written back.
func (s *workflowSyncer) edit(ctx context.Context, id string, scope types.Scope, mutate func(*definition.WorkflowDefinition) error) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	def, err := s.cfg.Layout.ReadWorkflow(scope, id)
	if err != nil {
		return notFound(err, "workflow definition", id, scope)
	}

	before := *def
	before.Nodes = append([]definition.NodeDef(nil), def.Nodes...)
	before.Edges = append([]definition.EdgeDef(nil), def.Edges...)

	if err := mutate(def); err != nil {
		return err
	}
	if err := s.cfg.Layout.WriteWorkflow(def); err != nil {
		return err
	}

	if _, err := s.SyncToDB(ctx, id, scope); err != nil {
		if restoreErr := s.cfg.Layout.WriteWorkflow(&before); restoreErr != nil {
			s.log.Error("failed to restore workflow definition", zap.String("id", id), zap.Error(restoreErr))
		}
		return err
	}
	return nil
}

// Validate implements WorkflowSyncer.Validate.
func (s *workflowSyncer) Validate(ctx context.Context, id string, scope types.Scope) (*ValidationReport, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	wf, err := s.cfg.DB.GetWorkflow(ctx, scope, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &ValidationReport{
			Valid:    false,
			Errors:   []string{fmt.Sprintf("workflow %s in scope %s does not exist", id, scope)},
			Warnings: []string{},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	nodes, err := s.cfg.DB.WorkflowNodes(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	edges, err := s.cfg.DB.WorkflowEdges(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Workflow: wf,
		Nodes:    nodes,
		Edges:    edges,
		Errors:   []string{},
		Warnings: []string{},
	}

	nodeIDs := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		nodeIDs[n.ID] = true
	}

	switch {
	case wf.EntrypointNodeID == "":
		report.Errors = append(report.Errors, "workflow has no entrypoint node")
	case !nodeIDs[wf.EntrypointNodeID]:
		report.Errors = append(report.Errors, fmt.Sprintf("entrypoint node %s does not exist", wf.EntrypointNodeID))
	}

	for _, n := range nodes {
		if n.AgentID == "" {
			continue
		}
		_, err := s.cfg.DB.Resolve(ctx, types.KindAgent, n.AgentID)
		switch {
		case err == nil:
		case errors.Is(err, sql.ErrNoRows):
			report.Errors = append(report.Errors,
				fmt.Sprintf("agent %s referenced by node %s does not exist in any scope", n.AgentID, n.NodeName))
		case errors.Is(err, store.ErrAmbiguous):
			report.Errors = append(report.Errors,
				fmt.Sprintf("agent %s referenced by node %s exists in more than one scope", n.AgentID, n.NodeName))
		default:
			return nil, err
		}
	}

	connected := make(map[string]bool)
	for _, e := range edges {
		connected[e.SourceNodeID] = true
		if !nodeIDs[e.SourceNodeID] {
			report.Errors = append(report.Errors,
				fmt.Sprintf("edge %s references non-existent source node %s", e.ID, e.SourceNodeID))
		}
		if e.TargetNodeID == "" {
			continue
		}
		connected[e.TargetNodeID] = true
		if !nodeIDs[e.TargetNodeID] {
			report.Errors = append(report.Errors,
				fmt.Sprintf("edge %s references non-existent target node %s", e.ID, e.TargetNodeID))
		}
	}

	var orphans []string
	for _, n := range nodes {
		if !connected[n.ID] && n.ID != wf.EntrypointNodeID {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("orphaned nodes found (unreachable from any edge): %s", strings.Join(orphans, ", ")))
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// List implements WorkflowSyncer.List.
func (s *workflowSyncer) List(ctx context.Context, scope types.Scope) ([]types.Workflow, error) {
	return s.cfg.DB.ListWorkflows(ctx, types.ScopesOrAll(scope)...)
}

// Delete implements WorkflowSyncer.Delete.
func (s *workflowSyncer) Delete(ctx context.Context, id string, scope types.Scope) (bool, error) {
	if err := checkScope(scope); err != nil {
		return false, err
	}

	deleted, err := s.cfg.DB.DeleteWorkflow(ctx, scope, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := s.cfg.Layout.Remove(scope, types.KindWorkflow, id); err != nil {
		return true, fmt.Errorf("workflow %s deleted but definition not removed: %w", id, err)
	}

	s.log.Info("deleted workflow", zap.String("id", id), zap.Stringer("scope", scope))
	return true, nil
}

// WorkflowAgents implements WorkflowSyncer.WorkflowAgents.
func (s *workflowSyncer) WorkflowAgents(ctx context.Context, id string, scope types.Scope) ([]types.AgentRef, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.cfg.DB.WorkflowAgents(ctx, scope, id)
}

// AgentWorkflows implements WorkflowSyncer.AgentWorkflows.
func (s *workflowSyncer) AgentWorkflows(ctx context.Context, agentID string) ([]types.Workflow, error) {
	return s.cfg.DB.AgentWorkflows(ctx, agentID)
}
