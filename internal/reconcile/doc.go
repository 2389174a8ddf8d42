// Package reconcile keeps agent and workflow definitions on disk and their
// rows in the database in agreement.
//
// Overview
//
// Every definition lives in one scope (SYSTEM or COMMON_BACKGROUND). The
// reconcilers move one definition at a time in either direction:
//
//	Definition tree                          Database
//	  <Scope>/Agents/<name>/                   <scope>_agent
//	    systemPrompt.md        SyncToDB  →     <scope>_agent_tool ── system_tool
//	    jsonSchema.json        ← SyncFromDB
//	  <Scope>/AgenticWorkflows/<id>/           <scope>_agent_workflow
//	    workflow.json                          <scope>_agent_workflow_node
//	                                           <scope>_agent_workflow_edge
//
// Usage
//
//	database, err := store.Open("file:.ccsync/agents.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	cfg := reconcile.Config{
//	    DB:     database,
//	    Layout: definition.NewLayout("definitions"),
//	    Logger: logger,
//	}
//
//	res, err := reconcile.NewAgentSyncer(cfg).SyncToDB(ctx, "planner", types.ScopeSystem)
//
//	batch := reconcile.NewBatch(cfg)
//	result, err := batch.SyncAll(ctx, types.AllScopes)
//
// Transactions
//
// A workflow sync is one transaction: the workflow row, its nodes and its
// edges are replaced together or not at all. The workflow's entrypoint is
// cleared while nodes are replaced and restored as the last step.
//
// An agent sync commits the agent row first. Tool association changes are
// then applied one by one; a failed change is recorded in the
// ToolSyncResult and the rest still apply.
//
// Error Handling
//
// Batch operations never stop at a failing definition. Each failure is
// recorded as "<SCOPE>:<name> - <error>" and the batch continues.
// Errors carry sentinels (ErrNotFound, ErrDanglingReference, ...) that can
// be tested with errors.Is.
package reconcile
