package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

var toolCmd = &cobra.Command{
	Use:     "tool",
	GroupID: "manage",
	Short:   "Manage the global tool table",
}

var toolCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tool",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		params, _ := cmd.Flags().GetString("parameters")
		toolType, _ := cmd.Flags().GetString("type")
		apiPath, _ := cmd.Flags().GetString("internal-api-path")

		raw, err := readJSONArg(params)
		if err != nil {
			fail(err)
		}

		s := openSession(cmd)
		defer s.Close()

		tool, err := reconcile.NewToolSyncer(s.rcfg).Create(cmd.Context(), reconcile.ToolSpec{
			Name:            args[0],
			Description:     description,
			Parameters:      raw,
			Type:            toolType,
			InternalAPIPath: apiPath,
		})
		if err != nil {
			fail(err)
		}
		emit(tool, func() {
			fmt.Printf("%s Created tool %s (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(tool.Name), tool.ID)
		})
	},
}

var toolUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update columns of a tool",
	Long: `Update the given columns of a tool. Only flags that are set change.

Example:
  ccsync tool update 1b4e28ba-... --description "Looks up an order" --schema @order.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch store.ToolPatch
		flags := cmd.Flags()
		set := func(name string) *string {
			if !flags.Changed(name) {
				return nil
			}
			v, _ := flags.GetString(name)
			return &v
		}
		patch.Name = set("name")
		patch.Description = set("description")
		patch.Type = set("type")
		patch.InternalAPIPath = set("internal-api-path")
		if schema := set("schema"); schema != nil {
			raw, err := readJSONArg(*schema)
			if err != nil {
				fail(err)
			}
			blob := string(raw)
			patch.JSONSchema = &blob
		}
		if patch.IsEmpty() {
			fail(fmt.Errorf("nothing to update: set at least one of --name, --description, --schema, --type, --internal-api-path"))
		}

		s := openSession(cmd)
		defer s.Close()

		updated, err := reconcile.NewToolSyncer(s.rcfg).Update(cmd.Context(), args[0], patch)
		if err != nil {
			fail(err)
		}
		if !updated {
			fail(&reconcile.NotFoundError{Kind: "tool", Name: args[0]})
		}
		fmt.Printf("%s Updated tool %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	},
}

var toolGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one tool",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession(cmd)
		defer s.Close()

		tool, err := reconcile.NewToolSyncer(s.rcfg).Get(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		emit(tool, func() {
			fmt.Printf("%s %s\n", ui.RenderAccent(tool.Name), ui.RenderMuted(tool.ID))
			fmt.Printf("  Type:        %s\n", tool.Type)
			fmt.Printf("  Description: %s\n", orNone(tool.Description))
			fmt.Printf("  API path:    %s\n", orNone(tool.InternalAPIPath))
			fmt.Printf("  System tool: %t\n", tool.IsSystemTool)
			fmt.Printf("  Schema:      %s\n", tool.JSONSchema)
		})
	},
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tool",
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession(cmd)
		defer s.Close()

		tools, err := reconcile.NewToolSyncer(s.rcfg).List(cmd.Context())
		if err != nil {
			fail(err)
		}
		emit(tools, func() {
			if len(tools) == 0 {
				fmt.Println("No tools found")
				return
			}
			printTools(tools)
		})
	},
}

var toolDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tool",
	Long: `Delete a tool. A tool still associated with agents is not deleted
unless --force is given, in which case the associations are removed first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		s := openSession(cmd)
		defer s.Close()

		deleted, err := reconcile.NewToolSyncer(s.rcfg).Delete(cmd.Context(), args[0], force)
		if err != nil {
			fail(err)
		}
		if !deleted {
			fail(&reconcile.NotFoundError{Kind: "tool", Name: args[0]})
		}
		fmt.Printf("%s Deleted tool %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	},
}

var toolOrphanedCmd = &cobra.Command{
	Use:   "orphaned",
	Short: "List tools no agent uses",
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession(cmd)
		defer s.Close()

		tools, err := reconcile.NewToolSyncer(s.rcfg).FindOrphaned(cmd.Context())
		if err != nil {
			fail(err)
		}
		emit(tools, func() {
			if len(tools) == 0 {
				fmt.Printf("%s No orphaned tools\n", ui.RenderPass("✓"))
				return
			}
			printTools(tools)
		})
	},
}

var toolCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete tools no agent uses",
	Long: `List orphaned tools and delete them. Without --force the command asks
for confirmation on a terminal and does nothing otherwise.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		s := openSession(cmd)
		defer s.Close()
		tools := reconcile.NewToolSyncer(s.rcfg)

		orphans, err := tools.FindOrphaned(cmd.Context())
		if err != nil {
			fail(err)
		}
		if len(orphans) == 0 {
			fmt.Printf("%s No orphaned tools\n", ui.RenderPass("✓"))
			return
		}

		printTools(orphans)
		if !force {
			force = confirm(fmt.Sprintf("Delete %d orphaned tool(s)?", len(orphans)), "Tools no agent references in any scope.")
		}
		if !force {
			fmt.Printf("\n%s Nothing deleted (use --force to delete)\n", ui.RenderWarn("⚠"))
			return
		}

		_, deleted, err := tools.CleanupOrphaned(cmd.Context(), true)
		fmt.Printf("\n%s Deleted %d orphaned tool(s)\n", ui.RenderPass("✓"), deleted)
		if err != nil {
			fail(err)
		}
	},
}

// readJSONArg accepts inline JSON or @path and checks it parses.
func readJSONArg(arg string) (json.RawMessage, error) {
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not valid JSON: %s", reconcile.ErrInvalidDefinition, strings.TrimSpace(arg))
	}
	return json.RawMessage(data), nil
}

func printTools(tools []types.Tool) {
	fmt.Printf("%s\n", ui.RenderHeader(fmt.Sprintf("Tools (%d)", len(tools))))
	for _, t := range tools {
		fmt.Printf("  %-30s %s  %s\n", ui.RenderAccent(t.Name), t.ID, ui.RenderMuted(t.Type))
	}
}

func init() {
	toolCreateCmd.Flags().StringP("description", "d", "", "description shown to the model")
	toolCreateCmd.Flags().String("parameters", "", "JSON parameter schema, inline or @file")
	toolCreateCmd.Flags().String("type", reconcile.DefaultToolType, "tool type")
	toolCreateCmd.Flags().String("internal-api-path", "", "internal API path the tool calls")

	toolUpdateCmd.Flags().String("name", "", "new tool name")
	toolUpdateCmd.Flags().StringP("description", "d", "", "new description")
	toolUpdateCmd.Flags().String("schema", "", "new stored JSON schema, inline or @file")
	toolUpdateCmd.Flags().String("type", "", "new tool type")
	toolUpdateCmd.Flags().String("internal-api-path", "", "new internal API path")

	toolDeleteCmd.Flags().BoolP("force", "f", false, "remove agent associations and delete anyway")
	toolCleanupCmd.Flags().BoolP("force", "f", false, "delete without asking")

	toolCmd.AddCommand(toolCreateCmd, toolUpdateCmd, toolGetCmd, toolListCmd, toolDeleteCmd, toolOrphanedCmd, toolCleanupCmd)
	rootCmd.AddCommand(toolCmd)
}
