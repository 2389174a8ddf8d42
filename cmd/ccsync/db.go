package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/ui"
)

var dbCmd = &cobra.Command{
	Use:     "db",
	GroupID: "maint",
	Short:   "Database maintenance",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the agent, tool and workflow tables",
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession(cmd)
		defer s.Close()

		fmt.Printf("%s Schema ready (%s)\n", ui.RenderPass("✓"), s.db.Dialect())
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every agent, tool and workflow row",
	Long: `Delete every row of the agent, tool and workflow tables of both scopes.
The definition tree is not touched; run 'ccsync sync-all' to reload it.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm("Reset the database?", "Every agent, tool and workflow row of both scopes is deleted.") {
			fmt.Printf("%s Reset cancelled (use --yes to skip the prompt)\n", ui.RenderWarn("⚠"))
			return
		}

		s := openSession(cmd)
		defer s.Close()

		if err := s.db.Reset(cmd.Context()); err != nil {
			fail(err)
		}
		fmt.Printf("%s Database reset\n", ui.RenderPass("✓"))
	},
}

func init() {
	dbResetCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	dbCmd.AddCommand(dbInitCmd, dbResetCmd)
	rootCmd.AddCommand(dbCmd)
}
