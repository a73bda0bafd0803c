package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgecore/agentrt/pkg/agentcore/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, rename, or delete saved sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every saved session, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := sessionStoreFor(cmd)
		records, err := store.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No saved sessions.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%-24s last active %s  (%s)\n", r.Name, r.LastActiveAt.Format("2006-01-02 15:04:05"), r.WorkingDir)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved session's registry entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStoreFor(cmd).Delete(args[0])
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStoreFor(cmd).Rename(args[0], args[1])
	},
}

func sessionStoreFor(cmd *cobra.Command) *session.Store {
	path := settingsPathFlag(cmd)
	return session.NewStore(filepath.Join(filepath.Dir(path), "sessions.json"))
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	rootCmd.AddCommand(sessionsCmd)
}
