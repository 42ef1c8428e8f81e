package cli

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage provider connections",
	Long:  `List users' provider connections or revoke one.`,
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's connections",
	RunE:  runConnectionsList,
}

var connectionsRevokeCmd = &cobra.Command{
	Use:   "revoke [connection-id]",
	Short: "Revoke a connection",
	Long: `Revokes the connection at the provider (best effort), deletes its
stored credentials and marks it revoked. Synced entities are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnectionsRevoke,
}

var historyCmd = &cobra.Command{
	Use:   "history [connection-id]",
	Short: "Show a connection's sync history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var (
	connectionsUser string
	historyLimit    int
)

func init() {
	connectionsListCmd.Flags().StringVar(&connectionsUser, "user", "", "user whose connections to list")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")

	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsRevokeCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(historyCmd)
}

func runConnectionsList(cmd *cobra.Command, _ []string) error {
	if connectionsUser == "" {
		return errors.New("--user is required")
	}
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	conns, err := rt.Connections.List(cmd.Context(), connectionsUser)
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		cmd.Println("No connections.")
		return nil
	}

	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		account := c.ExternalAccountID
		if account == "" {
			account = "-"
		}
		rows = append(rows, []string{c.ID, string(c.Provider), account, string(c.Status), formatTime(c.LastSyncAt)})
	}
	renderTable(cmd.OutOrStdout(), []string{"ID", "PROVIDER", "ACCOUNT", "STATUS", "LAST SYNC"}, rows)
	return nil
}

func runConnectionsRevoke(cmd *cobra.Command, args []string) error {
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	// Operators act on any user's connection.
	conn, err := rt.Connections.Get(cmd.Context(), "", args[0])
	if err != nil {
		return err
	}
	if err := rt.Auth.Revoke(cmd.Context(), conn); err != nil {
		return err
	}
	cmd.Printf("Connection %s (%s) revoked.\n", conn.ID, conn.Provider)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	results, err := rt.Connections.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		cmd.Println("No sync runs yet.")
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			formatTime(r.StartedAt),
			string(r.Trigger),
			string(r.Status),
			strconv.Itoa(r.Counts.Fetched),
			strconv.Itoa(r.Counts.Created),
			strconv.Itoa(r.Counts.Updated),
			strconv.Itoa(r.Counts.Skipped),
			strconv.Itoa(r.Counts.ConflictDeferred),
			strconv.Itoa(r.Counts.Errored),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	renderTable(cmd.OutOrStdout(),
		[]string{"STARTED", "TRIGGER", "STATUS", "FETCHED", "CREATED", "UPDATED", "SKIPPED", "DEFERRED", "ERRORS", "DURATION"},
		rows)
	return nil
}
