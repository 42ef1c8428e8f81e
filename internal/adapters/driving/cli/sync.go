package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
)

var syncCmd = &cobra.Command{
	Use:   "sync [connection-id]",
	Short: "Synchronise connections now",
	Long: `Runs a manual sync in this process. With a connection ID only that
connection is synchronised; with --user every syncable connection of the
user is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var syncUser string

func init() {
	syncCmd.Flags().StringVar(&syncUser, "user", "", "sync every connection of this user")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && syncUser == "" {
		return errors.New("give a connection ID or --user")
	}
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) > 0 {
		connectionID := args[0]
		cmd.Printf("Synchronising connection: %s...\n", connectionID)

		result, err := syncWithProgress(ctx, cmd, rt.Sync, connectionID)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		cmd.Printf("Sync %s: %s\n", result.Status, formatCounts(result.Counts))
		if result.ErrorSummary != "" {
			cmd.Printf("Errors: %s\n", result.ErrorSummary)
		}
		return nil
	}

	cmd.Printf("Synchronising all connections of %s...\n", syncUser)
	results, err := rt.Sync.SyncAllForUser(ctx, syncUser, domain.TriggerManual)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if len(results) == 0 {
		cmd.Println("No syncable connections.")
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.ConnectionID,
			string(r.Status),
			strconv.Itoa(r.Counts.Fetched),
			strconv.Itoa(r.Counts.Created),
			strconv.Itoa(r.Counts.Updated),
			strconv.Itoa(r.Counts.Errored),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"CONNECTION", "STATUS", "FETCHED", "CREATED", "UPDATED", "ERRORS", "DURATION"}, rows)
	return nil
}

// syncWithProgress runs sync while displaying progress updates.
func syncWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	syncer driving.SyncManager,
	connectionID string,
) (*domain.SyncResult, error) {
	type outcome struct {
		result *domain.SyncResult
		err    error
	}

	// Start sync in goroutine
	done := make(chan outcome, 1)
	go func() {
		result, err := syncer.SyncConnection(ctx, connectionID, domain.TriggerManual)
		done <- outcome{result, err}
	}()

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastCount := 0
	for {
		select {
		case o := <-done:
			if lastCount > 0 {
				cmd.Println()
			}
			return o.result, o.err
		case <-ticker.C:
			// Check progress (ignore status error - best effort)
			status, statusErr := syncer.Status(ctx, connectionID)
			if statusErr == nil && status != nil && status.Running && status.RecordsProcessed > lastCount {
				cmd.Printf("\rProcessing... %d records", status.RecordsProcessed)
				lastCount = status.RecordsProcessed
			}
		}
	}
}
