package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger an immediate sync cycle on the running agent",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	body, err := callAgent(http.MethodPost, "/v1/sync")
	if err != nil {
		return err
	}

	var state fieldsync.State
	if err := json.Unmarshal(body, &state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Sync complete")
	fmt.Fprintf(out, "Pending changes: %d\n", state.PendingChanges)
	fmt.Fprintf(out, "Pending uploads: %d\n", state.PendingUploads)
	return nil
}
