package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectos/fieldsync/internal/config"
	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

var statusJSONOutput bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running agent's sync status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "Output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	body, err := callAgent(http.MethodGet, "/v1/status")
	if err != nil {
		return err
	}

	if statusJSONOutput {
		fmt.Fprint(cmd.OutOrStdout(), string(body))
		return nil
	}

	var state fieldsync.State
	if err := json.Unmarshal(body, &state); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:          %s\n", state.Status)
	if state.LastSyncedAt != nil {
		fmt.Fprintf(out, "Last synced:     %s\n", state.LastSyncedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintf(out, "Last synced:     never\n")
	}
	fmt.Fprintf(out, "Pending changes: %d\n", state.PendingChanges)
	fmt.Fprintf(out, "Pending uploads: %d\n", state.PendingUploads)
	if state.Error != "" {
		fmt.Fprintf(out, "Last error:      %s\n", state.Error)
	}
	return nil
}

// callAgent sends a request to the running agent's loopback API and returns
// the response body. Non-2xx responses become errors carrying the body.
func callAgent(method, path string) ([]byte, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	req, err := http.NewRequest(method, "http://"+cfg.Status.Addr+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent not reachable at %s (is fieldsync running?): %w",
			cfg.Status.Addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
