package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-queue changes that exhausted their retry attempts",
	RunE:  runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	body, err := callAgent(http.MethodPost, "/v1/retry")
	if err != nil {
		return err
	}

	var resp struct {
		Requeued int64 `json:"requeued"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Re-queued %d entries\n", resp.Requeued)
	return nil
}
