package commands

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

func newEvictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evict <alias>",
		Short: "Stop the running server backing an alias, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvict(cmd, args[0])
		},
	}
	return cmd
}

func runEvict(cmd *cobra.Command, name string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, daemonURL("/v1/evict/"+name), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting modelmuxd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("modelmuxd returned %s: %s", resp.Status, body)
	}

	cmd.Printf("evicted %s\n", name)
	return nil
}
