package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

type psEntry struct {
	ServerID string  `json:"server_id"`
	Alias    string  `json:"alias"`
	Port     int     `json:"port"`
	Status   string  `json:"status"`
	RAMMB    float64 `json:"ram_mb"`
	VRAMMB   float64 `json:"vram_mb"`
}

func newPSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ps",
		Aliases: []string{"status"},
		Short:   "List servers currently tracked by modelmuxd",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPS(cmd)
		},
	}
	return cmd
}

func runPS(cmd *cobra.Command) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, daemonURL("/v1/ps"), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting modelmuxd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelmuxd returned %s", resp.Status)
	}

	var entries []psEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No servers running")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER ID\tALIAS\tPORT\tSTATUS\tRAM\tVRAM")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.ServerID, e.Alias, e.Port, e.Status,
			units.HumanSize(e.RAMMB*1024*1024), units.HumanSize(e.VRAMMB*1024*1024))
	}
	return w.Flush()
}
