package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Submit a scanner feed for reconciliation",
	Long: `Submit a scanner feed for reconciliation.

The file must be a JSON feed as produced by the scan pipeline. Files
ending in .gz or .zst are sent compressed; the server decompresses
them. Each asset in the feed has its stored vulnerability set replaced
wholesale, so partial feeds only ever touch the assets they name.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire approved exceptions that passed their end date",
	Long: `Expire approved exceptions that passed their end date.

Expired exceptions already stop suppressing overdue status the moment
they lapse; the sweep only updates the stored request state so reports
and listings reflect it. The server also runs this on a schedule.

Requires the admin role.`,
	RunE: runSweep,
}

func runImport(cmd *cobra.Command, args []string) error {
	file := args[0]
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	client := mustClient()
	data, _, err := client.DoRaw("POST", "/api/v1/import", "application/json", raw, feedEncoding(file))
	if err != nil {
		return err
	}

	var resp ImportResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		printImportResult(resp)
	}
	return nil
}

// feedEncoding maps a feed filename to its Content-Encoding header value.
func feedEncoding(file string) string {
	switch {
	case strings.HasSuffix(file, ".gz"):
		return "gzip"
	case strings.HasSuffix(file, ".zst"):
		return "zstd"
	default:
		return ""
	}
}

func printImportResult(resp ImportResponse) {
	fmt.Println("Import complete.")
	t := newTable("METRIC", "COUNT")
	t.AddRow("assets created", fmt.Sprintf("%d", resp.AssetsCreated))
	t.AddRow("assets updated", fmt.Sprintf("%d", resp.AssetsUpdated))
	t.AddRow("vulnerabilities imported", fmt.Sprintf("%d", resp.Imported))
	t.AddRow("rows skipped", fmt.Sprintf("%d", resp.Skipped))
	t.AddRow("remediated", fmt.Sprintf("%d", resp.Remediated))
	t.Flush()

	if len(resp.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(resp.Warnings))
		for _, w := range resp.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(resp.Errors) > 0 {
		fmt.Printf("\nFailed assets (%d):\n", len(resp.Errors))
		t := newTable("HOSTNAME", "ERROR")
		for _, e := range resp.Errors {
			t.AddRow(e.Hostname, e.Error)
		}
		t.Flush()
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Post("/api/v1/exception-requests/sweep", nil)
	if err != nil {
		return err
	}

	var resp SweepResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		if resp.Expired == 0 {
			fmt.Println("No exceptions due for expiration.")
		} else {
			fmt.Printf("Expired %d exception request(s).\n", resp.Expired)
		}
	}
	return nil
}
