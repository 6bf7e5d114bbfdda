package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the service configuration (thresholds and import mode)",
}

// configSpec is the configuration document accepted by "config apply" and
// sent to the API. Field names match the server's update request.
type configSpec struct {
	CriticalDays int    `yaml:"critical_days" json:"critical_days"`
	HighDays     int    `yaml:"high_days" json:"high_days"`
	MediumDays   int    `yaml:"medium_days" json:"medium_days"`
	LowDays      int    `yaml:"low_days" json:"low_days"`
	ImportMode   string `yaml:"import_mode" json:"import_mode"`
}

func init() {
	getConfigCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the effective configuration",
		RunE:  runConfigGet,
	}

	applyConfigCmd := &cobra.Command{
		Use:   "apply",
		Short: "Replace the configuration from a YAML file",
		Long: `Replace the configuration from a YAML file.

The file must carry all four thresholds and the import mode; the
configuration is replaced wholesale, never patched:

    critical_days: 15
    high_days: 30
    medium_days: 60
    low_days: 90
    import_mode: days_open

Requires the admin role.`,
		RunE: runConfigApply,
	}
	applyConfigCmd.Flags().StringP("file", "f", "", "Path to the configuration YAML file (required)")
	_ = applyConfigCmd.MarkFlagRequired("file")

	configCmd.AddCommand(getConfigCmd, applyConfigCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/config")
	if err != nil {
		return err
	}

	var resp ConfigResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		printConfig(resp)
	}
	return nil
}

func runConfigApply(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	var spec configSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	client := mustClient()
	data, err := client.Put("/api/v1/config", spec)
	if err != nil {
		return err
	}

	var resp ConfigResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	fmt.Println("Configuration applied.")
	if flagOutput == outputJSON {
		printJSON(resp)
		return nil
	}
	if flagOutput == outputYAML {
		printYAML(resp)
		return nil
	}
	printConfig(resp)
	return nil
}

func printConfig(resp ConfigResponse) {
	t := newTable("SEVERITY", "REMINDER-DAYS")
	t.AddRow("critical", fmt.Sprintf("%d", resp.CriticalDays))
	t.AddRow("high", fmt.Sprintf("%d", resp.HighDays))
	t.AddRow("medium", fmt.Sprintf("%d", resp.MediumDays))
	t.AddRow("low", fmt.Sprintf("%d", resp.LowDays))
	t.Flush()

	fmt.Printf("\nImport mode: %s\n", resp.ImportMode)
	if resp.UpdatedBy != "" {
		fmt.Printf("Updated by:  %s (%s)\n", resp.UpdatedBy, shortTime(resp.UpdatedAt))
	}
}
