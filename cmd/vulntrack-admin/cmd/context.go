package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CLI configuration file types (~/.vulntrack/config.yaml)

type CLIConfig struct {
	APIVersion     string         `yaml:"apiVersion"`
	Kind           string         `yaml:"kind"`
	CurrentContext string         `yaml:"current-context"`
	Contexts       []NamedContext `yaml:"contexts"`
}

type NamedContext struct {
	Name    string        `yaml:"name"`
	Context ContextDetail `yaml:"context"`
}

type ContextDetail struct {
	APIURL    string `yaml:"api-url"`
	Token     string `yaml:"token,omitempty"`
	TokenFile string `yaml:"token-file,omitempty"`
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vulntrack")
}

func cliConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

func loadCLIConfig() (*CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return nil, err
	}
	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func saveCLIConfig(cfg *CLIConfig) error {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "admin.vulntrack.io/v1"
	}
	if cfg.Kind == "" {
		cfg.Kind = "Config"
	}

	if err := os.MkdirAll(configDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func (c *CLIConfig) GetContext(name string) *NamedContext {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i]
		}
	}
	return nil
}

func (c *CLIConfig) SetContext(name string, ctx ContextDetail) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			c.Contexts[i].Context = ctx
			return
		}
	}
	c.Contexts = append(c.Contexts, NamedContext{Name: name, Context: ctx})
}

// Context subcommands

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage connection contexts",
}

func init() {
	setCtxCmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			apiURL, _ := cmd.Flags().GetString("api-url")
			token, _ := cmd.Flags().GetString("token")
			tokenFile, _ := cmd.Flags().GetString("token-file")

			if apiURL == "" {
				return fmt.Errorf("--api-url is required")
			}
			if token == "" && tokenFile == "" {
				return fmt.Errorf("--token or --token-file is required")
			}

			cfg, err := loadCLIConfig()
			if err != nil {
				cfg = &CLIConfig{}
			}

			cfg.SetContext(name, ContextDetail{
				APIURL:    apiURL,
				Token:     token,
				TokenFile: tokenFile,
			})

			if cfg.CurrentContext == "" {
				cfg.CurrentContext = name
			}

			if err := saveCLIConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Context %q set.\n", name)
			if cfg.CurrentContext == name {
				fmt.Printf("Current context is %q.\n", name)
			}
			return nil
		},
	}
	setCtxCmd.Flags().String("api-url", "", "API URL")
	setCtxCmd.Flags().String("token", "", "Bearer token")
	setCtxCmd.Flags().String("token-file", "", "Path to token file")

	useCtxCmd := &cobra.Command{
		Use:   "use NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}

			if cfg.GetContext(name) == nil {
				return fmt.Errorf("context %q not found", name)
			}

			cfg.CurrentContext = name
			if err := saveCLIConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Printf("Switched to context %q.\n", name)
			return nil
		},
	}

	listCtxCmd := &cobra.Command{
		Use:   "list",
		Short: "List all configured contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}

			if flagOutput == outputJSON {
				printJSON(cfg.Contexts)
				return nil
			}
			if flagOutput == outputYAML {
				printYAML(cfg.Contexts)
				return nil
			}

			t := newTable("CURRENT", "NAME", "API-URL")
			for _, c := range cfg.Contexts {
				current := ""
				if c.Name == cfg.CurrentContext {
					current = "*"
				}
				t.AddRow(current, c.Name, c.Context.APIURL)
			}
			t.Flush()
			return nil
		},
	}

	curCtxCmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			if cfg.CurrentContext == "" {
				fmt.Fprintln(os.Stderr, "No current context set.")
				return nil
			}
			fmt.Println(cfg.CurrentContext)
			return nil
		},
	}

	contextCmd.AddCommand(setCtxCmd, useCtxCmd, listCtxCmd, curCtxCmd)
}
