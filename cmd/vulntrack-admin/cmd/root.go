package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagToken   string
	flagContext string
	flagOutput  string
	flagVerbose bool
	flagAsUser  string
	flagAsRole  string
)

var rootCmd = &cobra.Command{
	Use:   "vulntrack-admin",
	Short: "VulnTrack administration CLI",
	Long: `vulntrack-admin is a kubectl-style CLI for operating a VulnTrack service.

It provides commands to inspect assets and vulnerabilities, manage the
reminder threshold configuration, import scanner feeds, and run the
exception expiration sweep.

Use "vulntrack-admin context set" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConnection)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: VULNTRACK_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Override bearer token (env: VULNTRACK_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: VULNTRACK_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flagAsUser, "as-user", "", "Development identity header (server must allow dev headers)")
	rootCmd.PersistentFlags().StringVar(&flagAsRole, "as-role", "", "Development role header (admin, security_champion, user)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tokenCmd)
}

func initConnection() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("VULNTRACK_API_URL")
	}
	if flagToken == "" {
		flagToken = os.Getenv("VULNTRACK_TOKEN")
	}

	if flagAPIURL == "" || flagToken == "" {
		u, t := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagToken == "" {
			flagToken = t
		}
	}
}

func resolveFromConfigFile() (string, string) {
	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("VULNTRACK_CONTEXT")
	}

	cfg, err := loadCLIConfig()
	if err != nil {
		return "", ""
	}

	if ctxName == "" {
		ctxName = cfg.CurrentContext
	}

	ctx := cfg.GetContext(ctxName)
	if ctx == nil {
		return "", ""
	}

	token := ctx.Context.Token
	if token == "" && ctx.Context.TokenFile != "" {
		data, err := os.ReadFile(expandPath(ctx.Context.TokenFile))
		if err == nil {
			token = string(data)
		}
	}

	return ctx.Context.APIURL, token
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, VULNTRACK_API_URL, or 'vulntrack-admin context set'")
		os.Exit(1)
	}
	// A token is not required when development identity headers are used.
	if flagToken == "" && flagAsUser == "" {
		fmt.Fprintln(os.Stderr, "Error: token not configured. Use --token, VULNTRACK_TOKEN, or 'vulntrack-admin context set'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagToken, flagVerbose, flagAsUser, flagAsRole)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vulntrack-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
