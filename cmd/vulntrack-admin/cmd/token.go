package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token SUBJECT",
	Short: "Mint a development bearer token",
	Long: `Mint a development bearer token.

Signs a short-lived HS256 token for working against a locally run server
without a gateway in front of it. The signing secret comes from --secret
or VULNTRACK_JWT_SECRET and must match the server's AUTH_JWT_SECRET; the
issuer must match the server's AUTH_JWT_ISSUER.

The token prints to stdout so it can be captured directly:

  export VULNTRACK_TOKEN=$(vulntrack-admin token alice --role admin)`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("secret", "", "Signing secret (env: VULNTRACK_JWT_SECRET)")
	tokenCmd.Flags().String("issuer", "vulntrack-gateway", "Issuer claim")
	tokenCmd.Flags().String("role", "user", "Role claim (user, security_champion, admin)")
	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("VULNTRACK_JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: use --secret or VULNTRACK_JWT_SECRET")
	}

	roleStr, _ := cmd.Flags().GetString("role")
	role, ok := shared.ParseRole(roleStr)
	if !ok {
		return fmt.Errorf("unknown role %q", roleStr)
	}

	issuer, _ := cmd.Flags().GetString("issuer")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	gen := jwt.NewGenerator(jwt.Config{Secret: secret, Issuer: issuer, TTL: ttl})
	token, expiresAt, err := gen.Sign(args[0], role)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
