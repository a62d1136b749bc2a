package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/backoffice/pkg/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Session token utilities",
	}
	cmd.AddCommand(tokenInspectCmd())
	return cmd
}

func tokenInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [token]",
		Short: "Decode a session token and report its claims",
		Long: `Decode the claims of a session token the way the gateway does.

The signature is not verified. With no argument the token is read from
standard input.

Examples:
  backoffice token inspect eyJhbGciOi...
  pbpaste | backoffice token inspect --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := tokenArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return inspectToken(cmd.OutOrStdout(), raw, time.Now(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the claims as JSON")

	return cmd
}

func tokenArg(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return "", fmt.Errorf("no token given")
	}
	return line, nil
}

func inspectToken(w io.Writer, raw string, now time.Time, asJSON bool) error {
	claims, err := token.Decode(raw)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(claims.Raw)
	}

	fmt.Fprintf(w, "  Subject:  %s\n", orNone(claims.Subject))
	fmt.Fprintf(w, "  Role:     %s\n", orNone(claims.Role))
	if ttl, ok := claims.TTL(now); ok {
		status := "valid for " + ttl.Truncate(time.Second).String()
		if token.IsExpired(claims, now) {
			status = "expired " + (-ttl).Truncate(time.Second).String() + " ago"
		}
		fmt.Fprintf(w, "  Expires:  %s (%s)\n", claims.ExpiresAt.UTC().Format(time.RFC3339), status)
	} else {
		fmt.Fprintln(w, "  Expires:  (none)")
	}

	keys := make([]string, 0, len(claims.Raw))
	for k := range claims.Raw {
		switch k {
		case "sub", "role", "exp":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-9s %v\n", k+":", claims.Raw[k])
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
