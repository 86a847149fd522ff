package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/azula9713/yae-their-share/internal/api"
)

// runToken mints a bearer token for a user with the server's JWT secret.
// It stands in for an external identity provider.
func runToken(args []string) int {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	user := fs.String("user", "", "user id to put in the token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: SPLITSYNC_SERVER_TOKEN_TTL, 0 = no expiry)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: splitsync-server token --user USER [--ttl DURATION]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *user == "" {
		fs.Usage()
		return 2
	}

	cfg := api.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	lifetime := cfg.TokenTTL
	if fs.Changed("ttl") {
		lifetime = *ttl
	}

	token, err := api.NewTokenIssuer(cfg.JWTSecret, lifetime).Issue(*user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	if lifetime > 0 {
		fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(lifetime).Format(time.RFC3339))
	}
	return 0
}
