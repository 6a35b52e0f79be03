// Command admintoken mints credentials for the admin event API: a signed
// bearer token, or with --hash a bcrypt hash to put in ADMIN_TOKEN_HASH.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/utils"
)

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
		hash    string
		cost    int
	)
	flagSet := pflag.NewFlagSet("admintoken", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret (default $JWT_SECRET)")
	flagSet.StringVarP(&subject, "subject", "s", "", "token subject; an admin phone number passes the allow-list")
	flagSet.StringVar(&role, "role", utils.RoleAdmin, "role claim")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flagSet.StringVar(&hash, "hash", "", "print the bcrypt hash of this value instead of minting a token")
	flagSet.IntVar(&cost, "cost", 0, "bcrypt cost for --hash")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stdout, "Usage: admintoken [flags]\n\n%s", flagSet.FlagUsages())
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if hash != "" {
		h, err := utils.HashSecret(hash, cost)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, h)
		return nil
	}

	if secret == "" {
		return errors.New("--secret or JWT_SECRET is required")
	}
	if subject == "" {
		return errors.New("--subject is required")
	}
	if d := inbound.Digits(subject); len(d) >= 10 {
		subject = d
	}
	tok, err := utils.NewAccessToken(secret, subject, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok.Token)
	return nil
}
