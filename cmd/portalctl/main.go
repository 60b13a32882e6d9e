// Command portalctl logs in to the utility API from a terminal and calls it
// with the resulting session. Credentials are kept in a local file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: portalctl [-store file] [-profile name] <command> [flags]

commands:
  login   -id <identifier> [-passcode <6 digits>]
  logout
  whoami
  call    [-app] [-data <json>] <path>
`

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "portalctl:", err)
		os.Exit(1)
	}
}
