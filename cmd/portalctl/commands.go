package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/go-utility-portal/apitoken"
	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/jrsteele09/go-utility-portal/internal/config"
	"github.com/jrsteele09/go-utility-portal/session"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"golang.org/x/oauth2"
)

var errUsage = errors.New("invalid arguments")

type cli struct {
	store       *credentials.Store
	auth        *auth.Authenticator
	provisioner *apitoken.Provisioner
	refresher   *session.Refresher
	apiURL      string
	timeout     time.Duration
	in          *bufio.Reader
	out         io.Writer
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	global := flag.NewFlagSet("portalctl", flag.ContinueOnError)
	global.SetOutput(out)
	global.Usage = func() { fmt.Fprint(out, usage) }
	storePath := global.String("store", cfg.GetCredentialFile(), "credential file")
	profile := global.String("profile", "default", "credential profile")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	c, err := newCLI(cfg, *storePath, *profile, in, out)
	if err != nil {
		return err
	}

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "call":
		return c.call(ctx, rest)
	default:
		global.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func newCLI(cfg config.Config, storePath, profile string, in io.Reader, out io.Writer) (*cli, error) {
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		return nil, fmt.Errorf("credential directory: %w", err)
	}
	sealer, err := credentials.NewSealer(cfg.GetCredentialKey())
	if err != nil {
		return nil, err
	}
	backend, err := credentials.NewFileBackend(storePath, sealer)
	if err != nil {
		return nil, err
	}
	vault := credentials.NewVault(backend)

	apiURL, timeout := cfg.GetUtilityAPIURL(), cfg.GetUtilityAPITimeout()
	provisioner, err := apitoken.New(utilityapi.NewClient(apiURL, &http.Client{Timeout: timeout}), vault.App(), cfg.GetUtilityAPIKey(),
		apitoken.WithLifetime(cfg.GetAPITokenLifetime()))
	if err != nil {
		return nil, err
	}
	appClient := apitoken.NewClient(apiURL, provisioner, timeout)
	refresher, err := session.NewRefresher(appClient, session.WithExpiryHook(func(context.Context, string) {
		fmt.Fprintln(out, "session expired, log in again")
	}))
	if err != nil {
		return nil, err
	}
	authenticator, err := auth.NewAuthenticator(appClient, session.NewClient(apiURL, provisioner, refresher, timeout))
	if err != nil {
		return nil, err
	}

	return &cli{
		store:       vault.Open("cli:" + profile),
		auth:        authenticator,
		provisioner: provisioner,
		refresher:   refresher,
		apiURL:      apiURL,
		timeout:     timeout,
		in:          bufio.NewReader(in),
		out:         out,
	}, nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.out)
	identifier := fs.String("id", "", "email or phone number")
	passcode := fs.String("passcode", "", "6 digit passcode (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state := c.auth.Resume(ctx, c.store)
	if state.Phase == auth.PhaseAuthenticated {
		fmt.Fprintf(c.out, "already logged in as %s\n", state.Login)
		return nil
	}
	if state.Phase == auth.PhasePINEntry {
		state, _ = auth.Reduce(state, auth.Event{Type: auth.EventRestarted})
	}

	state, err := c.step(state, c.auth.VerifyIdentifier(ctx, c.store, *identifier))
	if err != nil {
		return err
	}

	if *passcode == "" {
		fmt.Fprintf(c.out, "passcode for %s: ", state.Login)
		line, err := c.in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read passcode: %w", err)
		}
		*passcode = strings.TrimSpace(line)
	}

	state, err = c.step(state, c.auth.Authenticate(ctx, c.store, "", *passcode))
	if err != nil {
		return err
	}
	name := state.Login
	if state.User != nil {
		name = state.User.DisplayName()
	}
	fmt.Fprintf(c.out, "logged in as %s\n", name)
	return nil
}

// step applies event and fails unless the login moved forward.
func (c *cli) step(state auth.State, event auth.Event) (auth.State, error) {
	next, err := auth.Reduce(state, event)
	if err != nil {
		return state, err
	}
	if next.Phase == state.Phase || next.Phase == auth.PhaseFailed {
		return next, errors.New(cmp.Or(next.Message, auth.MsgRetry))
	}
	return next, nil
}

func (c *cli) logout(ctx context.Context) error {
	c.auth.Logout(ctx, c.store)
	fmt.Fprintln(c.out, "logged out")
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	state := c.auth.Resume(ctx, c.store)
	switch state.Phase {
	case auth.PhaseAuthenticated:
		name := state.Login
		if state.User != nil {
			name = state.User.DisplayName()
		}
		fmt.Fprintf(c.out, "%s (%s)\n", name, state.Login)
	case auth.PhasePINEntry:
		fmt.Fprintf(c.out, "passcode pending for %s\n", state.Login)
	default:
		fmt.Fprintln(c.out, "not logged in")
	}
	return nil
}

// call posts to a utility API path with the stored session, or with only
// the API token when -app is set.
func (c *cli) call(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(c.out)
	appTier := fs.Bool("app", false, "authorize with the api token only")
	data := fs.String("data", "{}", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: call needs exactly one path", errUsage)
	}
	var body json.RawMessage
	if err := json.Unmarshal([]byte(*data), &body); err != nil {
		return fmt.Errorf("-data: %w", err)
	}

	var client *utilityapi.Client
	if *appTier {
		httpClient := oauth2.NewClient(ctx, c.provisioner.TokenSource(ctx))
		httpClient.Timeout = c.timeout
		client = utilityapi.NewClient(c.apiURL, httpClient)
	} else {
		client = session.NewClient(c.apiURL, c.provisioner, c.refresher, c.timeout)
		ctx = credentials.WithStore(ctx, c.store)
	}

	resp, err := client.Post(ctx, "/"+strings.TrimPrefix(fs.Arg(0), "/"), body)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d %s\n", resp.StatusCode, resp.Message)
	if resp.HasData() {
		fmt.Fprintln(c.out, string(resp.Data))
	}
	if !resp.OK() {
		return fmt.Errorf("utility api answered %d", resp.StatusCode)
	}
	return nil
}
