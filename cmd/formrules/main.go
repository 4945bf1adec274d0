package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/goliatone/go-formrules/internal/config"
	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/client"
	"github.com/goliatone/go-formrules/pkg/renderers/tui"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/validation"
)

const usageText = `Usage: formrules [flags] <command> [paths...]

Commands:
  check     lint schema documents (every path, or --schema / --form-id)
  validate  check an answers document (--values) against a schema
  fill      answer a form interactively and optionally submit it
  submit    validate an answers document and post it to --endpoint
  openapi   print the OpenAPI description of a schema
  token     issue an admin token signed with --secret

Flags:
`

// errFailed reports a command that ran but found problems; its output already
// explains why.
var errFailed = errors.New("formrules: failed")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type app struct {
	cfg    config.Config
	logger logging.Logger
	stdout io.Writer
	stderr io.Writer
	format string

	// driver overrides the terminal prompt driver in tests.
	driver tui.PromptDriver
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return runWith(ctx, args, stdout, stderr, nil)
}

func runWith(ctx context.Context, args []string, stdout, stderr io.Writer, driver tui.PromptDriver) int {
	cfg, rest, err := config.Load("formrules", args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s%v\n", usageText, err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
		format: resolveFormat(cfg.Output, stdout),
		driver: driver,
	}

	command, paths := rest[0], rest[1:]
	switch command {
	case "check":
		err = a.check(ctx, paths)
	case "validate":
		err = a.validate(ctx)
	case "fill":
		err = a.fill(ctx)
	case "submit":
		err = a.submit(ctx)
	case "openapi":
		err = a.openapi(ctx)
	case "token":
		err = a.token()
	default:
		fmt.Fprintf(stderr, "%sunknown command %q\n", usageText, command)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
		return 1
	case errors.Is(err, tui.ErrAborted), errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "aborted")
		return 130
	default:
		logger.Errorw("command failed", "command", command, "error", err)
		fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
}

func resolveFormat(format string, out io.Writer) string {
	if format != config.OutputAuto {
		return format
	}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return config.OutputPretty
	}
	return config.OutputJSON
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (a *app) client() (*client.Client, error) {
	if a.cfg.Endpoint == "" {
		return nil, errors.New("--endpoint is required")
	}
	return client.New(a.cfg.Endpoint,
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.Timeout}),
		client.WithToken(a.cfg.Token),
		client.WithLogger(a.logger),
		client.WithRetry(a.cfg.Retries, 0),
	)
}

func (a *app) validator() *validation.Validator {
	return validation.New(validation.WithMessages(validation.Messages(a.cfg.Messages)))
}

// loadForm reads --schema from disk, or fetches --form-id from --endpoint.
// Parse-level problems surface as errors; structural checks are left to the
// caller.
func (a *app) loadForm(ctx context.Context) (schema.FormSchema, error) {
	if a.cfg.Schema != "" {
		return schema.LoadFile(a.cfg.Schema)
	}
	if !a.cfg.Remote() {
		return schema.FormSchema{}, errors.New("--schema or --endpoint with --form-id is required")
	}
	c, err := a.client()
	if err != nil {
		return schema.FormSchema{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return c.FetchForm(fetchCtx, a.cfg.FormID)
}

func (a *app) loadValidForm(ctx context.Context) (schema.FormSchema, error) {
	form, err := a.loadForm(ctx)
	if err != nil {
		return schema.FormSchema{}, err
	}
	if err := schema.Validate(form); err != nil {
		return schema.FormSchema{}, err
	}
	a.logger.Debugw("schema loaded", "form", form.ID, "fields", len(form.Fields))
	return form, nil
}

func relativeTo(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(filepath.Dir(base), path)
}
