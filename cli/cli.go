// Package cli implements the spacestatus command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/andrew-d/spacestatus"
)

// CLI runs spacestatus commands.
type CLI struct {
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a CLI writing to the process's stdout and stderr.
func New() *CLI {
	return &CLI{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run parses args and executes the appropriate subcommand.
// It returns an exit code (0 for success, non-zero for failure).
func (c *CLI) Run(args []string) int {
	if len(args) < 1 {
		c.usage()
		return 1
	}

	switch args[0] {
	case "serve":
		return c.cmdServe(args[1:])
	case "show":
		return c.cmdShow(args[1:])
	case "validate":
		return c.cmdValidate(args[1:])
	case "help", "-h", "--help":
		c.usage()
		return 0
	default:
		fmt.Fprintf(c.Stderr, "unknown command: %s\n", args[0])
		c.usage()
		return 1
	}
}

func (c *CLI) usage() {
	fmt.Fprintln(c.Stderr, "Usage: spacestatus <command> [options]")
	fmt.Fprintln(c.Stderr, "")
	fmt.Fprintln(c.Stderr, "Commands:")
	fmt.Fprintln(c.Stderr, "  serve      Track door and lever events and maintain the SpaceAPI document")
	fmt.Fprintln(c.Stderr, "  show       Print the document served by a running instance")
	fmt.Fprintln(c.Stderr, "  validate   Check a template and print the document it seeds")
}

func (c *CLI) cmdServe(args []string) int {
	s, err := parseServe(args, c.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		return 1
	}
	logger, err := newLogger(c.Stderr, s.Log.Level, s.Log.Format)
	if err != nil {
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	app := spacestatus.New(s.AppConfig(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start", "err", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		return 1
	}
	return 0
}

func (c *CLI) cmdShow(args []string) int {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	addr := fs.String("http", defaultHTTPAddr, "status API address of the running instance")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(c.Stderr, "Usage: spacestatus show [--http ADDR]")
		return 1
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/spaceapi.json", *addr))
	if err != nil {
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(c.Stderr, "error: %s %s\n", resp.Status, string(body))
		return 1
	}
	io.Copy(c.Stdout, resp.Body)
	fmt.Fprintln(c.Stdout)
	return 0
}

func (c *CLI) cmdValidate(args []string) int {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.Stderr, "Usage: spacestatus validate <template>")
		return 1
	}

	doc, err := spacestatus.LoadTemplate(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		return 1
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		fmt.Fprintf(c.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.Stdout, "%s\n", data)
	return 0
}
