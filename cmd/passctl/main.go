package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/internal/importer"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/urfave/cli/v2"
)

var flagServer = &cli.StringFlag{
	Name:    "server",
	Value:   "http://localhost:8080/v1",
	Usage:   "Gateway API base URL",
	EnvVars: []string{"PASSCTL_SERVER"},
}

var flagToken = &cli.StringFlag{
	Name:    "token",
	Usage:   "Staff access token (see `passctl login`)",
	EnvVars: []string{"PASSCTL_TOKEN"},
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
}

var flagDebug = &cli.BoolFlag{
	Name:  "debug",
	Usage: "Log requests at debug level",
}

func main() {
	app := &cli.App{
		Name:  "passctl",
		Usage: "operate the campus gate-pass API",
		Flags: []cli.Flag{flagServer, flagToken, flagTimeout, flagDebug},
		Before: func(cCtx *cli.Context) error {
			level := "info"
			if cCtx.Bool(flagDebug.Name) {
				level = "debug"
			}
			logger.SetDefault(logger.New(os.Stderr, level))
			return nil
		},
		Commands: []*cli.Command{
			loginCommand(),
			importCommand(),
			verifyCommand(),
			qrCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func clientFrom(cCtx *cli.Context) *apiClient {
	return newAPIClient(cCtx.String(flagServer.Name), cCtx.String(flagToken.Name), cCtx.Duration(flagTimeout.Name))
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Exchange staff credentials for an access token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", EnvVars: []string{"PASSCTL_PASSWORD"}, Required: true},
		},
		Action: func(cCtx *cli.Context) error {
			var resp struct {
				AccessToken string `json:"access_token"`
				ExpiresIn   int64  `json:"expires_in"`
				User        struct {
					Username string `json:"username"`
					Role     string `json:"role"`
				} `json:"user"`
			}
			_, err := clientFrom(cCtx).do(cCtx.Context, request{
				method: http.MethodPost,
				path:   "/auth/login",
				body: map[string]string{
					"username": cCtx.String("username"),
					"password": cCtx.String("password"),
				},
			}, &resp, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cCtx.App.ErrWriter, "logged in as %s (%s), token valid for %s\n",
				resp.User.Username, resp.User.Role, time.Duration(resp.ExpiresIn)*time.Second)
			fmt.Fprintln(cCtx.App.Writer, resp.AccessToken)
			return nil
		},
	}
}

type bulkResult struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Failures  []struct {
		Index int    `json:"index"`
		Name  string `json:"name"`
		Error string `json:"error"`
	} `json:"failures"`
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Issue passes in bulk from a CSV spreadsheet",
		Description: "The CSV needs a header row with at least a name column. Rows that only " +
			"have the legacy date_of_visit column use it for both date_of_visit_from and date_of_visit_to.",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Required: true},
			&cli.StringFlag{Name: "event-id", Usage: "Approved event to attach every row to"},
			&cli.StringFlag{Name: "event-name", Usage: "Event name for rows without one (no event-id)"},
			&cli.StringFlag{Name: "category", Usage: "Default visitor category"},
			&cli.IntFlag{Name: "batch-size", Value: 100},
		},
		Action: func(cCtx *cli.Context) error {
			f, err := os.Open(cCtx.Path("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := importer.Read(f)
			if err != nil {
				return err
			}
			for _, skipped := range res.Skipped {
				fmt.Fprintln(cCtx.App.ErrWriter, "skipped", skipped.Error())
			}
			if len(res.Entries) == 0 {
				return errors.New("no importable rows")
			}

			return runImport(cCtx.Context, clientFrom(cCtx), cCtx.App.Writer, res, importOptions{
				EventID:   cCtx.String("event-id"),
				EventName: cCtx.String("event-name"),
				Category:  cCtx.String("category"),
				BatchSize: cCtx.Int("batch-size"),
			})
		},
	}
}

type importOptions struct {
	EventID   string
	EventName string
	Category  string
	BatchSize int
}

// runImport posts each batch with its own idempotency key and prints the
// per-row outcome. Row numbers in the output are 1-based data rows.
func runImport(ctx context.Context, c *apiClient, out io.Writer, res *importer.Result, opts importOptions) error {
	var total bulkResult
	offset := 0
	for i, entries := range importer.Batches(res.Entries, opts.BatchSize) {
		var br bulkResult
		resp, err := c.do(ctx, request{
			method: http.MethodPost,
			path:   "/organiser/passes/bulk",
			body: importer.Batch{
				EventID:   opts.EventID,
				EventName: opts.EventName,
				Category:  opts.Category,
				Entries:   entries,
			},
			header: map[string]string{"Idempotency-Key": importer.IdempotencyKey(res.Digest, opts.EventID, i)},
		}, &br, nil)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}

		replayed := ""
		if resp.Header.Get("Idempotent-Replayed") == "true" {
			replayed = " (replayed)"
		}
		fmt.Fprintf(out, "batch %d: %d issued, %d failed%s\n", i+1, br.Succeeded, br.Failed, replayed)
		for _, f := range br.Failures {
			fmt.Fprintf(out, "  row %d %q: %s\n", offset+f.Index+1, f.Name, f.Error)
		}

		total.Requested += br.Requested
		total.Succeeded += br.Succeeded
		total.Failed += br.Failed
		offset += len(entries)
	}

	fmt.Fprintf(out, "done: %d requested, %d issued, %d failed\n", total.Requested, total.Succeeded, total.Failed)
	return nil
}

type verifyQuery struct {
	ID string `url:"id"`
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check a pass id the way the gate does",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true},
			&cli.BoolFlag{Name: "scan", Usage: "Record a guard scan (requires a guard token)"},
		},
		Action: func(cCtx *cli.Context) error {
			var res struct {
				Verified bool   `json:"verified"`
				Reason   string `json:"reason"`
				Message  string `json:"message"`
				Visitor  *struct {
					Name      string `json:"name"`
					Category  string `json:"visitor_category"`
					EventName string `json:"event_name"`
				} `json:"visitor"`
			}

			req := request{method: http.MethodGet, path: "/verify", query: verifyQuery{ID: cCtx.String("id")}}
			if cCtx.Bool("scan") {
				req = request{method: http.MethodPost, path: "/guard/scans", body: map[string]string{"id": cCtx.String("id")}}
			}
			if _, err := clientFrom(cCtx).do(cCtx.Context, req, &res, nil); err != nil {
				return err
			}

			w := cCtx.App.Writer
			if !res.Verified {
				fmt.Fprintf(w, "DENIED %s: %s\n", strings.ToUpper(res.Reason), res.Message)
				return cli.Exit("", 2)
			}
			fmt.Fprintf(w, "GRANTED %s\n", res.Message)
			if res.Visitor != nil {
				fmt.Fprintf(w, "  %s (%s) for %s\n", res.Visitor.Name, res.Visitor.Category, res.Visitor.EventName)
			}
			return nil
		},
	}
}

type downloadQuery struct {
	Download int `url:"download"`
}

func qrCommand() *cli.Command {
	return &cli.Command{
		Name:  "qr",
		Usage: "Download a pass QR code as PNG",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true},
			&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Value: "pass.png"},
		},
		Action: func(cCtx *cli.Context) error {
			f, err := os.Create(cCtx.Path("out"))
			if err != nil {
				return err
			}

			_, err = clientFrom(cCtx).do(cCtx.Context, request{
				method: http.MethodGet,
				path:   "/passes/" + url.PathEscape(cCtx.String("id")) + "/qr.png",
				query:  downloadQuery{Download: 1},
			}, nil, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(cCtx.Path("out"))
				return err
			}
			fmt.Fprintln(cCtx.App.ErrWriter, "wrote", cCtx.Path("out"))
			return nil
		},
	}
}
