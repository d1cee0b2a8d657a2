package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresuchdata/fetchvault/internal/client"
	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/repository/postgres"
	"github.com/andresuchdata/fetchvault/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("fetchctl failed")
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "fetchctl",
		Usage:     "Operate a fetchvault deployment",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the fetchvault API",
				Value:   "http://localhost:8080",
				EnvVars: []string{"FETCHVAULT_SERVER"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create the downloads table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Database connection string",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
				},
				Action: runMigrate,
			},
			{
				Name:      "submit",
				Usage:     "Submit a URL for download",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "wait", Usage: "Poll until the download finishes"},
					&cli.DurationFlag{Name: "interval", Value: client.DefaultPollInterval},
				},
				Action: runSubmit,
			},
			{
				Name:      "status",
				Usage:     "Show a download",
				ArgsUsage: "ID",
				Action:    runStatus,
			},
			{
				Name:      "wait",
				Usage:     "Poll a download until it completes or fails",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Value: client.DefaultPollInterval},
					&cli.DurationFlag{Name: "timeout", Usage: "Give up after this long (0 waits forever)"},
				},
				Action: runWait,
			},
			{
				Name:  "list",
				Usage: "List recent downloads",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: runList,
			},
			{
				Name:      "confirm",
				Usage:     "Record a download and print a fresh link",
				ArgsUsage: "ID",
				Action:    runConfirm,
			},
		},
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"), nil)
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 {
		return "", cli.Exit(fmt.Sprintf("missing %s argument", name), 2)
	}
	return c.Args().First(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.Migrate(c.Context, db); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "schema applied")
	return nil
}

func runSubmit(c *cli.Context) error {
	rawURL, err := requireArg(c, "URL")
	if err != nil {
		return err
	}

	api := apiClient(c)
	created, err := api.Create(c.Context, rawURL)
	if err != nil {
		return err
	}
	if !c.Bool("wait") {
		return printJSON(c.App.Writer, created)
	}

	fmt.Fprintf(c.App.Writer, "submitted %s\n", created.DownloadID)
	view, err := api.Wait(c.Context, created.DownloadID, c.Duration("interval"), progressPrinter(c.App.Writer))
	if err != nil {
		return err
	}
	return finish(c.App.Writer, view)
}

func runStatus(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	view, err := apiClient(c).Get(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, view)
}

func runWait(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}

	ctx := c.Context
	if timeout := c.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	view, err := apiClient(c).Wait(ctx, id, c.Duration("interval"), progressPrinter(c.App.Writer))
	if err != nil {
		return err
	}
	return finish(c.App.Writer, view)
}

func runList(c *cli.Context) error {
	downloads, err := apiClient(c).List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, d := range downloads {
		fmt.Fprintf(c.App.Writer, "%s\t%-11s\t%3d%%\t%s\t%s\n",
			d.DownloadID, d.Status, d.Progress, d.CreatedAt.Format(time.RFC3339), d.SourceURL)
	}
	return nil
}

func runConfirm(c *cli.Context) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	res, err := apiClient(c).Confirm(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, res)
}

func progressPrinter(w io.Writer) client.ProgressFunc {
	last := -1
	return func(v *domain.DownloadView) {
		if v.Progress != last {
			fmt.Fprintf(w, "%s %d%%\n", v.Status, v.Progress)
			last = v.Progress
		}
	}
}

func finish(w io.Writer, view *domain.DownloadView) error {
	if view.Status == domain.StatusFailed {
		return cli.Exit("download failed: "+view.Error, 1)
	}
	return printJSON(w, view)
}
