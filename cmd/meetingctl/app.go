package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/xilidan/voicelink/pkg/logger"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "meetingctl",
		Usage: "Upload meeting recordings and inspect their results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Meeting gateway base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"MEETINGCTL_SERVER"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format (json, yaml)",
				Value:   "json",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout; uploads wait for the engine",
				Value: 15 * time.Minute,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a recording and print the processing summary",
				ArgsUsage: "<file>",
				Action:    uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Audio format tag (defaults to the file extension, then wav)",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Show one meeting record",
				ArgsUsage: "<meeting_id>",
				Action:    getCommand,
			},
			{
				Name:   "list",
				Usage:  "List meeting records, newest first",
				Action: listCommand,
			},
			{
				Name:      "audio",
				Usage:     "Download a stored recording",
				ArgsUsage: "<meeting_id.format>",
				Action:    audioCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Destination file (defaults to the reference name, - for stdout)",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := logger.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(logger.Config{
		Level:  level,
		Output: c.App.ErrWriter,
	}))

	switch c.String("output") {
	case outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q", c.String("output"))
	}
}

func newClient(c *cli.Context) *client {
	return &client{
		baseURL: c.String("server"),
		timeout: c.Duration("timeout"),
	}
}

func uploadCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file argument is required")
	}

	format := c.String("format")
	if format == "" {
		format = formatFromExt(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	slog.Debug("uploading recording", slog.String("file", path), slog.String("format", format))
	summary, err := newClient(c).upload(c.Context, filepath.Base(path), format, f)
	if err != nil {
		return err
	}
	return render(c.App.Writer, c.String("output"), summary)
}

func getCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("meeting_id argument is required")
	}

	rec, err := newClient(c).getJSON(c.Context, "/api/v1/meetings/"+id)
	if err != nil {
		return err
	}
	return render(c.App.Writer, c.String("output"), rec)
}

func listCommand(c *cli.Context) error {
	list, err := newClient(c).getJSON(c.Context, "/api/v1/meetings")
	if err != nil {
		return err
	}
	return render(c.App.Writer, c.String("output"), list)
}

func audioCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("reference argument is required")
	}

	out := c.String("out")
	if out == "" {
		out = name
	}

	var w io.Writer = c.App.Writer
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	n, err := newClient(c).download(c.Context, name, w)
	if err != nil {
		return err
	}
	slog.Info("audio downloaded", slog.String("reference", name), slog.Int64("bytes", n))
	return nil
}

func formatFromExt(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 1 {
		return ext[1:]
	}
	return ""
}

