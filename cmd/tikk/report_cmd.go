package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hylla/tikk/internal/config"
	"github.com/hylla/tikk/internal/report"
)

func newReportCommand(flags *globalFlags) *cobra.Command {
	var (
		fromRaw string
		toRaw   string
		format  string
		outPath string
		pretty  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize tracked time over a period",
		Long: `Summarize time entries whose start falls inside [--from, --to].
The period defaults to today. Running timers are listed separately and
are not part of the totals.`,
		Args: cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			now := nowFunc()
			from, to, err := reportPeriod(fromRaw, toRaw, now)
			if err != nil {
				return err
			}
			r, err := report.Build(cmd.Context(), s.svc, from, to, now)
			if err != nil {
				return err
			}

			chosen := s.cfg.Report.DefaultFormat
			if cmd.Flags().Changed("format") {
				chosen = config.ReportFormat(strings.ToLower(strings.TrimSpace(format)))
			}
			if s.out.json {
				return s.out.emit(r, nil)
			}

			var body []byte
			switch chosen {
			case config.ReportFormatTable:
				body = []byte(report.Table(r) + "\n")
			case config.ReportFormatMarkdown:
				md := report.Markdown(r)
				if pretty {
					md, err = report.RenderMarkdown(md, 100)
					if err != nil {
						return err
					}
					md += "\n"
				}
				body = []byte(md)
			case config.ReportFormatXLSX:
				var buf bytes.Buffer
				if err := report.WriteXLSX(&buf, r); err != nil {
					return err
				}
				if outPath == "" {
					outPath = fmt.Sprintf("%s-report-%s.xlsx", sanitizeLogFileStem(flags.appName), now.Format("20060102"))
				}
				body = buf.Bytes()
			default:
				return fmt.Errorf("unknown report format %q (want table, markdown or xlsx)", chosen)
			}
			if err := writeOutput(cmd.OutOrStdout(), outPath, body); err != nil {
				return err
			}
			if outPath != "" && outPath != "-" {
				s.logger.Info("report written", "path", outPath, "format", chosen)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&fromRaw, "from", "", "period start (default: start of today)")
	cmd.Flags().StringVar(&toRaw, "to", "", "period end (default: now)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "table, markdown or xlsx (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render markdown for the terminal")
	return cmd
}

// reportPeriod defaults to [start of today, now] in now's location.
func reportPeriod(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := now
	if strings.TrimSpace(fromRaw) != "" {
		ts, err := parseCLITime("from", fromRaw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = ts
	}
	if strings.TrimSpace(toRaw) != "" {
		ts, err := parseCLITime("to", toRaw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = ts
	}
	return from, to, nil
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	var (
		outPath         string
		includeArchived bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every project and task version plus the event log as JSON",
		Args:  cobra.NoArgs,
		RunE: withSession(flags, func(cmd *cobra.Command, s *session, _ []string) error {
			snap, err := s.svc.ExportSnapshot(cmd.Context(), includeArchived)
			if err != nil {
				return err
			}
			if err := snap.Validate(); err != nil {
				return fmt.Errorf("validate snapshot: %w", err)
			}
			encoded, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot json: %w", err)
			}
			return writeOutput(cmd.OutOrStdout(), outPath, append(encoded, '\n'))
		}),
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file path ('-' for stdout)")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", true, "include archived projects and tasks")
	return cmd
}

// writeOutput writes body to stdout for "" or "-", otherwise to path.
func writeOutput(stdout io.Writer, path string, body []byte) error {
	if path == "" || path == "-" {
		if _, err := stdout.Write(body); err != nil {
			return fmt.Errorf("write to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
