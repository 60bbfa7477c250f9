package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dsar/internal/assembler"
	"dsar/internal/domain"
	"dsar/internal/pipeline"
	"dsar/internal/platform/logger"
	"dsar/internal/source"
	"dsar/internal/source/providers"
	"dsar/pkg/platform/sentinel"
	platformstrings "dsar/pkg/platform/strings"
)

// subjectFlags identify the data subject.
type subjectFlags struct {
	name  string
	email string
}

func (s *subjectFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.name, "name", "", "data subject's full name (required)")
	cmd.Flags().StringVar(&s.email, "email", "", "data subject's email, used to disambiguate")
	_ = cmd.MarkFlagRequired("name")
}

func (s *subjectFlags) query() source.SubjectQuery {
	return source.SubjectQuery{Name: strings.TrimSpace(s.name), Email: strings.TrimSpace(s.email)}
}

func newProcessCmd(flags *rootFlags) *cobra.Command {
	var (
		subject subjectFlags
		vendor  string
		export  string
		redact  string
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one vendor export into a redacted report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				res, err := a.runner.Run(cmd.Context(), pipeline.Request{
					Subject: subject.query(),
					Jobs:    []pipeline.Job{{Vendor: vendor, Path: export}},
					Redact:  platformstrings.ParseList(redact),
				})
				if err != nil {
					return err
				}
				if err := a.printResult(res); err != nil {
					return err
				}
				return failedErr(res)
			})
		},
	}
	subject.bind(cmd)
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor adapter, see `dsar vendors` (required)")
	cmd.Flags().StringVar(&export, "export", "", "path to the vendor export (required)")
	cmd.Flags().StringVar(&redact, "redact", "", `extra third-party names to redact, e.g. "Carol White, Dan Brown"`)
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("export")
	return cmd
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		subject     subjectFlags
		sources     []string
		redact      string
		compile     bool
		requestDate string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process several exports in parallel and optionally assemble the package",
		Example: `  dsar run --name "Jane Doe" --source Slack=./exports/slack.zip \
    --source Jira=./exports/jira.json --compile`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := parseSources(sources)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(a *app) error {
				meta := a.meta()
				if meta.RequestDate, err = parseRequestDate(requestDate); err != nil {
					return err
				}
				res, err := a.runner.Run(cmd.Context(), pipeline.Request{
					Subject: subject.query(),
					Jobs:    jobs,
					Redact:  platformstrings.ParseList(redact),
					Compile: compile,
					Meta:    meta,
				})
				if res != nil {
					if perr := a.printResult(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	subject.bind(cmd)
	cmd.Flags().StringArrayVar(&sources, "source", nil, "vendor=path, repeatable (required)")
	cmd.Flags().StringVar(&redact, "redact", "", "extra third-party names to redact, comma separated")
	cmd.Flags().BoolVar(&compile, "compile", false, "assemble the package once every source has finished")
	cmd.Flags().StringVar(&requestDate, "request-date", "", "date the request was received, e.g. 2024-03-01")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newCompileCmd(flags *rootFlags) *cobra.Command {
	var (
		subject     subjectFlags
		requestDate string
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Assemble the package from the latest report of every vendor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				q := subject.query()
				refs, err := assembler.Discover(a.cfg.OutputDir, q.Name)
				if err != nil {
					return err
				}
				meta := a.meta()
				meta.Subject = domain.SubjectInfo{Name: q.Name, Email: q.Email}
				if meta.RequestDate, err = parseRequestDate(requestDate); err != nil {
					return err
				}
				pkg, err := a.assembler.Assemble(cmd.Context(), refs, meta)
				if err != nil {
					return err
				}
				return a.printPackage(pkg.Archive, &pkg.Manifest)
			})
		},
	}
	subject.bind(cmd)
	cmd.Flags().StringVar(&requestDate, "request-date", "", "date the request was received, e.g. 2024-03-01")
	return cmd
}

func newVendorsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List the supported vendor adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := providers.NewRegistry(logger.Discard())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				type vendor struct {
					Vendor string `json:"vendor"`
					source.Capabilities
				}
				var list []vendor
				for _, a := range registry.All() {
					list = append(list, vendor{Vendor: a.Vendor(), Capabilities: a.Capabilities()})
				}
				return writeJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VENDOR\tFORMATS\tDESCRIPTION")
			for _, a := range registry.All() {
				caps := a.Capabilities()
				formats := make([]string, len(caps.Formats))
				for i, f := range caps.Formats {
					formats[i] = string(f)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Vendor(), strings.Join(formats, ","), caps.Description)
			}
			return tw.Flush()
		},
	}
}

// parseSources turns repeated vendor=path flags into jobs.
func parseSources(raw []string) ([]pipeline.Job, error) {
	jobs := make([]pipeline.Job, 0, len(raw))
	for _, s := range raw {
		vendor, path, ok := strings.Cut(s, "=")
		vendor, path = strings.TrimSpace(vendor), strings.TrimSpace(path)
		if !ok || vendor == "" || path == "" {
			return nil, fmt.Errorf("--source %q must look like vendor=path: %w", s, sentinel.ErrInvalidInput)
		}
		jobs = append(jobs, pipeline.Job{Vendor: vendor, Path: path})
	}
	return jobs, nil
}

func parseRequestDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, ok := source.ParseTime(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognised --request-date %q: %w", raw, sentinel.ErrInvalidInput)
	}
	return t, nil
}

// failedErr turns failed sources into a non-zero exit.
func failedErr(res *pipeline.Result) error {
	failed := res.Failed()
	if len(failed) == 0 {
		return nil
	}
	vendors := make([]string, len(failed))
	for i, o := range failed {
		vendors[i] = o.Vendor
	}
	return fmt.Errorf("%d of %d sources failed: %s", len(failed), len(res.Outcomes), strings.Join(vendors, ", "))
}

func (a *app) printResult(res *pipeline.Result) error {
	if a.jsonOut {
		return writeJSON(a.out, res)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tSTATUS\tRECORDS\tLABELS\tDETAIL")
	for _, o := range res.Outcomes {
		detail := o.Artifacts.Markdown
		if !o.OK() {
			detail = fmt.Sprintf("%s: %s", o.Failure, o.Error)
		}
		labels := 0
		for _, n := range o.Redaction {
			labels += n
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", o.Vendor, o.Status, o.Records, labels, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, o := range res.Outcomes {
		for _, c := range o.Candidates {
			fmt.Fprintf(a.out, "  %s candidate: %s\n", o.Vendor, c.String())
		}
	}
	if res.Manifest != nil {
		return a.printPackage(res.Archive, res.Manifest)
	}
	return nil
}

func (a *app) printPackage(archive string, m *assembler.Manifest) error {
	if a.jsonOut {
		return writeJSON(a.out, struct {
			Archive  string              `json:"archive"`
			Manifest *assembler.Manifest `json:"manifest"`
		}{archive, m})
	}
	fmt.Fprintf(a.out, "\nPackage %s\n", archive)
	fmt.Fprintf(a.out, "  reference: %s\n", m.Package.Reference)
	fmt.Fprintf(a.out, "  sources:   %d of %d included, %d records\n",
		m.Summary.VendorsIncluded, m.Summary.VendorsSearched, m.Summary.TotalRecords)
	for _, ex := range m.Excluded {
		fmt.Fprintf(a.out, "  excluded:  %s (%s)\n", ex.Vendor, ex.Reason)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
