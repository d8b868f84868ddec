package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"valuation-workers/internal/common/config"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/report"
	"valuation-workers/internal/repository"
	"valuation-workers/internal/valuation"
)

type options struct {
	method      string
	allMethods  bool
	report      bool
	configPath  string
	properties  string
	comparables string
	company     string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "valuate PROPERTY_ID",
		Short: "Estimate the market value of a property from CSV extracts",
		Long: `valuate loads the property and comparable sales extracts named in the
config (or by flag) and values one property with the chosen method, or with
every method ranked by confidence.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.allMethods && !valuation.Method(opts.method).Valid() {
				return fmt.Errorf("invalid method %q (choose from %s)", opts.method, methodNames())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "m", string(valuation.DefaultMethod), "valuation method: "+methodNames())
	f.BoolVarP(&opts.allMethods, "all-methods", "a", false, "run all valuation methods and rank them by confidence")
	f.BoolVar(&opts.report, "report", false, "print the full report as JSON")
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default searches ./configs)")
	f.StringVar(&opts.properties, "properties", "", "property CSV, overrides data.properties_path")
	f.StringVar(&opts.comparables, "comparables", "", "comparable sales CSV, overrides data.comparables_path")
	f.StringVar(&opts.company, "company", "", "company name printed on the report, overrides report.company_name")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	return cmd
}

func run(ctx context.Context, out, diag io.Writer, propertyID string, opts *options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	log, zapLog := logger.NewFromConfig(opts.logLevel, "console", "stderr")
	defer zapLog.Sync()

	repo, err := repository.LoadCSV(
		firstNonEmpty(opts.properties, cfg.Data.PropertiesPath),
		firstNonEmpty(opts.comparables, cfg.Data.ComparablesPath),
		log,
	)
	if err != nil {
		return err
	}

	subject, err := repo.GetProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, valuation.ErrPropertyNotFound) {
			return fmt.Errorf("property with ID %s not found", propertyID)
		}
		return err
	}

	appraiser := valuation.NewAppraiser(valuation.NewEngine(cfg.Valuation, log), repo)

	var results []valuation.Result
	if opts.allMethods {
		fmt.Fprintln(diag, "Running all valuation methods...")
		if results, err = appraiser.AppraiseAll(ctx, subject.ID); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(diag, "Calculating valuation using %s method...\n", opts.method)
		res, err := appraiser.Appraise(ctx, subject.ID, opts.method)
		if err != nil {
			return err
		}
		results = []valuation.Result{res}
	}

	r, err := report.NewBuilder(firstNonEmpty(opts.company, cfg.Report.CompanyName)).Build(subject, results)
	if err != nil {
		return err
	}

	if opts.report {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return printSummary(out, r)
}

func printSummary(out io.Writer, r *report.Report) error {
	p := r.Property
	fmt.Fprintf(out, "%s  %s\n", r.ReportID, r.ReportDate)
	fmt.Fprintf(out, "Property %s: %s, %s, %s (%s, %s sqft)\n\n", p.ID, p.Address, p.City, p.State, p.PropertyType, p.Sqft)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tVALUE\tCONFIDENCE\tNOTE")
	for _, line := range r.Methods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", line.Title, line.Value, line.Confidence, line.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nEstimated value: %s (%s, %s confidence)\n",
		r.Valuation.FinalValue, r.Valuation.PrimaryMethod, r.Valuation.PrimaryConfidence)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func methodNames() string {
	names := make([]string, len(valuation.Methods))
	for i, m := range valuation.Methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
