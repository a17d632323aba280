package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"eggjnd/internal/adapters/spectra"
	"eggjnd/internal/blob"
	"eggjnd/internal/observability"
	"eggjnd/internal/pipeline"
	"eggjnd/internal/storage"
	"eggjnd/pkg/domain"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		outDir   string
		groups   []string
		parallel bool
	)
	cmd := &cobra.Command{
		Use:   "run [spectra.csv]",
		Short: "Run the full pipeline for every sample group",
		Long: `run reads a wide reflectance table (wavelength column followed by one column
per sample), splits it into groups by --groups tags and writes the cleaned
spectra, quantum catches, JND tables and the projected colour space of every
group to the artifact store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Input = args[0]
			}
			if outDir != "" {
				a.cfg.Blob = blob.Config{Driver: blob.DriverFilesystem, FSRoot: outDir}
			}
			if cmd.Flags().Changed("groups") {
				a.cfg.Groups = groups
			}
			if cmd.Flags().Changed("parallel") {
				a.cfg.Parallel = parallel
			}
			_, err := a.runPipeline(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write artifacts below this directory (filesystem driver)")
	cmd.Flags().StringSliceVarP(&groups, "groups", "g", nil, "Group tags matched against sample column names")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Process groups concurrently")
	return cmd
}

// runPipeline executes one run with the stores and observers named in the
// configuration and prints one summary line per group.
func (a *app) runPipeline(ctx context.Context) (pipeline.Result, error) {
	cfg := a.cfg
	if cfg.Input == "" {
		return pipeline.Result{}, errors.New("no input: pass a spectra file or set input in the config")
	}
	set, err := spectra.ReadWideFile(cfg.Input, cfg.Groups)
	if err != nil {
		return pipeline.Result{}, err
	}
	groups, err := selectGroups(set, cfg.Groups)
	if err != nil {
		return pipeline.Result{}, err
	}
	if untagged := set.Subset("").Len(); len(cfg.Groups) > 0 && untagged > 0 {
		a.logger.Warn("samples match no group tag and are skipped", "count", untagged)
	}

	settings, err := a.settings()
	if err != nil {
		return pipeline.Result{}, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return pipeline.Result{}, err
	}
	runs, err := storage.OpenRunStore(ctx, cfg.Storage)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer func() {
		if cerr := runs.Close(); cerr != nil {
			a.logger.Warn("close run store", "error", cerr)
		}
	}()

	metrics := observability.NewPrometheusRecorder()
	var tracer observability.Tracer = observability.NopTracer{}
	if cfg.TraceFile != "" {
		f, err := os.Create(cfg.TraceFile)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		tracer = observability.NewJSONTracer(f)
	}

	runner, err := pipeline.NewRunner(settings,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetricsRecorder(metrics),
		pipeline.WithTracer(tracer),
		pipeline.WithBlobStore(blobs),
		pipeline.WithRunStore(runs),
	)
	if err != nil {
		return pipeline.Result{}, err
	}
	res, runErr := runner.Run(ctx, set, groups...)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			a.logger.Warn("write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	a.printSummary(res)
	return res, runErr
}

// selectGroups returns the tagged groups present in set, in tag order. With
// no tags every sample belongs to the single unlabelled group.
func selectGroups(set domain.ReflectanceSet, tags []string) ([]string, error) {
	if len(tags) == 0 {
		return set.Groups(), nil
	}
	present := set.Groups()
	var out []string
	for _, tag := range tags {
		if slices.Contains(present, tag) && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil, domain.ValidationError{Stage: domain.StageIngest, Reason: fmt.Sprintf("no sample matches the group tags %v", tags)}
	}
	return out, nil
}

func (a *app) printSummary(res pipeline.Result) {
	fmt.Fprintf(a.out, "run %s\n", res.RunID)
	for _, g := range res.Groups {
		name := g.Group
		if name == "" {
			name = "all"
		}
		if g.Err != nil || g.Projection == nil {
			fmt.Fprintf(a.out, "  %-12s failed   samples=%d error=%v\n", name, g.Record.Samples, g.Err)
			continue
		}
		fmt.Fprintf(a.out, "  %-12s ok       samples=%d stress=%.4f artifacts=%d\n",
			name, g.Record.Samples, g.Projection.Stress, len(g.Record.Artifacts()))
	}
}
