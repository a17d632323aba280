package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eggjnd/internal/adapters/spectra"
	"eggjnd/internal/config"
	"eggjnd/internal/logging"
	"eggjnd/internal/pipeline"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger logging.Logger
	sync   func() error

	out, errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, logger: logging.Nop(), sync: func() error { return nil }}
	root := &cobra.Command{
		Use:   "eggjnd",
		Short: "Receptor-noise-limited colour distances for bird eggs",
		Long: `eggjnd turns egg reflectance spectra into perceptual distances as seen by a
bird: spectra are smoothed and clamped, converted into receptor quantum catches
with von Kries adaptation, compared pairwise with the receptor noise limited
model (JND units) and projected into a rotated, centred 3D colour space.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.sync()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "eggjnd.yaml", "Configuration file (missing file uses defaults)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newRunCmd(a),
		newCleanCmd(a),
		newDistancesCmd(a),
		newProjectCmd(a),
		newWatchCmd(a),
		newRunsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", a.configPath, err)
	}
	zl, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.sync = cfg, zl, zl.Sync
	return nil
}

// settings resolves the curve library and collects the model parameters.
func (a *app) settings() (pipeline.Settings, error) {
	s := pipeline.Settings{
		Preprocess: a.cfg.Preprocess,
		Visual:     a.cfg.Visual,
		Noise:      a.cfg.Noise,
		Projection: a.cfg.Projection,
		Swatch:     a.cfg.Swatch,
		Parallel:   a.cfg.Parallel,
		Digest:     a.cfg.Digest(),
	}
	if len(a.cfg.Curves) > 0 {
		lib, err := spectra.LoadLibrary(a.cfg.Curves)
		if err != nil {
			return pipeline.Settings{}, err
		}
		s.Library = lib
	}
	return s, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintln(a.out, "eggjnd", version)
			return err
		},
	}
}
