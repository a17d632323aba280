package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"eggjnd/internal/adapters/spectra"
	"eggjnd/internal/export"
	"eggjnd/internal/preprocess"
	"eggjnd/internal/projection"
	"eggjnd/internal/rnl"
	"eggjnd/internal/vismodel"
	"eggjnd/pkg/domain"
)

// output opens path for writing, or returns the command's stdout for "" and "-".
func (a *app) output(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return a.out, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (a *app) writeTo(path string, write func(io.Writer) error) error {
	w, closeFn, err := a.output(path)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func (a *app) readInput(args []string) (domain.ReflectanceSet, error) {
	if len(args) == 1 {
		a.cfg.Input = args[0]
	}
	if a.cfg.Input == "" {
		return domain.ReflectanceSet{}, errors.New("no input: pass a spectra file or set input in the config")
	}
	return spectra.ReadWideFile(a.cfg.Input, a.cfg.Groups)
}

func newCleanCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean [spectra.csv]",
		Short: "Smooth and clamp reflectance spectra",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.readInput(args)
			if err != nil {
				return err
			}
			cleaned, err := preprocess.Clean(set, a.cfg.Preprocess)
			if err != nil {
				return err
			}
			a.logger.Debug("spectra cleaned", "samples", cleaned.Len(), "span", a.cfg.Preprocess.Span)
			return a.writeTo(output, func(w io.Writer) error { return spectra.WriteWide(w, cleaned) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV (default stdout)")
	return cmd
}

func newDistancesCmd(a *app) *cobra.Command {
	var (
		output string
		group  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "distances [spectra.csv]",
		Short: "Compute pairwise JND distances for one sample group",
		Long: `distances cleans the spectra of one group, converts them into receptor
quantum catches and prints the pairwise chromatic and achromatic distances in
JND units. --json writes the lossless matrix that "project" reads.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.readInput(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("group") {
				set = set.Subset(group)
			} else if gs := set.Groups(); len(gs) > 1 {
				return fmt.Errorf("input holds groups %q: choose one with --group", gs)
			}
			m, err := a.distances(set, group)
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeTo(output, func(w io.Writer) error { return export.EncodeMatrix(w, m) })
			}
			return a.writeTo(output, func(w io.Writer) error { return export.WriteJNDTable(w, m) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&group, "group", "", "Group tag to process")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the JSON matrix instead of the CSV table")
	return cmd
}

// distances runs preprocessing, the visual model and the distance stage for
// a single group.
func (a *app) distances(set domain.ReflectanceSet, group string) (*domain.JNDMatrix, error) {
	settings, err := a.settings()
	if err != nil {
		return nil, err
	}
	cleaned, err := preprocess.Clean(set, settings.Preprocess)
	if err != nil {
		return nil, err
	}
	model, err := vismodel.New(settings.Visual, cleaned.Wavelengths(), settings.Library)
	if err != nil {
		return nil, err
	}
	if err := rnl.CheckModels(settings.Visual, settings.Noise, model.HasAchromatic()); err != nil {
		return nil, err
	}
	catches, err := model.CatchSet(cleaned)
	if err != nil {
		return nil, err
	}
	m, err := rnl.Distances(group, model.Channels(), catches, settings.Noise)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func newProjectCmd(a *app) *cobra.Command {
	var (
		output string
		axes   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "project <jnd.json>",
		Short: "Project a JND matrix into a rotated 3D colour space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			m, err := export.DecodeMatrix(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			p, err := projection.Project(m, a.cfg.Projection)
			if err != nil {
				return err
			}
			a.logger.Debug("projected", "points", len(p.Points), "stress", p.Stress)
			if axes != "" {
				if err := a.writeTo(axes, func(w io.Writer) error { return export.WriteAxes(w, p) }); err != nil {
					return err
				}
			}
			if asJSON {
				return a.writeTo(output, func(w io.Writer) error { return export.EncodeProjection(w, p) })
			}
			return a.writeTo(output, func(w io.Writer) error { return export.WriteXYZ(w, p) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for coordinates (default stdout)")
	cmd.Flags().StringVar(&axes, "axes", "", "Also write the projected reference axes to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the projection as JSON")
	return cmd
}
