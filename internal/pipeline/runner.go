// Package pipeline drives reflectance groups through cleaning, the visual
// model, RNL distances and projection, storing every stage's artifacts and
// a run record per group.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"eggjnd/internal/adapters/spectra"
	"eggjnd/internal/blob"
	"eggjnd/internal/export"
	"eggjnd/internal/logging"
	"eggjnd/internal/observability"
	"eggjnd/internal/preprocess"
	"eggjnd/internal/projection"
	"eggjnd/internal/rnl"
	"eggjnd/internal/storage"
	"eggjnd/internal/swatch"
	"eggjnd/internal/vismodel"
	"eggjnd/pkg/domain"
)

// Settings are the model parameters of a run.
type Settings struct {
	Preprocess preprocess.Options
	Visual     domain.VisualModelConfig
	Noise      domain.NoiseModelConfig
	Projection domain.ProjectionConfig
	Swatch     swatch.Options
	Library    vismodel.Library
	// Parallel runs groups concurrently.
	Parallel bool
	// Digest is copied into every run record.
	Digest string
}

// Runner executes pipeline instances. It holds no per-run state and may be
// shared between goroutines.
type Runner struct {
	settings Settings
	logger   logging.Logger
	metrics  observability.MetricsRecorder
	tracer   observability.Tracer
	blobs    blob.Store
	runs     domain.RunStore
	now      func() time.Time
	newID    func() string
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder observing every stage.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer sets the tracer wrapping every stage in a span.
func WithTracer(t observability.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithBlobStore sets the artifact store; the default keeps artifacts in memory.
func WithBlobStore(s blob.Store) Option {
	return func(r *Runner) {
		if s != nil {
			r.blobs = s
		}
	}
}

// WithRunStore sets where run records go; the default keeps them in memory.
func WithRunStore(s domain.RunStore) Option {
	return func(r *Runner) {
		if s != nil {
			r.runs = s
		}
	}
}

// WithClock overrides time.Now, for deterministic records in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides the uuid-based run and record ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Runner) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRunner validates the settings that do not depend on input data.
func NewRunner(settings Settings, opts ...Option) (*Runner, error) {
	if err := settings.Preprocess.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Visual.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		settings: settings,
		logger:   logging.Nop(),
		metrics:  observability.NopRecorder{},
		tracer:   observability.NopTracer{},
		blobs:    blob.NewMemory(),
		runs:     storage.NewMemory(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Blobs returns the artifact store the runner writes to.
func (r *Runner) Blobs() blob.Store { return r.blobs }

// Runs returns the run-record store.
func (r *Runner) Runs() domain.RunStore { return r.runs }

// GroupResult is the outcome of one group. Fields after Record are set up
// to the last stage that succeeded.
type GroupResult struct {
	Group      string
	Record     domain.RunRecord
	Cleaned    domain.ReflectanceSet
	Catches    []domain.QuantumCatch
	Matrix     *domain.JNDMatrix
	Projection *domain.Projection
	Swatches   []swatch.Swatch
	Err        error
}

// Result collects every group of one run.
type Result struct {
	RunID  string
	Groups []GroupResult
}

// Failed returns the groups that did not complete.
func (r Result) Failed() []GroupResult {
	var out []GroupResult
	for _, g := range r.Groups {
		if g.Err != nil {
			out = append(out, g)
		}
	}
	return out
}

// Run processes every requested group of set. Groups are selected by label;
// an empty selection processes every label present. A failing group does not
// stop the others; the returned error joins all group failures.
func (r *Runner) Run(ctx context.Context, set domain.ReflectanceSet, groups ...string) (Result, error) {
	if set.Len() == 0 {
		return Result{}, domain.ValidationError{Stage: domain.StageIngest, Reason: "no spectra"}
	}
	if len(groups) == 0 {
		groups = set.Groups()
	}
	res := Result{RunID: r.newID(), Groups: make([]GroupResult, len(groups))}
	r.logger.Info("run started", "run", res.RunID, "groups", len(groups), "samples", set.Len(), "parallel", r.settings.Parallel)

	err := RunGroups(ctx, groups, r.settings.Parallel, func(ctx context.Context, i int, group string) error {
		gr := r.RunGroup(ctx, res.RunID, group, set.Subset(group))
		res.Groups[i] = gr
		return gr.Err
	})
	for i, gr := range res.Groups {
		// RunGroups skips groups once ctx is done; RunGroup always assigns an ID.
		if gr.Record.ID == "" {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("not started")
			}
			res.Groups[i] = GroupResult{Group: groups[i], Err: fmt.Errorf("group %q: %w", groups[i], cause)}
		}
	}
	if err != nil {
		r.logger.Error("run finished with failures", "run", res.RunID, "failed", len(res.Failed()), "error", err)
		return res, err
	}
	r.logger.Info("run finished", "run", res.RunID)
	return res, nil
}

// RunGroup runs one pipeline instance over set, which must hold only the
// samples of group. Artifacts of stages that completed remain in the blob
// store when a later stage fails.
func (r *Runner) RunGroup(ctx context.Context, runID, group string, set domain.ReflectanceSet) GroupResult {
	created := r.now()
	gr := GroupResult{Group: group, Record: domain.RunRecord{
		ID:           r.newID(),
		RunID:        runID,
		Group:        group,
		Status:       domain.RunStatusRunning,
		Samples:      set.Len(),
		ConfigDigest: r.settings.Digest,
		CreatedAt:    created,
		UpdatedAt:    created,
	}}
	ctx = observability.WithAttributes(ctx, map[string]string{"run": runID, "group": group})
	log := logging.With(r.logger, "run", runID, "group", group)
	if sr, ok := r.metrics.(interface{ SetSamples(string, int) }); ok {
		sr.SetSamples(group, set.Len())
	}
	if err := r.runs.Save(ctx, gr.Record); err != nil {
		gr.Err = fmt.Errorf("group %q: save run record: %w", group, err)
		return gr
	}

	g := &groupRun{Runner: r, log: log, res: &gr}
	err := g.execute(ctx, set)

	ended := r.now()
	gr.Record.UpdatedAt = ended
	gr.Record.CompletedAt = &ended
	gr.Record.Status = domain.RunStatusSucceeded
	if err != nil {
		gr.Record.Status = domain.RunStatusFailed
		gr.Record.Error = err.Error()
	}
	if serr := r.runs.Save(ctx, gr.Record); serr != nil {
		serr = fmt.Errorf("save run record: %w", serr)
		err = errors.Join(err, serr)
	}
	if err != nil {
		gr.Err = fmt.Errorf("group %q: %w", group, err)
		log.Error("group failed", "error", err)
		return gr
	}
	log.Info("group done", "samples", set.Len(), "stress", gr.Projection.Stress)
	return gr
}

type groupRun struct {
	*Runner
	log logging.Logger
	res *GroupResult
}

func (g *groupRun) execute(ctx context.Context, set domain.ReflectanceSet) error {
	s := g.settings
	var (
		cleaned domain.ReflectanceSet
		model   *vismodel.Model
	)
	if err := g.stage(ctx, domain.StagePreprocess, func(emit emitter) error {
		var err error
		if cleaned, err = preprocess.Clean(set, s.Preprocess); err != nil {
			return err
		}
		g.res.Cleaned = cleaned
		return emit(export.ArtifactCleaned, "text/csv", func(w io.Writer) error { return spectra.WriteWide(w, cleaned) })
	}); err != nil {
		return err
	}

	if err := g.stage(ctx, domain.StageVisual, func(emit emitter) error {
		var err error
		if model, err = vismodel.New(s.Visual, cleaned.Wavelengths(), s.Library); err != nil {
			return err
		}
		if err := rnl.CheckModels(s.Visual, s.Noise, model.HasAchromatic()); err != nil {
			return err
		}
		catches, err := model.CatchSet(cleaned)
		if err != nil {
			return err
		}
		g.res.Catches = catches
		return emit(export.ArtifactCatches, "text/csv", func(w io.Writer) error {
			return export.WriteCatches(w, model.Channels(), catches, model.HasAchromatic())
		})
	}); err != nil {
		return err
	}

	if err := g.stage(ctx, domain.StageDistance, func(emit emitter) error {
		m, err := rnl.Distances(g.res.Group, model.Channels(), g.res.Catches, s.Noise)
		if err != nil {
			return err
		}
		g.res.Matrix = &m
		if err := emit(export.ArtifactJNDTable, "text/csv", func(w io.Writer) error { return export.WriteJNDTable(w, &m) }); err != nil {
			return err
		}
		return emit(export.ArtifactJNDMatrix, "application/json", func(w io.Writer) error { return export.EncodeMatrix(w, &m) })
	}); err != nil {
		return err
	}

	return g.stage(ctx, domain.StageProjection, func(emit emitter) error {
		p, err := projection.Project(g.res.Matrix, s.Projection)
		if err != nil {
			return err
		}
		g.res.Projection = &p
		sw, err := swatch.FromSet(cleaned, s.Swatch)
		if err != nil {
			return err
		}
		g.res.Swatches = sw
		for _, a := range []struct {
			name, contentType string
			render            func(io.Writer) error
		}{
			{export.ArtifactXYZ, "text/csv", func(w io.Writer) error { return export.WriteXYZ(w, p) }},
			{export.ArtifactAxes, "text/csv", func(w io.Writer) error { return export.WriteAxes(w, p) }},
			{export.ArtifactColors, "text/csv", func(w io.Writer) error { return export.WriteColors(w, sw) }},
			{export.ArtifactProjection, "application/json", func(w io.Writer) error { return export.EncodeProjection(w, p) }},
		} {
			if err := emit(a.name, a.contentType, a.render); err != nil {
				return err
			}
		}
		return nil
	})
}

type emitter func(name, contentType string, render func(io.Writer) error) error

type artifact struct {
	name, contentType string
	render            func(io.Writer) error
}

// stage runs fn inside a span, records its outcome on the run record and
// reports it to the metrics recorder. Artifacts emitted by fn are stored
// only after fn succeeds, so a failed stage persists nothing.
func (g *groupRun) stage(ctx context.Context, stage domain.Stage, fn func(emitter) error) error {
	ctx, span := g.tracer.Start(ctx, string(stage))
	start := g.now()
	g.log.Debug("stage start", "stage", stage)

	var queued []artifact
	err := fn(func(name, contentType string, render func(io.Writer) error) error {
		queued = append(queued, artifact{name, contentType, render})
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	var keys []string
	if err == nil {
		keys, err = g.store(ctx, queued)
	}

	end := g.now()
	dur := end.Sub(start)
	outcome := domain.StageOutcome{
		Stage:      stage,
		Success:    err == nil,
		DurationMS: float64(dur) / float64(time.Millisecond),
		Artifacts:  keys,
		EndedAt:    end,
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	g.res.Record.Stages = append(g.res.Record.Stages, outcome)
	g.metrics.Observe(ctx, string(stage), err == nil, dur)
	span.End(err)
	if err != nil {
		g.log.Warn("stage failed", "stage", stage, "error", err)
		return err
	}
	g.log.Debug("stage done", "stage", stage, "artifacts", len(keys), "duration_ms", outcome.DurationMS)
	return nil
}

// store renders every artifact before writing any, and removes the ones
// already written when a later write fails.
func (g *groupRun) store(ctx context.Context, queued []artifact) ([]string, error) {
	rendered := make([][]byte, len(queued))
	for i, a := range queued {
		var buf bytes.Buffer
		if err := a.render(&buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", a.name, err)
		}
		rendered[i] = buf.Bytes()
	}
	keys := make([]string, 0, len(queued))
	for i, a := range queued {
		key := blob.ArtifactKey(g.res.Record.RunID, g.res.Group, a.name)
		data := rendered[i]
		if _, err := blob.WriteArtifact(ctx, g.blobs, key, a.contentType, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}); err != nil {
			for _, k := range keys {
				if _, derr := g.blobs.Delete(ctx, k); derr != nil {
					g.log.Warn("artifact cleanup failed", "key", k, "error", derr)
				}
			}
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
