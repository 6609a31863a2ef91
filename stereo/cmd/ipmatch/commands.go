package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/stereo/session"
)

// PairReport summarizes the alignment of one pair.
type PairReport struct {
	Name       string                  `json:"name"`
	Method     session.AlignmentMethod `json:"method"`
	Homography []float64               `json:"homography,omitempty"`
	Error      string                  `json:"error,omitempty"`

	Matches           int        `json:"matches,omitempty"`
	HomographyInliers int        `json:"homography_inliers,omitempty"`
	GeometryFiltered  bool       `json:"geometry_filtered,omitempty"`
	ResidualMedian    float64    `json:"residual_median_m,omitempty"`
	ResidualP90       float64    `json:"residual_p90_m,omitempty"`
	Footprint         *orb.Bound `json:"footprint,omitempty"`
	Extent            float64    `json:"extent_m,omitempty"`
}

func newPairReport(name string, aligned *session.Alignment) PairReport {
	report := PairReport{Name: name, Method: aligned.Method, Homography: aligned.Homography.Data()}
	if res := aligned.Result; res != nil {
		report.Matches = len(res.Left)
		report.HomographyInliers = len(res.HomographyInliers)
		if res.Filter != nil && res.Filter.Success {
			report.GeometryFiltered = true
			report.ResidualMedian = res.Filter.ResidualMedian
			report.ResidualP90 = res.Filter.ResidualP90
			footprint := res.Filter.Footprint
			report.Footprint = &footprint
			report.Extent = res.Filter.Extent
		}
	}
	return report
}

func matchAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	inputs, err := e.scenario.Inputs()
	if err != nil {
		return err
	}

	total := 0
	for _, in := range inputs {
		total += len(in.Left)
	}
	progress, err := startProgress(c.Bool(flagQuiet), total)
	if err != nil {
		return err
	}
	for i := range inputs {
		inputs[i].Progress = progress.increment
	}
	aligned, alignErr := e.sess.AlignPairs(c.Context, inputs, e.cfg.Parallelism)
	progress.stop()
	if aligned == nil {
		return alignErr
	}

	// Failed pairs and their errors are in the same order.
	failures := multierr.Errors(alignErr)
	reports := make([]PairReport, len(inputs))
	for i, in := range inputs {
		if aligned[i] != nil {
			reports[i] = newPairReport(in.Name, aligned[i])
			continue
		}
		reports[i] = PairReport{Name: in.Name, Method: e.sess.AlignmentMethod(), Error: "alignment failed"}
		if len(failures) > 0 {
			reports[i].Error = failures[0].Error()
			failures = failures[1:]
		}
	}
	for _, err := range multierr.Errors(alignErr) {
		e.logger.Warnw("pair failed", "error", err)
	}
	return multierr.Combine(alignErr, writeReport(c, reports))
}

func bootstrapAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	inputs, err := e.scenario.Inputs()
	if err != nil {
		return err
	}

	var opts []ipmatch.Option
	if hc := e.cfg.Homography; hc != nil {
		opts = append(opts, ipmatch.WithIterations(hc.Iterations))
		if hc.Seed != nil {
			opts = append(opts, ipmatch.WithSeed(*hc.Seed))
		}
	}
	opts = append(opts, ipmatch.WithLogger(e.logger))

	reports := make([]PairReport, 0, len(inputs))
	for _, in := range inputs {
		datum, err := e.sess.Datum(in)
		if err != nil {
			return err
		}
		h, err := ipmatch.BootstrapHomography(c.Context, in.LeftCamera, in.RightCamera, in.LeftBounds, in.RightBounds, datum, opts...)
		if err != nil {
			return errors.Wrapf(err, "pair %q", in.Name)
		}
		reports = append(reports, newPairReport(in.Name, &session.Alignment{Method: session.AlignHomography, Homography: h}))
	}
	return writeReport(c, reports)
}

func writeReport(c *cli.Context, reports []PairReport) error {
	path := c.Path(flagOutput)
	if path == "" {
		return encodeReport(c.App.Writer, reports)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return multierr.Combine(encodeReport(f, reports), f.Close())
}

func encodeReport(w io.Writer, reports []PairReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func listSessions(w io.Writer) error {
	reg := session.DefaultRegistry()
	for _, name := range reg.Names() {
		t, _ := reg.Lookup(name)
		methods := make([]string, len(t.Alignments))
		for i, m := range t.Alignments {
			methods[i] = string(m)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(methods, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// progressBar reports matching progress across concurrently processed pairs.
type progressBar struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

func startProgress(quiet bool, total int) (*progressBar, error) {
	if quiet || total == 0 {
		return &progressBar{}, nil
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("matching interest points").
		WithWriter(os.Stderr).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return nil, err
	}
	return &progressBar{bar: bar}, nil
}

func (p *progressBar) increment() {
	if p.bar == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Increment()
}

func (p *progressBar) stop() {
	if p.bar == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.bar.Stop()
	utils.UncheckedError(err)
}
