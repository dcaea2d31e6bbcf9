// Package solver runs the external radiative-transfer program for one
// parameter record and reads its fixed-position result line.
//
// The program is driven the way it is used interactively: an answer script
// is written to its standard input, and the result is read back from the
// output file it writes. The output and log files live at fixed paths, so a
// [Radex] invoker must not be used concurrently.
package solver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/snoopython/wradex/internal/ctxlog"
	"github.com/valyala/fasttemplate"
)

// finishedMarker precedes the result block in the output file.
const finishedMarker = "calculation finished"

// waitDelay bounds how long Wait blocks on pipes after the process is killed.
const waitDelay = 2 * time.Second

// Request is one grid cell handed to the solver. Params are plain numbers in
// the solver's input units; FreqMin and FreqMax are in GHz.
type Request struct {
	Params  map[string]float64
	Moldata string
	FreqMin float64
	FreqMax float64
}

// Record maps output quantity names to raw values. NaN marks a value the
// output did not provide.
type Record map[string]float64

// Invoker runs one solver computation.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Record, error)
}

// Config describes the solver executable and its file protocol.
type Config struct {
	Path       string
	Input      string
	OutputPath string
	LogPath    string
	Timeout    time.Duration
	Outputs    []string
}

// Radex invokes the RADEX executable through its stdin prompt protocol.
type Radex struct {
	cfg  Config
	tmpl *fasttemplate.Template
}

// NewRadex compiles the input template.
func NewRadex(cfg Config) (*Radex, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty solver path", ErrSolverExecution)
	}
	tmpl, err := fasttemplate.NewTemplate(cfg.Input, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return &Radex{cfg: cfg, tmpl: tmpl}, nil
}

// Outputs returns the output quantity names in result-line order.
func (r *Radex) Outputs() []string {
	return append([]string(nil), r.cfg.Outputs...)
}

// Input renders the answer script for req.
func (r *Radex) Input(req Request) (string, error) {
	values := map[string]string{
		"moldata": req.Moldata,
		"output":  r.cfg.OutputPath,
		"f_min":   formatNumber(req.FreqMin),
		"f_max":   formatNumber(req.FreqMax),
	}
	for name, v := range req.Params {
		values[name] = formatNumber(v)
	}

	return r.tmpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		v, ok := values[tag]
		if !ok {
			return 0, fmt.Errorf("%w: unknown placeholder {%s}", ErrTemplate, tag)
		}
		return w.Write([]byte(v))
	})
}

// Invoke runs the solver once. The output and log files are removed after
// the result has been read, so the next call never sees stale content.
// A result that cannot be parsed is returned as a NaN-filled record together
// with an error wrapping ErrOutputParse.
func (r *Radex) Invoke(ctx context.Context, req Request) (Record, error) {
	logger := ctxlog.FromContext(ctx)

	input, err := r.Input(req)
	if err != nil {
		return nil, err
	}
	if err := removeIfExists(r.cfg.OutputPath); err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.cfg.Path)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err = cmd.Run()
	if ctxErr := runCtx.Err(); ctxErr != nil {
		_ = r.cleanup()
		return nil, &ExecError{Path: r.cfg.Path, Stderr: strings.TrimSpace(stderr.String()), Wrapped: ctxErr}
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		logger.Warn("solver exited with non-zero status",
			"code", exitErr.ExitCode(), "stderr", strings.TrimSpace(stderr.String()))
	case err != nil:
		return nil, &ExecError{Path: r.cfg.Path, Wrapped: err}
	}
	logger.Debug("solver finished", "elapsed", time.Since(start), "stdout_bytes", stdout.Len())

	rec, parseErr := r.readOutput()
	if err := r.cleanup(); err != nil {
		return nil, err
	}
	return rec, parseErr
}

func (r *Radex) readOutput() (Record, error) {
	f, err := os.Open(r.cfg.OutputPath)
	if errors.Is(err, os.ErrNotExist) {
		return NaNRecord(r.cfg.Outputs), fmt.Errorf("%w: no output file %s", ErrOutputParse, r.cfg.OutputPath)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseOutput(f, r.cfg.Outputs)
}

func (r *Radex) cleanup() error {
	if err := removeIfExists(r.cfg.OutputPath); err != nil {
		return err
	}
	if r.cfg.LogPath == "" {
		return nil
	}
	return removeIfExists(r.cfg.LogPath)
}

// ParseOutput finds the "calculation finished" line, skips the two header
// lines below it and maps fields 3.. of the next line onto names. Missing or
// non-numeric fields are NaN and reported through an ErrOutputParse error.
func ParseOutput(r io.Reader, names []string) (Record, error) {
	rec := NaNRecord(names)

	sc := bufio.NewScanner(r)
	found := false
	for sc.Scan() {
		if strings.Contains(strings.ToLower(sc.Text()), finishedMarker) {
			found = true
			break
		}
	}
	if !found {
		return rec, fmt.Errorf("%w: %q not found", ErrOutputParse, finishedMarker)
	}

	for i := 0; i < 3; i++ {
		if !sc.Scan() {
			return rec, fmt.Errorf("%w: result block truncated", ErrOutputParse)
		}
	}
	fields := strings.Fields(sc.Text())

	var bad []string
	for i, name := range names {
		j := i + 3
		if j >= len(fields) {
			bad = append(bad, name)
			continue
		}
		v, err := strconv.ParseFloat(fields[j], 64)
		if err != nil {
			bad = append(bad, name)
			continue
		}
		rec[name] = v
	}
	if len(bad) > 0 {
		return rec, fmt.Errorf("%w: fields %s", ErrOutputParse, strings.Join(bad, ", "))
	}
	return rec, nil
}

// NaNRecord returns a record with every name set to NaN.
func NaNRecord(names []string) Record {
	rec := make(Record, len(names))
	for _, name := range names {
		rec[name] = math.NaN()
	}
	return rec
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
