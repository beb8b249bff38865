// Package preflight verifies that an extraction run can start before any
// browser work happens: selector file, input workbook, browser
// availability and writable output locations.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opextools/portal_agent/internal/browser"
	"github.com/opextools/portal_agent/internal/config"
	"github.com/opextools/portal_agent/internal/input"
	"github.com/opextools/portal_agent/internal/portal"
)

// Stage is one named check. Run returns findings worth surfacing even on
// success, and an error when the check fails.
type Stage struct {
	Name string
	Run  func(ctx context.Context) ([]string, error)
}

// Run executes every stage in order, writing one verdict line per stage
// followed by its findings. Later stages still run after a failure so the
// report covers the whole environment; the returned error names the
// stages that failed.
func Run(ctx context.Context, w io.Writer, stages []Stage) error {
	var failed []string
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		findings, err := st.Run(ctx)
		if err != nil {
			failed = append(failed, st.Name)
			fmt.Fprintf(w, "fail %s: %v\n", st.Name, err)
		} else {
			fmt.Fprintf(w, "ok   %s\n", st.Name)
		}
		for _, f := range findings {
			fmt.Fprintf(w, "     %s\n", f)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Stages builds the standard pipeline for one run configuration.
// outputPath may be empty when no consolidated workbook is planned.
func Stages(cfg *config.RunConfig, inputPath, outputPath string) []Stage {
	return []Stage{
		{Name: "selectors", Run: func(context.Context) ([]string, error) {
			return checkSelectors(cfg.SelectorsFile)
		}},
		{Name: "input", Run: func(context.Context) ([]string, error) {
			return checkInput(inputPath)
		}},
		{Name: "browser", Run: func(ctx context.Context) ([]string, error) {
			return checkBrowser(ctx, cfg)
		}},
		{Name: "output", Run: func(context.Context) ([]string, error) {
			return checkOutput(cfg, outputPath)
		}},
	}
}

func checkSelectors(path string) ([]string, error) {
	sel, err := portal.LoadSelectors(path)
	if err != nil {
		return nil, err
	}
	var findings []string
	if sel.SearchButton == "" {
		findings = append(findings, "botao_consultar not set, queries will be triggered by blurring the field")
	}
	if sel.PostLogin == "" {
		findings = append(findings, fmt.Sprintf("pos_login not set, using %q as the post-login marker", sel.PostLoginMarker()))
	}
	return findings, nil
}

func checkInput(path string) ([]string, error) {
	batch, err := input.Load(path)
	if err != nil {
		return nil, err
	}
	findings := []string{fmt.Sprintf("%d rows, %d with identifiers", len(batch.Records), batch.NonEmpty())}
	if batch.NonEmpty() == 0 {
		findings = append(findings, "no row carries an identifier, a run would produce no workbook")
	}
	return findings, nil
}

func checkBrowser(ctx context.Context, cfg *config.RunConfig) ([]string, error) {
	if cfg.CDPURL != "" {
		if err := browser.ProbeCDP(ctx, cfg.CDPURL); err != nil {
			return nil, fmt.Errorf("CDP endpoint unreachable: %w", err)
		}
		return []string{fmt.Sprintf("CDP endpoint reachable at %s", cfg.CDPURL)}, nil
	}
	if cfg.BrowserPath != "" {
		if _, err := os.Stat(cfg.BrowserPath); err != nil {
			return nil, fmt.Errorf("configured browser binary: %w", err)
		}
		return []string{fmt.Sprintf("browser binary: %s", cfg.BrowserPath)}, nil
	}
	path, err := browser.Detect()
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("browser binary: %s", path)}, nil
}

func checkOutput(cfg *config.RunConfig, outputPath string) ([]string, error) {
	dirs := []string{filepath.Dir(cfg.StreamPath), cfg.SnapshotDir}
	if cfg.TraceEnabled {
		dirs = append(dirs, cfg.TraceDir)
	}
	if outputPath != "" {
		dirs = append(dirs, filepath.Dir(outputPath))
	}

	var findings []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := probeDir(dir); err != nil {
			return findings, err
		}
		findings = append(findings, fmt.Sprintf("%s writable", dir))
	}
	return findings, nil
}

// probeDir creates the directory if needed and verifies a file can be
// written into it.
func probeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s not writable: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return fmt.Errorf("%s not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
