package preflight

import (
	"context"

	"wmclean/internal/config"
)

// Category groups checks by what they guard.
type Category string

const (
	CategoryStorage     Category = "storage"
	CategoryCredentials Category = "credentials"
	CategoryDetection   Category = "detection"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryStorage, CategoryCredentials, CategoryDetection}

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Category Category
	Passed   bool
	Detail   string
}

func (r Result) in(category Category) Result {
	r.Category = category
	return r
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll executes the checks that apply to method (the configured method when
// empty). Network checks against the prediction API are left to CheckToken.
func RunAll(ctx context.Context, cfg *config.Config, method string) []Result {
	if cfg == nil {
		return nil
	}
	if method == "" {
		method = cfg.Processing.Method
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir).in(CategoryStorage),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir).in(CategoryStorage),
		CheckDiskSpace("Temp disk space", cfg.Paths.TempDir, MinFreeBytes).in(CategoryStorage),
	}
	if cfg.History.Enabled {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir).in(CategoryStorage))
	}

	switch method {
	case config.MethodRemote:
		results = append(results, CheckTokenConfigured(cfg).in(CategoryCredentials))
	case config.MethodLocalGPU:
		if cfg.Local.Detector == config.DetectorHTTP {
			results = append(results, CheckSidecar(ctx, "Detector service", cfg.Local.DetectorURL).in(CategoryDetection))
		} else if len(cfg.Local.Regions) == 0 {
			results = append(results, Result{Name: "Detector regions", Category: CategoryDetection, Detail: "static detector has no regions configured"})
		}
		if cfg.Local.Inpainter == config.InpainterIOPaint {
			results = append(results, CheckSidecar(ctx, "IOPaint service", cfg.Local.IOPaintURL).in(CategoryDetection))
		}
	}
	return results
}
