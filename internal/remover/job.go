package remover

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"wmclean/internal/guard"
)

// OutputSuffix is appended to the input stem to name cleaned files.
const OutputSuffix = "_cleaned"

// enhancingSuffix marks the enhancement written beside an output before it
// replaces it.
const enhancingSuffix = ".enhanced"

// Job describes one video to process.
type Job struct {
	ID      string
	Input   string
	Output  string
	Method  string
	Enhance bool
}

// ShortID returns the first eight characters of the job ID.
func (j Job) ShortID() string {
	if len(j.ID) > 8 {
		return j.ID[:8]
	}
	return j.ID
}

// NewJob builds a job writing into outDir with a fresh ID.
func NewJob(input, outDir, method string, enhance bool) Job {
	return Job{
		ID:      uuid.NewString(),
		Input:   input,
		Output:  OutputPath(input, outDir),
		Method:  method,
		Enhance: enhance,
	}
}

// OutputPath returns <outDir>/<stem>_cleaned.mp4. The input stem is kept
// verbatim apart from path separators. An empty outDir writes next to the input.
func OutputPath(input, outDir string) string {
	stem := guard.FileStem(input)
	if stem == "" {
		stem = "video"
	}
	if strings.TrimSpace(outDir) == "" {
		outDir = filepath.Dir(input)
	}
	return filepath.Join(outDir, stem+OutputSuffix+".mp4")
}

// IsOutputName reports whether path looks like something this tool wrote:
// a cleaned output, optionally with a collision counter, or its in-progress
// enhancement.
func IsOutputName(path string) bool {
	stem := strings.TrimSuffix(guard.FileStem(path), enhancingSuffix)
	i := strings.LastIndex(stem, OutputSuffix)
	if i < 0 {
		return false
	}
	rest := stem[i+len(OutputSuffix):]
	if rest == "" {
		return true
	}
	n, ok := strings.CutPrefix(rest, "_")
	return ok && n != "" && strings.Trim(n, "0123456789") == ""
}

// PlanOutputs assigns an output path to every input. Inputs whose stems would
// collide get a numeric suffix in input order, so no output is written twice.
func PlanOutputs(inputs []string, outDir string) map[string]string {
	plan := make(map[string]string, len(inputs))
	claimed := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		out := OutputPath(input, outDir)
		if claimed[out] {
			base := strings.TrimSuffix(out, ".mp4")
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s_%d.mp4", base, n)
				if !claimed[candidate] {
					out = candidate
					break
				}
			}
		}
		claimed[out] = true
		plan[input] = out
	}
	return plan
}
