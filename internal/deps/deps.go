package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"wmclean/internal/media/ffmpeg"
)

// Requirement defines an external binary wmclean relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// MinVersion enables an ffmpeg-style version check when set.
	MinVersion string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		if req.MinVersion != "" {
			checkVersion(ctx, &status, req.MinVersion)
		}
		results = append(results, status)
	}
	return results
}

func checkVersion(ctx context.Context, status *Status, minimum string) {
	v, err := ffmpeg.Version(ctx, status.Command)
	if err != nil {
		// Git builds carry no release number; treat them as current.
		status.Detail = "version unknown"
		return
	}
	status.Version = v.String()
	if err := ffmpeg.CheckMinimum(v, minimum); err != nil {
		status.Available = false
		status.Detail = err.Error()
	}
}

// Missing returns the required (non-optional) dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
