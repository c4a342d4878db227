package main

import (
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"wmclean/internal/logging"
	"wmclean/internal/progress"
)

// progressDisplay renders progress events as a bar on a terminal and as
// sampled log lines everywhere else.
type progressDisplay struct {
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
	logger  *slog.Logger
}

func newProgressDisplay(w io.Writer, logger *slog.Logger) *progressDisplay {
	d := &progressDisplay{logger: logger}
	if isTerminal(w) {
		d.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
		return d
	}
	d.sampler = logging.NewProgressSampler(10)
	return d
}

func (d *progressDisplay) report() progress.Func {
	return func(evt progress.Event) {
		if d.bar != nil {
			d.bar.Describe(evt.Message)
			_ = d.bar.Set(int(evt.Percent))
			return
		}
		if d.sampler.ShouldLog(evt.Percent, "") {
			d.logger.Info("progress",
				logging.String(logging.FieldProgressMessage, evt.Message),
				logging.Float64(logging.FieldProgressPercent, evt.Percent),
			)
		}
	}
}

func (d *progressDisplay) close() {
	if d.bar != nil {
		_ = d.bar.Finish()
	}
}
