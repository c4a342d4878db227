package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"wmclean/internal/batch"
	"wmclean/internal/history"
	"wmclean/internal/services"
)

type historyJSON struct {
	JobID      string    `json:"job_id"`
	Input      string    `json:"input"`
	Output     string    `json:"output,omitempty"`
	Method     string    `json:"method"`
	Enhanced   bool      `json:"enhanced"`
	Status     string    `json:"status"`
	Category   string    `json:"error_category,omitempty"`
	Error      string    `json:"error,omitempty"`
	Bytes      int64     `json:"output_bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func historyRecordJSON(rec history.Record) historyJSON {
	return historyJSON{
		JobID:      rec.JobID,
		Input:      rec.Input,
		Output:     rec.Output,
		Method:     rec.Method,
		Enhanced:   rec.Enhanced,
		Status:     string(rec.Status),
		Category:   rec.ErrorCategory,
		Error:      rec.Error,
		Bytes:      rec.Bytes,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}

type batchFileJSON struct {
	Name     string `json:"name"`
	Input    string `json:"input"`
	Output   string `json:"output,omitempty"`
	Status   string `json:"status"`
	Category string `json:"error_category,omitempty"`
	Error    string `json:"error,omitempty"`
	Bytes    int64  `json:"output_bytes,omitempty"`
}

type batchJSON struct {
	Dir       string          `json:"dir"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Stopped   bool            `json:"stopped"`
	Files     []batchFileJSON `json:"files"`
}

// batchResultJSON flattens a batch result. Files that were never attempted
// because the run stopped are not listed.
func batchResultJSON(dir string, result batch.Result) batchJSON {
	out := batchJSON{
		Dir:       dir,
		Total:     result.Total,
		Succeeded: result.Success,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Stopped:   result.Stopped,
		Files:     make([]batchFileJSON, 0, len(result.Files)),
	}
	for _, file := range result.Files {
		item := batchFileJSON{Name: file.Name, Input: file.Input, Output: file.Output}
		switch {
		case file.Success:
			item.Status = string(history.StatusSucceeded)
			item.Bytes = file.Bytes
		case errors.Is(file.Err, context.Canceled):
			item.Status = string(history.StatusCanceled)
		default:
			item.Status = string(history.StatusFailed)
			item.Category = services.Category(file.Err)
			if file.Err != nil {
				item.Error = file.Err.Error()
			}
		}
		out.Files = append(out.Files, item)
	}
	return out
}

// writeJSON encodes v as indented JSON to the command's stdout. HTML escaping
// is off so file names containing & or < print as-is.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
