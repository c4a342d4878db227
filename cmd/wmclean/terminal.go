package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"wmclean/internal/deps"
	"wmclean/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
	statusSkip
)

type statusStyle struct {
	label string
	color string
}

var statusStyles = map[statusKind]statusStyle{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
	statusSkip:  {"SKIP", "\x1b[90m"},
}

const (
	ansiReset        = "\x1b[0m"
	ansiHeader       = "\x1b[1;34m"
	statusLabelWidth = 20
	statusIndent     = "  "
)

var categoryTitles = map[preflight.Category]string{
	preflight.CategoryStorage:     "Storage",
	preflight.CategoryCredentials: "Credentials",
	preflight.CategoryDetection:   "Detection",
}

// statusReport collects the sections printed by `wmclean status`. Any line
// of kind statusError marks the report unhealthy.
type statusReport struct {
	lines    []string
	colorize bool
	healthy  bool
}

func newStatusReport(w io.Writer) *statusReport {
	return &statusReport{colorize: wantColor(w), healthy: true}
}

func (r *statusReport) section(title string) {
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(header))
	if r.colorize {
		header, rule = ansiHeader+header+ansiReset, ansiHeader+rule+ansiReset
	}
	r.lines = append(r.lines, header, rule)
}

func (r *statusReport) line(label string, kind statusKind, message string) {
	if kind == statusError {
		r.healthy = false
	}
	r.lines = append(r.lines, renderStatusLine(label, kind, message, r.colorize))
}

func (r *statusReport) dependencies(statuses []deps.Status) {
	r.section("Dependencies")
	for _, status := range statuses {
		kind, msg := dependencyKind(status)
		r.line(status.Name, kind, msg)
	}
}

// checks prints one section per preflight category. A category with no
// checks for method shows a single skipped line.
func (r *statusReport) checks(results []preflight.Result, method string) {
	for _, category := range preflight.Categories {
		title := categoryTitles[category]
		r.section(title)
		matched := 0
		for _, res := range results {
			if res.Category != category {
				continue
			}
			matched++
			r.line(res.Name, checkKind(res), res.Detail)
		}
		if matched == 0 {
			r.line(title, statusSkip, "not used by "+method)
		}
	}
}

func (r *statusReport) String() string {
	return strings.Join(r.lines, "\n")
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	status := "[" + style.label + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	if colorize {
		return style.color + line + ansiReset
	}
	return line
}

func checkKind(res preflight.Result) statusKind {
	if res.Passed {
		return statusOK
	}
	return statusError
}

// dependencyKind grades a binary check. Missing optional binaries only warn.
func dependencyKind(status deps.Status) (statusKind, string) {
	detail := status.Command
	if status.Version != "" {
		detail += " " + status.Version
	}
	if status.Available {
		if status.Detail != "" {
			detail += " (" + status.Detail + ")"
		}
		return statusOK, detail
	}
	msg := status.Detail
	if status.Description != "" {
		msg += "; " + status.Description
	}
	if status.Optional {
		return statusWarn, msg
	}
	return statusError, msg
}

// wantColor honours NO_COLOR on top of the terminal check.
func wantColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isTerminal(w)
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
