package utils

import (
	"strings"
)

// OrDash returns "-" for blank values, for printed documents.
func OrDash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return s
}

// NormalizeSpace collapses repeated whitespace into a single space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var filenameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

// SafeFilenamePart makes s usable inside a download filename.
func SafeFilenamePart(s string) string {
	s = NormalizeSpace(s)
	if s == "" {
		return "NA"
	}
	s = filenameReplacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
