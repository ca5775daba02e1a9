// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxFilenameRunes caps the filename stem derived from a title.
	maxFilenameRunes = 150
	pdfExt           = ".pdf"
)

var (
	nonKeyChars   = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[\\/*?:"<>|]`)
)

// Normalize returns the search key for a title: lower-cased, punctuation
// other than hyphens replaced by spaces, whitespace collapsed, trimmed.
// The key is only ever used as a query, never as a filename.
func Normalize(title string) string {
	key := nonKeyChars.ReplaceAllString(strings.ToLower(title), " ")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(key, " "))
}

// Filename returns the PDF filename for a title. Characters that are unsafe
// in filenames become underscores and the stem is capped at 150 runes.
// Identical titles always yield the same filename; this is the only
// deduplication key.
func Filename(title string) string {
	stem := unsafeChars.ReplaceAllString(strings.TrimSpace(title), "_")
	if r := []rune(stem); len(r) > maxFilenameRunes {
		stem = string(r[:maxFilenameRunes])
	}
	return stem + pdfExt
}

// TargetPath returns where the PDF for title is stored under saveDir.
func TargetPath(title, saveDir string) string {
	return filepath.Join(saveDir, Filename(title))
}
