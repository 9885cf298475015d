package studio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/logofresh/studio-renderer/pkg/models"
)

var (
	whitespaceRun  = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	slugDisallowed = regexp.MustCompile(`[^a-z0-9-]`)
)

// Slug lowercases s, collapses whitespace runs into one hyphen and drops
// everything outside [a-z0-9-].
func Slug(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRun.ReplaceAllString(s, "-")
	return slugDisallowed.ReplaceAllString(s, "")
}

// ExportFilename returns "<slug(title)>-<mode>.<format>"
func ExportFilename(title string, mode models.BackgroundMode, format models.Format) string {
	return fmt.Sprintf("%s-%s.%s", Slug(title), mode, format)
}

// ExportInfo formats the metadata line shown after an export,
// e.g. "WEBP • 318.2KB • 1.5x".
func ExportInfo(format models.Format, outcome *models.ExportOutcome) string {
	kb := float64(outcome.Result.Bytes) / 1024
	return fmt.Sprintf("%s • %.1fKB • %sx",
		strings.ToUpper(string(format)), kb, strconv.FormatFloat(outcome.Scale, 'f', -1, 64))
}
