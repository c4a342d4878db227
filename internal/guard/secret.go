package guard

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"wmclean/internal/services"
)

// MinTokenLength is the shortest API token accepted.
const MinTokenLength = 10

// MaskSecret hides all but the first two and the last show characters.
func MaskSecret(secret string, show int) string {
	if secret == "" {
		return "***"
	}
	if show < 0 {
		show = 0
	}
	runesIn := []rune(secret)
	if len(runesIn) <= show {
		return strings.Repeat("*", len(runesIn))
	}
	prefix := min(2, len(runesIn)-show)
	masked := len(runesIn) - prefix - show
	return string(runesIn[:prefix]) + strings.Repeat("*", masked) + string(runesIn[len(runesIn)-show:])
}

// ValidateToken rejects empty or implausibly short tokens. On success it
// returns the masked token for logging.
func ValidateToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", services.Wrap(services.ErrValidation, "guard", "validate token", "API token is not set (set REPLICATE_API_TOKEN or replicate.api_token)", nil)
	}
	if len(token) < MinTokenLength {
		return "", services.Wrap(services.ErrValidation, "guard", "validate token", "API token is too short", nil)
	}
	return MaskSecret(token, 4), nil
}

var unsafeFileChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_", "/", "_",
	"\\", "_", "|", "_", "?", "_", "*", "_", "\x00", "_",
)

// SafeFilename replaces characters unsafe in file names with underscores,
// folds accented letters to their base form, collapses repeated underscores,
// and trims leading and trailing underscores.
func SafeFilename(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}
	name = unsafeFileChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(strings.TrimSpace(name), "_")
}

// TempPrefix builds an os.MkdirTemp pattern of the form kind-<name>- naming a
// work directory after input.
func TempPrefix(kind, input string) string {
	name := []rune(SafeFilename(FileStem(input)))
	if len(name) > 40 {
		name = name[:40]
	}
	if len(name) == 0 {
		return kind + "-"
	}
	return kind + "-" + string(name) + "-"
}
