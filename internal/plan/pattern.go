package plan

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/roach88/osq/internal/qerr"
)

// MaxPatternLength bounds regular expressions and wildcards.
const MaxPatternLength = 1000

// matchTimeout bounds a single regular expression match.
const matchTimeout = 100 * time.Millisecond

// CompileRegex compiles pattern anchored on both ends. Over-long or
// malformed patterns are INVALID_REGEX.
func CompileRegex(pattern string) (*regexp2.Regexp, error) {
	if len(pattern) > MaxPatternLength {
		return nil, qerr.Validation(qerr.CodeInvalidRegex,
			"pattern is %d characters, the limit is %d", len(pattern), MaxPatternLength)
	}
	return compileAnchored(pattern, pattern, regexp2.None)
}

func compileAnchored(pattern, source string, opts regexp2.RegexOptions) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(`^(?:`+pattern+`)$`, opts)
	if err != nil {
		return nil, qerr.Validation(qerr.CodeInvalidRegex, "invalid pattern %q: %v", source, err)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// CompileWildcard compiles a glob where * matches any run of characters
// and ? matches one character.
func CompileWildcard(glob string) (*regexp2.Regexp, error) {
	if len(glob) > MaxPatternLength {
		return nil, qerr.Validation(qerr.CodeInvalidRegex,
			"wildcard is %d characters, the limit is %d", len(glob), MaxPatternLength)
	}
	escaped := regexp2.Escape(glob)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `.`)
	return compileAnchored(escaped, glob, regexp2.Singleline)
}

// FullMatch reports whether re matches s. A nil re, or a match that times
// out, reports false.
func FullMatch(re *regexp2.Regexp, s string) bool {
	if re == nil {
		return false
	}
	ok, err := re.MatchString(s)
	return err == nil && ok
}
