package hashkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var timeIDPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9]+$`)

// IsTimeID reports whether s has the shape "<millis>:<short-id>".
func IsTimeID(s string) bool {
	return timeIDPattern.MatchString(s)
}

// NewTimeID returns a new timeId anchored at the given instant. The
// short-id token is a 4-char URL-safe slice of a fresh uuid, grounded on
// the teacher's use of uuid.NewString() for append-only log keys
// (internal/audit/audit.go), shortened to match spec.md §6.4's token size.
func NewTimeID(at time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(token) > 4 {
		token = token[:4]
	}
	return fmt.Sprintf("%d:%s", at.UnixMilli(), token)
}

// TimeIDMillis extracts the numeric millisecond prefix of a timeId for
// ordering. Returns an error if s is not a valid timeId.
func TimeIDMillis(s string) (int64, error) {
	if !IsTimeID(s) {
		return 0, fmt.Errorf("hashkit: invalid timeId %q", s)
	}
	millisPart, _, _ := strings.Cut(s, ":")
	return strconv.ParseInt(millisPart, 10, 64)
}

// LessTimeID orders two timeIds by their numeric millis prefix, falling
// back to lexical comparison of the whole string only to break exact-millis
// ties deterministically.
func LessTimeID(a, b string) bool {
	am, aerr := TimeIDMillis(a)
	bm, berr := TimeIDMillis(b)
	if aerr == nil && berr == nil && am != bm {
		return am < bm
	}
	return a < b
}
