package gist

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	referencePattern = regexp.MustCompile(`^([A-Za-z0-9_]+)/([^/]+)$`)
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Reference names a script as "<username>/<filename>".
type Reference struct {
	Username string
	Filename string
}

// ParseReference splits s into a Reference. It performs no I/O.
func ParseReference(s string) (Reference, error) {
	m := referencePattern.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: `%s` (want user/filename)", ErrInvalidReference, s)
	}
	return Reference{Username: m[1], Filename: m[2]}, nil
}

// ValidateUsername applies the username half of ParseReference's rules.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return fmt.Errorf("%w: invalid username `%s`", ErrInvalidReference, s)
	}
	return nil
}

func (r Reference) String() string {
	return r.Username + "/" + r.Filename
}

// Basename strips the last "."-delimited extension from name. Names with no
// dot, or whose only dot is leading (".env"), are returned unchanged.
func Basename(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	return name[:i]
}

// Ext returns the extension Basename would strip, including the dot.
func Ext(name string) string {
	return strings.TrimPrefix(name, Basename(name))
}

// FilenameMatches reports whether a and b are equal or share a Basename.
func FilenameMatches(a, b string) bool {
	return a == b || Basename(a) == Basename(b)
}
