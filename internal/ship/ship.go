// Package ship turns free text relationship tags into canonical character pairs.
package ship

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type Kind int

const (
	KIND_ROMANTIC Kind = iota
	KIND_PLATONIC
)

func (k Kind) String() string {
	switch k {
	case KIND_ROMANTIC:
		return "romantic"
	case KIND_PLATONIC:
		return "platonic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Delimiter returns the character that separates names in a tag of this kind.
func (k Kind) Delimiter() string {
	if k == KIND_PLATONIC {
		return "&"
	}
	return "/"
}

// ParseKind parses "romantic" or "platonic".
func ParseKind(text string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "romantic":
		return KIND_ROMANTIC, nil
	case "platonic":
		return KIND_PLATONIC, nil
	default:
		return 0, fmt.Errorf("invalid ship kind: %q (expected romantic or platonic)", text)
	}
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	// ErrUnknownShipKind means the tag has neither a "/" nor a "&".
	ErrUnknownShipKind = errors.New("unknown ship kind")
	// ErrUnsupportedArity means the tag does not name exactly two characters.
	ErrUnsupportedArity = errors.New("unsupported arity")
)

// ParseError is returned for a tag that cannot be turned into a Ship, it wraps
// either ErrUnknownShipKind or ErrUnsupportedArity.
type ParseError struct {
	Tag        string
	Characters []string
	Err        error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrUnsupportedArity) {
		named := 0
		for _, c := range e.Characters {
			if c != "" {
				named++
			}
		}
		return fmt.Sprintf("ship %q: %s: expected 2 named characters, got %d", e.Tag, e.Err, named)
	}
	return fmt.Sprintf("ship %q: %s", e.Tag, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Ship is a relationship between exactly two characters, the names are sorted
// so that tags naming the same pair in any order compare equal.
type Ship struct {
	Characters [2]string `json:"characters"`
	Kind       Kind      `json:"kind"`
}

func (s Ship) String() string {
	return s.Characters[0] + s.Kind.Delimiter() + s.Characters[1]
}

// Compare orders ships by their first character, then second character, then kind.
func (s Ship) Compare(other Ship) int {
	c := strings.Compare(s.Characters[0], other.Characters[0])
	if c != 0 {
		return c
	}
	c = strings.Compare(s.Characters[1], other.Characters[1])
	if c != 0 {
		return c
	}
	return int(s.Kind) - int(other.Kind)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// canonicalName drops a trailing fandom qualifier like "Zuko (Avatar)" and normalizes
// whitespace and unicode composition.
func canonicalName(name string) string {
	fandomStart := strings.IndexByte(name, '(')
	if fandomStart >= 0 {
		name = name[:fandomStart]
	}
	name = norm.NFC.String(name)
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Parse parses a relationship tag into a Ship.
//
// The kind is decided by the delimiter, "/" is checked before "&", so a tag like
// "A/B & C" is a romantic ship between "A" and "B & C". Only ships between exactly
// two characters are supported, poly ships and tags naming a single character are
// rejected with ErrUnsupportedArity.
func Parse(tag string) (Ship, error) {
	var kind Kind
	switch {
	case strings.Contains(tag, "/"):
		kind = KIND_ROMANTIC
	case strings.Contains(tag, "&"):
		kind = KIND_PLATONIC
	default:
		return Ship{}, &ParseError{Tag: tag, Err: ErrUnknownShipKind}
	}

	parts := strings.Split(tag, kind.Delimiter())
	characters := make([]string, 0, len(parts))
	for _, part := range parts {
		characters = append(characters, canonicalName(part))
	}

	if len(characters) != 2 || characters[0] == "" || characters[1] == "" {
		return Ship{}, &ParseError{Tag: tag, Characters: characters, Err: ErrUnsupportedArity}
	}

	slices.Sort(characters)
	return Ship{
		Characters: [2]string{characters[0], characters[1]},
		Kind:       kind,
	}, nil
}
