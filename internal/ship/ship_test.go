package ship

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		tag      string
		expected Ship
	}{
		{
			tag:      "Alice/Bob",
			expected: Ship{Characters: [2]string{"Alice", "Bob"}, Kind: KIND_ROMANTIC},
		},
		{
			tag:      " Bob / Alice ",
			expected: Ship{Characters: [2]string{"Alice", "Bob"}, Kind: KIND_ROMANTIC},
		},
		{
			tag:      "Alice (Wonderland)/Bob (Wonderland)",
			expected: Ship{Characters: [2]string{"Alice", "Bob"}, Kind: KIND_ROMANTIC},
		},
		{
			tag:      "Katara & Sokka (Avatar)",
			expected: Ship{Characters: [2]string{"Katara", "Sokka"}, Kind: KIND_PLATONIC},
		},
		{
			tag:      "Zuko  Sozin/Katara",
			expected: Ship{Characters: [2]string{"Katara", "Zuko Sozin"}, Kind: KIND_ROMANTIC},
		},
		{
			// "/" wins over "&", the "&" stays part of a name
			tag:      "A/B & C",
			expected: Ship{Characters: [2]string{"A", "B & C"}, Kind: KIND_ROMANTIC},
		},
		{
			// decomposed and precomposed é are the same character
			tag:      "Rene\u0301/Zoe",
			expected: Ship{Characters: [2]string{"Ren\u00e9", "Zoe"}, Kind: KIND_ROMANTIC},
		},
	}

	for _, test := range testCases {
		ship, err := Parse(test.tag)
		require.NoError(t, err, test.tag)
		require.Equal(t, test.expected, ship, test.tag)
	}
}

func TestParseCanonicalization(t *testing.T) {
	equivalent := [][]string{
		{"Alice/Bob", " Bob / Alice ", "Bob/Alice", "Alice (Wonderland)/Bob (Wonderland)", "Bob (Wonderland) / Alice"},
		{"Aang & Katara", "Katara&Aang", "Katara (Avatar) & Aang (Avatar)"},
	}

	for _, group := range equivalent {
		first, err := Parse(group[0])
		require.NoError(t, err)
		for _, tag := range group[1:] {
			other, err := Parse(tag)
			require.NoError(t, err, tag)
			require.Equal(t, first, other, "%q and %q should canonicalize identically", group[0], tag)
		}
	}

	romantic, err := Parse("Alice/Bob")
	require.NoError(t, err)
	platonic, err := Parse("Alice & Bob")
	require.NoError(t, err)
	require.NotEqual(t, romantic, platonic)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		tag      string
		expected error
	}{
		{tag: "Alice", expected: ErrUnknownShipKind},
		{tag: "", expected: ErrUnknownShipKind},
		{tag: "Alice - Bob", expected: ErrUnknownShipKind},
		{tag: "A/B/C", expected: ErrUnsupportedArity},
		{tag: "A & B & C", expected: ErrUnsupportedArity},
		{tag: "A/B & C/D", expected: ErrUnsupportedArity},
		{tag: "Alice/", expected: ErrUnsupportedArity},
		{tag: "(Avatar)/Zuko", expected: ErrUnsupportedArity},
	}

	for _, test := range testCases {
		_, err := Parse(test.tag)
		require.Error(t, err, test.tag)
		require.ErrorIs(t, err, test.expected, test.tag)

		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		require.Equal(t, test.tag, parseErr.Tag)
	}

	_, err := Parse("A/B/C")
	require.Contains(t, err.Error(), "got 3")
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("romantic")
	require.NoError(t, err)
	require.Equal(t, KIND_ROMANTIC, kind)

	kind, err = ParseKind(" Platonic ")
	require.NoError(t, err)
	require.Equal(t, KIND_PLATONIC, kind)

	_, err = ParseKind("familial")
	require.Error(t, err)

	require.Equal(t, "romantic", KIND_ROMANTIC.String())
	require.Equal(t, "platonic", KIND_PLATONIC.String())
}

func TestShipCompare(t *testing.T) {
	a := Ship{Characters: [2]string{"Aang", "Katara"}, Kind: KIND_ROMANTIC}
	b := Ship{Characters: [2]string{"Aang", "Katara"}, Kind: KIND_PLATONIC}
	c := Ship{Characters: [2]string{"Aang", "Zuko"}, Kind: KIND_ROMANTIC}

	require.Equal(t, 0, a.Compare(a))
	require.Negative(t, a.Compare(b))
	require.Negative(t, b.Compare(c))
	require.Positive(t, c.Compare(a))
	require.Equal(t, "Aang/Katara", a.String())
	require.Equal(t, "Aang&Katara", b.String())
}
