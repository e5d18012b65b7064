package mailname

import (
	"errors"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		delim   rune
		version uint32
		want    string
	}{
		{"plain", "INBOX", '.', 0, "INBOX"},
		{"delimiter", "INBOX.Sent", '.', 0, "INBOX_~Sent"},
		{"version suffix", "A", '.', 1, "A_^1_"},
		{"no suffix for version zero", "A", '.', 0, "A"},
		{"underscore always escaped", "a_b", '.', 0, "a_V1_b"},
		{"space escaped one group", "a b", '.', 0, "a_W_b"},
		{"excluded char", `a?b`, '.', 0, "a_+_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.input, tt.delim, tt.version, DefaultOptions)
			if got != tt.want {
				t.Errorf("Encode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeEscapesSpaces(t *testing.T) {
	inputs := []string{"a b", " leading", "trailing ", "two  spaces"}
	for _, name := range inputs {
		encoded := Encode(name, '.', 0, DefaultOptions)
		if strings.ContainsRune(encoded, ' ') {
			t.Errorf("Encode(%q) = %q still contains a space", name, encoded)
		}
		got, _, err := Decode(encoded, '.', DefaultOptions)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if got != name {
			t.Errorf("round trip %q -> %q -> %q", name, encoded, got)
		}
	}
}

func TestEncodeVersionBound(t *testing.T) {
	atMax := Encode("Box", '.', MaxVersion, DefaultOptions)
	name, version, err := Decode(atMax, '.', DefaultOptions)
	if err != nil {
		t.Fatalf("Decode(%q): %v", atMax, err)
	}
	if name != "Box" || version != MaxVersion {
		t.Errorf("round trip at MaxVersion = (%q, %d)", name, version)
	}

	// Out-of-range versions saturate instead of wrapping to zero.
	if got := Encode("Box", '.', MaxVersion+1, DefaultOptions); got != atMax {
		t.Errorf("Encode(MaxVersion+1) = %q, want %q", got, atMax)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	names := []string{
		"INBOX",
		"INBOX.Sent",
		"Entwürfe",
		"日本語メール",
		"with space and_underscore",
		`all "excluded" <chars>: \/:*?|`,
		"dots.and.more.dots",
		"trailing.",
		".leading",
		"emoji 😀 box",
		"ÿ upper latin1",
	}
	versions := []uint32{0, 1, 2, 63, 64, 4095, 4096, 65535}

	for _, opts := range []Options{DefaultOptions, {Excluded: DefaultOptions.Excluded, Allow8Bit: true}} {
		for _, name := range names {
			for _, version := range versions {
				encoded := Encode(name, '.', version, opts)
				gotName, gotVersion, err := Decode(encoded, '.', opts)
				if err != nil {
					t.Fatalf("Decode(%q): %v", encoded, err)
				}
				if gotName != name || gotVersion != version {
					t.Errorf("round trip (%q, %d) -> %q -> (%q, %d)",
						name, version, encoded, gotName, gotVersion)
				}
			}
		}
	}
}

// A full three-group escape carries no terminator; the next character
// may itself be '_' opening another escape. The decoder must keep the
// two apart.
func TestEncodeDecodeAdjacentEscapes(t *testing.T) {
	inputs := []string{
		"က_", // 3-group escape directly followed by an escaped underscore
		"ကက", // two 3-group escapes back to back
		" က",  // 1-group escape then 3-group escape
		"aက_b က", // escapes interleaved with verbatim text
		strings.Repeat("_", 5),
	}

	for _, name := range inputs {
		encoded := Encode(name, '/', 0, DefaultOptions)
		gotName, _, err := Decode(encoded, '/', DefaultOptions)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if gotName != name {
			t.Errorf("round trip %q -> %q -> %q", name, encoded, gotName)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		"a_",     // dangling escape
		"a_ ",    // escape followed by non-symbol
		"a_1",    // short symbol without terminator
		"a_^",    // version marker without symbol
		"a_12",   // two groups, no terminator
	}

	for _, input := range inputs {
		if _, _, err := Decode(input, '.', DefaultOptions); !errors.Is(err, ErrBadName) {
			t.Errorf("Decode(%q) err = %v, want ErrBadName", input, err)
		}
	}
}

func TestGroupNames(t *testing.T) {
	files := []string{
		Encode("A", '.', 2, DefaultOptions),
		Encode("B", '.', 0, DefaultOptions),
		Encode("A", '.', 1, DefaultOptions),
		"not an archive file _",
	}

	groups := GroupNames(files, '.', DefaultOptions)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	a := groups[0]
	if a.Name != "A" || a.Latest != 2 {
		t.Errorf("group A = %+v", a)
	}
	if len(a.VersionNumbers) != 2 || a.VersionNumbers[0] != 1 || a.VersionNumbers[1] != 2 {
		t.Errorf("group A versions = %v, want [1 2]", a.VersionNumbers)
	}
	if len(a.VersionNames) != 2 || a.VersionNames[0] != "A_^1_" {
		t.Errorf("group A names = %v", a.VersionNames)
	}

	if groups[1].Name != "B" || groups[1].Latest != 0 {
		t.Errorf("group B = %+v", groups[1])
	}
}

func TestGroupNamesMultibyteNames(t *testing.T) {
	files := []string{
		Encode("Entwürfe", '.', 2, DefaultOptions),
		Encode("Sent", '.', 0, DefaultOptions),
		Encode("Entwürfe", '.', 1, DefaultOptions),
		Encode("日本語メール", '.', 0, DefaultOptions),
	}

	groups := GroupNames(files, '.', DefaultOptions)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Name != "Entwürfe" || groups[1].Name != "Sent" || groups[2].Name != "日本語メール" {
		t.Errorf("order = %q %q %q", groups[0].Name, groups[1].Name, groups[2].Name)
	}
	e := groups[0]
	if e.Latest != 2 || len(e.VersionNumbers) != 2 || e.VersionNumbers[0] != 1 || e.VersionNumbers[1] != 2 {
		t.Errorf("group Entwürfe = %+v", e)
	}
}

func TestGroupNamesCaseSensitiveOrder(t *testing.T) {
	files := []string{"a", "B", "A"}
	groups := GroupNames(files, '.', DefaultOptions)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Name != "A" || groups[1].Name != "B" || groups[2].Name != "a" {
		t.Errorf("order = %q %q %q, want A B a", groups[0].Name, groups[1].Name, groups[2].Name)
	}
}
