package semver

import (
	"os"
	"testing"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want Version
	}{
		{"1.2.3", Version{1, 2, 3}},
		{"v1.2.3", Version{1, 2, 3}},
		{" 0.0.0\n", Version{0, 0, 0}},
		{"10.20.30", Version{10, 20, 30}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "1.2", "1.2.3.4", "1.2.x", "-1.0.0", "a.b.c", "+1.2.3", "1.+2.3", "1..3"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) should fail", in)
		}
	}
}

func TestCompare(t *testing.T) {
	a := Version{1, 2, 3}
	b := Version{1, 3, 0}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatalf("Compare ordering wrong for %v vs %v", a, b)
	}
	if !a.Less(b) || b.Less(a) {
		t.Fatalf("Less ordering wrong for %v vs %v", a, b)
	}
}

func TestDescriptorReadWrite(t *testing.T) {
	path := t.TempDir() + "/VERSION"

	v, err := ReadDescriptor(path)
	if err != nil {
		t.Fatalf("ReadDescriptor missing file: %v", err)
	}
	if v != (Version{}) {
		t.Fatalf("missing descriptor = %v, want 0.0.0", v)
	}

	if err := WriteDescriptor(path, Version{1, 2, 4}); err != nil {
		t.Fatalf("WriteDescriptor: %v", err)
	}
	v, err = ReadDescriptor(path)
	if err != nil {
		t.Fatalf("ReadDescriptor: %v", err)
	}
	if v != (Version{1, 2, 4}) {
		t.Fatalf("round trip = %v, want 1.2.4", v)
	}

	// Overwrite must replace, not append.
	if err := WriteDescriptor(path, Version{1, 3, 0}); err != nil {
		t.Fatalf("WriteDescriptor second: %v", err)
	}
	v, err = ReadDescriptor(path)
	if err != nil {
		t.Fatalf("ReadDescriptor second: %v", err)
	}
	if v != (Version{1, 3, 0}) {
		t.Fatalf("overwrite = %v, want 1.3.0", v)
	}
}

func TestDescriptorRejectsGarbage(t *testing.T) {
	path := t.TempDir() + "/VERSION"
	if err := writeFile(path, "not-a-version\n"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := ReadDescriptor(path); err == nil {
		t.Fatalf("ReadDescriptor should fail on garbage")
	}
}
