package pathnorm

import "testing"

func TestNormalizeBoundaries(t *testing.T) {
	for _, input := range []string{"/..", ""} {
		if _, err := Normalize(input, nil); err == nil {
			t.Errorf("Normalize(%q, nil): want InvalidPath, got nil error", input)
		}
	}
}

func TestNormalizeInvalidCharacters(t *testing.T) {
	if _, err := Normalize("/foo bar", nil); err == nil {
		t.Error("Normalize with a space: want InvalidPath, got nil error")
	}
}

func TestNormalizeAbsolute(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"/", "/"},
		{"/test.txt", "/test.txt"},
		{"/testDir/", "/testDir/"},
		{"/a/b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
		{"/a//b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/a/..", "/"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.input, nil)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeRelative(t *testing.T) {
	cwd := AbsPathToPieces("/testDir/")
	cases := []struct {
		input string
		want  string
	}{
		{".", "/testDir"},
		{"..", "/"},
		{"foo.txt", "/testDir/foo.txt"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.input, cwd)
		if err != nil {
			t.Errorf("Normalize(%q, %v): unexpected error %v", tc.input, cwd, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q, %v) = %q, want %q", tc.input, cwd, got, tc.want)
		}
	}
}

func TestNormalizeCannotPopPastRoot(t *testing.T) {
	if _, err := Normalize("..", nil); err == nil {
		t.Error("Normalize(\"..\", nil): want InvalidPath, got nil error")
	}
}

func TestNormalizeIdempotentOnCanonicalAbsoluteOutput(t *testing.T) {
	inputs := []string{"/", "/a/b/c", "/a/b/", "/a/b/../c/../../d"}
	for _, in := range inputs {
		once, err := Normalize(in, nil)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once, nil)
		if err != nil {
			t.Fatalf("Normalize(%q) (second pass on %q): %v", in, once, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestAbsPathToPieces(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/", nil},
		{"/foo", []string{"foo"}},
		{"/foo/bar/", []string{"foo", "bar"}},
	}
	for _, tc := range cases {
		got := AbsPathToPieces(tc.path)
		if len(got) != len(tc.want) {
			t.Errorf("AbsPathToPieces(%q) = %v, want %v", tc.path, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("AbsPathToPieces(%q) = %v, want %v", tc.path, got, tc.want)
				break
			}
		}
	}
}
