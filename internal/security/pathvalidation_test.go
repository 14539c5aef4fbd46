package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	frames := filepath.Join(root, "frames")
	outside := filepath.Join(root, "outside")
	for _, d := range []string{frames, outside} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(frames, "link")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing dir itself", frames, false},
		{"new file", filepath.Join(frames, "0001.png"), false},
		{"new nested file", filepath.Join(frames, "a", "b", "0001.png"), false},
		{"dot dot", filepath.Join(frames, "..", "outside", "x.png"), true},
		{"sibling", filepath.Join(outside, "x.png"), true},
		{"through symlink", filepath.Join(frames, "link", "x.png"), true},
		{"symlink itself", filepath.Join(frames, "link"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, frames)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideDirectory) {
				t.Errorf("error %v does not wrap ErrOutsideDirectory", err)
			}
		})
	}
}

func TestValidatePathWithinDirectory_MissingBase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	err := ValidatePathWithinDirectory(filepath.Join(missing, "x"), missing)
	if err == nil {
		t.Fatal("expected error for a missing base directory")
	}
	if errors.Is(err, ErrOutsideDirectory) {
		t.Errorf("missing base should not be reported as an escape: %v", err)
	}
}

func TestJoinWithin(t *testing.T) {
	dir := t.TempDir()

	got, err := JoinWithin(dir, "3f2a9c1e-0b7d-4e2a-9f61-5d0c8e7b1a22")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "3f2a9c1e-0b7d-4e2a-9f61-5d0c8e7b1a22"); got != want {
		t.Errorf("JoinWithin = %q, want %q", got, want)
	}

	got, err = JoinWithin(dir, "../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "etc_passwd"); got != want {
		t.Errorf("JoinWithin = %q, want %q", got, want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                   "unknown",
		"session":            "session",
		"a b  c":             "a_b_c",
		"../..":              "unknown",
		"run/2026-03-14.png": "run_2026-03-14.png",
		"__x__":              "x",
		"ключ":               "unknown",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeFilename(string(long)); len(got) != maxNameLen {
		t.Errorf("len = %d, want %d", len(got), maxNameLen)
	}
}
