package protocol

import (
	"runtime"
	"testing"
)

func TestFilePathToURI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	tests := []struct {
		name string
		path string
		want DocumentURI
	}{
		{"absolute path", "/home/user/notes.md", "file:///home/user/notes.md"},
		{"path with spaces", "/home/user/my notes.md", "file:///home/user/my%20notes.md"},
		{"empty path", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilePathToURI(tt.path)
			if got != tt.want {
				t.Errorf("FilePathToURI(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestURIToFilePath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	tests := []struct {
		name string
		uri  DocumentURI
		want string
	}{
		{"file uri", "file:///home/user/notes.md", "/home/user/notes.md"},
		{"encoded space", "file:///home/user/my%20notes.md", "/home/user/my notes.md"},
		{"non-file scheme", "untitled:Untitled-1", "untitled:Untitled-1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URIToFilePath(tt.uri)
			if got != tt.want {
				t.Errorf("URIToFilePath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	paths := []string{
		"/tmp/file.txt",
		"/home/user/docs/readme.md",
		"/path/with spaces/file.go",
	}

	for _, p := range paths {
		uri := FilePathToURI(p)
		got := URIToFilePath(uri)
		if got != p {
			t.Errorf("round trip %q -> %q -> %q", p, uri, got)
		}
	}
}

func TestIsFileURI(t *testing.T) {
	tests := []struct {
		uri  DocumentURI
		want bool
	}{
		{"file:///home/user/notes.md", true},
		{"untitled:Untitled-1", false},
		{"vscode-notebook-cell:/a/b.ipynb", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsFileURI(tt.uri); got != tt.want {
			t.Errorf("IsFileURI(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}
