package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// containerHeaders holds the leading bytes content sniffing looks for, keyed
// by extension.
var containerHeaders = map[string][]byte{
	".mp4":  []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2"),
	".mov":  []byte("\x00\x00\x00\x14ftypqt  \x00\x00\x02\x00qt  "),
	".mkv":  []byte("\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01\x42\x82\x88matroska"),
	".webm": []byte("\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01\x42\x82\x84webm"),
}

// WriteVideo creates a stand-in video of size bytes. Known containers start
// with their real header so MIME detection sees a video; the rest is
// filler. size is raised to fit the header.
func WriteVideo(t testing.TB, path string, size int64) {
	t.Helper()
	header := containerHeaders[strings.ToLower(filepath.Ext(path))]
	if size < int64(len(header)) {
		size = int64(len(header))
	}
	writeContent(t, path, header, size)
}

// WriteVideos creates one stand-in video per name inside dir and returns
// their paths in order.
func WriteVideos(t testing.TB, dir string, size int64, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		WriteVideo(t, path, size)
		paths = append(paths, path)
	}
	return paths
}

// WriteFile fills path with size filler bytes. A size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	writeContent(t, path, nil, size)
}

func writeContent(t testing.TB, path string, header []byte, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := append(bytes.Clone(header), bytes.Repeat([]byte{0x42}, int(size)-len(header))...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
