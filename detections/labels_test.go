package detections

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseNamesMetadataPythonDict(t *testing.T) {
	labels, err := parseNamesMetadata(`{0: 'Plastic', 1: 'Metal', 2: "Captain's hat", 3: 'Glass \'bottle\''}`)
	ok(t, err)
	equals(t, map[int]string{
		0: "Plastic",
		1: "Metal",
		2: "Captain's hat",
		3: "Glass 'bottle'",
	}, labels)
}

func TestParseNamesMetadataJSON(t *testing.T) {
	labels, err := parseNamesMetadata(`{"0": "Plastic", "1": "Paper"}`)
	ok(t, err)
	equals(t, map[int]string{0: "Plastic", 1: "Paper"}, labels)
}

func TestParseNamesMetadataEmpty(t *testing.T) {
	_, err := parseNamesMetadata(`{}`)
	equals(t, errNoLabels, err)
}

func TestLoadLabelsSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	ok(t, os.WriteFile(path, []byte("Plastic\n\nMetal\r\nGlass\n"), 0o644))

	labels, err := loadLabels(path)
	ok(t, err)
	equals(t, map[int]string{0: "Plastic", 1: "Metal", 2: "Glass"}, labels)
}

func TestResolveLabelsPrefersSiblingFile(t *testing.T) {
	dir := t.TempDir()
	ok(t, os.WriteFile(filepath.Join(dir, LabelsFileName), []byte("Plastic\nWood\n"), 0o644))

	labels, err := ResolveLabels(filepath.Join(dir, "best.onnx"), "")
	ok(t, err)
	equals(t, map[int]string{0: "Plastic", 1: "Wood"}, labels)
}

func TestResolveLabelsExplicitFileMissing(t *testing.T) {
	_, err := ResolveLabels("best.onnx", filepath.Join(t.TempDir(), "missing.txt"))
	assert(t, os.IsNotExist(err), "expected not-exist error, got %v", err)
}
