package detections

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// LabelsFileName is looked up next to the model when the model carries no
// names metadata.
const LabelsFileName = "labels.txt"

var errNoLabels = errors.New("no class names found")

// namesEntry matches one `id: 'name'` pair of the names dictionary exported
// into ONNX metadata, in either Python or JSON quoting.
var namesEntry = regexp.MustCompile(`["']?(\d+)["']?\s*:\s*('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*")`)

func parseNamesMetadata(raw string) (map[int]string, error) {
	matches := namesEntry.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, errNoLabels
	}

	labels := make(map[int]string, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("class id %q: %w", m[1], err)
		}
		labels[id] = unquoteName(m[2])
	}
	return labels, nil
}

func unquoteName(quoted string) string {
	body := quoted[1 : len(quoted)-1]
	var b strings.Builder
	escaped := false
	for _, r := range body {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// loadLabels reads one class name per line; the line index is the class id.
func loadLabels(path string) (map[int]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	labels := make(map[int]string)
	scanner := bufio.NewScanner(file)
	id := 0
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		labels[id] = name
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errNoLabels
	}
	return labels, nil
}

func readModelLabels(modelPath string) (map[int]string, error) {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil {
		return nil, fmt.Errorf("lookup names metadata: %w", err)
	}
	if !ok {
		return nil, errNoLabels
	}
	return parseNamesMetadata(raw)
}

// ResolveLabels returns the class names of a model. An explicit labels file
// wins, then a labels.txt next to the model, then the model's own metadata.
func ResolveLabels(modelPath, labelsPath string) (map[int]string, error) {
	if labelsPath != "" {
		return loadLabels(labelsPath)
	}

	sibling := filepath.Join(filepath.Dir(modelPath), LabelsFileName)
	if _, err := os.Stat(sibling); err == nil {
		return loadLabels(sibling)
	}

	labels, err := readModelLabels(modelPath)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}
	return labels, nil
}
