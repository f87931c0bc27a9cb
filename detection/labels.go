package detection

import (
	"fmt"
	"os"
	"strings"
)

// rodentWords are the label substrings that count as a rodent sighting.
var rodentWords = []string{"mouse", "rat", "rodent"}

// LoadClassNames reads a newline-separated class names file (coco.names
// format) and drops blank trailing lines.
func LoadClassNames(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read class names: %v", err)
	}

	var names []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("class names file %s is empty", path)
	}
	return names, nil
}

// IsRodentLabel reports whether a class name is likely a rodent. Matching is
// by substring so model-specific labels like "computer mouse" vs "mouse"
// and "brown rat" all count.
func IsRodentLabel(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range rodentWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
