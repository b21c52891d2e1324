package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseFile loads a definition from disk, choosing the format from the file
// extension (.yaml, .yml or .hcl), and validates it.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, opgrapherrors.NewParseError(path, 0, err)
	}

	var def *Definition
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		def, err = ParseYAML(path, data)
	case ".hcl":
		def, err = ParseHCL(path, data)
	default:
		return nil, opgrapherrors.NewParseError(path, 0, fmt.Errorf("unsupported definition format %q", ext))
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// ParseYAML decodes and validates a YAML definition. path is only used in
// error messages.
func ParseYAML(path string, data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, opgrapherrors.NewParseError(path, extractLine(err), err)
	}
	def.Path = path

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
