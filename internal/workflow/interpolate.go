package workflow

import (
	"regexp"
	"strings"
)

// Prompt placeholders.
const (
	VarInput      = "input"
	VarLastOutput = "lastOutput"

	placeholderInput      = "{{" + VarInput + "}}"
	placeholderLastOutput = "{{" + VarLastOutput + "}}"
)

var placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Interpolate substitutes the first {{input}} and the first {{lastOutput}}
// in template. Later occurrences are left as written.
func Interpolate(template, input, lastOutput string) string {
	out := strings.Replace(template, placeholderInput, input, 1)
	return strings.Replace(out, placeholderLastOutput, lastOutput, 1)
}

// IsPromptValid reports whether every {{...}} in template is a supported
// placeholder.
func IsPromptValid(template string) bool {
	return len(invalidVariables(template)) == 0
}

// invalidVariables returns the names of unsupported placeholders in order
// of appearance.
func invalidVariables(template string) []string {
	var invalid []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if name := m[1]; name != VarInput && name != VarLastOutput {
			invalid = append(invalid, name)
		}
	}
	return invalid
}
