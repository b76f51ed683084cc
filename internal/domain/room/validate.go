package room

import (
	"regexp"
	"strings"
)

const (
	// VariablePrefix marks a shared variable name on the wire
	VariablePrefix = "☁ "

	maxVariableNameLength  = 1024
	maxVariableValueLength = 100000
)

// Cloud variable values are numeric strings: an optional minus, at least one
// digit and at most one decimal point. The empty string is a cleared variable.
var valuePattern = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)

// CloudValidator implements the cloud variable naming and value conventions.
// It is the default Validator wired into every room.
type CloudValidator struct{}

// IsValidVariableName accepts names carrying the cloud prefix within the
// length bound
func (CloudValidator) IsValidVariableName(name string) bool {
	return len(name) <= maxVariableNameLength &&
		len(name) > len(VariablePrefix) &&
		strings.HasPrefix(name, VariablePrefix)
}

// IsValidVariableValue accepts bounded numeric strings
func (CloudValidator) IsValidVariableValue(value string) bool {
	if value == "" {
		return true
	}
	return len(value) <= maxVariableValueLength && valuePattern.MatchString(value)
}
