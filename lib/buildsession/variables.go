// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import "regexp"

// variablePattern matches ${name} references to build variables.
// Names may contain dots and dashes ("${test.foo}",
// "${build-counter}"). Bare $name is left alone.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

// expandVariables replaces ${name} references with their values.
// References to unknown names are left as written.
func expandVariables(input string, variables map[string]string) string {
	if len(variables) == 0 {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}
