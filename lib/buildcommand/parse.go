// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildcommand

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Parse decodes a command tree from JSON. Comments and trailing commas
// (JSONC) are accepted so hand-written tree files can be annotated.
// The decoded tree is validated before it is returned.
func Parse(data []byte) (*Command, error) {
	var root Command
	if err := json.Unmarshal(jsonc.ToJSON(data), &root); err != nil {
		return nil, fmt.Errorf("decoding command tree: %w", err)
	}
	if err := Validate(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

// ParseFile reads and decodes a command tree file.
func ParseFile(path string) (*Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command tree: %w", err)
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

var knownTestFlags = map[string]bool{
	TestEqual:     true,
	TestNotEqual:  true,
	TestIsDir:     true,
	TestIsNotDir:  true,
	TestIsFile:    true,
	TestIsNotFile: true,
}

// Validate checks the structure of a tree: every node has a kind, run-if
// policies are known, and the kinds with a fixed shape (task, test,
// exec) have it. Unknown kinds are not rejected here; they fail their
// own node at run time so that a newer server can send an older agent a
// tree it partially understands.
func Validate(root *Command) error {
	if root == nil {
		return errors.New("command tree is empty")
	}

	var problems []error
	var check func(node *Command, path string)
	check = func(node *Command, path string) {
		if node == nil {
			problems = append(problems, fmt.Errorf("%s: nil command", path))
			return
		}
		if node.Name == "" {
			problems = append(problems, fmt.Errorf("%s: missing command name", path))
		}
		if !node.RunIfConfig.valid() {
			problems = append(problems, fmt.Errorf("%s: unknown run_if %q", path, node.RunIfConfig))
		}

		switch node.Name {
		case KindTask:
			if len(node.SubCommands) != 1 {
				problems = append(problems, fmt.Errorf("%s: task wraps exactly one command, got %d", path, len(node.SubCommands)))
			}
		case KindTest:
			flag := node.StringArg("flag")
			if !knownTestFlags[flag] {
				problems = append(problems, &MalformedCommandError{Kind: KindTest, Reason: fmt.Sprintf("%s: unknown flag %q", path, flag)})
			}
			if (flag == TestEqual || flag == TestNotEqual) && len(node.SubCommands) == 0 {
				problems = append(problems, fmt.Errorf("%s: %s needs a command whose output to compare", path, flag))
			}
		case KindExec:
			if node.StringArg("command") == "" {
				problems = append(problems, fmt.Errorf("%s: exec without command", path))
			}
		}

		if node.Test != nil {
			check(node.Test, path+".test")
		}
		for index, child := range node.SubCommands {
			check(child, fmt.Sprintf("%s.%s[%d]", path, nodeLabel(child), index))
		}
		if node.OnCancel != nil {
			check(node.OnCancel, path+".on_cancel")
		}
	}
	check(root, nodeLabel(root))

	return errors.Join(problems...)
}

func nodeLabel(node *Command) string {
	if node == nil || node.Name == "" {
		return "?"
	}
	return node.Name
}
