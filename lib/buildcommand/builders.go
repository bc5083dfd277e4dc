// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildcommand

// Comparison flags accepted by test nodes.
const (
	TestEqual     = "-eq"
	TestNotEqual  = "-neq"
	TestIsDir     = "-d"
	TestIsNotDir  = "-nd"
	TestIsFile    = "-f"
	TestIsNotFile = "-nf"
)

// New returns a node of the given kind with the given children.
func New(name string, subCommands ...*Command) *Command {
	return &Command{Name: name, Args: map[string]any{}, SubCommands: subCommands}
}

// Exec runs an external process.
func Exec(command string, args ...string) *Command {
	node := New(KindExec)
	node.Args["command"] = command
	node.Args["args"] = append([]string{}, args...)
	return node
}

// Script runs command as a shell script; on Windows it is handed to
// cmd /c.
func Script(command string, args ...string) *Command {
	return Exec(command, args...).WithArg("script", true)
}

// And passes when every child passes, stopping at the first that does not.
func And(subCommands ...*Command) *Command {
	return New(KindAnd, subCommands...)
}

// Or passes at the first child that passes.
func Or(subCommands ...*Command) *Command {
	return New(KindOr, subCommands...)
}

// Cond takes alternating (test, action) pairs and an optional trailing
// else action.
func Cond(subCommands ...*Command) *Command {
	return New(KindCond, subCommands...)
}

// Test compares value using flag. The string comparisons (-eq, -neq)
// compare against the captured output of the first sub-command; the
// path checks (-d, -nd, -f, -nf) treat value as a path.
func Test(flag, value string, subCommands ...*Command) *Command {
	node := New(KindTest, subCommands...)
	node.Args["flag"] = flag
	node.Args["value"] = value
	return node
}

// Task wraps one command with start and status markers and copies its
// result onto itself.
func Task(command *Command) *Command {
	return New(KindTask, command)
}

// Compose runs its children in order on the enclosing session.
func Compose(subCommands ...*Command) *Command {
	return New(KindCompose, subCommands...)
}

// Echo prints lines after ${name} build-variable substitution.
func Echo(lines ...string) *Command {
	node := New(KindEcho)
	node.Args["lines"] = append([]string{}, lines...)
	return node
}

// Fail prints message and fails.
func Fail(message string) *Command {
	node := New(KindFail)
	node.Args["message"] = message
	return node
}

// Export sets an environment variable for the rest of the build.
// Secure values are masked when printed and registered as secrets.
func Export(name, value string, secure bool) *Command {
	node := New(KindExport)
	node.Args["name"] = name
	node.Args["value"] = value
	node.Args["secure"] = secure
	return node
}

// ExportCurrent prints the current value of an environment variable.
func ExportCurrent(name string) *Command {
	node := New(KindExport)
	node.Args["name"] = name
	return node
}

// Secret registers value for redaction. An empty substitution selects
// the session's mask.
func Secret(value, substitution string) *Command {
	node := New(KindSecret)
	node.Args["value"] = value
	if substitution != "" {
		node.Args["substitution"] = substitution
	}
	return node
}

// Mkdirs creates path and its parents; it fails if path exists.
func Mkdirs(path string) *Command {
	node := New(KindMkdirs)
	node.Args["path"] = path
	return node
}

// Cleandir removes everything under path except the allowed entries.
func Cleandir(path string, allowed ...string) *Command {
	node := New(KindCleandir)
	node.Args["path"] = path
	node.Args["allowed"] = append([]string{}, allowed...)
	return node
}

// ReportCurrentStatus sends a job state to the reporter.
func ReportCurrentStatus(status string) *Command {
	node := New(KindReportCurrentStatus)
	node.Args["status"] = status
	return node
}

// ReportCompleting tells the reporter the job is completing with the
// build outcome so far.
func ReportCompleting() *Command {
	return New(KindReportCompleting)
}

// DownloadFile fetches url into dest, verifying it against the
// checksum file at checksumURL when that is set. src names the entry
// in the checksum file.
func DownloadFile(url, src, dest, checksumURL string) *Command {
	return download(KindDownloadFile, url, src, dest, checksumURL)
}

// DownloadDir fetches a zip archive from url and extracts it into dest.
func DownloadDir(url, src, dest, checksumURL string) *Command {
	return download(KindDownloadDir, url, src, dest, checksumURL)
}

func download(kind, url, src, dest, checksumURL string) *Command {
	node := New(kind)
	node.Args["url"] = url
	node.Args["src"] = src
	node.Args["dest"] = dest
	if checksumURL != "" {
		node.Args["checksumUrl"] = checksumURL
	}
	return node
}

// UploadArtifact publishes the files matching the src glob under dest.
func UploadArtifact(src, dest string, ignoreUnmatchError bool) *Command {
	node := New(KindUploadArtifact)
	node.Args["src"] = src
	node.Args["dest"] = dest
	node.Args["ignoreUnmatchError"] = ignoreUnmatchError
	return node
}

// GenerateProperty publishes a build property whose value is the first
// line of the src file.
func GenerateProperty(name, src string) *Command {
	node := New(KindGenerateProperty)
	node.Args["name"] = name
	node.Args["src"] = src
	return node
}

// WithArg sets an argument and returns c.
func (c *Command) WithArg(name string, value any) *Command {
	if c.Args == nil {
		c.Args = map[string]any{}
	}
	c.Args[name] = value
	return c
}

// WithWorkingDirectory sets the node's working directory and returns c.
func (c *Command) WithWorkingDirectory(directory string) *Command {
	c.WorkingDirectory = directory
	return c
}

// WithTest sets the node's test guard and returns c.
func (c *Command) WithTest(test *Command) *Command {
	c.Test = test
	return c
}

// WithRunIf sets the node's run-if policy and returns c.
func (c *Command) WithRunIf(policy RunIf) *Command {
	c.RunIfConfig = policy
	return c
}

// WithOnCancel sets the command run when this node observes
// cancellation, and returns c.
func (c *Command) WithOnCancel(onCancel *Command) *Command {
	c.OnCancel = onCancel
	return c
}
