// Package process supervises a single external subprocess.
//
// A Process is started from an argument list, never a shell string, so no
// quoting rules apply. Its stdin and stdout can be wired to files (for frame
// pipes); everything it writes to stderr, and to stdout when that is not
// wired, is logged line by line through an optional LogParser.
//
// Stop sends SIGINT to the process group, waits for the graceful timeout,
// then sends SIGKILL. Stop is idempotent and safe to call from several paths.
package process
