// Package iox provides small I/O helpers shared by the pipeline and the CLI.
package iox

import "io"

// DiscardClose closes c and ignores the error. For defers where a close
// error changes nothing:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads rc to EOF and closes it. HTTP clients use it on response
// bodies so the connection can be reused.
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
