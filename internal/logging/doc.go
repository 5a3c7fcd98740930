// Package logging provides file-based logging with rotation for memcore.
// Every command writes JSON logs to ~/.memcore/logs/memcore.log and to
// stderr at info level; the --debug flag lowers the level to debug.
package logging
