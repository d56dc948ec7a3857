// Package logx is kasbon's logging front end over zerolog.
//
// A Service owns the sinks (console and an optional JSON file) and can be
// reconfigured while loggers derived from it are in use. Loggers are values;
// the zero Logger discards everything.
package logx
