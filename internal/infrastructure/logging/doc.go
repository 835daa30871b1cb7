// Package logging provides structured logging for dtuhub.
//
// It wraps log/slog. Every entry carries service=dtuhub and the build
// version. Output goes to stdout, stderr, or a size-rotated file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "./logs/dtuhub.log"
//	    max_size: 10     # MB
//	    max_backups: 5
//	    max_age: 28      # days
//
// Never log secrets, tokens or passwords.
package logging
