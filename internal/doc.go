// Package internal contains the implementation packages of sitepipe.
//
// # Package Organization
//
//   - assets: the path table, one source glob and destination per category
//   - transform: the stylesheet chain (vendor prefixing, then minification)
//   - imageopt: lossless image re-encoding
//   - build: the html, styles and images tasks plus series/parallel composition
//   - watcher: fsnotify watching with per-path debouncing and stage dispatch
//   - server: static dev server with live reload over WebSocket
//   - services: the build and live workflows wired from configuration
//   - config: Viper-backed configuration and validation
//   - errors, logging: failure reporting and structured logging
//   - version: build metadata
//
// # Flow
//
// A change under a source directory becomes a watcher.Event for one
// category. The dispatcher re-runs that category's build task, which
// reports per-file failures to an errors.Reporter and tells the dev
// server's hub to reload or inject the result.
package internal
