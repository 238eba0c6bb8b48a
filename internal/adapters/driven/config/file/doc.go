// Package file provides the TOML-backed configuration store.
//
// Values are addressed with dot-notation keys and written back as nested
// tables, so "engine.workers" lands under [engine] in config.toml.
package file
