// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - Transport / Session: Lists and fetches remote entries for one protocol
//   - TransportRegistry: Resolves a transport from a source type
//   - Progress: Receives byte-level updates from a fetch
//   - SourceStore: Source configuration persistence
//   - HistoryStore: Task outcome persistence
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or transport package
package driven
