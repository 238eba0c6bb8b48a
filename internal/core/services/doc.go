// Package services implements the driving ports.
//
// SyncEngine owns the source registry, the task table and the worker pool.
// Control operations (start, stop, pause, resume) only change in-memory task
// state; the workers observe that state at checkpoints between chunks.
// SettingsService maps the TOML configuration onto domain.AppSettings.
package services
