package domain

import (
	"maps"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"
)

// Source describes a remote location mirrored into local storage.
// Sources are keyed by Name.
type Source struct {
	// Name is the unique identifier for the source.
	Name string `json:"name"`

	// Type selects the transport used to reach the source.
	Type TransportType `json:"type"`

	// Endpoint is the URL, host, local path or bucket, depending on Type.
	Endpoint string `json:"endpoint"`

	// Target is the subdirectory under the shared storage root.
	// Empty means the source name is used.
	Target string `json:"target,omitempty"`

	// Enabled gates StartSync.
	Enabled bool `json:"enabled"`

	// AutoSync and Schedule are stored for an external scheduler and never interpreted here.
	AutoSync bool   `json:"auto_sync"`
	Schedule string `json:"schedule,omitempty"`

	// Filters restricts which remote entries are mirrored.
	Filters Filters `json:"filters"`

	// Auth holds transport credentials (username, password, private_key, access_key, ...).
	Auth map[string]string `json:"auth,omitempty"`

	// Options holds transport-specific extras (api_url, timeout, port, remote_path, ...).
	Options map[string]string `json:"options,omitempty"`

	// CreatedAt is when the source was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetDir returns the storage subdirectory for the source.
func (s *Source) TargetDir() string {
	if s.Target != "" {
		return s.Target
	}
	return s.Name
}

// Option returns an option value or def when unset.
func (s *Source) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Credential returns an auth value or def when unset.
func (s *Source) Credential(key, def string) string {
	if v, ok := s.Auth[key]; ok && v != "" {
		return v
	}
	return def
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (s Source) Clone() Source {
	s.Auth = maps.Clone(s.Auth)
	s.Options = maps.Clone(s.Options)
	s.Filters.Include = slices.Clone(s.Filters.Include)
	s.Filters.Exclude = slices.Clone(s.Filters.Exclude)
	return s
}

// Validate checks the fields required by the source's transport.
// An empty Type defaults to http.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if s.Type == "" {
		s.Type = TransportHTTP
	}
	spec, ok := LookupTransport(s.Type)
	if !ok {
		return &ValidationError{Field: "type", Reason: "unsupported transport " + string(s.Type)}
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return &ValidationError{Field: "endpoint", Reason: spec.EndpointLabel + " is required for " + string(s.Type)}
	}
	if s.Type == TransportHTTP || s.Type == TransportHTTPS {
		u, err := url.Parse(s.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "endpoint", Reason: "must be an http or https URL"}
		}
	}
	for _, key := range spec.ConfigKeys {
		if key.Required && s.Option(key.Key, "") == "" && s.Credential(key.Key, "") == "" {
			return &ValidationError{Field: key.Key, Reason: "is required for " + string(s.Type)}
		}
	}
	if strings.Contains(s.TargetDir(), "..") {
		return &ValidationError{Field: "target", Reason: "must stay inside the storage directory"}
	}
	for _, pattern := range append(slices.Clone(s.Filters.Include), s.Filters.Exclude...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return &ValidationError{Field: "filters", Reason: "bad pattern " + pattern}
		}
	}
	return nil
}

// Filters selects remote entries by glob pattern.
// Patterns are matched against the entry path and its base name.
type Filters struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Allows reports whether an entry at p passes the filters.
func (f Filters) Allows(p string) bool {
	if matchAny(f.Exclude, p) {
		return false
	}
	if len(f.Include) == 0 {
		return true
	}
	return matchAny(f.Include, p)
}

func matchAny(patterns []string, p string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// SourceStatus aggregates a source's configuration with its sync activity.
type SourceStatus struct {
	Name             string        `json:"name"`
	Enabled          bool          `json:"enabled"`
	Type             TransportType `json:"type"`
	Target           string        `json:"target"`
	Endpoint         string        `json:"endpoint"`
	ActiveTask       *TaskSnapshot `json:"active_task,omitempty"`
	LastSync         *HistoryEntry `json:"last_sync,omitempty"`
	TotalSyncedFiles int           `json:"total_synced_files"`
	TotalSyncedSize  int64         `json:"total_size"`
}
