// Package transports wires the built-in transport adapters into a registry.
package transports

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/filesystem"
	"github.com/custodia-labs/mirrorsync/internal/transports/ftp"
	"github.com/custodia-labs/mirrorsync/internal/transports/s3"
	"github.com/custodia-labs/mirrorsync/internal/transports/sftp"
	"github.com/custodia-labs/mirrorsync/internal/transports/web"
)

// Ensure Registry implements the interface.
var _ driven.TransportRegistry = (*Registry)(nil)

// Registry maps transport types to adapters.
type Registry struct {
	mu         sync.RWMutex
	transports map[domain.TransportType]driven.Transport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[domain.TransportType]driven.Transport)}
}

// NewDefaultRegistry registers every built-in transport. All of them write
// local files through fs; a nil fs uses the OS filesystem.
func NewDefaultRegistry(fs afero.Fs, userAgent string) *Registry {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	r := NewRegistry()
	httpTransport := web.New(fs, userAgent)
	r.Register(domain.TransportHTTP, httpTransport)
	r.Register(domain.TransportHTTPS, httpTransport)
	r.Register(domain.TransportFTP, ftp.New(fs))
	r.Register(domain.TransportSFTP, sftp.New(fs))
	r.Register(domain.TransportLocal, filesystem.New(fs))
	r.Register(domain.TransportS3, s3.New(fs))
	return r
}

// Register adds or replaces the transport for a type.
func (r *Registry) Register(t domain.TransportType, transport driven.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t] = transport
}

// Get returns the transport for t.
func (r *Registry) Get(t domain.TransportType) (driven.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transport, ok := r.transports[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, t)
	}
	return transport, nil
}

// SupportedTypes returns the registered types in sorted order.
func (r *Registry) SupportedTypes() []domain.TransportType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.TransportType, 0, len(r.transports))
	for t := range r.transports {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
