package movie

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// NumSlots is the number of fixed playback slots in a registry.
const NumSlots = 2

// RegistryConfig configures a session registry.
type RegistryConfig struct {
	// Resolver maps logical movie names to on-disk paths for LoadByName.
	// Defaults to DiskResolver{}.
	Resolver PathResolver

	// Open opens media containers for every session the registry creates.
	// Defaults to OpenFFmpeg.
	Open DemuxOpener

	// Logger receives diagnostics. Defaults to hclog.Default().
	Logger hclog.Logger

	// Disabled starts the registry disabled; Enable then fails fast.
	// Callers typically wire this to a command-line switch.
	Disabled bool
}

// Registry is the process-wide table of playback sessions: a fixed set of
// indexed slots plus any sessions handed out by LoadByName, behind a single
// enable switch. Each slot is driven by one owning goroutine at a time; the
// registry itself only guards its own lifecycle state.
type Registry struct {
	mu       sync.Mutex
	enabled  bool
	disabled bool // Configured off; Enable never succeeds

	logger   hclog.Logger
	resolver PathResolver
	open     DemuxOpener

	slots [NumSlots]*Session
	owned map[*Session]bool
}

// NewRegistry creates a registry with its fixed slots constructed but
// playback disabled until Enable.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		logger:   cfg.Logger,
		resolver: cfg.Resolver,
		open:     cfg.Open,
		disabled: cfg.Disabled,
		owned:    make(map[*Session]bool),
	}
	if r.logger == nil {
		r.logger = hclog.Default()
	}
	if r.resolver == nil {
		r.resolver = DiskResolver{}
	}
	for i := range r.slots {
		r.slots[i] = NewSession(SessionConfig{Open: r.open, Logger: r.logger})
	}
	return r
}

// Enable turns playback on and reports whether it is enabled. A registry
// configured as disabled stays off.
func (r *Registry) Enable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		r.logger.Info("movie playback disabled")
		return false
	}
	r.enabled = true
	return true
}

// Disable turns playback off and closes every session the registry knows
// about. Safe to call repeatedly.
func (r *Registry) Disable() {
	r.mu.Lock()
	r.enabled = false
	owned := make([]*Session, 0, len(r.owned))
	for s := range r.owned {
		owned = append(owned, s)
	}
	r.owned = make(map[*Session]bool)
	r.mu.Unlock()

	for _, s := range owned {
		s.Close()
	}
	for _, s := range r.slots {
		s.Close()
	}
}

// Enabled reports whether playback is currently enabled.
func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Slot returns the fixed session at index i, or nil when i is out of range.
func (r *Registry) Slot(i int) *Session {
	if i < 0 || i >= NumSlots {
		return nil
	}
	return r.slots[i]
}

// LoadByName resolves a logical movie name to an on-disk path and opens a
// new session for it. It returns nil when playback is disabled, the asset
// cannot be resolved to a loose file on disk, or the open fails; partial
// resources are released before returning.
func (r *Registry) LoadByName(name string, wantAudio bool) *Session {
	r.mu.Lock()
	enabled := r.enabled
	r.mu.Unlock()
	if !enabled {
		return nil
	}

	path, err := r.resolver.Resolve(name)
	if err != nil {
		if errors.Is(err, ErrArchivedAsset) {
			r.logger.Error("couldn't load movie from archive, please extract it", "name", name)
		} else {
			r.logger.Error("couldn't resolve movie", "name", name, "error", err)
		}
		return nil
	}

	s := NewSession(SessionConfig{Open: r.open, Logger: r.logger})
	if err := s.Open(path, wantAudio, false); err != nil {
		s.Close()
		return nil
	}

	r.mu.Lock()
	r.owned[s] = true
	r.mu.Unlock()
	return s
}

// FreeSession closes s. Sessions created by LoadByName are also released
// from the registry; fixed slots are only closed and stay addressable.
// A nil session is ignored.
func (r *Registry) FreeSession(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	delete(r.owned, s)
	r.mu.Unlock()
	s.Close()
}
