package movie

import (
	"testing"

	"github.com/hashicorp/go-hclog"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, error) {
	if path, ok := m[name]; ok {
		return path, nil
	}
	return "", ErrAssetNotFound
}

type archiveResolver struct{}

func (archiveResolver) Resolve(name string) (string, error) {
	return "", ErrArchivedAsset
}

func newTestRegistry(cfg fakeMovieConfig, resolver PathResolver) (*Registry, *fakeDemuxer) {
	fm := newFakeMovie(cfg)
	if resolver == nil {
		resolver = mapResolver{"intro": "media/intro.avi"}
	}
	r := NewRegistry(RegistryConfig{
		Resolver: resolver,
		Open:     fm.open,
		Logger:   hclog.NewNullLogger(),
	})
	return r, fm
}

func TestRegistryEnableDisable(t *testing.T) {
	r, _ := newTestRegistry(fakeMovieConfig{}, nil)

	if r.Enabled() {
		t.Error("registry enabled before Enable")
	}
	if !r.Enable() {
		t.Fatal("Enable failed")
	}
	if !r.Enabled() {
		t.Error("registry not enabled after Enable")
	}

	r.Disable()
	if r.Enabled() {
		t.Error("registry enabled after Disable")
	}
	r.Disable() // safe to repeat
}

func TestRegistryConfiguredOff(t *testing.T) {
	fm := newFakeMovie(fakeMovieConfig{})
	r := NewRegistry(RegistryConfig{
		Resolver: mapResolver{"intro": "media/intro.avi"},
		Open:     fm.open,
		Logger:   hclog.NewNullLogger(),
		Disabled: true,
	})

	if r.Enable() {
		t.Error("Enable succeeded on a registry configured off")
	}
	if s := r.LoadByName("intro", false); s != nil {
		t.Error("LoadByName returned a session while disabled")
	}
}

func TestRegistrySlots(t *testing.T) {
	r, _ := newTestRegistry(fakeMovieConfig{}, nil)

	for i := 0; i < NumSlots; i++ {
		if r.Slot(i) == nil {
			t.Errorf("Slot(%d) = nil", i)
		}
	}
	if r.Slot(-1) != nil || r.Slot(NumSlots) != nil {
		t.Error("out-of-range slot lookup returned a session")
	}

	// Slots stay addressable across close.
	s := r.Slot(0)
	r.FreeSession(s)
	if r.Slot(0) != s {
		t.Error("slot replaced by FreeSession")
	}
}

func TestRegistryLoadByName(t *testing.T) {
	r, fm := newTestRegistry(fakeMovieConfig{videoFrames: 10}, nil)
	r.Enable()

	s := r.LoadByName("intro", false)
	if s == nil {
		t.Fatal("LoadByName failed")
	}
	if !s.IsActive() {
		t.Error("loaded session not active")
	}

	if got := r.LoadByName("unknown", false); got != nil {
		t.Error("LoadByName succeeded for an unknown name")
	}

	r.FreeSession(s)
	if s.IsActive() {
		t.Error("session active after FreeSession")
	}
	r.FreeSession(nil) // ignored

	// Disable closes everything still owned.
	s2 := r.LoadByName("intro", false)
	if s2 == nil {
		t.Fatal("second LoadByName failed")
	}
	r.Disable()
	if s2.IsActive() {
		t.Error("owned session active after Disable")
	}
	_ = fm
}

func TestRegistryArchivedAsset(t *testing.T) {
	r, _ := newTestRegistry(fakeMovieConfig{}, archiveResolver{})
	r.Enable()

	// Archived movies cannot be opened in place; the load fails cleanly.
	if s := r.LoadByName("intro", false); s != nil {
		t.Error("LoadByName returned a session for an archived asset")
	}
}

func TestRegistryLoadOpenFailure(t *testing.T) {
	r, _ := newTestRegistry(fakeMovieConfig{failVideoDecoder: true}, nil)
	r.Enable()

	if s := r.LoadByName("intro", false); s != nil {
		t.Error("LoadByName returned a session after a failed open")
	}
}
