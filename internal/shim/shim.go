// Package shim implements the exports of the replacement steam_api
// library: each one forwards to the real library and patches the interface
// object it returns.
package shim

import (
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"github.com/pboyd/vtpatch"
	"github.com/pboyd/vtpatch/internal/config"
	"github.com/pboyd/vtpatch/internal/steamlib"
)

// Resolver finds functions in the real library.
type Resolver interface {
	Resolve(name string) (uintptr, error)
}

// Shim forwards calls to the real library.
type Shim struct {
	resolver Resolver
	engine   *vtpatch.Engine
	disabled bool
	fatal    func(error)
}

// Option configures a Shim.
type Option func(*Shim)

// Disabled makes the shim forward every call without patching.
func Disabled(disabled bool) Option {
	return func(s *Shim) {
		s.disabled = disabled
	}
}

// WithFatal replaces the handler for symbols that can't be resolved. The
// default logs the error and exits.
func WithFatal(fn func(error)) Option {
	return func(s *Shim) {
		s.fatal = fn
	}
}

// New returns a Shim that calls functions found by resolver and patches
// results with engine.
func New(resolver Resolver, engine *vtpatch.Engine, opts ...Option) *Shim {
	s := &Shim{
		resolver: resolver,
		engine:   engine,
		fatal: func(err error) {
			log.WithError(err).Fatal("failed to load symbol")
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultShim = sync.OnceValue(func() *Shim {
	log.SetHandler(cli.New(os.Stderr))

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	lvl, _ := cfg.Level()
	log.SetLevel(lvl)

	lib, err := steamlib.Open(steamlib.Candidates(cfg.LibraryPath))
	if err != nil {
		log.WithError(err).Fatal("failed to load steam api lib")
	}
	if cfg.Disable {
		log.Warn("patching disabled, forwarding only")
	}

	return New(steamlib.NewResolver(lib), vtpatch.Default(), Disabled(cfg.Disable))
})

// Default returns the process-wide Shim. The first call reads the
// configuration and loads the real library.
func Default() *Shim {
	return defaultShim()
}

// call resolves name and calls it with args.
func (s *Shim) call(name string, args ...uintptr) (uintptr, bool) {
	fn, err := s.resolver.Resolve(name)
	if err != nil {
		s.fatal(err)
		return 0, false
	}
	return s.engine.Convention().CallFunc(fn, args...), true
}

func (s *Shim) patchVersion(version, obj uintptr) uintptr {
	if s.disabled {
		return obj
	}
	return s.engine.PatchVersion(version, obj)
}

// FindOrCreateUserInterface forwards
// SteamInternal_FindOrCreateUserInterface(HSteamUser, const char *).
func (s *Shim) FindOrCreateUserInterface(user int32, version uintptr) uintptr {
	obj, ok := s.call("SteamInternal_FindOrCreateUserInterface", uintptr(user), version)
	if !ok {
		return 0
	}
	return s.patchVersion(version, obj)
}

// FindOrCreateGameServerInterface forwards
// SteamInternal_FindOrCreateGameServerInterface(HSteamUser, const char *).
func (s *Shim) FindOrCreateGameServerInterface(user int32, version uintptr) uintptr {
	obj, ok := s.call("SteamInternal_FindOrCreateGameServerInterface", uintptr(user), version)
	if !ok {
		return 0
	}
	return s.patchVersion(version, obj)
}

// CreateInterface forwards SteamInternal_CreateInterface(const char *).
func (s *Shim) CreateInterface(version uintptr) uintptr {
	obj, ok := s.call("SteamInternal_CreateInterface", version)
	if !ok {
		return 0
	}
	return s.patchVersion(version, obj)
}

// accessors maps the flat API accessors to the interface revision they
// return. Their names carry the version, so no string is passed.
var accessors = map[string]vtpatch.Identity{
	"SteamAPI_SteamApps_v008":           {Family: vtpatch.Apps, Revision: 8},
	"SteamAPI_SteamGameServerApps_v008": {Family: vtpatch.Apps, Revision: 8},
	"SteamAPI_SteamUser_v021":           {Family: vtpatch.User, Revision: 21},
	"SteamAPI_SteamUser_v022":           {Family: vtpatch.User, Revision: 22},
	"SteamAPI_SteamUser_v023":           {Family: vtpatch.User, Revision: 23},
}

// Accessor forwards the flat API accessor name and patches its result as
// the revision the name declares.
func (s *Shim) Accessor(name string) uintptr {
	obj, ok := s.call(name)
	if !ok || s.disabled {
		return obj
	}
	id, known := accessors[name]
	if !known {
		return obj
	}
	return s.engine.Patch(id, obj)
}
