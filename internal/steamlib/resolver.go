package steamlib

import (
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Resolver finds exported functions in a library, tolerating the
// decorations different toolchains put on C symbol names. Results are
// cached per requested name.
type Resolver struct {
	syms  Symbols
	cache sync.Map // string -> uintptr
}

// NewResolver returns a Resolver that looks names up in syms.
func NewResolver(syms Symbols) *Resolver {
	return &Resolver{syms: syms}
}

// Resolve returns the address of name, trying each spelling from
// nameVariants in turn.
func (r *Resolver) Resolve(name string) (uintptr, error) {
	if addr, ok := r.cache.Load(name); ok {
		return addr.(uintptr), nil
	}

	for _, v := range nameVariants(name) {
		addr, err := r.syms.Lookup(v)
		if err != nil || addr == 0 {
			continue
		}
		if v != name {
			log.WithFields(log.Fields{"symbol": name, "as": v}).Debug("resolved decorated symbol")
		}
		actual, _ := r.cache.LoadOrStore(name, addr)
		return actual.(uintptr), nil
	}
	return 0, errors.Wrap(ErrSymbolNotFound, name)
}

// nameVariants returns the spellings of name to try, in order, without
// duplicates:
//
//  1. name
//  2. without a leading "\x01" (the "use verbatim" marker)
//  3. without a leading "_"
//  4. without both
//  5. without a trailing stdcall "@N" suffix
func nameVariants(name string) []string {
	out := make([]string, 0, 5)
	add := func(v string) {
		if v == "" {
			return
		}
		for _, seen := range out {
			if seen == v {
				return
			}
		}
		out = append(out, v)
	}

	verbatim := strings.TrimPrefix(name, "\x01")
	add(name)
	add(verbatim)
	add(strings.TrimPrefix(name, "_"))
	bare := strings.TrimPrefix(verbatim, "_")
	add(bare)
	add(stripStdcall(bare))
	return out
}

func stripStdcall(name string) string {
	i := strings.LastIndexByte(name, '@')
	if i <= 0 || i == len(name)-1 {
		return name
	}
	for _, c := range name[i+1:] {
		if c < '0' || c > '9' {
			return name
		}
	}
	return name[:i]
}
