package vtpatch

import (
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ErrMemoryProtection is returned when the OS refuses to change the
// protection of a vtable word. The engine treats it as fatal.
var ErrMemoryProtection = errors.New("memory protection change failed")

// Engine patches vtables of interface objects returned by the host library.
// An Engine is safe for concurrent use. Most callers want Default.
type Engine struct {
	conv      Convention
	protector Protector
	code      CodeAllocator
	fatal     func(error)

	patched   patchedSet
	originals registry

	replOnce sync.Once
	repl     [numReplacements]uintptr
	replErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithConvention replaces the native calling convention.
func WithConvention(c Convention) Option {
	return func(e *Engine) {
		e.conv = c
	}
}

// WithProtector replaces the OS page protector.
func WithProtector(p Protector) Option {
	return func(e *Engine) {
		e.protector = p
	}
}

// WithCodeAllocator replaces the executable arena that holds fixed-answer
// stubs.
func WithCodeAllocator(c CodeAllocator) Option {
	return func(e *Engine) {
		e.code = c
	}
}

// WithFatal replaces the handler for unrecoverable errors. The default logs
// the error and exits the process.
func WithFatal(fn func(error)) Option {
	return func(e *Engine) {
		e.fatal = fn
	}
}

// New returns an Engine using the native convention, OS page protection and
// an executable arena unless overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		protector: pageProtector{},
		fatal:     logFatal,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.code == nil {
		e.code = &arena{}
	}
	if e.conv == nil {
		e.conv = NativeConvention(e.code)
	}
	return e
}

func logFatal(err error) {
	log.WithError(err).Fatal("vtable patch aborted")
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return New()
})

// Default returns the process-wide Engine, creating it on first use.
func Default() *Engine {
	return defaultEngine()
}

// Convention returns the calling convention the engine calls through.
func (e *Engine) Convention() Convention {
	return e.conv
}

// PatchVersion classifies the NUL-terminated version string at version and
// patches obj accordingly. See Patch.
func (e *Engine) PatchVersion(version, obj uintptr) uintptr {
	if obj == 0 || version == 0 {
		return obj
	}
	id, _ := Classify(cString(version))
	return e.Patch(id, obj)
}

// Patch overrides the vtable slots PlanFor(id) names on obj and returns obj.
// Null objects, unknown identities and revisions that need no patch are
// returned untouched. Each distinct vtable is patched at most once; callers
// racing on the same vtable return only after the patch is in place.
func (e *Engine) Patch(id Identity, obj uintptr) uintptr {
	if obj == 0 || !id.Known() {
		return obj
	}

	plan := PlanFor(id)
	if plan.Mode == NoPatchNeeded {
		return obj
	}

	vt := vtableOf(obj)
	entry, fresh := e.patched.claim(vt)
	if !fresh {
		log.WithFields(log.Fields{
			"identity": id.String(),
			"vtable":   hex(uintptr(vt)),
		}).Debug("vtable already patched")
	}
	entry.once.Do(func() {
		if err := e.apply(id, vt, plan); err != nil {
			e.fatal(err)
			return
		}
		e.patched.markApplied(vt)
	})
	return obj
}

func (e *Engine) apply(id Identity, vt vtable, plan Plan) error {
	ctx := log.WithFields(log.Fields{
		"identity": id.String(),
		"mode":     plan.Mode.String(),
		"vtable":   hex(uintptr(vt)),
	})

	if err := e.initReplacements(); err != nil {
		return err
	}

	// Originals go in before any slot is overwritten so a delegating call
	// through a freshly written slot always finds them.
	if plan.Mode == PatchFactorySlots {
		var originals Originals
		for _, step := range plan.Steps {
			originals[replacements[step.Replace].original] = vt.load(step.Slot)
		}
		e.originals.store(vt, originals)
	}

	for _, step := range plan.Steps {
		fn := e.repl[step.Replace]
		if err := e.writeSlot(vt, step.Slot, fn); err != nil {
			return err
		}
		ctx.WithFields(log.Fields{
			"slot":        step.Slot.Index(),
			"replacement": step.Replace.String(),
		}).Debug("patched slot")
	}
	return nil
}

// protectMu serializes every relax, store, restore sequence in the process.
// Vtables of different interfaces usually share a page, and each restore
// puts back whatever protection its Unprotect observed.
var protectMu sync.Mutex

// writeSlot stores fn in one slot, holding relaxed protection on that word
// only for the duration of the store.
func (e *Engine) writeSlot(vt vtable, s Slot, fn uintptr) (err error) {
	addr := vt.slotAddr(s)

	protectMu.Lock()
	defer protectMu.Unlock()

	restore, err := e.protector.Unprotect(addr, int(ptrSize))
	if err != nil {
		return errors.Wrapf(ErrMemoryProtection, "%s at %#x: %v", s, addr, err)
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = errors.Wrapf(ErrMemoryProtection, "%s at %#x: %v", s, addr, rerr)
		}
	}()

	vt.store(s, fn)
	return nil
}

// initReplacements assembles the fixed-answer stubs and registers the
// delegating callbacks. Callbacks are a limited resource, so this happens
// once per engine.
func (e *Engine) initReplacements() error {
	e.replOnce.Do(func() {
		for r := Replacement(0); r < numReplacements; r++ {
			info := replacements[r]
			var (
				addr uintptr
				err  error
			)
			if info.fixed {
				code := assembleFixedReturn(info)
				addr, err = e.code.Write(code)
				log.WithFields(log.Fields{
					"replacement": r.String(),
					"code":        disassemble(code),
					"addr":        hex(addr),
				}).Debug("assembled stub")
			} else {
				addr, err = e.conv.MethodCallback(e.delegate(r))
			}
			if err != nil {
				e.replErr = errors.Wrapf(err, "create replacement %s", r)
				return
			}
			e.repl[r] = addr
		}
	})
	return e.replErr
}

// Patched reports whether the patch on the vtable at vt has been fully
// applied. A patch that is in progress or failed doesn't count.
func (e *Engine) Patched(vt uintptr) bool {
	return e.patched.contains(vtable(vt))
}

// PatchedCount returns the number of distinct vtables Patch has fully
// patched.
func (e *Engine) PatchedCount() int {
	return e.patched.len()
}

// Originals returns the methods captured from a patched factory vtable.
func (e *Engine) Originals(vt uintptr) (Originals, bool) {
	return e.originals.lookup(vtable(vt))
}

// ReplacementAddr returns the native address installed for r, creating the
// replacements if needed.
func (e *Engine) ReplacementAddr(r Replacement) (uintptr, error) {
	if r >= numReplacements {
		return 0, errors.Errorf("invalid replacement %d", r)
	}
	if err := e.initReplacements(); err != nil {
		return 0, err
	}
	return e.repl[r], nil
}
