// Package fakeabi provides in-memory stand-ins for the native pieces the
// patch engine touches: a calling convention whose function pointers are
// Go funcs, a page protector that only records calls, a code allocator that
// never executes anything, and synthetic C++ objects with vtables.
package fakeabi

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

const (
	funcBase   = 0x7000_0000
	funcStride = 0x10
)

// Convention maps fake function addresses to Go funcs. Every func must take
// and return uintptr values only.
type Convention struct {
	mu    sync.Mutex
	funcs map[uintptr]any
	calls map[uintptr]int
}

// NewConvention returns an empty Convention.
func NewConvention() *Convention {
	return &Convention{
		funcs: make(map[uintptr]any),
		calls: make(map[uintptr]int),
	}
}

// Register assigns fn a fake function address.
func (c *Convention) Register(fn any) uintptr {
	if reflect.TypeOf(fn).Kind() != reflect.Func {
		panic(fmt.Sprintf("fakeabi: not a function: %T", fn))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	addr := funcBase + uintptr(len(c.funcs))*funcStride
	c.funcs[addr] = fn
	return addr
}

// Calls returns how many times the func at addr has been called.
func (c *Convention) Calls(addr uintptr) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[addr]
}

func (c *Convention) MethodCallback(fn any) (uintptr, error) {
	return c.Register(fn), nil
}

func (c *Convention) CallMethod(fn, this uintptr, args ...uintptr) uintptr {
	return c.CallFunc(fn, append([]uintptr{this}, args...)...)
}

func (c *Convention) CallFunc(fn uintptr, args ...uintptr) uintptr {
	c.mu.Lock()
	f, ok := c.funcs[fn]
	if ok {
		c.calls[fn]++
	}
	c.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("fakeabi: call to unregistered function %#x", fn))
	}

	fv := reflect.ValueOf(f)
	if fv.Type().NumIn() != len(args) {
		panic(fmt.Sprintf("fakeabi: %#x takes %d args, called with %d", fn, fv.Type().NumIn(), len(args)))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	out := fv.Call(in)
	if len(out) == 0 {
		return 0
	}
	return uintptr(out[0].Uint())
}

// Protector records protection changes without touching memory.
type Protector struct {
	mu         sync.Mutex
	unprotects []uintptr
	restores   int

	// Err is returned from Unprotect when set.
	Err error
	// RestoreErr is returned from every restore func when set.
	RestoreErr error
	// OnUnprotect runs after every successful Unprotect, before the caller
	// writes.
	OnUnprotect func()
}

func (p *Protector) Unprotect(addr uintptr, size int) (func() error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	p.unprotects = append(p.unprotects, addr)
	if p.OnUnprotect != nil {
		p.OnUnprotect()
	}
	return func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.restores++
		return p.RestoreErr
	}, nil
}

// Unprotected returns every address passed to a successful Unprotect.
func (p *Protector) Unprotected() []uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uintptr(nil), p.unprotects...)
}

// Restores returns how many restore funcs have been called.
func (p *Protector) Restores() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restores
}

// Code keeps written code in ordinary Go memory. The addresses it returns
// are unique but must never be called.
type Code struct {
	mu     sync.Mutex
	blocks [][]byte

	// Err is returned from Write when set.
	Err error
}

func (c *Code) Write(code []byte) (uintptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return 0, c.Err
	}
	buf := append([]byte(nil), code...)
	c.blocks = append(c.blocks, buf)
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf))), nil
}

// Blocks returns the code written so far.
func (c *Code) Blocks() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.blocks...)
}

// Object is a synthetic C++ object: a single word holding the address of
// its vtable.
type Object struct {
	Vtable []uintptr
	word   *uintptr
}

// NewObject returns an object with a fresh vtable of n slots. Slot i holds
// 0x1000+i so untouched slots are easy to spot.
func NewObject(n int) *Object {
	vt := make([]uintptr, n)
	for i := range vt {
		vt[i] = 0x1000 + uintptr(i)
	}
	return WithVtable(vt)
}

// WithVtable returns a new object sharing vt.
func WithVtable(vt []uintptr) *Object {
	word := new(uintptr)
	*word = uintptr(unsafe.Pointer(unsafe.SliceData(vt)))
	retain(word)
	retain(vt)
	return &Object{Vtable: vt, word: word}
}

// Addr is the object pointer as the native library would hand it out.
func (o *Object) Addr() uintptr {
	return uintptr(unsafe.Pointer(o.word))
}

// VtableAddr is the vtable address stored in the object's first word.
func (o *Object) VtableAddr() uintptr {
	return *o.word
}

// SlotAddr is the address of vtable slot i.
func (o *Object) SlotAddr(i int) uintptr {
	return uintptr(unsafe.Pointer(&o.Vtable[i]))
}

// Snapshot copies the current vtable contents.
func (o *Object) Snapshot() []uintptr {
	return append([]uintptr(nil), o.Vtable...)
}

// retained holds every buffer whose address is handed out as a bare
// uintptr. Native callers keep no Go reference, so nothing else would.
var retained struct {
	mu   sync.Mutex
	bufs []any
}

func retain(v any) {
	retained.mu.Lock()
	defer retained.mu.Unlock()
	retained.bufs = append(retained.bufs, v)
}

// CString is a NUL-terminated string in Go memory. Its buffer is never
// collected, so Addr stays valid after the CString itself is gone.
type CString struct {
	buf []byte
}

// NewCString returns s as a C string.
func NewCString(s string) *CString {
	buf := append([]byte(s), 0)
	retain(buf)
	return &CString{buf: buf}
}

// Addr is the address of the first byte.
func (s *CString) Addr() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s.buf)))
}
