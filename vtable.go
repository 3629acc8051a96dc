package vtpatch

import (
	"fmt"
	"unsafe"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// Slot is an index into a vtable that has been checked against the compiled
// layout of specific interface revisions. Slots can only be created inside
// this package through verified.
type Slot struct {
	index    int
	verified string
}

// verified records that index was checked against the layouts described by
// against. The description is kept so every offset in the plan tables
// carries its provenance.
func verified(index int, against string) Slot {
	if index < 0 {
		panic(fmt.Sprintf("negative vtable slot %d (%s)", index, against))
	}
	return Slot{index: index, verified: against}
}

// Index returns the slot's position in the vtable.
func (s Slot) Index() int {
	return s.index
}

// VerifiedAgainst describes the interface revisions the slot was checked
// against.
func (s Slot) VerifiedAgainst() string {
	return s.verified
}

func (s Slot) String() string {
	return fmt.Sprintf("slot %d (%s)", s.index, s.verified)
}

// vtable is the address of an object's virtual dispatch table.
type vtable uintptr

// vtableOf reads the vtable address stored in the first word of obj.
func vtableOf(obj uintptr) vtable {
	return *(*vtable)(unsafe.Pointer(obj))
}

func (v vtable) slotAddr(s Slot) uintptr {
	return uintptr(v) + uintptr(s.index)*ptrSize
}

func (v vtable) load(s Slot) uintptr {
	return *(*uintptr)(unsafe.Pointer(v.slotAddr(s)))
}

// store overwrites a slot. The caller must have made the word writable.
func (v vtable) store(s Slot, fn uintptr) {
	*(*uintptr)(unsafe.Pointer(v.slotAddr(s))) = fn
}
