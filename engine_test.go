package vtpatch

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/vtpatch/internal/fakeabi"
)

type harness struct {
	conv *fakeabi.Convention
	prot *fakeabi.Protector
	code *fakeabi.Code
	eng  *Engine

	mu     sync.Mutex
	fatals []error
}

func newHarness() *harness {
	h := &harness{
		conv: fakeabi.NewConvention(),
		prot: &fakeabi.Protector{},
		code: &fakeabi.Code{},
	}
	h.eng = New(
		WithConvention(h.conv),
		WithProtector(h.prot),
		WithCodeAllocator(h.code),
		WithFatal(func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.fatals = append(h.fatals, err)
		}),
	)
	return h
}

func (h *harness) fatalErrors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.fatals...)
}

func (h *harness) replacement(t *testing.T, r Replacement) uintptr {
	t.Helper()
	addr, err := h.eng.ReplacementAddr(r)
	require.NoError(t, err)
	require.NotZero(t, addr)
	return addr
}

// assertOnlySlots checks that exactly the listed slots differ from before.
func assertOnlySlots(t *testing.T, before, after []uintptr, want map[int]uintptr) {
	t.Helper()
	require.Len(t, after, len(before))
	for i := range before {
		if fn, ok := want[i]; ok {
			assert.Equal(t, fn, after[i], "slot %d", i)
			continue
		}
		assert.Equal(t, before[i], after[i], "slot %d should be untouched", i)
	}
}

func TestPatch_NullObject(t *testing.T) {
	h := newHarness()

	for _, id := range []Identity{
		{},
		{Family: Apps, Revision: 8},
		{Family: User, Revision: 23},
		{Family: Client, Revision: 20},
	} {
		assert.Zero(t, h.eng.Patch(id, 0), id.String())
	}
	assert.Zero(t, h.eng.PatchVersion(fakeabi.NewCString("SteamUser023").Addr(), 0))

	assert.Empty(t, h.prot.Unprotected())
	assert.Zero(t, h.eng.PatchedCount())
}

func TestPatch_UnknownIdentity(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	obj := fakeabi.NewObject(24)
	before := obj.Snapshot()

	assert.Equal(obj.Addr(), h.eng.Patch(Identity{}, obj.Addr()))

	for _, version := range []string{"", "SteamUserStats012", "SteamUser", "SteamUser0231", "ISteamApps008"} {
		v := fakeabi.NewCString(version)
		assert.Equal(obj.Addr(), h.eng.PatchVersion(v.Addr(), obj.Addr()), version)
		runtime.KeepAlive(v)
	}
	assert.Equal(obj.Addr(), h.eng.PatchVersion(0, obj.Addr()))

	assert.Equal(before, obj.Vtable)
	assert.Empty(h.prot.Unprotected())
	assert.Zero(h.eng.PatchedCount())
	assert.Empty(h.code.Blocks())
}

func TestPatch_BelowThreshold(t *testing.T) {
	h := newHarness()

	for _, id := range []Identity{
		{Family: Apps, Revision: 1},
		{Family: Apps, Revision: 2},
		{Family: User, Revision: 15},
		{Family: Client, Revision: 11},
	} {
		obj := fakeabi.NewObject(24)
		before := obj.Snapshot()
		assert.Equal(t, obj.Addr(), h.eng.Patch(id, obj.Addr()))
		assert.Equal(t, before, obj.Vtable, id.String())
		assert.False(t, h.eng.Patched(obj.VtableAddr()), id.String())
	}
	assert.Empty(t, h.prot.Unprotected())
}

func TestPatch_Apps(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	obj := fakeabi.NewObject(24)
	before := obj.Snapshot()

	assert.Equal(obj.Addr(), h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr()))

	assertOnlySlots(t, before, obj.Vtable, map[int]uintptr{
		7: h.replacement(t, DLCInstalled),
	})
	assert.Equal([]uintptr{obj.SlotAddr(7)}, h.prot.Unprotected())
	assert.Equal(1, h.prot.Restores())
	assert.True(h.eng.Patched(obj.VtableAddr()))

	_, ok := h.eng.Originals(obj.VtableAddr())
	assert.False(ok, "fixed-answer vtables have no originals")
	assert.Empty(h.fatalErrors())
}

func TestPatch_UserRevisions(t *testing.T) {
	tests := []struct {
		revision uint16
		slot     int
	}{
		{16, 17},
		{21, 17},
		{22, 17},
		{23, 18},
		{99, 18},
	}

	for _, tt := range tests {
		h := newHarness()
		obj := fakeabi.NewObject(32)
		before := obj.Snapshot()

		h.eng.Patch(Identity{Family: User, Revision: tt.revision}, obj.Addr())

		assertOnlySlots(t, before, obj.Vtable, map[int]uintptr{
			tt.slot: h.replacement(t, LicenseGranted),
		})
		assert.Equal(t, []uintptr{obj.SlotAddr(tt.slot)}, h.prot.Unprotected(), "revision %d", tt.revision)
	}
}

func TestPatch_Idempotent(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	obj := fakeabi.NewObject(24)
	id, ok := Classify("STEAMAPPS_INTERFACE_VERSION008")
	require.True(t, ok)

	assert.Equal(obj.Addr(), h.eng.Patch(id, obj.Addr()))
	once := obj.Snapshot()

	assert.Equal(obj.Addr(), h.eng.Patch(id, obj.Addr()))
	assert.Equal(once, obj.Vtable)

	// A second object sharing the vtable is already covered.
	other := fakeabi.WithVtable(obj.Vtable)
	assert.Equal(other.Addr(), h.eng.Patch(id, other.Addr()))

	assert.Len(h.prot.Unprotected(), 1)
	assert.Equal(1, h.eng.PatchedCount())
}

func TestPatch_ClientCapturesOriginals(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	client := fakeabi.NewObject(40)
	before := client.Snapshot()

	h.eng.Patch(Identity{Family: Client, Revision: 20}, client.Addr())

	assertOnlySlots(t, before, client.Vtable, map[int]uintptr{
		5:  h.replacement(t, DelegateGetUser),
		12: h.replacement(t, DelegateGetGeneric),
		15: h.replacement(t, DelegateGetApps),
	})

	originals, ok := h.eng.Originals(client.VtableAddr())
	require.True(t, ok)
	assert.Equal(Originals{before[5], before[12], before[15]}, originals)
	assert.Equal(1, h.eng.originals.len())

	h.eng.Patch(Identity{Family: Client, Revision: 20}, client.Addr())
	assert.Equal(1, h.eng.originals.len())
	assert.Len(h.prot.Unprotected(), 3)
	assert.Equal(3, h.prot.Restores())
}

// newClient returns a Client 020 object whose GetISteamUser,
// GetISteamGenericInterface and GetISteamApps slots are fake originals.
func newClient(h *harness, getUser, getGeneric, getApps factoryMethod) *fakeabi.Object {
	client := fakeabi.NewObject(40)
	if getUser != nil {
		client.Vtable[5] = h.conv.Register(getUser)
	}
	if getGeneric != nil {
		client.Vtable[12] = h.conv.Register(getGeneric)
	}
	if getApps != nil {
		client.Vtable[15] = h.conv.Register(getApps)
	}
	return client
}

func TestDelegation(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	user := fakeabi.NewObject(32)
	userBefore := user.Snapshot()

	type call struct{ this, user, pipe, version uintptr }
	var calls []call
	client := newClient(h, func(this, u, pipe, version uintptr) uintptr {
		calls = append(calls, call{this, u, pipe, version})
		return user.Addr()
	}, nil, nil)
	originalGetUser := client.Vtable[5]

	h.eng.Patch(Identity{Family: Client, Revision: 20}, client.Addr())

	version := fakeabi.NewCString("SteamUser023")
	got := h.conv.CallMethod(client.Vtable[5], client.Addr(), 1, 2, version.Addr())

	assert.Equal(user.Addr(), got)
	assert.Equal([]call{{client.Addr(), 1, 2, version.Addr()}}, calls)
	assert.Equal(1, h.conv.Calls(originalGetUser))

	// The vended user object was patched on the way out.
	assertOnlySlots(t, userBefore, user.Vtable, map[int]uintptr{
		18: h.replacement(t, LicenseGranted),
	})
	assert.True(h.eng.Patched(user.VtableAddr()))
	runtime.KeepAlive(version)
}

func TestDelegation_Recursive(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	apps := fakeabi.NewObject(24)
	inner := newClient(h, nil, nil, nil)

	outer := newClient(h, nil, func(this, user, pipe, version uintptr) uintptr {
		switch cString(version) {
		case "STEAMAPPS_INTERFACE_VERSION008":
			return apps.Addr()
		case "SteamClient021":
			return inner.Addr()
		}
		return 0
	}, func(this, user, pipe, version uintptr) uintptr {
		return apps.Addr()
	})

	h.eng.Patch(Identity{Family: Client, Revision: 21}, outer.Addr())

	v := fakeabi.NewCString("SteamClient021")
	assert.Equal(inner.Addr(), h.conv.CallMethod(outer.Vtable[12], outer.Addr(), 1, 1, v.Addr()))
	assert.True(h.eng.Patched(inner.VtableAddr()))
	assert.Equal(2, h.eng.originals.len())

	v = fakeabi.NewCString("STEAMAPPS_INTERFACE_VERSION008")
	assert.Equal(apps.Addr(), h.conv.CallMethod(outer.Vtable[15], outer.Addr(), 1, 1, v.Addr()))
	assert.Equal(h.replacement(t, DLCInstalled), apps.Vtable[7])

	// Unknown interfaces come back untouched.
	v = fakeabi.NewCString("SteamFriends017")
	assert.Zero(h.conv.CallMethod(outer.Vtable[12], outer.Addr(), 1, 1, v.Addr()))
	runtime.KeepAlive(v)

	assert.Empty(h.fatalErrors())
}

func TestDelegation_NullResult(t *testing.T) {
	h := newHarness()

	client := newClient(h, func(this, user, pipe, version uintptr) uintptr {
		return 0
	}, nil, nil)
	h.eng.Patch(Identity{Family: Client, Revision: 20}, client.Addr())
	unprotects := len(h.prot.Unprotected())

	v := fakeabi.NewCString("SteamUser023")
	assert.Zero(t, h.conv.CallMethod(client.Vtable[5], client.Addr(), 1, 1, v.Addr()))
	assert.Len(t, h.prot.Unprotected(), unprotects)
	runtime.KeepAlive(v)
}

func TestDelegation_MissingOriginal(t *testing.T) {
	h := newHarness()

	// Never patched, so the registry has nothing for this vtable.
	obj := fakeabi.NewObject(40)
	v := fakeabi.NewCString("SteamUser023")

	for _, r := range []Replacement{DelegateGetUser, DelegateGetGeneric, DelegateGetApps} {
		assert.Zero(t, h.eng.delegate(r)(obj.Addr(), 1, 1, v.Addr()), r.String())
	}
	runtime.KeepAlive(v)
}

func TestPatch_Concurrent(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()

	client := newClient(h, func(this, user, pipe, version uintptr) uintptr {
		return 0
	}, nil, nil)
	apps := fakeabi.NewObject(24)
	getUser := h.replacement(t, DelegateGetUser)
	dlcInstalled := h.replacement(t, DLCInstalled)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			obj := fakeabi.WithVtable(client.Vtable)
			h.eng.Patch(Identity{Family: Client, Revision: 20}, obj.Addr())
			// Patch has returned, so the slot must be in place.
			assert.Equal(getUser, client.Vtable[5])
		}()
		go func() {
			defer wg.Done()
			h.eng.Patch(Identity{Family: Apps, Revision: 8}, apps.Addr())
			assert.Equal(dlcInstalled, apps.Vtable[7])
		}()
	}
	wg.Wait()

	assert.Len(h.prot.Unprotected(), 4)
	assert.Equal(4, h.prot.Restores())
	assert.Equal(2, h.eng.PatchedCount())
	assert.Equal(1, h.eng.originals.len())
}

func TestPatch_ProtectionFailure(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()
	h.prot.Err = errors.New("EACCES")

	obj := fakeabi.NewObject(24)
	before := obj.Snapshot()

	assert.Equal(obj.Addr(), h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr()))

	fatals := h.fatalErrors()
	require.Len(t, fatals, 1)
	assert.ErrorIs(fatals[0], ErrMemoryProtection)
	assert.Contains(fatals[0].Error(), "EACCES")
	assert.Equal(before, obj.Vtable)
	assert.Zero(h.prot.Restores())

	// A failed patch is never reported as applied, and isn't retried.
	assert.False(h.eng.Patched(obj.VtableAddr()))
	assert.Zero(h.eng.PatchedCount())
	h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr())
	assert.Len(h.fatalErrors(), 1)
}

func TestPatch_RestoreFailure(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()
	h.prot.RestoreErr = errors.New("ENOMEM")

	obj := fakeabi.NewObject(24)
	h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr())

	fatals := h.fatalErrors()
	require.Len(t, fatals, 1)
	assert.ErrorIs(fatals[0], ErrMemoryProtection)
	assert.Contains(fatals[0].Error(), "ENOMEM")
	assert.Equal(1, h.prot.Restores())
	assert.False(h.eng.Patched(obj.VtableAddr()))
}

func TestPatch_ReplacementFailure(t *testing.T) {
	h := newHarness()
	h.code.Err = errors.New("arena exhausted")

	obj := fakeabi.NewObject(24)
	before := obj.Snapshot()
	h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr())

	fatals := h.fatalErrors()
	require.Len(t, fatals, 1)
	assert.Contains(t, fatals[0].Error(), "arena exhausted")
	assert.Equal(t, before, obj.Vtable)
	assert.Empty(t, h.prot.Unprotected())
	assert.Zero(t, h.eng.PatchedCount())
}

func TestPatch_AppliedAfterApply(t *testing.T) {
	h := newHarness()
	obj := fakeabi.NewObject(24)

	var seenDuring bool
	h.prot.OnUnprotect = func() {
		seenDuring = h.eng.Patched(obj.VtableAddr())
	}
	h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr())

	assert.False(t, seenDuring, "reported as patched before the slot was written")
	assert.True(t, h.eng.Patched(obj.VtableAddr()))
	assert.Equal(t, 1, h.eng.PatchedCount())
}

func TestPatchVersion_CollectedCString(t *testing.T) {
	h := newHarness()
	obj := fakeabi.NewObject(24)

	// Only the address survives, the way a native caller hands it over.
	version := fakeabi.NewCString("STEAMAPPS_INTERFACE_VERSION008").Addr()
	runtime.GC()

	h.eng.PatchVersion(version, obj.Addr())
	assert.Equal(t, h.replacement(t, DLCInstalled), obj.Vtable[7])
}

func TestPatch_Logging(t *testing.T) {
	handler := memory.New()
	saved := log.Log
	log.Log = &log.Logger{Handler: handler, Level: log.DebugLevel}
	t.Cleanup(func() { log.Log = saved })

	h := newHarness()
	obj := fakeabi.NewObject(24)
	h.eng.Patch(Identity{Family: Apps, Revision: 8}, obj.Addr())

	var patched *log.Entry
	for _, e := range handler.Entries {
		if e.Message == "patched slot" {
			patched = e
		}
	}
	require.NotNil(t, patched)
	assert.Equal(t, 7, patched.Fields["slot"])
	assert.Equal(t, "BIsDlcInstalled", patched.Fields["replacement"])
	assert.Equal(t, "Apps/8", patched.Fields["identity"])
}
