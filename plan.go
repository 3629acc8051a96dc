package vtpatch

// Mode says how an interface revision is patched.
type Mode uint8

const (
	// NoPatchNeeded means the revision predates every targeted method.
	NoPatchNeeded Mode = iota
	// PatchSingleMethod overrides one or two slots with fixed-answer
	// replacements.
	PatchSingleMethod
	// PatchFactorySlots overrides factory methods with delegating
	// replacements. The original slot values are captured first.
	PatchFactorySlots
)

func (m Mode) String() string {
	switch m {
	case PatchSingleMethod:
		return "PatchSingleMethod"
	case PatchFactorySlots:
		return "PatchFactorySlots"
	default:
		return "NoPatchNeeded"
	}
}

// Step overrides one vtable slot.
type Step struct {
	Slot    Slot
	Replace Replacement
}

// Plan lists the slots to override for one interface identity.
type Plan struct {
	Mode  Mode
	Steps []Step
}

type revisionRange struct {
	min, max uint16 // inclusive; max 0 means unbounded
}

func (r revisionRange) contains(rev uint16) bool {
	return rev >= r.min && (r.max == 0 || rev <= r.max)
}

type layout struct {
	revisions revisionRange
	mode      Mode
	steps     []Step
}

// layouts holds the slot offsets of the targeted methods per family and
// revision range. They mirror the compiled vtable order of the Steamworks
// SDK headers and have to match the shipped library; revisions not covered
// here are left alone.
var layouts = map[Family][]layout{
	Apps: {
		{
			// ISteamApps: BIsSubscribed, BIsLowViolence, BIsCybercafe,
			// BIsVACBanned, GetCurrentGameLanguage,
			// GetAvailableGameLanguages, BIsSubscribedApp,
			// BIsDlcInstalled, ...
			revisions: revisionRange{min: 3},
			mode:      PatchSingleMethod,
			steps: []Step{
				{verified(7, "ISteamApps 003-008 BIsDlcInstalled"), DLCInstalled},
			},
		},
	},
	User: {
		{
			// GetVoiceOptimalSampleRate (12) arrived in 016, pushing
			// UserHasLicenseForApp to 17.
			revisions: revisionRange{min: 16, max: 22},
			mode:      PatchSingleMethod,
			steps: []Step{
				{verified(17, "ISteamUser 016-022 UserHasLicenseForApp"), LicenseGranted},
			},
		},
		{
			// GetAuthTicketForWebApi inserted at 14.
			revisions: revisionRange{min: 23},
			mode:      PatchSingleMethod,
			steps: []Step{
				{verified(18, "ISteamUser 023 UserHasLicenseForApp"), LicenseGranted},
			},
		},
	},
	Client: {
		{
			// ISteamClient: CreateSteamPipe, BReleaseSteamPipe,
			// ConnectToGlobalUser, CreateLocalUser, ReleaseUser,
			// GetISteamUser, GetISteamGameServer, SetLocalIPBinding,
			// GetISteamFriends, GetISteamUtils, GetISteamMatchmaking,
			// GetISteamMatchmakingServers, GetISteamGenericInterface,
			// GetISteamUserStats, GetISteamGameServerStats,
			// GetISteamApps, ...
			revisions: revisionRange{min: 12},
			mode:      PatchFactorySlots,
			steps: []Step{
				{verified(5, "ISteamClient 012-021 GetISteamUser"), DelegateGetUser},
				{verified(12, "ISteamClient 012-021 GetISteamGenericInterface"), DelegateGetGeneric},
				{verified(15, "ISteamClient 012-021 GetISteamApps"), DelegateGetApps},
			},
		},
	},
}

// PlanFor returns the patch plan for id. Unknown identities and revisions
// outside every known range get NoPatchNeeded.
func PlanFor(id Identity) Plan {
	if !id.Known() {
		return Plan{}
	}
	for _, l := range layouts[id.Family] {
		if l.revisions.contains(id.Revision) {
			return Plan{Mode: l.mode, Steps: l.steps}
		}
	}
	return Plan{}
}
