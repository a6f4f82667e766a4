package crash

// Suspect is a hypothesized crash cause.
//
// Severity scales are intentionally not normalized: table-driven rules use
// 1-6, some built-in checks go up to 9, and mod conflicts use their own
// four-value scale. Consumers rendering reports must treat each source's
// scale as-is.
type Suspect struct {
	Name        string
	Description string

	// Severity as declared by the rule or built-in check that produced it.
	Severity int

	// Confidence in [0, 1].
	Confidence float64

	// MatchedPatterns lists the signals that matched, in evaluation order.
	MatchedPatterns []string

	// Solutions lists suggested fixes, if any.
	Solutions []string

	// DocumentationURL optionally points at a writeup for this crash class.
	DocumentationURL string
}

// PluginStatus classifies a plugin entry from the load order.
type PluginStatus int

const (
	PluginUnknown PluginStatus = iota
	PluginMaster
	PluginLight
	PluginRegular

	// PluginDLL marks a script-extender module joined into the plugin set.
	PluginDLL
)

// String returns the status name used in output.
func (s PluginStatus) String() string {
	switch s {
	case PluginMaster:
		return "master"
	case PluginLight:
		return "light"
	case PluginRegular:
		return "regular"
	case PluginDLL:
		return "dll"
	default:
		return "unknown"
	}
}

// PluginLimitOrder is the load-order sentinel meaning the game's regular
// plugin budget was exceeded.
const PluginLimitOrder = 0xFF

// Plugin is one entry of the plugin-list segment.
type Plugin struct {
	FileName string

	// LoadOrder is the two-hex-digit index from the log (0-255).
	// PluginLimitOrder (0xFF) is a sentinel, not a real slot.
	LoadOrder uint8

	IsMaster bool
	IsLight  bool
	Status   PluginStatus

	// Flags is the raw bracketed flag text, if present.
	Flags string
}

// PluginCounts summarizes the plugin list.
type PluginCounts struct {
	Total   int
	Masters int
	Light   int
	Regular int
	Unknown int
}

// PluginMatch is one plugin name found in the call stack with its
// occurrence count.
type PluginMatch struct {
	Name  string
	Count int
}

// FormID is a decoded 32-bit record identifier. The high byte is the owning
// plugin's load-order index, the low 24 bits the local record id.
type FormID struct {
	Value       uint32
	PluginIndex uint8
	LocalID     uint32

	// SourcePlugin is the plugin whose load-order index matches PluginIndex,
	// empty when the index points past the declared plugin list.
	SourcePlugin string

	// FormType is the record type name if the surrounding line carried one.
	FormType string

	// Context is the log line the id was extracted from.
	Context string

	// Description is the looked-up record description, if a FormID database
	// was available.
	Description string

	// Count is how many times this (Value, SourcePlugin) pair occurred.
	Count int
}

// IsMasterRecord reports whether the id likely belongs to a master file.
func (f FormID) IsMasterRecord() bool { return f.PluginIndex < 0x0F }

// ConflictSeverity grades a mod-conflict finding.
type ConflictSeverity int

const (
	ConflictInfo ConflictSeverity = iota
	ConflictCaution
	ConflictWarning
	ConflictCritical
)

func (s ConflictSeverity) String() string {
	switch s {
	case ConflictCaution:
		return "caution"
	case ConflictWarning:
		return "warning"
	case ConflictCritical:
		return "critical"
	default:
		return "info"
	}
}

// ConflictType identifies which detection pass produced a ModConflict.
type ConflictType int

const (
	ConflictFrequentCrash ConflictType = iota
	ConflictModPair
	ConflictMissingImportant
	ConflictHasSolution
	ConflictLoadOrderIssue
)

func (t ConflictType) String() string {
	switch t {
	case ConflictModPair:
		return "mod_pair_conflict"
	case ConflictMissingImportant:
		return "missing_important"
	case ConflictHasSolution:
		return "has_solution"
	case ConflictLoadOrderIssue:
		return "load_order_issue"
	default:
		return "frequent_crash"
	}
}

// ModConflict is one finding from cross-referencing installed plugins
// against the externally supplied compatibility tables.
type ModConflict struct {
	ModName  string
	PluginID string
	Warning  string
	Solution string
	Severity ConflictSeverity
	Type     ConflictType

	// GPUSpecific carries the table entry's GPU constraint, if any
	// (a vendor keyword, optionally negated with a leading "!").
	GPUSpecific string
}

// RecordMatch is one named-record line from the call stack with its count.
type RecordMatch struct {
	Text  string
	Count int
}

// SettingsIssue is one problematic crash-generator setting.
type SettingsIssue struct {
	Setting  string
	Severity int
	Warning  string
	Fix      string
}

// GPUInfo describes the GPU found in the system-specs segment.
type GPUInfo struct {
	// Primary is the reported adapter name, or "Unknown".
	Primary string

	// Vendor is "nvidia", "amd", "intel" or empty when undetected.
	Vendor string

	// Rival is the competing vendor keyword used by compatibility tables,
	// empty when the vendor is unknown.
	Rival string
}
