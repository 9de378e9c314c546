// Package problem implements the fixed taxonomy of consistency problems
// (spec.md §4.7) and the mode gate that decides, per problem kind and
// per-run mode, whether a problem is fixed, skipped, or fatal.
package problem

// Kind identifies one entry in the fixed problem taxonomy.
type Kind int

const (
	MstCorrupted Kind = iota
	LptCorrupted
	LpIncorrect
	SpaceStatIncorrect
	IncorrectIdxSz
	TncCorrupted
	TncDataCorrupted
	FileHasNoInode
	FileHasZeroNlinkInode
	FileHasInconsistType
	FileHasTooManyDent
	FileShouldntHaveData
	FileIsDisconnected
	FileHasNoDent
	FileRootHasDent
	XattrHasNoHost
	XattrHasWrongHost
	FileHasNoEncrypt
	DentryIsUnreachable
	FileIsInconsistent
)

func (k Kind) String() string {
	names := [...]string{
		"MstCorrupted", "LptCorrupted", "LpIncorrect", "SpaceStatIncorrect",
		"IncorrectIdxSz", "TncCorrupted", "TncDataCorrupted", "FileHasNoInode",
		"FileHasZeroNlinkInode", "FileHasInconsistType", "FileHasTooManyDent",
		"FileShouldntHaveData", "FileIsDisconnected", "FileHasNoDent",
		"FileRootHasDent", "XattrHasNoHost", "XattrHasWrongHost",
		"FileHasNoEncrypt", "DentryIsUnreachable", "FileIsInconsistent",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Flag is one bit of a problem row's behavior (spec.md §4.7 table).
type Flag uint8

const (
	// Fixable means this problem kind has a known fix; its absence means
	// the tool must abort with the uncorrectable-error exit bit.
	Fixable Flag = 1 << iota
	// MustFix means refusal aborts the run rather than continuing.
	MustFix
	// DropData means the fix destroys user data; disallowed in Safe mode.
	DropData
	// NeedRebuild means the fix requires a full scavenging rebuild pass.
	NeedRebuild
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Row is one taxonomy entry: a problem kind's fixed behavior flags.
type Row struct {
	Kind  Kind
	Flags Flag
}

// table is the static problem taxonomy (spec.md §4.7), keyed by Kind.
var table = map[Kind]Flag{
	MstCorrupted:          Fixable | MustFix | NeedRebuild,
	LptCorrupted:          Fixable | MustFix | NeedRebuild,
	LpIncorrect:           Fixable,
	SpaceStatIncorrect:    Fixable,
	IncorrectIdxSz:        Fixable,
	TncCorrupted:          Fixable | MustFix | NeedRebuild,
	TncDataCorrupted:      Fixable | DropData,
	FileHasNoInode:        Fixable | DropData,
	FileHasZeroNlinkInode: Fixable | DropData,
	FileHasInconsistType:  Fixable | DropData,
	FileHasTooManyDent:    Fixable | DropData,
	FileShouldntHaveData:  Fixable | DropData,
	FileIsDisconnected:    Fixable,
	FileHasNoDent:         Fixable | DropData,
	FileRootHasDent:       Fixable | DropData,
	XattrHasNoHost:        Fixable | DropData,
	XattrHasWrongHost:     Fixable | DropData,
	FileHasNoEncrypt:      Fixable | DropData,
	DentryIsUnreachable:   Fixable | DropData,
	FileIsInconsistent:    Fixable,
}

// Lookup returns the flags for kind. Every Kind constant has a row; a
// caller encountering a Kind this function reports with Flags==0 and
// ok==false found a code bug, not a volume defect.
func Lookup(kind Kind) (Flag, bool) {
	f, ok := table[kind]
	return f, ok
}
