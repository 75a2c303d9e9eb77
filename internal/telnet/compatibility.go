package telnet

// Flag bits of a packed CompatibilityEntry.
const (
	FlagLocalSupported  uint8 = 1 << iota // we may enable the option
	FlagRemoteSupported                   // the peer may enable the option
	FlagLocalEnabled
	FlagRemoteEnabled
)

// CompatibilityEntry is the unpacked state of one option. Enabled flags are
// only ever set by the Parser after checking the matching Supported flag.
type CompatibilityEntry struct {
	LocalSupported  bool
	RemoteSupported bool
	LocalEnabled    bool
	RemoteEnabled   bool
}

func UnpackEntry(flags uint8) CompatibilityEntry {
	return CompatibilityEntry{
		LocalSupported:  flags&FlagLocalSupported != 0,
		RemoteSupported: flags&FlagRemoteSupported != 0,
		LocalEnabled:    flags&FlagLocalEnabled != 0,
		RemoteEnabled:   flags&FlagRemoteEnabled != 0,
	}
}

func (e CompatibilityEntry) Pack() (flags uint8) {
	if e.LocalSupported {
		flags |= FlagLocalSupported
	}
	if e.RemoteSupported {
		flags |= FlagRemoteSupported
	}
	if e.LocalEnabled {
		flags |= FlagLocalEnabled
	}
	if e.RemoteEnabled {
		flags |= FlagRemoteEnabled
	}
	return
}

// OptionFlags seeds one option of a CompatibilityTable.
type OptionFlags struct {
	Opt   byte
	Flags uint8
}

// CompatibilityTable holds the packed state of every option code. The zero
// value is ready to use and has every option unsupported and disabled.
type CompatibilityTable struct {
	options [256]uint8
}

// NewCompatibilityTable builds a table from initial flags. When an option is
// listed more than once the last entry wins.
func NewCompatibilityTable(opts ...OptionFlags) *CompatibilityTable {
	t := &CompatibilityTable{}
	for _, o := range opts {
		t.options[o.Opt] = o.Flags
	}
	return t
}

func (t *CompatibilityTable) Get(opt byte) CompatibilityEntry {
	return UnpackEntry(t.options[opt])
}

func (t *CompatibilityTable) Set(opt byte, entry CompatibilityEntry) {
	t.options[opt] = entry.Pack()
}

func (t *CompatibilityTable) SupportLocal(opt byte) {
	t.options[opt] |= FlagLocalSupported
}

func (t *CompatibilityTable) SupportRemote(opt byte) {
	t.options[opt] |= FlagRemoteSupported
}

func (t *CompatibilityTable) Support(opt byte) {
	t.options[opt] |= FlagLocalSupported | FlagRemoteSupported
}
