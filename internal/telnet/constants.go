package telnet

import (
	"strconv"
	"strings"
)

const (
	// RFC 885
	EOR = 239 + iota // ef
	// RFC 854
	SE   // f0
	NOP  // f1
	DM   // f2
	BRK  // f3
	IP   // f4
	AO   // f5
	AYT  // f6
	EC   // f7
	EL   // f8
	GA   // f9
	SB   // fa
	WILL // fb
	WONT // fc
	DO   // fd
	DONT // fe
	IAC  // ff
)

// Subnegotiation sub-commands shared by TTYPE, NEW-ENVIRON and friends.
const (
	IS   = 0
	SEND = 1
)

const (
	TransmitBinary  = 0  // RFC 856
	Echo            = 1  // RFC 857
	SuppressGoAhead = 3  // RFC 858
	Status          = 5  // RFC 859
	TimingMark      = 6  // RFC 860
	TerminalType    = 24 // RFC 930
	EndOfRecord     = 25 // RFC 885
	NAWS            = 31 // RFC 1073
	TerminalSpeed   = 32 // RFC 1079
	Linemode        = 34 // RFC 1184
	NewEnviron      = 39 // RFC 1572
	Charset         = 42 // RFC 2066
	MSDP            = 69
	MSSP            = 70
	MCCP2           = 86
	MCCP3           = 87
	GMCP            = 201
	EXOPL           = 255 // RFC 861
)

const (
	CharsetRequest = 1 + iota
	CharsetAccepted
	CharsetRejected
	CharsetTTableIs
	CharsetTTableRejected
	CharsetTTableAck
	CharsetTTableNak
)

var commandNames = map[byte]string{
	EOR:  "EOR",
	SE:   "SE",
	NOP:  "NOP",
	DM:   "DM",
	BRK:  "BRK",
	IP:   "IP",
	AO:   "AO",
	AYT:  "AYT",
	EC:   "EC",
	EL:   "EL",
	GA:   "GA",
	SB:   "SB",
	WILL: "WILL",
	WONT: "WONT",
	DO:   "DO",
	DONT: "DONT",
	IAC:  "IAC",
}

var optionNames = map[byte]string{
	TransmitBinary:  "BINARY",
	Echo:            "ECHO",
	SuppressGoAhead: "SGA",
	Status:          "STATUS",
	TimingMark:      "TM",
	TerminalType:    "TTYPE",
	EndOfRecord:     "EOR",
	NAWS:            "NAWS",
	TerminalSpeed:   "TSPEED",
	Linemode:        "LINEMODE",
	NewEnviron:      "NEW-ENVIRON",
	Charset:         "CHARSET",
	MSDP:            "MSDP",
	MSSP:            "MSSP",
	MCCP2:           "MCCP2",
	MCCP3:           "MCCP3",
	GMCP:            "GMCP",
	EXOPL:           "EXOPL",
}

// CommandName returns the mnemonic for a command byte, or its decimal value.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return strconv.Itoa(int(cmd))
}

// OptionName returns the conventional name for an option code, or its decimal
// value when the code has no well-known name.
func OptionName(opt byte) string {
	if name, ok := optionNames[opt]; ok {
		return name
	}
	return strconv.Itoa(int(opt))
}

// OptionByName resolves a case-insensitive option name or a decimal code.
func OptionByName(name string) (byte, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for opt, n := range optionNames {
		if n == name {
			return opt, true
		}
	}
	if n, err := strconv.ParseUint(name, 10, 8); err == nil {
		return byte(n), true
	}
	return 0, false
}

func isCompressionOption(opt byte) bool {
	return opt == MCCP2 || opt == MCCP3
}
