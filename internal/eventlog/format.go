// Package eventlog records flight events as text blocks and persists them.
//
// Three block kinds exist: the sensor data dump (SDD), the system state
// log (SSL) and the system error log (SEL). Blocks are built from live
// registers and are parsed back by the Event* helpers.
package eventlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Kind identifies the block type
type Kind string

const (
	KindSDD Kind = "LOG_SDD"
	KindSSL Kind = "LOG_SSL"
	KindSEL Kind = "LOG_SEL"
)

// SSLID is the fixed ID of state log blocks
const SSLID = "LOG_SSL_ID"

// Exception classifies a SEL block
type Exception uint8

const (
	ExceptionUnknown Exception = iota
	RoutineSoftFail
	RoutineHardFail
)

// String returns the exception name
func (e Exception) String() string {
	switch e {
	case RoutineSoftFail:
		return "ROUTINE_SOFT_FAIL"
	case RoutineHardFail:
		return "ROUTINE_HARD_FAIL"
	default:
		return "UNKNOWN"
	}
}

// ExceptionFromError classifies err by severity: high and critical errors
// are hard fails, everything else is a soft fail.
func ExceptionFromError(err error) Exception {
	if err == nil {
		return ExceptionUnknown
	}
	switch apperr.GetSeverity(err) {
	case apperr.SeverityHigh, apperr.SeverityCritical:
		return RoutineHardFail
	default:
		return RoutineSoftFail
	}
}

// Formatter builds event blocks from the register store
type Formatter struct {
	store *ptam.Store
	boot  time.Time
	now   func() time.Time
}

// NewFormatter creates a formatter. TIME fields count microseconds from
// the moment the formatter is created.
func NewFormatter(store *ptam.Store) *Formatter {
	return &Formatter{store: store, boot: time.Now(), now: time.Now}
}

func (f *Formatter) elapsed() uint64 {
	d := f.now().Sub(f.boot)
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}

func (f *Formatter) state() uint8 {
	v, _ := f.store.RetrieveUint8(ptam.KeyState)
	return v
}

func (f *Formatter) descript() string {
	v, _ := f.store.RetrieveString(ptam.KeyStateDescript)
	return v
}

func (f *Formatter) double(key string) float64 {
	v, _ := f.store.RetrieveDouble(key)
	return v
}

type block struct {
	b strings.Builder
}

func newBlock(kind Kind) *block {
	bl := &block{}
	bl.b.WriteString("\n\n")
	bl.b.WriteString(string(kind))
	bl.b.WriteString(":\n\t{\n")
	return bl
}

func (bl *block) field(key, value string) *block {
	bl.b.WriteString("\t\t")
	bl.b.WriteString(key)
	bl.b.WriteString(": ")
	bl.b.WriteString(value)
	bl.b.WriteString("\n")
	return bl
}

func (bl *block) String() string {
	bl.b.WriteString("\t}\n\n")
	return bl.b.String()
}

// fixed formats like "%f"
func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// SDD builds a sensor data dump with the wing positions
func (f *Formatter) SDD() string {
	state := strconv.Itoa(int(f.state()))
	return newBlock(KindSDD).
		field("ID", f.descript()).
		field("TIME", strconv.FormatUint(f.elapsed(), 10)).
		field("DATA", state).
		field("MACHINE-STATE", state).
		field("WING-FL-POS", fixed(f.double(ptam.KeyWingFL))).
		field("WING-FR-POS", fixed(f.double(ptam.KeyWingFR))).
		field("WING-RL-POS", fixed(f.double(ptam.KeyWingRL))).
		field("WING-RR-POS", fixed(f.double(ptam.KeyWingRR))).
		String()
}

// SSL builds a system state log
func (f *Formatter) SSL() string {
	return newBlock(KindSSL).
		field("ID", SSLID).
		field("TIME", strconv.FormatUint(f.elapsed(), 10)).
		field("MACHINE-STATE", strconv.Itoa(int(f.state()))).
		field("STATE", f.descript()).
		String()
}

// SEL builds a system error log
func (f *Formatter) SEL(id string, exception Exception, info string) string {
	return newBlock(KindSEL).
		field("ID", id).
		field("TIME", strconv.FormatUint(f.elapsed(), 10)).
		field("MACHINE-STATE", strconv.Itoa(int(f.state()))).
		field("EXCEPTION-TYPE", strconv.Itoa(int(exception))).
		field("INFO", info).
		String()
}

// Message wraps v in the LOG-MSG envelope
func Message(v string) string {
	return "LOG-MSG[" + v + "]"
}

// fieldValue returns the text of the first line starting with "key: ", up
// to its newline. ok is false when no complete line matches.
func fieldValue(block, key string) (string, bool) {
	marker := key + ": "
	rest := block
	for {
		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			return "", false
		}
		line := strings.TrimLeft(rest[:end], " \t")
		if strings.HasPrefix(line, marker) {
			return line[len(marker):], true
		}
		rest = rest[end+1:]
	}
}

// EventID returns the ID field, or ""
func EventID(block string) string {
	v, _ := fieldValue(block, "ID")
	return v
}

// EventTime returns the TIME field, or 0
func EventTime(block string) uint64 {
	v, ok := fieldValue(block, "TIME")
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// EventState returns the MACHINE-STATE field, or 0
func EventState(block string) uint8 {
	return parseUint8(block, "MACHINE-STATE")
}

// EventException returns the EXCEPTION-TYPE field, or ExceptionUnknown
func EventException(block string) Exception {
	return Exception(parseUint8(block, "EXCEPTION-TYPE"))
}

// EventKind returns the block kind from its header, or ""
func EventKind(block string) Kind {
	trimmed := strings.TrimLeft(block, "\n")
	for _, k := range []Kind{KindSDD, KindSSL, KindSEL} {
		if strings.HasPrefix(trimmed, string(k)+":") {
			return k
		}
	}
	return ""
}

func parseUint8(block, key string) uint8 {
	v, ok := fieldValue(block, key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
	if err != nil {
		return 0
	}
	return uint8(n)
}
