// Package permission gates tool side effects behind per-path grants.
//
// A grant is stored as a three character record, one slot per operation in
// the order read, write, execute. Each slot holds the operation letter
// (granted), '-' (denied) or '?' (unknown). "rw-" grants read and write and
// denies execute.
package permission

import "strings"

// Operation is a bit set over read, write and execute.
type Operation uint8

const (
	Read Operation = 1 << iota
	Write
	Execute
)

// Unknown is the record used for missing or malformed entries.
const Unknown = "???"

var slots = [3]struct {
	op     Operation
	letter byte
}{
	{Read, 'r'},
	{Write, 'w'},
	{Execute, 'x'},
}

// String renders op as a record with the requested slots granted, e.g. "r-x".
func (op Operation) String() string {
	b := []byte("---")
	for i, s := range slots {
		if op&s.op != 0 {
			b[i] = s.letter
		}
	}
	return string(b)
}

// Verb is a human readable name used in prompts.
func (op Operation) Verb() string {
	var parts []string
	if op&Read != 0 {
		parts = append(parts, "read")
	}
	if op&Write != 0 {
		parts = append(parts, "write")
	}
	if op&Execute != 0 {
		parts = append(parts, "execute")
	}
	if len(parts) == 0 {
		return "access"
	}
	return strings.Join(parts, "/")
}

type Result int

const (
	Ask Result = iota
	Yes
	No
)

func (r Result) String() string {
	switch r {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "ask"
	}
}

// Valid reports whether record is exactly three characters.
func Valid(record string) bool {
	return len(record) == 3
}

func normalize(record string) string {
	if !Valid(record) {
		return Unknown
	}
	return record
}

// Check evaluates op against record.
//
// "???" and malformed records ask. Otherwise every requested slot is read
// independently: its letter grants, '?' asks, '-' and anything else deny.
// A single denied slot makes the whole check No; failing that, a single
// unknown slot makes it Ask.
func Check(record string, op Operation) Result {
	record = normalize(record)
	if record == Unknown || op == 0 {
		return Ask
	}

	result := Yes
	for i, s := range slots {
		if op&s.op == 0 {
			continue
		}
		switch record[i] {
		case s.letter:
		case '?':
			result = Ask
		default:
			return No
		}
	}
	return result
}

// UpdateString returns record with the slots of op set to granted or denied.
// Granting write also grants read.
func UpdateString(record string, op Operation, allow bool) string {
	b := []byte(normalize(record))
	if allow && op&Write != 0 {
		op |= Read
	}
	for i, s := range slots {
		if op&s.op == 0 {
			continue
		}
		if allow {
			b[i] = s.letter
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}
