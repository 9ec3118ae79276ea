package sink

import (
	"fmt"
	"strings"

	"tableload/internal/storage"
)

// CreateDisposition controls whether a missing target is created.
type CreateDisposition uint8

const (
	CreateIfNeeded CreateDisposition = iota
	CreateNever
)

func (c CreateDisposition) String() string {
	switch c {
	case CreateIfNeeded:
		return "CREATE_IF_NEEDED"
	case CreateNever:
		return "CREATE_NEVER"
	}
	return fmt.Sprintf("CreateDisposition(%d)", uint8(c))
}

// ParseCreate accepts CREATE_IF_NEEDED or CREATE_NEVER, case-insensitively.
func ParseCreate(s string) (CreateDisposition, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATE_IF_NEEDED":
		return CreateIfNeeded, nil
	case "CREATE_NEVER":
		return CreateNever, nil
	}
	return 0, fmt.Errorf("sink: unknown create disposition %q", s)
}

// WriteDisposition controls how rows already in the target are treated.
type WriteDisposition uint8

const (
	WriteAppend WriteDisposition = iota
	WriteTruncate
	WriteEmpty
)

func (w WriteDisposition) String() string {
	switch w {
	case WriteAppend:
		return "WRITE_APPEND"
	case WriteTruncate:
		return "WRITE_TRUNCATE"
	case WriteEmpty:
		return "WRITE_EMPTY"
	}
	return fmt.Sprintf("WriteDisposition(%d)", uint8(w))
}

// ParseWrite accepts WRITE_APPEND, WRITE_TRUNCATE or WRITE_EMPTY,
// case-insensitively.
func ParseWrite(s string) (WriteDisposition, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WRITE_APPEND":
		return WriteAppend, nil
	case "WRITE_TRUNCATE":
		return WriteTruncate, nil
	case "WRITE_EMPTY":
		return WriteEmpty, nil
	}
	return 0, fmt.Errorf("sink: unknown write disposition %q", s)
}

func (w WriteDisposition) mode() storage.Mode {
	switch w {
	case WriteTruncate:
		return storage.Truncate
	case WriteEmpty:
		return storage.RequireEmpty
	}
	return storage.Append
}

// Disposition is the create/write policy pair applied on every write. The
// zero value is the default {CREATE_IF_NEEDED, WRITE_APPEND}.
type Disposition struct {
	Create CreateDisposition
	Write  WriteDisposition
}

// DefaultDisposition returns {CREATE_IF_NEEDED, WRITE_APPEND}.
func DefaultDisposition() Disposition {
	return Disposition{Create: CreateIfNeeded, Write: WriteAppend}
}

// ParseDisposition parses both halves; empty strings keep the defaults.
func ParseDisposition(create, write string) (Disposition, error) {
	d := DefaultDisposition()
	var err error
	if create != "" {
		if d.Create, err = ParseCreate(create); err != nil {
			return Disposition{}, err
		}
	}
	if write != "" {
		if d.Write, err = ParseWrite(write); err != nil {
			return Disposition{}, err
		}
	}
	return d, nil
}

func (d Disposition) String() string { return d.Create.String() + "/" + d.Write.String() }
