package sink

import (
	"fmt"
	"regexp"
	"strings"

	"tableload/internal/storage"
)

var (
	projectRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	identRE   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// TableRef names a target table: PROJECT:DATASET.TABLE or DATASET.TABLE.
// Project is empty when implied by the store.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableRef parses s. Any malformed reference yields *InvalidTargetError.
func ParseTableRef(s string) (TableRef, error) {
	invalid := func(reason string) (TableRef, error) {
		return TableRef{}, &InvalidTargetError{Target: s, Reason: reason}
	}
	if strings.TrimSpace(s) == "" {
		return invalid("empty table reference")
	}
	var ref TableRef
	rest := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		ref.Project, rest = s[:i], s[i+1:]
		if !projectRE.MatchString(ref.Project) {
			return invalid(fmt.Sprintf("bad project %q", ref.Project))
		}
	}
	ds, tbl, ok := strings.Cut(rest, ".")
	if !ok {
		return invalid("want PROJECT:DATASET.TABLE or DATASET.TABLE")
	}
	if !identRE.MatchString(ds) {
		return invalid(fmt.Sprintf("bad dataset %q", ds))
	}
	if !identRE.MatchString(tbl) {
		return invalid(fmt.Sprintf("bad table %q", tbl))
	}
	ref.Dataset, ref.Table = ds, tbl
	return ref, nil
}

// MustParseTableRef is ParseTableRef for literals; it panics on error.
func MustParseTableRef(s string) TableRef {
	ref, err := ParseTableRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r TableRef) String() string {
	if r.Project == "" {
		return r.Dataset + "." + r.Table
	}
	return r.Project + ":" + r.Dataset + "." + r.Table
}

// IsZero reports whether r is the zero reference.
func (r TableRef) IsZero() bool { return r == TableRef{} }

func (r TableRef) storage() storage.Table {
	return storage.Table{Project: r.Project, Dataset: r.Dataset, Name: r.Table}
}
