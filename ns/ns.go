// Package ns provides the dotted-namespace naming conventions shared by
// every component operating on fully-qualified callable/definition names.
package ns

import "strings"

// Well-known synthetic name suffixes and definition type tags.
const (
	ReturnName = "<return>"
	SelfName   = "self"
	InitMethod = "__init__"
	NextMethod = "__next__"
	IterMethod = "__iter__"
	CallMethod = "__call__"

	FunDef  = "FUN"
	ModDef  = "MOD"
	NameDef = "NAME"
	ClsDef  = "CLS"
	ExtDef  = "EXT"
)

// Join concatenates non-empty namespace components with ".".
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// Parent returns everything before the last ".", or "" if ns has no dot.
func Parent(fullns string) string {
	idx := strings.LastIndex(fullns, ".")
	if idx < 0 {
		return ""
	}
	return fullns[:idx]
}

// Short returns the last dotted component of fullns.
func Short(fullns string) string {
	idx := strings.LastIndex(fullns, ".")
	if idx < 0 {
		return fullns
	}
	return fullns[idx+1:]
}

// Root returns the first dotted component of fullns.
func Root(fullns string) string {
	idx := strings.Index(fullns, ".")
	if idx < 0 {
		return fullns
	}
	return fullns[:idx]
}

// SplitComponents splits fullns on "." into its components.
func SplitComponents(fullns string) []string {
	if fullns == "" {
		return nil
	}
	return strings.Split(fullns, ".")
}
