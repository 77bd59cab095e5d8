package watch

import "github.com/fsbridge/fsbridge/internal/fsutil"

// Kind is the raw change kind reported by a notifier.
type Kind uint8

const (
	// KindOther covers everything without a callback category: overflow
	// markers, open/close access and other notifier-specific kinds.
	KindOther Kind = iota
	KindCreated
	KindRemoved
	KindModified
	KindAccessRead
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindRemoved:
		return "removed"
	case KindModified:
		return "modified"
	case KindAccessRead:
		return "access_read"
	default:
		return "other"
	}
}

// RawEvent is one unfiltered notification from a notifier.
type RawEvent struct {
	Kind  Kind
	Paths []string
	// Types optionally carries the entry type the notifier saw for each path.
	// The filter falls back to it when a path can no longer be stat'ed, which
	// is the normal case for removals. Missing entries mean unknown.
	Types []fsutil.EntryType
}

// typeHint returns the recorded type for Paths[i].
func (e RawEvent) typeHint(i int) fsutil.EntryType {
	if i < len(e.Types) {
		return e.Types[i]
	}
	return fsutil.TypeUnknown
}

func newEvent(kind Kind, path string, hint fsutil.EntryType) RawEvent {
	return RawEvent{
		Kind:  kind,
		Paths: []string{path},
		Types: []fsutil.EntryType{hint},
	}
}

// Result is what a notifier delivers: an event, or the error that ends the
// session.
type Result struct {
	Event RawEvent
	Err   error
}

// Category is the callback category exposed to scripts.
type Category uint8

const (
	CategoryAdded Category = iota + 1
	CategoryRemoved
	CategoryChanged
	CategoryRead
)

// String returns the handler-table key for the category.
func (c Category) String() string {
	switch c {
	case CategoryAdded:
		return "added"
	case CategoryRemoved:
		return "removed"
	case CategoryChanged:
		return "changed"
	case CategoryRead:
		return "read"
	default:
		return "unknown"
	}
}

// CategoryFor maps a raw kind to its callback category. The mapping is fixed;
// KindOther and any unknown kind report false and are never dispatched.
func CategoryFor(kind Kind) (Category, bool) {
	switch kind {
	case KindCreated:
		return CategoryAdded, true
	case KindRemoved:
		return CategoryRemoved, true
	case KindModified:
		return CategoryChanged, true
	case KindAccessRead:
		return CategoryRead, true
	default:
		return 0, false
	}
}
