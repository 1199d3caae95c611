package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind is the partition kind of a store.
type Kind string

// Store kinds. Meta is unversioned and survives every purge.
const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindMeta    Kind = "meta"
)

// VersionTag identifies a cache generation.
type VersionTag string

// Validate checks that the tag is usable in a store name.
func (v VersionTag) Validate() error {
	if v == "" {
		return fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	if strings.IndexFunc(string(v), unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidVersion, v)
	}
	return nil
}

// StoreName identifies a store by kind and version.
type StoreName struct {
	Kind Kind
	Tag  VersionTag
}

// MetaStore is the name of the unversioned metadata store.
var MetaStore = StoreName{Kind: KindMeta}

// Static names the static store of a version.
func Static(tag VersionTag) StoreName {
	return StoreName{Kind: KindStatic, Tag: tag}
}

// Dynamic names the dynamic store of a version.
func Dynamic(tag VersionTag) StoreName {
	return StoreName{Kind: KindDynamic, Tag: tag}
}

// String renders the name as "<kind>-<tag>", or "meta".
func (n StoreName) String() string {
	if n.Kind == KindMeta {
		return string(KindMeta)
	}
	return string(n.Kind) + "-" + string(n.Tag)
}

// ParseStoreName parses a rendered store name. The second result is false
// for names that do not follow the "<kind>-<tag>" convention.
func ParseStoreName(s string) (StoreName, bool) {
	if s == string(KindMeta) {
		return MetaStore, true
	}
	kind, tag, ok := strings.Cut(s, "-")
	if !ok || tag == "" {
		return StoreName{}, false
	}
	switch Kind(kind) {
	case KindStatic, KindDynamic:
		return StoreName{Kind: Kind(kind), Tag: VersionTag(tag)}, true
	default:
		return StoreName{}, false
	}
}
