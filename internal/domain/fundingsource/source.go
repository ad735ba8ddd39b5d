package fundingsource

import (
	"fmt"
	"strings"
)

// Kind discriminates the funding source variants
type Kind string

const (
	KindGrantItem Kind = "grant_item"
	KindOrgFunded Kind = "org_funded"
)

func (k Kind) IsValid() bool {
	return k == KindGrantItem || k == KindOrgFunded
}

// Source is a grant budget line or an organization-funded slot. Exactly one
// variant is set; the zero value is no source.
type Source struct {
	kind Kind
	id   string
}

// GrantItem references a funded position slot within a grant.
func GrantItem(id string) Source {
	return Source{kind: KindGrantItem, id: id}
}

// OrgFunded references an organization-funded slot.
func OrgFunded(id string) Source {
	return Source{kind: KindOrgFunded, id: id}
}

// New builds a Source from its stored discriminator and id.
func New(kind Kind, id string) (Source, error) {
	if !kind.IsValid() {
		return Source{}, fmt.Errorf("%w: %q", ErrInvalidSourceKind, kind)
	}
	if strings.TrimSpace(id) == "" {
		return Source{}, ErrMissingSourceID
	}
	return Source{kind: kind, id: id}, nil
}

func (s Source) Kind() Kind {
	return s.kind
}

func (s Source) ID() string {
	return s.id
}

func (s Source) IsZero() bool {
	return s.kind == "" && s.id == ""
}

func (s Source) IsGrantItem() bool {
	return s.kind == KindGrantItem
}

// String renders "kind:id", the inverse of Parse.
func (s Source) String() string {
	return string(s.kind) + ":" + s.id
}

// Parse reads the "kind:id" form.
func Parse(v string) (Source, error) {
	kind, id, ok := strings.Cut(v, ":")
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrInvalidSourceKind, v)
	}
	return New(Kind(kind), id)
}
