package chips

import (
	"bytes"
	"fmt"
	"net/url"
	"sync"
)

// EntryType distinguishes a person row from the two separator kinds.
type EntryType int

const (
	// EntryTypePerson is a resolved contact or a fake (unresolved) address.
	EntryTypePerson EntryType = iota
	// EntryTypeSepNormal divides two persons or groups.
	EntryTypeSepNormal
	// EntryTypeSepWithinGroup divides two entries of the same person or group.
	EntryTypeSepWithinGroup
)

// NoContactID is the contact ID of separators and fake entries.
const NoContactID int64 = -1

func (t EntryType) String() string {
	switch t {
	case EntryTypePerson:
		return "person"
	case EntryTypeSepNormal:
		return "separator"
	case EntryTypeSepWithinGroup:
		return "separator_within_group"
	default:
		return fmt.Sprintf("EntryType(%d)", int(t))
	}
}

// Entry is one row of a recipient auto-complete list.
//
// The set of implementations is closed: Separator and *Person.
// Only *Person carries a photo slot.
type Entry interface {
	EntryType() EntryType
	// DisplayName is empty for separators.
	DisplayName() string
	// Destination is the email address or phone number; empty for separators.
	Destination() string
	// ContactID is NoContactID for separators and fake entries.
	ContactID() int64
	// IsFirstLevel is true for the top-level row of a contact.
	IsFirstLevel() bool
	// PhotoThumbnailURI is nil unless the entry is a top-level person with a photo.
	PhotoThumbnailURI() *url.URL
	IsSeparator() bool

	entry()
}

// Separator is a divider row. The zero value is not a valid separator;
// use SepNormal or SepWithinGroup.
type Separator struct {
	entryType EntryType
}

var (
	// SepNormal divides two persons or groups.
	SepNormal = Separator{entryType: EntryTypeSepNormal}
	// SepWithinGroup divides two entries inside a person or a group.
	SepWithinGroup = Separator{entryType: EntryTypeSepWithinGroup}
)

var (
	_ Entry = Separator{}
	_ Entry = (*Person)(nil)
)

func (s Separator) EntryType() EntryType { return s.entryType }
func (Separator) DisplayName() string { return "" }
func (Separator) Destination() string { return "" }
func (Separator) ContactID() int64 { return NoContactID }
func (Separator) IsFirstLevel() bool { return false }
func (Separator) PhotoThumbnailURI() *url.URL { return nil }
func (Separator) IsSeparator() bool { return true }
func (Separator) entry() {}
func (s Separator) String() string { return s.entryType.String() }

// Person is a contact row: a top-level entry, a second-level entry, or a fake
// entry built from an unresolved address. Everything except the photo bytes
// is fixed at construction. A Person must not be copied after first use.
type Person struct {
	displayName  string
	destination  string
	contactID    int64
	firstLevel   bool
	thumbnailURI *url.URL

	// Set after construction by the photo fetcher, possibly from another goroutine.
	photoMu sync.RWMutex
	photo   []byte
}

// NewFakeEntry returns an entry for an address that has not been resolved to
// a contact. Display name and destination are both the address; there is no
// contact ID and no photo. The address is not validated.
func NewFakeEntry(address string) *Person {
	return &Person{
		displayName: address,
		destination: address,
		contactID:   NoContactID,
		firstLevel:  true,
	}
}

// NewTopLevelEntry returns the representative entry of a resolved contact.
// thumbnailURI may be nil.
func NewTopLevelEntry(displayName, destination string, contactID int64, thumbnailURI *url.URL) *Person {
	return &Person{
		displayName:  displayName,
		destination:  destination,
		contactID:    contactID,
		firstLevel:   true,
		thumbnailURI: cloneURL(thumbnailURI),
	}
}

// NewTopLevelEntryString is NewTopLevelEntry with the thumbnail URI in text form.
// An empty string means no thumbnail. Text that does not parse is returned as
// an error from net/url, wrapped.
func NewTopLevelEntryString(displayName, destination string, contactID int64, thumbnailURI string) (*Person, error) {
	var u *url.URL
	if thumbnailURI != "" {
		var err error
		u, err = url.Parse(thumbnailURI)
		if err != nil {
			return nil, fmt.Errorf("parse thumbnail uri: %w", err)
		}
	}
	return NewTopLevelEntry(displayName, destination, contactID, u), nil
}

// NewSecondLevelEntry returns an additional destination row for a contact that
// already has a top-level entry. Second-level entries never carry a thumbnail.
func NewSecondLevelEntry(displayName, destination string, contactID int64) *Person {
	return &Person{
		displayName: displayName,
		destination: destination,
		contactID:   contactID,
	}
}

func (p *Person) EntryType() EntryType { return EntryTypePerson }
func (p *Person) DisplayName() string { return p.displayName }
func (p *Person) Destination() string { return p.destination }
func (p *Person) ContactID() int64 { return p.contactID }
func (p *Person) IsFirstLevel() bool { return p.firstLevel }
func (p *Person) IsSeparator() bool { return false }
func (p *Person) entry() {}

// PhotoThumbnailURI returns a copy of the thumbnail URI, or nil.
func (p *Person) PhotoThumbnailURI() *url.URL {
	return cloneURL(p.thumbnailURI)
}

// IsResolved reports whether the entry belongs to a directory contact.
func (p *Person) IsResolved() bool {
	return p.contactID != NoContactID
}

// SetPhotoBytes stores the photo payload, replacing any previous one.
// Passing nil clears it. Safe for concurrent use; the last writer wins.
func (p *Person) SetPhotoBytes(b []byte) {
	c := bytes.Clone(b)
	p.photoMu.Lock()
	p.photo = c
	p.photoMu.Unlock()
}

// PhotoBytes returns a copy of the photo payload, or nil if none has been loaded.
// Safe for concurrent use.
func (p *Person) PhotoBytes() []byte {
	p.photoMu.RLock()
	defer p.photoMu.RUnlock()
	return bytes.Clone(p.photo)
}

// HasPhoto reports whether a photo payload has been loaded.
func (p *Person) HasPhoto() bool {
	p.photoMu.RLock()
	defer p.photoMu.RUnlock()
	return p.photo != nil
}

func (p *Person) String() string {
	if p.displayName == "" || p.displayName == p.destination {
		return p.destination
	}
	return fmt.Sprintf("%s <%s>", p.displayName, p.destination)
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
