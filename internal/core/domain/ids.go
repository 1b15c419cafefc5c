package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountID identifies a mail account.
type AccountID uint32

// DocumentID identifies a document inside one (account, collection) pair.
type DocumentID uint32

// Collection identifies a document collection.
type Collection uint8

// Collections known to the store.
const (
	CollectionAccount Collection = iota
	CollectionPushSubscription
	CollectionMail
	CollectionMailbox
	CollectionThread
	CollectionIdentity
	CollectionEmailSubmission
	CollectionVacationResponse
	collectionCount
)

var collectionNames = [...]string{
	CollectionAccount:          "account",
	CollectionPushSubscription: "push_subscription",
	CollectionMail:             "mail",
	CollectionMailbox:          "mailbox",
	CollectionThread:           "thread",
	CollectionIdentity:         "identity",
	CollectionEmailSubmission:  "email_submission",
	CollectionVacationResponse: "vacation_response",
}

// String returns the collection name.
func (c Collection) String() string {
	if c.IsValid() {
		return collectionNames[c]
	}
	return "collection(" + strconv.Itoa(int(c)) + ")"
}

// IsValid reports whether c is a known collection.
func (c Collection) IsValid() bool {
	return c < collectionCount
}

// IsChangeTrackingOnly reports whether the collection only records change
// events and holds no stored records. Threads group mail ids and are
// rebuilt from the mail collection.
func (c Collection) IsChangeTrackingOnly() bool {
	return c == CollectionThread
}

// ParseCollection parses a collection name.
func ParseCollection(s string) (Collection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range collectionNames {
		if name == s {
			return Collection(i), nil
		}
	}
	return 0, fmt.Errorf("unknown collection %q", s)
}

// Target is an (account, collection) pair being replicated.
type Target struct {
	AccountID  AccountID
	Collection Collection
}

// String returns "account/collection".
func (t Target) String() string {
	return strconv.FormatUint(uint64(t.AccountID), 10) + "/" + t.Collection.String()
}

// LogPosition names one entry of the replicated log.
type LogPosition struct {
	Term  uint64 `codec:"term"`
	Index uint64 `codec:"index"`
}

// IsZero reports whether the position is unset.
func (p LogPosition) IsZero() bool {
	return p.Term == 0 && p.Index == 0
}

// Less orders positions by index, then term.
func (p LogPosition) Less(o LogPosition) bool {
	if p.Index != o.Index {
		return p.Index < o.Index
	}
	return p.Term < o.Term
}

// String returns "term:index".
func (p LogPosition) String() string {
	return strconv.FormatUint(p.Term, 10) + ":" + strconv.FormatUint(p.Index, 10)
}

// Document is the stored state of one record.
type Document struct {
	Content []byte   `codec:"content"`
	Tags    []string `codec:"tags,omitempty"`
}

// HasTag reports whether the document carries tag.
func (d Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
