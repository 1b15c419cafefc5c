package domain

import "testing"

func TestCollection_String(t *testing.T) {
	tests := []struct {
		c    Collection
		want string
	}{
		{CollectionMail, "mail"},
		{CollectionThread, "thread"},
		{CollectionVacationResponse, "vacation_response"},
		{Collection(200), "collection(200)"},
	}

	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Collection(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestParseCollection(t *testing.T) {
	for c := CollectionAccount; c < collectionCount; c++ {
		got, err := ParseCollection(c.String())
		if err != nil {
			t.Fatalf("ParseCollection(%q) error = %v", c, err)
		}
		if got != c {
			t.Errorf("ParseCollection(%q) = %v", c, got)
		}
	}

	if _, err := ParseCollection("calendar"); err == nil {
		t.Error("expected error for unknown collection")
	}
}

func TestCollection_IsChangeTrackingOnly(t *testing.T) {
	for c := CollectionAccount; c < collectionCount; c++ {
		want := c == CollectionThread
		if got := c.IsChangeTrackingOnly(); got != want {
			t.Errorf("%v.IsChangeTrackingOnly() = %v, want %v", c, got, want)
		}
	}
}

func TestLogPosition_Less(t *testing.T) {
	tests := []struct {
		name string
		a, b LogPosition
		want bool
	}{
		{"lower index", LogPosition{Term: 2, Index: 3}, LogPosition{Term: 1, Index: 4}, true},
		{"higher index", LogPosition{Term: 1, Index: 5}, LogPosition{Term: 2, Index: 4}, false},
		{"same index lower term", LogPosition{Term: 1, Index: 4}, LogPosition{Term: 2, Index: 4}, true},
		{"equal", LogPosition{Term: 1, Index: 4}, LogPosition{Term: 1, Index: 4}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if !(LogPosition{}).IsZero() {
		t.Error("zero position should be zero")
	}
	if got := (LogPosition{Term: 3, Index: 9}).String(); got != "3:9" {
		t.Errorf("String() = %q", got)
	}
}

func TestTarget_String(t *testing.T) {
	target := Target{AccountID: 7, Collection: CollectionMail}
	if got := target.String(); got != "7/mail" {
		t.Errorf("String() = %q, want 7/mail", got)
	}
}

func TestDocument_HasTag(t *testing.T) {
	doc := Document{Content: []byte("x"), Tags: []string{"$seen", "inbox"}}
	if !doc.HasTag("inbox") {
		t.Error("expected inbox tag")
	}
	if doc.HasTag("$flagged") {
		t.Error("unexpected $flagged tag")
	}
}
