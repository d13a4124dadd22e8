package rebind_test

import (
	"testing"

	"github.com/rebind-io/rebind"
)

func TestObjectString(t *testing.T) {
	obj := rebind.Object{Type: "document", ID: "42"}
	if got := obj.String(); got != "document:42" {
		t.Errorf("String() = %q, want %q", got, "document:42")
	}
}

func TestObjectIsSubjectAndObject(t *testing.T) {
	obj := rebind.Object{Type: "user", ID: "7"}
	if obj.RebacObject() != obj {
		t.Error("RebacObject should return the object itself")
	}
	if obj.RebacSubject() != obj {
		t.Error("RebacSubject should return the object itself")
	}
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		ref    string
		want   rebind.Object
		wantOK bool
	}{
		{"document:42", rebind.Object{Type: "document", ID: "42"}, true},
		{"user:abc-def", rebind.Object{Type: "user", ID: "abc-def"}, true},
		{"noseparator", rebind.Object{}, false},
		{":42", rebind.Object{}, false},
		{"document:", rebind.Object{}, false},
		{"", rebind.Object{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := rebind.ParseObject(tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("ParseObject(%q) ok = %v, want %v", tt.ref, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseObject(%q) = %+v, want %+v", tt.ref, got, tt.want)
			}
		})
	}
}
