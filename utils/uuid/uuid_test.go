package uuid_test

import (
	"testing"

	"github.com/jrife/xpquery/utils/uuid"
)

func TestMustUUID(t *testing.T) {
	if uuid.MustUUID() == uuid.MustUUID() {
		t.Fatalf("expected random identifiers to differ")
	}
}

func TestFromName(t *testing.T) {
	if uuid.FromName([]byte("a")) != uuid.FromName([]byte("a")) {
		t.Fatalf("expected equal names to produce equal identifiers")
	}

	if uuid.FromName([]byte("a")) == uuid.FromName([]byte("b")) {
		t.Fatalf("expected distinct names to produce distinct identifiers")
	}
}
