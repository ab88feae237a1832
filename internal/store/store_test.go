package store

import (
	"testing"

	"globe-notes/internal/constellation"
	"globe-notes/internal/notes"
)

var (
	_ notes.Store         = (*Store)(nil)
	_ constellation.Stats = (*Store)(nil)
)

func TestAttachDBKeepsHandle(t *testing.T) {
	s := AttachDB(nil)
	if s.DB() != nil {
		t.Fatal("unexpected handle")
	}
}
