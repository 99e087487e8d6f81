package iox

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestRewind(t *testing.T) {
	r := bytes.NewReader([]byte("LA:design"))
	if _, err := io.ReadFull(r, make([]byte, 3)); err != nil {
		t.Fatal(err)
	}
	if err := Rewind(r); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	b, _ := io.ReadAll(r)
	if string(b) != "LA:design" {
		t.Errorf("after Rewind read %q", b)
	}
}

func TestSeekTo(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))
	if err := SeekTo(r, 4, "stitch data"); err != nil {
		t.Fatalf("SeekTo() error = %v", err)
	}
	b, _ := io.ReadAll(r)
	if string(b) != "456789" {
		t.Errorf("after SeekTo read %q", b)
	}

	err := SeekTo(r, -1, "pec section")
	if err == nil {
		t.Fatal("expected error for negative offset")
	}
	if !strings.Contains(err.Error(), "pec section") {
		t.Errorf("error %q should name the section", err)
	}
}
