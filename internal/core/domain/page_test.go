package domain

import (
	"errors"
	"testing"
)

func TestPage(t *testing.T) {
	p := NewPage(3, 0)
	if p.Size != DefaultPageSize {
		t.Fatalf("Size = %d, want %d", p.Size, DefaultPageSize)
	}
	if got := p.Offset(); got != 40 {
		t.Errorf("Offset = %d, want 40", got)
	}

	counts := map[int]int{0: 1, 1: 1, 20: 1, 21: 2, 60: 3}
	for total, want := range counts {
		if got := p.Count(total); got != want {
			t.Errorf("Count(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestPage_Check(t *testing.T) {
	tests := []struct {
		number, size, total int
		ok                  bool
	}{
		{1, 10, 0, true},
		{1, 10, 25, true},
		{3, 10, 25, true},
		{4, 10, 25, false},
		{0, 10, 25, false},
		{2, 10, 0, false},
	}

	for _, tt := range tests {
		err := NewPage(tt.number, tt.size).Check(tt.total)
		if tt.ok && err != nil {
			t.Errorf("page %d of %d items: unexpected error %v", tt.number, tt.total, err)
		}
		if !tt.ok {
			if KindOf(err) != ErrOutOfBound {
				t.Errorf("page %d of %d items: got %v, want OUT_OF_BOUND", tt.number, tt.total, err)
			}
			var derr *Error
			if !errors.As(err, &derr) || derr.Message != "Page out of bound!" {
				t.Errorf("unexpected message: %v", err)
			}
		}
	}
}

func TestNewPageResult_NeverNil(t *testing.T) {
	r := NewPageResult[string](nil, 0, NewPage(1, 10))
	if r.Items == nil {
		t.Fatal("Items is nil")
	}
	if r.PageCount != 1 || r.Page != 1 {
		t.Errorf("got page %d of %d", r.Page, r.PageCount)
	}
}
