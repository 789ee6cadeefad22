package scanner

import "testing"

func TestStripLongname(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello.txt", "hello.txt"},
		{"hello.txt.FL-ab12cd34-1", "hello.txt"},
		{"hello.txt.FL-ab12cd34-999", "hello.txt"},
		{"weird.FL-notanumber-x", "weird.FL-notanumber-x"},
		{"noext.FL-ab12-7", "noext"},
	}
	for _, c := range cases {
		if got := stripLongname(c.in); got != c.want {
			t.Errorf("stripLongname(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsLongname(t *testing.T) {
	if isLongname("plain.txt") {
		t.Error("plain.txt should not be a longname")
	}
	if !isLongname("plain.txt.FL-deadbeef-3") {
		t.Error("plain.txt.FL-deadbeef-3 should be recognized as a longname")
	}
}
