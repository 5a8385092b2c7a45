package bootconfig

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestParseDirectives(t *testing.T) {
	input := `
# a comment
ram 32M
cycles 5000
debug
image hello
image write
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.RAMBytes != 32*1024*1024 {
		t.Fatalf("RAMBytes = %d, want %d", cfg.RAMBytes, 32*1024*1024)
	}
	if cfg.Cycles != 5000 {
		t.Fatalf("Cycles = %d, want 5000", cfg.Cycles)
	}
	if !cfg.Debug {
		t.Fatal("Debug = false, want true")
	}
	if len(cfg.Images) != 2 || cfg.Images[0] != "hello" || cfg.Images[1] != "write" {
		t.Fatalf("Images = %v, want [hello write]", cfg.Images)
	}
}

func TestParseUnknownDirective(t *testing.T) {
	_, err := Parse(strings.NewReader("bogus 1\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}

func TestParseSizeSuffixes(t *testing.T) {
	cases := map[string]uint64{
		"1024": 1024,
		"4K":   4 * 1024,
		"4k":   4 * 1024,
		"16M":  16 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		if err != nil {
			t.Fatalf("parseSize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseSize(%q) = %d, want %d", in, got, want)
		}
	}
}
