package types

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"unit", Unit()},
		{"()", Unit()},
		{"int", I32()},
		{"i8", I8()},
		{"i16", I16()},
		{"i32", I32()},
		{"i64", I64()},
		{" Player ", Struct("Player")},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "a b", "(i32,i32)"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q): expected error", in)
		}
	}
}

func TestTypeString(t *testing.T) {
	if got := I16().String(); got != "i16" {
		t.Fatalf("I16().String() = %q", got)
	}
	if got := Union("Packet").String(); got != "Packet" {
		t.Fatalf("Union.String() = %q", got)
	}
	if !Unit().IsAggregate() || !Struct("P").IsAggregate() || I32().IsAggregate() {
		t.Fatal("IsAggregate mismatch")
	}
}
