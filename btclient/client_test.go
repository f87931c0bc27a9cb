package main

import "testing"

func TestCommandByte(t *testing.T) {
	tests := []struct {
		command string
		want    byte
		ok      bool
	}{
		{"on", 0x01, true},
		{"off", 0x00, true},
		{"w", 'w', true},
		{"a", 'a', true},
		{"s", 's', true},
		{"d", 'd', true},
		{"toggle", 0, false}, // sequence, not a single byte
		{"x", 0, false},
		{"", 0, false},
	}

	for _, tc := range tests {
		got, ok := commandByte(tc.command)
		if ok != tc.ok || got != tc.want {
			t.Errorf("commandByte(%q) = (0x%02x, %v), want (0x%02x, %v)",
				tc.command, got, ok, tc.want, tc.ok)
		}
	}
}
