package main

import (
	"testing"
)

func resetHSMFlags() {
	hsmLib = ""
	resetFlagState(hsmListCmd)
}

// =============================================================================
// HSM Tests
// =============================================================================

func TestF_HSM_List_MissingLib(t *testing.T) {
	resetGlobalFlags(t)
	resetHSMFlags()

	_, err := executeCommand(rootCmd, "hsm", "list")
	assertError(t, err)
}

func TestF_HSM_List_InvalidLib(t *testing.T) {
	tc := newTestContext(t)
	resetGlobalFlags(t)
	resetHSMFlags()

	_, err := executeCommand(rootCmd, "hsm", "list", "--lib", tc.path("nonexistent.so"))
	assertError(t, err)
}

func TestU_HSM_Subcommands(t *testing.T) {
	var names []string
	for _, c := range hsmCmd.Commands() {
		names = append(names, c.Name())
	}
	if len(names) != 1 || names[0] != "list" {
		t.Errorf("hsm subcommands = %v, want [list]", names)
	}
}

func TestU_MaskSerial(t *testing.T) {
	tests := []struct {
		serial string
		want   string
	}{
		{"", ""},
		{"1234", "1234"},
		{"12345", "123*5"},
		{"  0123456789abcdef ", "012************f"},
	}

	for _, tt := range tests {
		t.Run(tt.serial, func(t *testing.T) {
			if got := maskSerial(tt.serial); got != tt.want {
				t.Errorf("maskSerial(%q) = %q, want %q", tt.serial, got, tt.want)
			}
		})
	}
}
