package utils

import "testing"

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ten digits", "4155551234", "+14155551234"},
		{"eleven digits leading one", "14155551234", "+14155551234"},
		{"formatted", "(415) 555-1234", "+14155551234"},
		{"dashes", "415-555-1234", "+14155551234"},
		{"already canonical", "+14155551234", "+14155551234"},
		{"nine digits", "415555123", ""},
		{"eleven digits no leading one", "24155551234", ""},
		{"twelve digits", "441632960961", ""},
		{"empty", "", ""},
		{"letters only", "not-a-number", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalPhone(tt.in); got != tt.want {
				t.Errorf("CanonicalPhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateE164(t *testing.T) {
	if !ValidateE164("+14155551234") {
		t.Error("ValidateE164(+14155551234) = false, want true")
	}
	if ValidateE164("4155551234") {
		t.Error("ValidateE164(4155551234) = true, want false")
	}
	if ValidateE164("+0415555") {
		t.Error("ValidateE164 accepted leading zero country code")
	}
}

func TestMaskPhoneNumber(t *testing.T) {
	got := MaskPhoneNumber("+14155551234")
	if got == "+14155551234" {
		t.Error("MaskPhoneNumber returned phone unmasked")
	}
	if got[:5] != "+1415" {
		t.Errorf("MaskPhoneNumber prefix = %q, want +1415", got[:5])
	}
	if got[len(got)-4:] != "1234" {
		t.Errorf("MaskPhoneNumber suffix = %q, want 1234", got[len(got)-4:])
	}

	if MaskPhoneNumber("") != "" {
		t.Error("MaskPhoneNumber(\"\") should be empty")
	}
}
