package usbcensus

import (
	"strings"
	"testing"
)

const sampleLsusb = `Bus 001 Device 002: ID 046d:c534 Logitech, Inc. Unifying Receiver
Bus 001 Device 003: ID abcd:1234 Unbranded Mass Storage
Bus 002 Device 001: ID 1d6b:0002 Linux Foundation 2.0 root hub
not a usb line at all
`

func TestParseLsusbOutput(t *testing.T) {
	got := ParseLsusbOutput(strings.NewReader(sampleLsusb))

	if len(got) != 3 {
		t.Fatalf("expected 3 devices, got %d: %v", len(got), got)
	}
	if got["046d:c534"] != "Logitech, Inc. Unifying Receiver" {
		t.Errorf("unexpected name for 046d:c534: %q", got["046d:c534"])
	}
	if got["abcd:1234"] != "Unbranded Mass Storage" {
		t.Errorf("unexpected name for abcd:1234: %q", got["abcd:1234"])
	}
}

func TestParseLsusbOutputDropsMissingID(t *testing.T) {
	got := ParseLsusbOutput(strings.NewReader("Bus 001 Device 001: no identifier token here\n"))
	if len(got) != 0 {
		t.Fatalf("expected no devices without an ID token, got %v", got)
	}
}

func TestParseLsusbOutputIsPureAndLowercases(t *testing.T) {
	got := ParseLsusbOutput(strings.NewReader("Bus 001 Device 004: ID 046D:C534 Mixed Case Vendor\n"))
	if _, ok := got["046d:c534"]; !ok {
		t.Fatalf("expected id to be lowercased, got %v", got)
	}
}
