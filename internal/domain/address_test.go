package domain

import "testing"

func TestParseAddress_V4RoundTrip(t *testing.T) {
	a, err := ParseAddress("10.0.0.10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Family != FamilyV4 {
		t.Fatalf("expected v4 family, got %v", a.Family)
	}
	if got := a.String(); got != "10.0.0.10" {
		t.Fatalf("round trip mismatch: got %s", got)
	}
}

func TestParseAddress_V6RoundTrip(t *testing.T) {
	a, err := ParseAddress("fd00::1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Family != FamilyV6 {
		t.Fatalf("expected v6 family, got %v", a.Family)
	}
	if got := a.String(); got != "fd00::1" {
		t.Fatalf("round trip mismatch: got %s", got)
	}
}

func TestParseAddress_IntegerForm(t *testing.T) {
	a, err := ParseAddress("167772170") // 10.0.0.10
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.String(); got != "10.0.0.10" {
		t.Fatalf("expected 10.0.0.10, got %s", got)
	}
}

func TestParseAddress_Malformed(t *testing.T) {
	_, err := ParseAddress("not-an-address")
	derr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if derr.Code != ErrInvalidAddress || !derr.Stop {
		t.Fatalf("expected stopping invalid_address error, got %+v", derr)
	}
}

func TestParseAddress_Empty(t *testing.T) {
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestAddress_Compare(t *testing.T) {
	a, _ := ParseAddress("10.0.0.10")
	b, _ := ParseAddress("10.0.0.11")
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func TestAddress_PlusMinus(t *testing.T) {
	a, _ := ParseAddress("10.0.0.10")
	next, ok := a.Plus(1)
	if !ok || next.String() != "10.0.0.11" {
		t.Fatalf("expected 10.0.0.11, got %s ok=%v", next.String(), ok)
	}
	prev, ok := a.Minus(1)
	if !ok || prev.String() != "10.0.0.9" {
		t.Fatalf("expected 10.0.0.9, got %s ok=%v", prev.String(), ok)
	}
}

func TestAddress_Plus_OverflowFails(t *testing.T) {
	max, _ := ParseAddress("255.255.255.255")
	if _, ok := max.Plus(1); ok {
		t.Fatalf("expected overflow to fail")
	}
}

func TestAddress_Minus_UnderflowFails(t *testing.T) {
	zero, _ := ParseAddress("0.0.0.0")
	if _, ok := zero.Minus(1); ok {
		t.Fatalf("expected underflow to fail")
	}
}

func TestParseAddressJSON_LegacyOctets(t *testing.T) {
	a, err := ParseAddressJSON([]byte(`{"octets":[10,0,0,10]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.String(); got != "10.0.0.10" {
		t.Fatalf("expected 10.0.0.10, got %s", got)
	}
}

func TestParseAddressJSON_PlainString(t *testing.T) {
	a, err := ParseAddressJSON([]byte(`"10.0.0.10"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.String(); got != "10.0.0.10" {
		t.Fatalf("expected 10.0.0.10, got %s", got)
	}
}

func TestParseMAC_ColonForm(t *testing.T) {
	m, err := ParseMAC("90:b8:d0:00:00:01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.String(); got != "90:b8:d0:00:00:01" {
		t.Fatalf("round trip mismatch: got %s", got)
	}
	if m.OUI() != 0x90b8d0 {
		t.Fatalf("expected OUI 0x90b8d0, got %x", m.OUI())
	}
}

func TestParseMAC_IntegerForm(t *testing.T) {
	m, err := ParseMAC("159123438043137") // 90:b8:d0:00:00:01
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.String(); got != "90:b8:d0:00:00:01" {
		t.Fatalf("expected 90:b8:d0:00:00:01, got %s", got)
	}
}

func TestParseMAC_Malformed(t *testing.T) {
	if _, err := ParseMAC("not-a-mac"); err == nil {
		t.Fatalf("expected error for malformed mac")
	}
	if _, err := ParseMAC("ff:ff:ff:ff:ff:ff:ff"); err == nil {
		t.Fatalf("expected error for too-long mac")
	}
}

func TestMAC_KeyIsStableStringForm(t *testing.T) {
	m, _ := ParseMAC("90:b8:d0:00:00:01")
	if m.Key() != "159123438043137" {
		t.Fatalf("unexpected key: %s", m.Key())
	}
}
