package domain

import "testing"

func TestError_ToHTTPStatus_CoreCodes(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{ErrCIDRInvalid, 400},
		{ErrInvalidAddress, 400},
		{ErrInvalidParams, 400},
		{ErrCIDROverlap, 409},
		{ErrDuplicateParam, 409},
		{ErrIPInUse, 409},
		{ErrSubnetFull, 409},
		{ErrPoolFull, 409},
		{ErrNoFreeMAC, 409},
		{ErrMACDuplicate, 409},
		{ErrUnauthorized, 401},
		{ErrForbidden, 403},
		{ErrNotFound, 404},
		{ErrNotImplemented, 501},
		{ErrInternalServer, 500},
	}
	for _, tc := range cases {
		if got := NewError(tc.code, "", nil).ToHTTPStatus(); got != tc.want {
			t.Fatalf("code %s => status %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestNewStopError_SetsStopFlag(t *testing.T) {
	err := NewStopError(ErrIPInUse, "ip taken", nil)
	if !err.Stop {
		t.Fatalf("expected Stop=true on stop error")
	}
	if NewError(ErrTransient, "retry", nil).Stop {
		t.Fatalf("expected Stop=false on regular error")
	}
}
