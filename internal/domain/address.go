package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
)

// Family identifies the address family of a LogicalNetwork or Address.
type Family string

const (
	FamilyV4 Family = "v4"
	FamilyV6 Family = "v6"
)

// Address is the canonical, bidirectionally-convertible representation of an
// IPv4 or IPv6 address. V6 is always populated (v4 addresses are stored in
// their v4-in-v6 form) so it can serve as the equality key across families.
type Address struct {
	Family Family
	V6     [16]byte
}

// ParseAddress accepts dotted v4, canonical v6, and integer-as-string forms.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, NewStopError(ErrInvalidAddress, "address must not be empty", nil)
	}

	if ip := net.ParseIP(s); ip != nil {
		return addressFromIP(ip), nil
	}

	// integer-as-string form: a plain base-10 (or 0x-prefixed) number.
	if n, ok := new(big.Int).SetString(s, 0); ok && n.Sign() >= 0 {
		return addressFromBigInt(n)
	}

	return Address{}, NewStopError(ErrInvalidAddress, fmt.Sprintf("malformed address %q", s), map[string]string{"address": s})
}

var v4InV6Prefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

func addressFromIP(ip net.IP) Address {
	if v4 := ip.To4(); v4 != nil {
		var v6 [16]byte
		copy(v6[:12], v4InV6Prefix[:])
		copy(v6[12:], v4)
		return Address{Family: FamilyV4, V6: v6}
	}
	var v6 [16]byte
	copy(v6[:], ip.To16())
	return Address{Family: FamilyV6, V6: v6}
}

func addressFromBigInt(n *big.Int) (Address, error) {
	b := n.Bytes()
	switch {
	case len(b) <= 4:
		var v4 [4]byte
		copy(v4[4-len(b):], b)
		return addressFromIP(net.IPv4(v4[0], v4[1], v4[2], v4[3])), nil
	case len(b) <= 16:
		var v6 [16]byte
		copy(v6[16-len(b):], b)
		return Address{Family: FamilyV6, V6: v6}, nil
	default:
		return Address{}, NewStopError(ErrInvalidAddress, "integer address out of range", nil)
	}
}

// legacyOctets supports records persisted by an older schema revision that
// serialized v4 addresses as {"octets":[a,b,c,d]} instead of a string.
type legacyOctets struct {
	Octets []byte `json:"octets"`
}

// ParseAddressJSON re-coerces either a plain string or a legacy octets object
// into a canonical Address, per the read-time migration called out in the
// address codec design.
func ParseAddressJSON(raw json.RawMessage) (Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseAddress(s)
	}
	var legacy legacyOctets
	if err := json.Unmarshal(raw, &legacy); err == nil && len(legacy.Octets) == 4 {
		ip := net.IPv4(legacy.Octets[0], legacy.Octets[1], legacy.Octets[2], legacy.Octets[3])
		return addressFromIP(ip), nil
	}
	return Address{}, NewStopError(ErrInvalidAddress, "unrecognized address encoding", nil)
}

// String renders the address in its family-appropriate canonical form.
func (a Address) String() string {
	if a.Family == FamilyV4 {
		return net.IP(a.V6[12:16]).String()
	}
	return net.IP(a.V6[:]).String()
}

// Key returns the canonical equality key (v6address) used across families.
func (a Address) Key() [16]byte { return a.V6 }

// Compare returns -1, 0, 1 analogous to bytes.Compare over the v6 key.
func (a Address) Compare(b Address) int {
	for i := range a.V6 {
		if a.V6[i] != b.V6[i] {
			if a.V6[i] < b.V6[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Plus returns a+offset, failing (ok=false) on overflow within the address
// family's bit width.
func (a Address) Plus(offset uint64) (Address, bool) {
	return a.addSigned(new(big.Int).SetUint64(offset))
}

// Minus returns a-offset, failing (ok=false) on underflow.
func (a Address) Minus(offset uint64) (Address, bool) {
	neg := new(big.Int).SetUint64(offset)
	neg.Neg(neg)
	return a.addSigned(neg)
}

func (a Address) addSigned(delta *big.Int) (Address, bool) {
	width := 16
	if a.Family == FamilyV4 {
		width = 4
	}
	base := new(big.Int)
	if a.Family == FamilyV4 {
		base.SetBytes(a.V6[12:16])
	} else {
		base.SetBytes(a.V6[:])
	}
	base.Add(base, delta)
	max := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	if base.Sign() < 0 || base.Cmp(max) >= 0 {
		return Address{}, false
	}
	b := base.Bytes()
	if a.Family == FamilyV4 {
		var v4 [4]byte
		copy(v4[4-len(b):], b)
		return addressFromIP(net.IPv4(v4[0], v4[1], v4[2], v4[3])), true
	}
	var v6 [16]byte
	copy(v6[16-len(b):], b)
	return Address{Family: FamilyV6, V6: v6}, true
}

// MAC is a 48-bit hardware address.
type MAC uint64

const macMax = 1<<48 - 1

// ParseMAC accepts colon-separated and integer-as-string forms.
func ParseMAC(s string) (MAC, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		hw, err := net.ParseMAC(s)
		if err != nil || len(hw) != 6 {
			return 0, NewStopError(ErrInvalidAddress, fmt.Sprintf("malformed mac %q", s), nil)
		}
		var v uint64
		for _, b := range hw {
			v = v<<8 | uint64(b)
		}
		return MAC(v), nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil || n > macMax {
		return 0, NewStopError(ErrInvalidAddress, fmt.Sprintf("malformed mac %q", s), nil)
	}
	return MAC(n), nil
}

// String renders the MAC in colon-separated form.
func (m MAC) String() string {
	b := [6]byte{
		byte(m >> 40), byte(m >> 32), byte(m >> 24),
		byte(m >> 16), byte(m >> 8), byte(m),
	}
	return net.HardwareAddr(b[:]).String()
}

// OUI returns the 24-bit organizationally-unique prefix of the MAC.
func (m MAC) OUI() uint32 { return uint32(m >> 24) }

// Key returns the store key for the NIC bucket: the MAC integer as a string.
func (m MAC) Key() string { return strconv.FormatUint(uint64(m), 10) }
