package rbac

import (
	"testing"

	"github.com/fleetkit/napi/internal/domain"
)

func TestCanOperateOnNIC(t *testing.T) {
	owned := &domain.NICRecord{OwnerUUID: "owner-1", CheckOwner: true}
	unowned := &domain.NICRecord{CheckOwner: false}
	unownedButChecked := &domain.NICRecord{CheckOwner: true}

	cases := []struct {
		name  string
		actor domain.Actor
		nic   *domain.NICRecord
		want  bool
	}{
		{"admin bypasses ownership", domain.Actor{IsAdmin: true}, owned, true},
		{"owner can operate on own nic", domain.Actor{OwnerUUID: "owner-1"}, owned, true},
		{"non-owner rejected when check_owner true", domain.Actor{OwnerUUID: "owner-2"}, owned, false},
		{"unowned and check_owner false is open", domain.Actor{OwnerUUID: "owner-2"}, unowned, true},
		{"unowned but check_owner true is rejected", domain.Actor{OwnerUUID: "owner-2"}, unownedButChecked, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanOperateOnNIC(tc.actor, tc.nic); got != tc.want {
				t.Fatalf("CanOperateOnNIC() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanOperateOnIP(t *testing.T) {
	free := &domain.IPRecord{Free: true}
	reserved := &domain.IPRecord{Reserved: true}
	owned := &domain.IPRecord{OwnerUUID: "owner-1"}

	if !CanOperateOnIP(domain.Actor{OwnerUUID: "owner-2"}, free) {
		t.Fatalf("expected free ip to be operable by any actor")
	}
	if CanOperateOnIP(domain.Actor{OwnerUUID: "owner-2"}, reserved) {
		t.Fatalf("expected reserved ip to reject non-admin actor")
	}
	if !CanOperateOnIP(domain.Actor{IsAdmin: true}, reserved) {
		t.Fatalf("expected admin to bypass reserved ip")
	}
	if CanOperateOnIP(domain.Actor{OwnerUUID: "owner-2"}, owned) {
		t.Fatalf("expected non-owner to be rejected on owned ip")
	}
	if !CanOperateOnIP(domain.Actor{OwnerUUID: "owner-1"}, owned) {
		t.Fatalf("expected owner to operate on own ip")
	}
}
