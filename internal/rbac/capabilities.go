package rbac

import "github.com/fleetkit/napi/internal/domain"

// Capability helpers centralize authorization logic for NIC operations.
// Keep functions small & pure to simplify unit testing.

// CanOperateOnNIC implements the ownership rule referenced throughout the
// allocation domain's provisionable/check_owner logic: an actor may act on a
// NIC if they are a global admin, if they already own it, or if the NIC does
// not enforce ownership (check_owner=false) and is currently unowned.
func CanOperateOnNIC(actor domain.Actor, nic *domain.NICRecord) bool {
	if actor.IsAdmin {
		return true
	}
	if nic.OwnerUUID != "" && nic.OwnerUUID == actor.OwnerUUID {
		return true
	}
	if !nic.CheckOwner && nic.OwnerUUID == "" {
		return true
	}
	return false
}

// CanOperateOnIP applies the same rule to a bare IP record (used when
// releasing or inspecting an address outside of a NIC update/delete).
func CanOperateOnIP(actor domain.Actor, rec *domain.IPRecord) bool {
	if actor.IsAdmin {
		return true
	}
	return rec.Provisionable(actor.OwnerUUID)
}
