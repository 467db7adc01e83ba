package alloc

import (
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// NetworkLookup resolves a network_uuid to its LogicalNetwork definition.
// Network definitions are external to the allocation engine's store (they
// are configuration, not versioned objects); the driver is handed a lookup
// function rather than owning a network registry itself.
type NetworkLookup func(networkUUID string) (*domain.LogicalNetwork, error)

// resolveFabricMembers implements stage 4 of the allocation pipeline: for
// every IP chosen this iteration whose network is fabric=true, it scans the
// NIC bucket for every other NIC bound to a network sharing the same
// vnet_id, collecting their cn_uuid into rc.VnetCNs. The scan is a single
// snapshot read of the NIC bucket shared by all vnet_ids, not held across
// suspension points.
func resolveFabricMembers(rc *RequestContext) error {
	if rc.NetworkLookup == nil {
		return nil
	}

	vnetIDs := map[string]struct{}{}
	for _, c := range rc.IPs {
		if c.Network != nil && c.Network.Fabric && c.Network.VnetID != nil {
			vnetIDs[*c.Network.VnetID] = struct{}{}
		}
	}
	if len(vnetIDs) == 0 {
		return nil
	}

	recs, err := rc.Store.List(rc.Ctx, store.NICBucket, store.ListFilter{})
	if err != nil {
		return domain.NewError(domain.ErrTransient, "listing nic bucket for fabric resolution failed", nil)
	}

	result := make(map[string][]string, len(vnetIDs))
	seen := make(map[string]map[string]struct{}, len(vnetIDs))
	for vnetID := range vnetIDs {
		seen[vnetID] = map[string]struct{}{}
	}

	for _, rec := range recs {
		var nic domain.NICRecord
		if err := nic.UnmarshalJSON(rec.Value); err != nil {
			continue
		}
		if nic.NetworkUUID == nil || nic.CnUUID == "" {
			continue
		}
		net, err := rc.NetworkLookup(*nic.NetworkUUID)
		if err != nil || net == nil || !net.Fabric || net.VnetID == nil {
			continue
		}
		if _, want := vnetIDs[*net.VnetID]; !want {
			continue
		}
		if _, dup := seen[*net.VnetID][nic.CnUUID]; dup {
			continue
		}
		seen[*net.VnetID][nic.CnUUID] = struct{}{}
		result[*net.VnetID] = append(result[*net.VnetID], nic.CnUUID)
	}

	rc.VnetCNs = result
	return nil
}
