package alloc

import (
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// Delete loads the NIC, gathers fabric membership if applicable, and
// commits a batch that deletes the NIC and unassigns any IP it owns.
// Mismatched ownership on the bound IP (it was reassigned underneath us)
// is not an error: the delete proceeds, simply leaving that IP alone.
func Delete(rc *RequestContext, mac domain.MAC) error {
	existing, found, err := rc.getNIC(mac)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewStopError(domain.ErrNotFound, "nic not found", map[string]string{"mac": mac.String()})
	}

	if existing.NetworkUUID != nil && existing.IPAddress != nil && rc.NetworkLookup != nil {
		if net, err := rc.NetworkLookup(*existing.NetworkUUID); err == nil && net != nil && net.Fabric && net.VnetID != nil {
			rc.IPs = append(rc.IPs, Candidate{NetworkUUID: *existing.NetworkUUID, Network: net, IP: *existing.IPAddress})
			_ = resolveFabricMembers(rc)
		}
	}

	rc.Batch.Reset()
	rc.Batch.Append(existing.DeleteBatchItem(store.NICBucket))

	if existing.IPAddress != nil && existing.NetworkUUID != nil {
		rec, exists, err := rc.getIPRecord(*existing.NetworkUUID, *existing.IPAddress)
		if err != nil {
			return err
		}
		if exists && rec.BelongsToUUID == existing.BelongsToUUID {
			rc.Batch.Append(rec.UnassignBatchItem(store.NetworkBucket(*existing.NetworkUUID)))
		}
		// Mismatched ownership: the IP record is left as it is and the
		// delete goes ahead; the mismatch is neither an error nor logged.
	}

	return rc.Store.Commit(rc.Ctx, rc.Batch)
}
