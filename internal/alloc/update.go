package alloc

import (
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// UpdateParams is the validated set of fields a caller wants to change on
// an existing NIC. NICParams is written to the NIC as given, so callers
// must merge it against the existing record before calling Update, per the
// reconciler's "existing ∪ updates" contract.
type UpdateParams struct {
	NICParams
	NetworkUUID *string
	Network     *domain.LogicalNetwork
	IP          *domain.Address
	Field       string
}

// Update loads the existing NIC, diffs it against the validated update
// parameters, and delegates to the allocation driver with addUpdatedNic as
// its NIC-selection function (always reuses the existing MAC).
func Update(rc *RequestContext, mac domain.MAC, params UpdateParams) (*domain.NICRecord, error) {
	existing, found, err := rc.getNIC(mac)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewStopError(domain.ErrNotFound, "nic not found", map[string]string{"mac": mac.String()})
	}

	req := Request{
		NICFn:     &addUpdatedNIC{existing: existing},
		NICParams: params.NICParams,
	}

	ipChanging := params.Network != nil && params.IP != nil &&
		!existing.HasIP(*params.NetworkUUID, *params.IP)

	if ipChanging {
		newIPProvisioner := &IPProvision{
			NetworkUUID: *params.NetworkUUID,
			Network:     params.Network,
			IP:          *params.IP,
			Field:       params.Field,
		}
		req.Provisioners = append(req.Provisioners, newIPProvisioner)

		if existing.IPAddress != nil && existing.NetworkUUID != nil {
			oldRec, exists, err := rc.getIPRecord(*existing.NetworkUUID, *existing.IPAddress)
			if err != nil {
				return nil, err
			}
			// Only free the old IP if it still belongs to this NIC: ownership
			// may have been reassigned underneath us, in which case we detach
			// without freeing someone else's binding.
			if exists && oldRec.BelongsToUUID == existing.BelongsToUUID {
				rc.RemoveIPs = append(rc.RemoveIPs, Candidate{
					NetworkUUID: *existing.NetworkUUID,
					IP:          *existing.IPAddress,
				})
			}
		}
	} else if existing.IPAddress != nil && existing.NetworkUUID != nil {
		// IP unchanged: keep it bound by re-provisioning the same (network,
		// ip) pair so the driver's batch still carries its conditional put.
		req.Provisioners = append(req.Provisioners, &IPProvision{
			NetworkUUID: *existing.NetworkUUID,
			IP:          *existing.IPAddress,
			Field:       "ip",
		})
	}

	return NICAndIP(rc, req)
}

// addUpdatedNIC is the update path's NIC-selection function: it always
// reuses the existing MAC and version, never generating or accepting a new
// one.
type addUpdatedNIC struct {
	existing *domain.NICRecord
}

func (s *addUpdatedNIC) SelectAndBuild(rc *RequestContext, base NICParams) (*domain.NICRecord, error) {
	nic := buildNIC(rc, s.existing.MAC, base)
	nic.Version = s.existing.Version
	if len(rc.IPs) == 0 {
		nic.SetIP("", nil)
	}
	rc.Batch.Append(nic.BatchItem(store.NICBucket, false))

	if nic.Primary && !s.existing.Primary {
		extra, err := primaryClearItems(rc, nic.Key())
		if err != nil {
			return nil, err
		}
		rc.Batch.Append(extra...)
	}
	return nic, nil
}
