// Package alloc implements the NIC/IP allocation engine: the provisioner
// strategies, the NIC-selection functions, the bounded retry loop that
// composes them, the update reconciler, the delete path, and the
// fabric-member resolver.
package alloc

import (
	"context"

	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// Config carries the environment inputs the engine requires: the OUI it is
// permitted to allocate MACs within, and the MAC-selection retry ceiling.
type Config struct {
	MacOUI     uint32
	MacRetries int
}

// DefaultMacRetries is the conservative default for MAC_RETRIES called out
// as an open question in the allocation engine's design: a fixed small
// integer chosen to bound randomMAC's worst case without masking real
// OUI exhaustion.
const DefaultMacRetries = 64

// Candidate is one address chosen (or being evaluated) within a single
// allocation attempt: the network it lives on and the address itself.
type Candidate struct {
	NetworkUUID string
	Network     *domain.LogicalNetwork
	IP          domain.Address
	Field       string // caller-facing field name, used in error details
}

// RequestContext is the explicit, request-scoped state threaded through a
// single allocation attempt. A fresh RequestContext is created per request;
// its Batch/IPs/VnetCNs fields are reset between retry iterations by the
// driver, Err carries the previous iteration's failure into the next, and
// none of them may leak across requests.
type RequestContext struct {
	Ctx    context.Context
	Store  store.Store
	Config Config

	OwnerUUID     string
	BelongsToUUID string
	BelongsToType domain.BelongsToType
	CheckOwner    bool

	// NetworkLookup resolves a network_uuid to its definition, used by the
	// fabric-member resolution stage.
	NetworkLookup NetworkLookup

	// Batch accumulates this iteration's conditional writes.
	Batch domain.Batch
	// IPs lists the addresses chosen by provisioners this iteration.
	IPs []Candidate
	// Err is the previous iteration's commit failure, consulted by
	// provisioners/NIC-selectors to decide whether to keep or replace
	// their candidate identifier.
	Err error
	// VnetCNs maps vnet_id to the compute-node set resolved for it,
	// populated by the fabric-member resolution stage.
	VnetCNs map[string][]string

	// RemoveIPs are addresses to free this iteration (filled by the update
	// path; Delete unassigns its IP directly).
	RemoveIPs []Candidate
	// ProvisionableIPs is not set or read by any stage in this package;
	// no provisionability check is driven by it.
	ProvisionableIPs []Candidate
}

// Reset clears the per-iteration state, preserving Err from the prior
// iteration so provisioners can inspect it, per the driver's reset stage.
func (rc *RequestContext) reset() {
	rc.Batch.Reset()
	rc.IPs = rc.IPs[:0]
	rc.VnetCNs = nil
}

func (rc *RequestContext) getIPRecord(networkUUID string, ip domain.Address) (*domain.IPRecord, bool, error) {
	bucket := store.NetworkBucket(networkUUID)
	rec, err := rc.Store.Get(rc.Ctx, bucket, ip.String())
	if err != nil {
		if store.IsNotFound(err) {
			return &domain.IPRecord{NetworkUUID: networkUUID, Address: ip, Free: true}, false, nil
		}
		return nil, false, domain.NewError(domain.ErrTransient, "reading ip record failed", nil)
	}
	var parsed domain.IPRecord
	if err := parsed.UnmarshalJSON(rec.Value); err != nil {
		return nil, false, domain.NewError(domain.ErrTransient, "decoding ip record failed", nil)
	}
	parsed.Version = rec.Version
	return &parsed, true, nil
}

// GetNIC loads the current NIC record for mac, for callers (the service
// layer's Get/Update/Delete entry points) that need a read outside of the
// driver's own retry loop.
func (rc *RequestContext) GetNIC(mac domain.MAC) (*domain.NICRecord, bool, error) {
	return rc.getNIC(mac)
}

func (rc *RequestContext) getNIC(mac domain.MAC) (*domain.NICRecord, bool, error) {
	rec, err := rc.Store.Get(rc.Ctx, store.NICBucket, mac.Key())
	if err != nil {
		if store.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, domain.NewError(domain.ErrTransient, "reading nic record failed", nil)
	}
	var parsed domain.NICRecord
	if err := parsed.UnmarshalJSON(rec.Value); err != nil {
		return nil, false, domain.NewError(domain.ErrTransient, "decoding nic record failed", nil)
	}
	parsed.Version = rec.Version
	return &parsed, true, nil
}

// assignItem builds the batch item that binds rec (whether freshly
// materialized or previously free/unowned) to the requesting owner/NIC.
func assignItem(bucket string, rec *domain.IPRecord, existing bool, belongsTo string, belongsToType domain.BelongsToType, ownerUUID string) domain.BatchItem {
	if !existing {
		next := *rec
		next.Free = false
		next.BelongsToUUID = belongsTo
		next.BelongsToType = belongsToType
		next.OwnerUUID = ownerUUID
		return domain.BatchItem{Op: domain.OpPut, Bucket: bucket, Key: rec.Key(), Value: &next, Unique: true}
	}
	return rec.BatchItem(bucket, belongsTo, belongsToType, ownerUUID)
}
