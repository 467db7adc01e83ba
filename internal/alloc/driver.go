package alloc

import (
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/store"
)

// Request bundles everything the allocation driver needs for one attempt:
// the provisioners to run in order, the NIC-selection function, and the
// base NIC parameters used to synthesize the record once a MAC and
// (optionally) an IP have been chosen.
type Request struct {
	Provisioners []Provisioner
	NICFn        NICSelector
	NICParams    NICParams
}

// DefaultTransientRetries bounds how many times the driver will retry a
// commit that failed with a store-level transient error (a dropped
// connection, a deadline) before giving up and surfacing it. Unlike a
// version or unique conflict, a transient failure carries no key for a
// provisioner to react to, so nothing about the next iteration differs from
// this one: without a cap a persistently unreachable store spins forever.
const DefaultTransientRetries = 8

// NICAndIP runs the bounded retry loop described in the allocation driver
// design: each iteration resets the batch, runs the provisioners, frees any
// stale IPs, resolves fabric membership, builds the NIC, and commits. A
// stopping error exits immediately; any other commit failure feeds back
// into the next iteration via rc.Err. The address/MAC spaces the
// provisioners search are themselves bounded and always raise a stopping
// error on exhaustion; the only unbounded case is a repeating transient
// error (a store.KindTransient conflict or a domain ERR_TRANSIENT read
// failure), which DefaultTransientRetries caps.
func NICAndIP(rc *RequestContext, req Request) (*domain.NICRecord, error) {
	transientAttempts := 0
	for {
		nic, err, retry := attempt(rc, req)
		if !retry {
			return nic, err
		}
		transient := false
		if ce, ok := err.(*store.ConflictError); ok && ce.Kind == store.KindTransient {
			transient = true
		}
		if derr, ok := err.(*domain.Error); ok && derr.Code == domain.ErrTransient {
			transient = true
		}
		if transient {
			transientAttempts++
			if transientAttempts >= DefaultTransientRetries {
				return nil, err
			}
		}
		rc.Err = err
	}
}

// attempt runs one iteration of the six-stage pipeline. retry is true when
// the caller should loop again after recording err in rc.Err.
func attempt(rc *RequestContext, req Request) (*domain.NICRecord, error, bool) {
	// Stage 1: reset.
	rc.reset()

	// Stage 2: run provisioners in order.
	for _, p := range req.Provisioners {
		if err := p.Provision(rc); err != nil {
			if isStop(err) {
				return nil, err, false
			}
			return nil, err, true
		}
	}

	// Stage 3: free old IPs.
	for _, removed := range rc.RemoveIPs {
		rec, existing, err := rc.getIPRecord(removed.NetworkUUID, removed.IP)
		if err != nil {
			return nil, err, false
		}
		if !existing || rec.Free {
			continue
		}
		rc.Batch.Append(rec.FreeBatchItem(store.NetworkBucket(removed.NetworkUUID)))
	}

	// Stage 4: resolve fabric members.
	if err := resolveFabricMembers(rc); err != nil {
		if isStop(err) {
			return nil, err, false
		}
		return nil, err, true
	}

	// Stage 5: build NIC.
	nic, err := req.NICFn.SelectAndBuild(rc, req.NICParams)
	if err != nil {
		if isStop(err) {
			return nil, err, false
		}
		return nil, err, true
	}

	// Stage 6: commit.
	if err := rc.Store.Commit(rc.Ctx, rc.Batch); err != nil {
		if isStop(err) {
			return nil, err, false
		}
		return nil, err, true
	}

	return nic, nil, false
}

// isStop reports whether err must end the retry loop immediately. A
// *domain.Error carries its own stop flag; a *store.ConflictError never
// sets one, but a KindFatal conflict (a marshal failure, a dead connection
// surfaced as unrecoverable) is just as non-retryable even though the store
// layer doesn't know about domain.Error.
func isStop(err error) bool {
	if derr, ok := err.(*domain.Error); ok && derr.Stop {
		return true
	}
	if ce, ok := err.(*store.ConflictError); ok && ce.Kind == store.KindFatal {
		return true
	}
	return false
}
