package domain

import "encoding/json"

// NICState is the lifecycle state of a NICRecord.
type NICState string

const (
	NICStateProvisioning NICState = "provisioning"
	NICStateRunning       NICState = "running"
	NICStateStopped       NICState = "stopped"
)

// NICRecord is the single canonical record for a network interface: its MAC
// plus the parameters and, at most, one bound IP. It lives in one global
// bucket keyed by MAC integer, separate from the per-network IP buckets.
type NICRecord struct {
	MAC     MAC      `json:"-"`
	Primary bool     `json:"primary"`
	State   NICState `json:"state"`

	BelongsToUUID string        `json:"belongs_to_uuid"`
	BelongsToType BelongsToType `json:"belongs_to_type"`
	OwnerUUID     string        `json:"owner_uuid"`
	CheckOwner    bool          `json:"check_owner"`

	Model           string `json:"model,omitempty"`
	VLANID          int    `json:"vlan_id"`
	NICTag          string `json:"nic_tag,omitempty"`
	NICTagsProvided []string `json:"nic_tags_provided,omitempty"`

	AllowDHCPSpoofing      bool `json:"allow_dhcp_spoofing"`
	AllowIPSpoofing        bool `json:"allow_ip_spoofing"`
	AllowMACSpoofing       bool `json:"allow_mac_spoofing"`
	AllowRestrictedTraffic bool `json:"allow_restricted_traffic"`
	AllowUnfilteredPromisc bool `json:"allow_unfiltered_promisc"`

	CnUUID   string `json:"cn_uuid,omitempty"`
	Underlay bool   `json:"underlay"`

	IPAddress   *Address `json:"-"`
	NetworkUUID *string  `json:"network_uuid,omitempty"`

	Version string `json:"-"`
}

// Key returns the store key for this NIC: its MAC integer as a string.
func (n *NICRecord) Key() string { return n.MAC.Key() }

type nicRecordWire struct {
	MAC             string        `json:"mac"`
	Primary         bool          `json:"primary"`
	State           NICState      `json:"state"`
	BelongsToUUID   string        `json:"belongs_to_uuid"`
	BelongsToType   BelongsToType `json:"belongs_to_type"`
	OwnerUUID       string        `json:"owner_uuid"`
	CheckOwner      bool          `json:"check_owner"`
	Model           string        `json:"model,omitempty"`
	VLANID          int           `json:"vlan_id"`
	NICTag          string        `json:"nic_tag,omitempty"`
	NICTagsProvided []string      `json:"nic_tags_provided,omitempty"`

	AllowDHCPSpoofing      bool `json:"allow_dhcp_spoofing"`
	AllowIPSpoofing        bool `json:"allow_ip_spoofing"`
	AllowMACSpoofing       bool `json:"allow_mac_spoofing"`
	AllowRestrictedTraffic bool `json:"allow_restricted_traffic"`
	AllowUnfilteredPromisc bool `json:"allow_unfiltered_promisc"`

	CnUUID   string `json:"cn_uuid,omitempty"`
	Underlay bool   `json:"underlay"`

	IPAddress   string `json:"ip_address,omitempty"`
	NetworkUUID string `json:"network_uuid,omitempty"`
}

// MarshalJSON serializes the NIC in the wire form stored by the adapter.
func (n *NICRecord) MarshalJSON() ([]byte, error) {
	w := nicRecordWire{
		MAC:                    n.MAC.String(),
		Primary:                n.Primary,
		State:                  n.State,
		BelongsToUUID:          n.BelongsToUUID,
		BelongsToType:          n.BelongsToType,
		OwnerUUID:              n.OwnerUUID,
		CheckOwner:             n.CheckOwner,
		Model:                  n.Model,
		VLANID:                 n.VLANID,
		NICTag:                 n.NICTag,
		NICTagsProvided:        n.NICTagsProvided,
		AllowDHCPSpoofing:      n.AllowDHCPSpoofing,
		AllowIPSpoofing:        n.AllowIPSpoofing,
		AllowMACSpoofing:       n.AllowMACSpoofing,
		AllowRestrictedTraffic: n.AllowRestrictedTraffic,
		AllowUnfilteredPromisc: n.AllowUnfilteredPromisc,
		CnUUID:                 n.CnUUID,
		Underlay:               n.Underlay,
	}
	if n.IPAddress != nil {
		w.IPAddress = n.IPAddress.String()
	}
	if n.NetworkUUID != nil {
		w.NetworkUUID = *n.NetworkUUID
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a NICRecord from its wire form.
func (n *NICRecord) UnmarshalJSON(data []byte) error {
	var w nicRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	mac, err := ParseMAC(w.MAC)
	if err != nil {
		return err
	}
	*n = NICRecord{
		MAC:                    mac,
		Primary:                w.Primary,
		State:                  w.State,
		BelongsToUUID:          w.BelongsToUUID,
		BelongsToType:          w.BelongsToType,
		OwnerUUID:              w.OwnerUUID,
		CheckOwner:             w.CheckOwner,
		Model:                  w.Model,
		VLANID:                 w.VLANID,
		NICTag:                 w.NICTag,
		NICTagsProvided:        w.NICTagsProvided,
		AllowDHCPSpoofing:      w.AllowDHCPSpoofing,
		AllowIPSpoofing:        w.AllowIPSpoofing,
		AllowMACSpoofing:       w.AllowMACSpoofing,
		AllowRestrictedTraffic: w.AllowRestrictedTraffic,
		AllowUnfilteredPromisc: w.AllowUnfilteredPromisc,
		CnUUID:                 w.CnUUID,
		Underlay:               w.Underlay,
	}
	if w.IPAddress != "" {
		addr, err := ParseAddress(w.IPAddress)
		if err != nil {
			return err
		}
		nu := w.NetworkUUID
		n.IPAddress = &addr
		n.NetworkUUID = &nu
	}
	return nil
}

// HasIP reports whether the NIC already holds the given address on the
// given network.
func (n *NICRecord) HasIP(networkUUID string, ip Address) bool {
	return n.IPAddress != nil && n.NetworkUUID != nil &&
		*n.NetworkUUID == networkUUID && n.IPAddress.Compare(ip) == 0
}

// SetIP binds the given address/network onto the NIC, replacing any prior
// binding. Passing a nil addr detaches the NIC from any IP.
func (n *NICRecord) SetIP(networkUUID string, addr *Address) {
	if addr == nil {
		n.IPAddress = nil
		n.NetworkUUID = nil
		return
	}
	a := *addr
	n.IPAddress = &a
	nu := networkUUID
	n.NetworkUUID = &nu
}

// BatchItem returns the conditional put for this NIC record, keyed off its
// current version. Unique is set when the NIC does not yet exist in the
// bucket (a fresh provision), asking the store to fail the write with
// unique_conflict rather than version_conflict on collision.
func (n *NICRecord) BatchItem(bucket string, fresh bool) BatchItem {
	return BatchItem{
		Op:            OpPut,
		Bucket:        bucket,
		Key:           n.Key(),
		Value:         n,
		ExpectVersion: n.Version,
		Unique:        fresh,
	}
}

// DeleteBatchItem returns the conditional delete for this NIC record.
func (n *NICRecord) DeleteBatchItem(bucket string) BatchItem {
	return BatchItem{
		Op:            OpDelete,
		Bucket:        bucket,
		Key:           n.Key(),
		ExpectVersion: n.Version,
	}
}

// NICView is the shape returned to callers: the public projection of a
// NICRecord with its bound IP's derived fields (netmask/prefix, fabric
// compute-node set) flattened in, per the external interface contract.
type NICView struct {
	MAC           string        `json:"mac"`
	Primary       bool          `json:"primary"`
	State         NICState      `json:"state"`
	OwnerUUID     string        `json:"owner_uuid"`
	BelongsToUUID string        `json:"belongs_to_uuid"`
	BelongsToType BelongsToType `json:"belongs_to_type"`

	IP          string `json:"ip,omitempty"`
	Netmask     string `json:"netmask,omitempty"`
	PrefixLen   int    `json:"prefix_len,omitempty"`
	Gateway     string `json:"gateway,omitempty"`
	VLANID      int    `json:"vlan_id"`
	NICTag      string `json:"nic_tag,omitempty"`
	Resolvers   []string `json:"resolvers,omitempty"`
	NetworkUUID string `json:"network_uuid,omitempty"`

	AllowDHCPSpoofing      bool `json:"allow_dhcp_spoofing"`
	AllowIPSpoofing        bool `json:"allow_ip_spoofing"`
	AllowMACSpoofing       bool `json:"allow_mac_spoofing"`
	AllowRestrictedTraffic bool `json:"allow_restricted_traffic"`
	AllowUnfilteredPromisc bool `json:"allow_unfiltered_promisc"`

	VnetID  string   `json:"vnet_id,omitempty"`
	VnetCNs []string `json:"vnet_cns,omitempty"`
}

// View projects a NICRecord plus its bound network/vnetCns into the
// caller-facing shape. net may be nil if the NIC has no bound IP.
func (n *NICRecord) View(net *LogicalNetwork, vnetCNs []string) NICView {
	v := NICView{
		MAC:                    n.MAC.String(),
		Primary:                n.Primary,
		State:                  n.State,
		OwnerUUID:              n.OwnerUUID,
		BelongsToUUID:          n.BelongsToUUID,
		BelongsToType:          n.BelongsToType,
		VLANID:                 n.VLANID,
		NICTag:                 n.NICTag,
		AllowDHCPSpoofing:      n.AllowDHCPSpoofing,
		AllowIPSpoofing:        n.AllowIPSpoofing,
		AllowMACSpoofing:       n.AllowMACSpoofing,
		AllowRestrictedTraffic: n.AllowRestrictedTraffic,
		AllowUnfilteredPromisc: n.AllowUnfilteredPromisc,
	}
	if n.IPAddress != nil {
		v.IP = n.IPAddress.String()
	}
	if n.NetworkUUID != nil {
		v.NetworkUUID = *n.NetworkUUID
	}
	if net != nil {
		v.Netmask = net.Netmask()
		v.PrefixLen = net.PrefixLength()
		v.Resolvers = net.Resolvers
		if net.Gateway != nil {
			v.Gateway = *net.Gateway
		}
		if net.Fabric && net.VnetID != nil {
			v.VnetID = *net.VnetID
			v.VnetCNs = vnetCNs
		}
	}
	return v
}
