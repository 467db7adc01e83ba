package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetkit/napi/internal/alloc"
	"github.com/fleetkit/napi/internal/domain"
	"github.com/fleetkit/napi/internal/repository"
	"github.com/fleetkit/napi/internal/service"
)

// NICHandler exposes the NIC allocation service over HTTP, per the
// POST/PUT/DELETE/GET /v1/nics routes.
type NICHandler struct {
	svc         *service.NICService
	idempotency repository.IdempotencyRepository
}

// NewNICHandler builds a NICHandler. idem may be nil to disable idempotent
// replay (e.g. in tests that don't exercise it).
func NewNICHandler(svc *service.NICService, idem repository.IdempotencyRepository) *NICHandler {
	return &NICHandler{svc: svc, idempotency: idem}
}

// RegisterRoutes wires the handler's routes onto the given gin router
// group, which is expected to already carry auth/rate-limit middleware.
func (h *NICHandler) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/v1/nics", h.Create)
	rg.GET("/v1/nics/:mac", h.Get)
	rg.PUT("/v1/nics/:mac", h.Update)
	rg.DELETE("/v1/nics/:mac", h.Delete)
}

type createNICRequest struct {
	NetworkUUID string `json:"network_uuid,omitempty"`
	NetworkPool string `json:"network_pool,omitempty"`
	IP          string `json:"ip,omitempty"`
	MAC         string `json:"mac,omitempty"`

	BelongsToUUID string `json:"belongs_to_uuid"`
	BelongsToType string `json:"belongs_to_type"`

	Primary                bool     `json:"primary"`
	State                  string   `json:"state"`
	Model                  string   `json:"model,omitempty"`
	VLANID                 int      `json:"vlan_id"`
	NICTag                 string   `json:"nic_tag,omitempty"`
	NICTagsProvided        []string `json:"nic_tags_provided,omitempty"`
	AllowDHCPSpoofing      bool     `json:"allow_dhcp_spoofing"`
	AllowIPSpoofing        bool     `json:"allow_ip_spoofing"`
	AllowMACSpoofing       bool     `json:"allow_mac_spoofing"`
	AllowRestrictedTraffic bool     `json:"allow_restricted_traffic"`
	AllowUnfilteredPromisc bool     `json:"allow_unfiltered_promisc"`
	CnUUID                 string   `json:"cn_uuid,omitempty"`
	Underlay               bool     `json:"underlay"`
	CheckOwner             bool     `json:"check_owner"`
}

func (r createNICRequest) toServiceRequest() service.CreateRequest {
	state := domain.NICState(r.State)
	if state == "" {
		state = domain.NICStateProvisioning
	}
	return service.CreateRequest{
		NetworkUUID:   r.NetworkUUID,
		NetworkPool:   r.NetworkPool,
		IP:            r.IP,
		MAC:           r.MAC,
		BelongsToUUID: r.BelongsToUUID,
		BelongsToType: domain.BelongsToType(r.BelongsToType),
		NICParams: alloc.NICParams{
			Primary:                r.Primary,
			State:                  state,
			Model:                  r.Model,
			VLANID:                 r.VLANID,
			NICTag:                 r.NICTag,
			NICTagsProvided:        r.NICTagsProvided,
			AllowDHCPSpoofing:      r.AllowDHCPSpoofing,
			AllowIPSpoofing:        r.AllowIPSpoofing,
			AllowMACSpoofing:       r.AllowMACSpoofing,
			AllowRestrictedTraffic: r.AllowRestrictedTraffic,
			AllowUnfilteredPromisc: r.AllowUnfilteredPromisc,
			CnUUID:                 r.CnUUID,
			Underlay:               r.Underlay,
			CheckOwner:             r.CheckOwner,
		},
	}
}

// Create handles POST /v1/nics, short-circuiting on a replayed
// Idempotency-Key before running the allocation driver.
func (h *NICHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		errorResponse(c, domain.NewError(domain.ErrUnauthorized, "authentication required", nil))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "failed to read request body", nil))
		return
	}
	bodyHash := hashBody(body)

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if rec, err := h.idempotency.Get(c.Request.Context(), idemKey); err == nil {
			if rec.BodyHash != bodyHash {
				errorResponse(c, domain.NewError(domain.ErrIdempotencyConflict, "idempotency key reused with a different request body", nil))
				return
			}
			c.Data(http.StatusOK, "application/json", rec.Response)
			return
		}
	}

	var req createNICRequest
	if err := json.Unmarshal(body, &req); err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "invalid request body", nil))
		return
	}

	nic, err := h.svc.Create(c.Request.Context(), actor, req.toServiceRequest())
	if err != nil {
		h.handleError(c, err)
		return
	}

	view := nic.View(nil, nil)
	respBody, _ := json.Marshal(view)

	if idemKey != "" && h.idempotency != nil {
		record := domain.NewIdempotencyRecord(idemKey, bodyHash)
		record.Response = respBody
		if err := h.idempotency.Set(c.Request.Context(), record); err != nil {
			slog.Warn("failed to persist idempotency record", "key", idemKey, "error", err)
		}
	}

	c.Data(http.StatusCreated, "application/json", respBody)
}

// Get handles GET /v1/nics/:mac.
func (h *NICHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		errorResponse(c, domain.NewError(domain.ErrUnauthorized, "authentication required", nil))
		return
	}
	mac, err := domain.ParseMAC(c.Param("mac"))
	if err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidAddress, "invalid mac", map[string]string{"field": "mac"}))
		return
	}

	nic, err := h.svc.Get(c.Request.Context(), actor, mac)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, nic.View(nil, nil))
}

type updateNICRequest struct {
	NetworkUUID *string `json:"network_uuid,omitempty"`
	IP          *string `json:"ip,omitempty"`

	Primary                *bool     `json:"primary,omitempty"`
	State                  *string   `json:"state,omitempty"`
	Model                  *string   `json:"model,omitempty"`
	VLANID                 *int      `json:"vlan_id,omitempty"`
	NICTag                 *string   `json:"nic_tag,omitempty"`
	NICTagsProvided        *[]string `json:"nic_tags_provided,omitempty"`
	AllowDHCPSpoofing      *bool     `json:"allow_dhcp_spoofing,omitempty"`
	AllowIPSpoofing        *bool     `json:"allow_ip_spoofing,omitempty"`
	AllowMACSpoofing       *bool     `json:"allow_mac_spoofing,omitempty"`
	AllowRestrictedTraffic *bool     `json:"allow_restricted_traffic,omitempty"`
	AllowUnfilteredPromisc *bool     `json:"allow_unfiltered_promisc,omitempty"`
	CnUUID                 *string   `json:"cn_uuid,omitempty"`
	Underlay               *bool     `json:"underlay,omitempty"`
	CheckOwner             *bool     `json:"check_owner,omitempty"`
}

func (r updateNICRequest) toServiceRequest() service.UpdateRequest {
	params := alloc.NICParams{}
	if r.Primary != nil {
		params.Primary = *r.Primary
	}
	if r.State != nil {
		params.State = domain.NICState(*r.State)
	}
	if r.Model != nil {
		params.Model = *r.Model
	}
	if r.VLANID != nil {
		params.VLANID = *r.VLANID
	}
	if r.NICTag != nil {
		params.NICTag = *r.NICTag
	}
	if r.NICTagsProvided != nil {
		params.NICTagsProvided = *r.NICTagsProvided
	}
	if r.AllowDHCPSpoofing != nil {
		params.AllowDHCPSpoofing = *r.AllowDHCPSpoofing
	}
	if r.AllowIPSpoofing != nil {
		params.AllowIPSpoofing = *r.AllowIPSpoofing
	}
	if r.AllowMACSpoofing != nil {
		params.AllowMACSpoofing = *r.AllowMACSpoofing
	}
	if r.AllowRestrictedTraffic != nil {
		params.AllowRestrictedTraffic = *r.AllowRestrictedTraffic
	}
	if r.AllowUnfilteredPromisc != nil {
		params.AllowUnfilteredPromisc = *r.AllowUnfilteredPromisc
	}
	if r.CnUUID != nil {
		params.CnUUID = *r.CnUUID
	}
	if r.Underlay != nil {
		params.Underlay = *r.Underlay
	}
	if r.CheckOwner != nil {
		params.CheckOwner = *r.CheckOwner
	}
	return service.UpdateRequest{NetworkUUID: r.NetworkUUID, IP: r.IP, NICParams: params}
}

// Update handles PUT /v1/nics/:mac.
func (h *NICHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		errorResponse(c, domain.NewError(domain.ErrUnauthorized, "authentication required", nil))
		return
	}
	mac, err := domain.ParseMAC(c.Param("mac"))
	if err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidAddress, "invalid mac", map[string]string{"field": "mac"}))
		return
	}

	var req updateNICRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "invalid request body", nil))
		return
	}

	nic, err := h.svc.Update(c.Request.Context(), actor, mac, req.toServiceRequest())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, nic.View(nil, nil))
}

// Delete handles DELETE /v1/nics/:mac.
func (h *NICHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		errorResponse(c, domain.NewError(domain.ErrUnauthorized, "authentication required", nil))
		return
	}
	mac, err := domain.ParseMAC(c.Param("mac"))
	if err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidAddress, "invalid mac", map[string]string{"field": "mac"}))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, mac); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NICHandler) handleError(c *gin.Context, err error) {
	if derr, ok := err.(*domain.Error); ok {
		errorResponse(c, derr)
		return
	}
	slog.Error("unhandled allocation error", "error", err)
	errorResponse(c, domain.NewError(domain.ErrInternalServer, "internal error", nil))
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}
