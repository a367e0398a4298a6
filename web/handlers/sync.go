package handlers

import (
	"context"
	"net/http"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/bootstrap"
	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/web/common"
	"github.com/gin-gonic/gin"
)

type SyncRequest struct {
	// Devices limits the run to these config indexes. Empty means all.
	Devices []int `json:"devices" binding:"omitempty,dive,min=0"`
}

// Sync runs a sync over the configured devices and returns the summary.
// Device failures are part of a 200 response.
func (h *Handler) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(common.FormatBindingError(err)))
			return
		}
	}

	devices := h.rt.Config.Devices
	if len(req.Devices) > 0 {
		devices = make([]device.Descriptor, 0, len(req.Devices))
		for _, idx := range req.Devices {
			d, err := h.rt.Config.DeviceAt(idx)
			if err != nil {
				c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error()))
				return
			}
			devices = append(devices, d)
		}
	}

	ctx := c.Request.Context()
	summary := agent.NewOrchestrator(h.rt.RunContext()).Run(ctx, devices)

	// the summary is posted even when the caller hangs up
	if err := bootstrap.Report(context.WithoutCancel(ctx), h.rt.Notifier, summary); err != nil {
		h.rt.Logger.Warn().Err(err).Msg("failed to post run summary")
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(summary))
}
