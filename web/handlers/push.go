package handlers

import (
	"net/http"
	"strconv"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/utils"
	"axiapac.com/devicesync/web/common"
	"github.com/gin-gonic/gin"
)

type PushEmployee struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	NativeUserID string `json:"native_user_id"`
}

type PushRequest struct {
	Branch     string         `json:"branch" binding:"required_without=Employees"`
	Employees  []PushEmployee `json:"employees" binding:"omitempty,dive"`
	ClearFirst bool           `json:"clear_first"`
	// DryRun returns the uid assignment without connecting.
	DryRun bool `json:"dry_run"`
}

// Push writes employees into the device at :index. The list comes from
// the request body or, when only a branch is given, from the configured
// employee source.
func (h *Handler) Push(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("device index must be a number"))
		return
	}
	d, err := h.rt.Config.DeviceAt(index)
	if err != nil {
		c.JSON(http.StatusNotFound, common.NewErrorResponse(err.Error()))
		return
	}

	var req PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(common.FormatBindingError(err)))
		return
	}

	ctx := c.Request.Context()
	emps := utils.Map(req.Employees, func(e PushEmployee) agent.Employee {
		return agent.Employee{ID: e.ID, Name: e.Name, NativeUserID: e.NativeUserID}
	})
	if len(emps) == 0 {
		if h.employees == nil {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse("no employee source configured, send employees in the request"))
			return
		}
		emps, err = h.employees.Employees(ctx, req.Branch)
		if err != nil {
			c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error()))
			return
		}
	}

	worker := agent.NewPushWorker(h.rt.RunContext())
	if req.DryRun {
		c.JSON(http.StatusOK, common.NewSuccessResponse(worker.Preview(emps)))
		return
	}

	summary := worker.Run(ctx, d, emps, req.ClearFirst)
	status := http.StatusOK
	if summary.ErrorKind == agent.KindConnection || summary.ErrorKind == agent.KindInvalidDevice {
		status = http.StatusBadGateway
	}
	c.JSON(status, common.NewSuccessResponse(summary))
}
