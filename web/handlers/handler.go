package handlers

import (
	"axiapac.com/devicesync/bootstrap"
	"axiapac.com/devicesync/employees"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	rt *bootstrap.Runtime
	// employees is nil when no employee source is configured; push
	// requests must then carry the employee list in the body.
	employees employees.Source
}

func New(rt *bootstrap.Runtime, src employees.Source) *Handler {
	return &Handler{rt: rt, employees: src}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/sync", h.Sync)
	r.POST("/devices/:index/push", h.Push)
}
