package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/service"
)

type ConnectionHandler struct {
	conn *service.Connection
}

func NewConnectionHandler(conn *service.Connection) *ConnectionHandler {
	return &ConnectionHandler{conn: conn}
}

type connectionResponse struct {
	service.ConnectionState
	Banner bool `json:"banner"`
}

// Get returns the last probe result
func (h *ConnectionHandler) Get(c *gin.Context) {
	state := h.conn.State()
	c.JSON(http.StatusOK, connectionResponse{ConnectionState: state, Banner: state.Banner()})
}

// Retry probes the active backend again
func (h *ConnectionHandler) Retry(c *gin.Context) {
	state := h.conn.Retry(c.Request.Context())
	c.JSON(http.StatusOK, connectionResponse{ConnectionState: state, Banner: state.Banner()})
}
