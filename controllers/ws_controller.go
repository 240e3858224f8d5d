package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/imalive/server/realtime"
	"github.com/imalive/server/utils"
)

// WSController upgrades authenticated requests to the realtime event stream.
type WSController struct {
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
}

// NewWSController accepts handshakes from allowedOrigins; "*" allows any origin.
func NewWSController(hub *realtime.Hub, allowedOrigins []string) *WSController {
	return &WSController{
		hub: hub,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// same host is always fine
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Serve hands the upgraded connection to the hub.
func (w *WSController) Serve(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	if err := w.hub.Serve(w.upgrader, ctx.Writer, ctx.Request, userID); err != nil {
		// the upgrader already wrote the HTTP error
		utils.Logger.Debug("websocket upgrade failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}
