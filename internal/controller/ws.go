package controller

import (
	"net/http"
)

func (c controller) serveRelay(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	if err := c.relay.ServeConn(r.Context(), conn); err != nil {
		c.logger.DebugContext(r.Context(), "relay connection closed", "error", err)
	}
}
