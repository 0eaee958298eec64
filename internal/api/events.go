// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/services"
)

const writeWait = 10 * time.Second

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all
// origins, matching the CORS policy.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressEvents streams a generation's events as JSON text frames: first the
// events recorded so far, then live ones. The server closes the socket after
// the terminal event.
func ProgressEvents(c *gin.Context, hub *services.ProgressHub, id string) {
	connection, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "websocket upgrade error", "error", err)
		return
	}
	defer connection.Close()

	replay, events, cancel := hub.Subscribe(id)
	defer cancel()

	// The client never sends anything; reading only notices when it leaves.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("progress viewer disconnected", "generation_id", id, "error", err)
				}
				return
			}
		}
	}()

	for _, event := range replay {
		if err := writeEvent(connection, event); err != nil {
			return
		}
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = connection.SetWriteDeadline(time.Now().Add(writeWait))
				_ = connection.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "generation finished"))
				return
			}
			if err := writeEvent(connection, event); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeEvent(connection *websocket.Conn, event model.ProgressEvent) error {
	_ = connection.SetWriteDeadline(time.Now().Add(writeWait))
	return connection.WriteJSON(event)
}
