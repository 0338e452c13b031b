package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vol-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams price ticks and order status updates.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Deps.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Deps.Bus.Subscribe(events.TopicPriceTick, 100)
	defer unsubTicks()
	orders, unsubOrders := s.Deps.Bus.Subscribe(events.TopicOrderStatus, 100)
	defer unsubOrders()

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var frame gin.H
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			frame = gin.H{"topic": events.TopicPriceTick, "data": msg}
		case msg, ok := <-orders:
			if !ok {
				return
			}
			frame = gin.H{"topic": events.TopicOrderStatus, "data": msg}
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
