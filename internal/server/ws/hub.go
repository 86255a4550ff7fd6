// Package ws implementa el hub de websockets del dashboard: cada cliente
// conectado recibe el snapshot del ledger como JSON tras cada ciclo.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alf-alejandro/agente-clima/internal/domain"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod debe ser menor que pongWait.
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard local: se aceptan todos los orígenes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client es una conexión websocket con su buffer de salida.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub mantiene el conjunto de clientes conectados y les difunde snapshots.
// Un cliente lento pierde mensajes, nunca bloquea al resto.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	// last es el último snapshot publicado, para que un cliente recién
	// conectado no espere al próximo ciclo.
	last []byte
}

// NewHub crea el hub vacío.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Run mantiene el hub vivo hasta la cancelación y entonces cierra todas
// las conexiones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Publish serializa el snapshot y lo difunde a todos los clientes.
// Seguro desde cualquier goroutine.
func (h *Hub) Publish(snap domain.Snapshot) {
	data, err := json.Marshal(map[string]any{
		"type":    "snapshot",
		"payload": snap,
	})
	if err != nil {
		slog.Warn("ws: marshal snapshot failed", "err", err)
		return
	}

	h.mu.Lock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("ws: dropping snapshot for slow client")
		}
	}
	h.mu.Unlock()
}

// ClientCount devuelve el número de clientes conectados.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS sube la conexión a websocket y registra el cliente.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade failed", "err", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = true
	last := h.last
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("ws: client connected", "total_clients", total)

	if last != nil {
		select {
		case c.send <- last:
		default:
		}
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("ws: client disconnected", "total_clients", total)
}

// readPump drena frames entrantes (el dashboard no manda nada útil) y
// mantiene el deadline de lectura con los pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump envía snapshots y pings de keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
