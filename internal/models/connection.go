package models

import "github.com/gofiber/contrib/websocket"

// ClientConnection is one live WebSocket client. Writes go through
// WriteChan so only the writer goroutine touches the conn.
type ClientConnection struct {
	ConnID    string
	Conn      *websocket.Conn
	WriteChan chan []byte
	StopChan  chan struct{}
}
