package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	sendMu       chan struct{}
}

func newWsConn(c *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		conn:         c,
		writeTimeout: writeTimeout,
		sendMu:       make(chan struct{}, 1),
	}
}

func (c *wsConn) Send(v any) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))

	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
