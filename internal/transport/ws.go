package transport

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CallHandler serves one media stream connection until it ends.
type CallHandler interface {
	HandleCall(conn *Conn)
}

// RegisterRoute mounts the media stream endpoint on mux. Each accepted
// socket is served by the handler on the request goroutine; the handler
// owns the connection from then on.
func RegisterRoute(mux *http.ServeMux, handler CallHandler) {
	mux.HandleFunc("GET /media", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("media stream upgrade error: %v", err)
			return
		}
		handler.HandleCall(NewConn(ws))
	})
}
