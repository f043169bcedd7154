// Package stream publishes draw lists to browser clients over websockets
// and forwards their option changes back to the mesh manager.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"oceansurface/mesh"
)

// MeshData is the message broadcast for every new draw list.
type MeshData struct {
	Type      string       `json:"type"`
	Frame     uint64       `json:"frame"`
	SeaLevel  float64      `json:"seaLevel"`
	Vertices  [][3]float32 `json:"vertices"`
	Normals   [][3]float32 `json:"normals"`
	Indices   []uint32     `json:"indices"`
	Tiles     []TileData   `json:"tiles"`
	Triangles int          `json:"triangles"`
}

// TileData describes the index range of one primitive.
type TileData struct {
	Key      string `json:"key"`
	Level    int    `json:"level"`
	First    int    `json:"first"`
	Count    int    `json:"count"`
	Textured bool   `json:"textured"`
	Revision uint64 `json:"revision"`
}

// NewMeshData flattens dl into a message.
func NewMeshData(dl *mesh.DrawList) MeshData {
	md := MeshData{
		Type:      "mesh_update",
		Frame:     dl.Frame,
		SeaLevel:  dl.SeaLevel,
		Vertices:  make([][3]float32, len(dl.Positions)),
		Normals:   make([][3]float32, len(dl.Normals)),
		Triangles: dl.Triangles(),
	}
	for i, p := range dl.Positions {
		md.Vertices[i] = [3]float32(p)
	}
	for i, n := range dl.Normals {
		md.Normals[i] = [3]float32(n)
	}
	for _, p := range dl.Primitives {
		md.Tiles = append(md.Tiles, TileData{
			Key:      p.Key.String(),
			Level:    p.Key.Level,
			First:    len(md.Indices),
			Count:    len(p.Vertices),
			Textured: p.Textures[mesh.UnitTile] != nil,
			Revision: p.Revision,
		})
		for _, v := range p.Vertices {
			md.Indices = append(md.Indices, v.Index)
		}
	}
	return md
}

// Command is a client request to change manager options. Absent fields are
// left alone.
type Command struct {
	SeaLevel        *float64 `json:"seaLevel,omitempty"`
	MaxJobsPerFrame *int     `json:"maxJobsPerFrame,omitempty"`
	SplitThreshold  *float64 `json:"splitThreshold,omitempty"`
	MergeThreshold  *float64 `json:"mergeThreshold,omitempty"`
	Verbose         *bool    `json:"verbose,omitempty"`
}

// Apply copies the set fields into o.
func (c Command) Apply(o *mesh.Options) {
	if c.SeaLevel != nil {
		o.SeaLevel = *c.SeaLevel
	}
	if c.MaxJobsPerFrame != nil {
		o.MaxJobsPerFrame = *c.MaxJobsPerFrame
	}
	if c.SplitThreshold != nil {
		o.SplitThreshold = *c.SplitThreshold
	}
	if c.MergeThreshold != nil {
		o.MergeThreshold = *c.MergeThreshold
	}
	if c.Verbose != nil {
		o.Verbose = *c.Verbose
	}
}

// PostFunc hands an option change to the update goroutine, typically
// (*mesh.Manager).Post.
type PostFunc func(func(*mesh.Options)) bool

// Server is a mesh.Sink that streams draw lists to websocket clients.
type Server struct {
	upgrader websocket.Upgrader
	post     PostFunc

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	latest atomic.Pointer[mesh.DrawList]
	sent   atomic.Pointer[mesh.DrawList] // last broadcast
}

// NewServer creates a server. post may be nil, in which case client
// commands are ignored.
func NewServer(post PostFunc) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		post:    post,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// SetDrawList stores dl for the next broadcast. Safe from any goroutine.
func (s *Server) SetDrawList(dl *mesh.DrawList) {
	s.latest.Store(dl)
}

// Handler serves the websocket on /ws and a status line on /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.serveStatus)
	return mux
}

// Clients is the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Clients int    `json:"clients"`
		Frame   uint64 `json:"frame"`
	}{Clients: s.Clients()}
	if dl := s.latest.Load(); dl != nil {
		status.Frame = dl.Frame
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	s.clientsMu.Lock()
	s.clients[conn] = connMutex
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	// Send the current surface straight away
	if dl := s.latest.Load(); dl != nil {
		connMutex.Lock()
		err := conn.WriteJSON(NewMeshData(dl))
		connMutex.Unlock()
		if err != nil {
			log.Println("WebSocket write error:", err)
			return
		}
	}

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("WebSocket read error:", err)
			}
			return
		}
		if s.post == nil {
			continue
		}
		if !s.post(cmd.Apply) {
			log.Println("option change dropped, manager busy")
		}
	}
}

// Broadcast sends the latest draw list to every client unless it was
// already sent. Clients that fail are dropped.
func (s *Server) Broadcast() {
	dl := s.latest.Load()
	if dl == nil || s.sent.Swap(dl) == dl {
		return
	}
	meshData := NewMeshData(dl)

	s.clientsMu.RLock()
	var failed []*websocket.Conn
	for client, mutex := range s.clients {
		mutex.Lock()
		err := client.WriteJSON(meshData)
		mutex.Unlock()
		if err != nil {
			log.Println("WebSocket write error:", err)
			client.Close()
			failed = append(failed, client)
		}
	}
	s.clientsMu.RUnlock()

	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, client := range failed {
			delete(s.clients, client)
		}
		s.clientsMu.Unlock()
	}
}

// Run broadcasts every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Broadcast()
		}
	}
}
