package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"oceansurface/mesh"
	"oceansurface/tiles"
)

func testDrawList(frame uint64) *mesh.DrawList {
	return &mesh.DrawList{
		Frame:     frame,
		SeaLevel:  2,
		Positions: []mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
		Normals:   []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Primitives: []mesh.Primitive{{
			Key: tiles.TileKey{Face: 4, Level: 1, X: 1},
			Vertices: []mesh.Vertex{
				{Index: 0}, {Index: 1}, {Index: 2},
				{Index: 2}, {Index: 3}, {Index: 0},
			},
		}},
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMesh(t *testing.T, conn *websocket.Conn) MeshData {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var md MeshData
	if err := conn.ReadJSON(&md); err != nil {
		t.Fatal(err)
	}
	return md
}

func TestNewMeshData(t *testing.T) {
	md := NewMeshData(testDrawList(3))
	if md.Type != "mesh_update" || md.Frame != 3 || md.SeaLevel != 2 {
		t.Errorf("header %q frame %d sea %.0f", md.Type, md.Frame, md.SeaLevel)
	}
	if len(md.Vertices) != 4 || len(md.Indices) != 6 || md.Triangles != 2 {
		t.Errorf("%d vertices %d indices %d triangles", len(md.Vertices), len(md.Indices), md.Triangles)
	}
	if len(md.Tiles) != 1 || md.Tiles[0].Count != 6 || md.Tiles[0].Textured {
		t.Errorf("tiles %+v", md.Tiles)
	}
	if md.Vertices[2] != [3]float32{1, 1, 1} {
		t.Errorf("vertex 2 = %v", md.Vertices[2])
	}
}

func TestClientReceivesDrawLists(t *testing.T) {
	s := NewServer(nil)
	s.SetDrawList(testDrawList(1))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if md := readMesh(t, conn); md.Frame != 1 {
		t.Fatalf("initial frame %d, want 1", md.Frame)
	}

	s.SetDrawList(testDrawList(2))
	s.Broadcast()
	if md := readMesh(t, conn); md.Frame != 2 {
		t.Fatalf("broadcast frame %d, want 2", md.Frame)
	}
	if s.Clients() != 1 {
		t.Errorf("%d clients, want 1", s.Clients())
	}
}

func TestBroadcastSkipsRepeats(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	for s.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.SetDrawList(testDrawList(5))
	s.Broadcast()
	s.Broadcast()
	s.SetDrawList(testDrawList(6))
	s.Broadcast()

	if md := readMesh(t, conn); md.Frame != 5 {
		t.Fatalf("frame %d, want 5", md.Frame)
	}
	if md := readMesh(t, conn); md.Frame != 6 {
		t.Fatalf("frame %d, want 6 (frame 5 sent twice?)", md.Frame)
	}
}

func TestBroadcastsFrameZero(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	for s.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	// a Cull before any Update publishes frame 0
	s.SetDrawList(testDrawList(0))
	s.Broadcast()
	s.SetDrawList(testDrawList(0))
	s.Broadcast()

	if md := readMesh(t, conn); md.Frame != 0 || md.Triangles != 2 {
		t.Fatalf("frame %d with %d triangles, want frame 0", md.Frame, md.Triangles)
	}
	if md := readMesh(t, conn); md.Frame != 0 {
		t.Fatalf("frame %d, want the second frame 0 list", md.Frame)
	}
}

func TestCommandsArePosted(t *testing.T) {
	posted := make(chan func(*mesh.Options), 1)
	s := NewServer(func(fn func(*mesh.Options)) bool {
		posted <- fn
		return true
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	if err := conn.WriteJSON(map[string]any{"seaLevel": 12.5, "maxJobsPerFrame": 2}); err != nil {
		t.Fatal(err)
	}

	select {
	case fn := <-posted:
		opts := mesh.DefaultOptions()
		fn(&opts)
		if opts.SeaLevel != 12.5 || opts.MaxJobsPerFrame != 2 {
			t.Errorf("options after command: %+v", opts)
		}
		if opts.SplitThreshold != mesh.DefaultOptions().SplitThreshold {
			t.Error("absent field was changed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command was not posted")
	}
}

func TestClientRemovedOnClose(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	for s.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client still registered after close")
		}
		time.Sleep(time.Millisecond)
	}
}
