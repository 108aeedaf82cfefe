package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/gaelstats/sideline/internal/adapters/ws"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
	"github.com/gaelstats/sideline/internal/domain/types"
	"github.com/gaelstats/sideline/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fixedSnapshots serves canned snapshots keyed by match.
type fixedSnapshots struct {
	mu    sync.Mutex
	snaps map[string]types.Snapshot
}

func (f *fixedSnapshots) set(matchID string, seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snaps == nil {
		f.snaps = make(map[string]types.Snapshot)
	}
	f.snaps[matchID] = types.Snapshot{
		Type:     types.MessageState,
		MatchID:  matchID,
		Sequence: seq,
	}
}

func (f *fixedSnapshots) Snapshot(ctx context.Context, matchID string) (types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap, ok := f.snaps[matchID]; ok {
		return snap, nil
	}
	return types.Snapshot{Type: types.MessageState, MatchID: matchID}, nil
}

// hubFixture runs a hub behind a test WebSocket endpoint.
type hubFixture struct {
	hub    *ws.Hub
	snaps  *fixedSnapshots
	server *httptest.Server
}

func newHubFixture(opts ...ws.Option) *hubFixture {
	f := &hubFixture{snaps: &fixedSnapshots{}}
	f.hub = ws.NewHub(f.snaps, opts...)

	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matchID := strings.TrimPrefix(r.URL.Path, "/ws/")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := f.hub.Subscribe(context.Background(), matchID, conn); err != nil {
			conn.Close()
		}
	}))
	return f
}

func (f *hubFixture) dial(t *testing.T, matchID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/" + matchID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func (f *hubFixture) close() {
	f.hub.Shutdown(context.Background())
	f.server.Close()
}

func (f *hubFixture) publish(matchID string, seq uint64) {
	ev := &model.Event{
		ClientEventID: fmt.Sprintf("cev-%d", seq),
		MatchID:       matchID,
		Sequence:      seq,
		Type:          model.ScoreOnePoint,
		Team:          model.TeamClub,
		Minute:        int(seq),
	}
	f.hub.Publish(context.Background(), ev, state.New(matchID))
}

// readMessage decodes the next frame into a loose map.
func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func waitForSessions(hub *ws.Hub, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SessionCount() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub.SessionCount() == want
}

func TestSubscribeAndBroadcast(t *testing.T) {
	Convey("Given a hub behind a test server", t, func() {
		f := newHubFixture()
		defer f.close()

		Convey("When a viewer subscribes", func() {
			f.snaps.set("m1", 3)
			conn := f.dial(t, "m1")
			defer conn.Close()

			Convey("Then the first frame is the snapshot", func() {
				msg := readMessage(t, conn)
				So(msg["type"], ShouldEqual, types.MessageState)
				So(msg["match_id"], ShouldEqual, "m1")
				So(msg["sequence"], ShouldEqual, 3)
			})

			Convey("Then published deltas follow in order", func() {
				readMessage(t, conn) // snapshot
				So(waitForSessions(f.hub, 1), ShouldBeTrue)

				f.publish("m1", 4)
				f.publish("m1", 5)

				first := readMessage(t, conn)
				So(first["type"], ShouldEqual, types.MessageEvent)
				So(first["sequence"], ShouldEqual, 4)

				second := readMessage(t, conn)
				So(second["sequence"], ShouldEqual, 5)
			})
		})

		Convey("When a delta for the snapshot's own sequence races the subscribe", func() {
			// Writers save state before publishing, so a subscribe can
			// read a snapshot at N and still be registered when the
			// delta for N arrives.
			f.snaps.set("m1", 3)
			conn := f.dial(t, "m1")
			defer conn.Close()
			readMessage(t, conn) // snapshot at 3
			So(waitForSessions(f.hub, 1), ShouldBeTrue)

			f.publish("m1", 3)
			f.publish("m1", 4)

			Convey("Then the covered delta is suppressed", func() {
				msg := readMessage(t, conn)
				So(msg["type"], ShouldEqual, types.MessageEvent)
				So(msg["sequence"], ShouldEqual, 4)
			})
		})

		Convey("When two viewers watch different matches", func() {
			connA := f.dial(t, "m1")
			defer connA.Close()
			connB := f.dial(t, "m2")
			defer connB.Close()
			readMessage(t, connA)
			readMessage(t, connB)
			So(waitForSessions(f.hub, 2), ShouldBeTrue)

			f.publish("m2", 1)

			Convey("Then only the subscribed match receives the delta", func() {
				msg := readMessage(t, connB)
				So(msg["match_id"], ShouldEqual, "m2")
				So(msg["sequence"], ShouldEqual, 1)

				_ = connA.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
				_, _, err := connA.ReadMessage()
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When a viewer disconnects", func() {
			conn := f.dial(t, "m1")
			readMessage(t, conn)
			So(waitForSessions(f.hub, 1), ShouldBeTrue)

			conn.Close()

			Convey("Then the hub forgets the session", func() {
				So(waitForSessions(f.hub, 0), ShouldBeTrue)
			})
		})

		Convey("When a viewer sends a ping frame", func() {
			conn := f.dial(t, "m1")
			defer conn.Close()
			readMessage(t, conn)
			So(waitForSessions(f.hub, 1), ShouldBeTrue)

			So(conn.WriteJSON(map[string]string{"type": "ping"}), ShouldBeNil)

			Convey("Then a pong comes back", func() {
				msg := readMessage(t, conn)
				So(msg["type"], ShouldEqual, types.MessagePong)
			})
		})
	})
}

func TestSlowSubscriber(t *testing.T) {
	Convey("Given a hub with a tiny send buffer", t, func() {
		f := newHubFixture(ws.WithSendBuffer(1))
		defer f.close()

		Convey("When a viewer stops reading and deltas keep coming", func() {
			conn := f.dial(t, "m1")
			defer conn.Close()
			readMessage(t, conn)
			So(waitForSessions(f.hub, 1), ShouldBeTrue)

			// Flood well past the buffer without reading.
			for seq := uint64(1); seq <= 64; seq++ {
				f.publish("m1", seq)
			}

			Convey("Then the session is dropped rather than waited on", func() {
				So(waitForSessions(f.hub, 0), ShouldBeTrue)
			})
		})
	})
}

func TestCloseMatch(t *testing.T) {
	Convey("Given viewers on two matches", t, func() {
		f := newHubFixture()
		defer f.close()

		connA := f.dial(t, "m1")
		defer connA.Close()
		connB := f.dial(t, "m2")
		defer connB.Close()
		readMessage(t, connA)
		readMessage(t, connB)
		So(waitForSessions(f.hub, 2), ShouldBeTrue)

		Convey("When one match is closed", func() {
			f.hub.CloseMatch(context.Background(), "m1")

			Convey("Then only its sessions are torn down", func() {
				So(waitForSessions(f.hub, 1), ShouldBeTrue)

				_ = connA.SetReadDeadline(time.Now().Add(time.Second))
				_, _, err := connA.ReadMessage()
				So(err, ShouldNotBeNil)
			})
		})
	})
}
