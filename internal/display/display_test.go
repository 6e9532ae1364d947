package display

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBroadcasterEmitsInOrder(t *testing.T) {
	b := NewBroadcaster("game-1", zaptest.NewLogger(t))
	var got []Notification
	b.SetHandler(func(n Notification) { got = append(got, n) })

	b.ShowBattle("b1", "Tokyo", "Americans attack Japan", []string{"a"}, []string{"d"}, "Americans", "Japan")
	b.GotoBattleStep("b1", "Americans fire")
	b.NotifyDice("b1", "Americans fire", dice.Roll{Player: "Americans", Hits: 1, Dice: []dice.Die{{Value: 0, RolledAt: 1, Type: dice.Hit}}})
	b.CasualtyNotification("b1", "Japan select casualties", "Japan", []string{"d"}, nil, true)
	b.BattleEnd("b1", "Americans win")

	require.Len(t, got, 5)
	assert.Equal(t, TypeShowBattle, got[0].Type)
	assert.Equal(t, "game-1", got[0].GameID)
	assert.Equal(t, "Tokyo", got[0].Data["territory"])
	assert.Equal(t, []int{0}, got[2].Data["dice"])
	assert.Equal(t, true, got[3].Data["auto_calculated"])
	assert.Equal(t, TypeBattleEnd, got[4].Type)
}

func TestBroadcasterWithoutHandler(t *testing.T) {
	b := NewBroadcaster("game-1", nil)
	assert.NotPanics(t, func() { b.BombingResults("b1", []int{3, 5}, 10) })
}

func TestRouterListing(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	router := NewRouter(hub, func(id string) (any, bool) {
		if id != "g1" {
			return nil, false
		}
		return map[string][]string{"normal": {"Tokyo"}}, true
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/g1/battles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"Tokyo"}, body["normal"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/missing/battles", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubDeliversToGameClients(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, func(string) (any, bool) { return nil, false }))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/games/g1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration happens asynchronously; keep publishing until the client sees one
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				hub.Publish(Notification{Type: TypeBattleEnd, GameID: "g1", BattleID: "b1"})
				hub.Publish(Notification{Type: TypeBattleEnd, GameID: "other", BattleID: "b2"})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeBattleEnd, msg.Type)
	assert.Equal(t, "g1", msg.GameID)
}
