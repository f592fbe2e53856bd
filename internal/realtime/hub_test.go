package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/pipeline"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func statusEvent(caller, message, txHash string) *Event {
	return &Event{
		Type:      EventTransactionStatus,
		Timestamp: time.Now(),
		Data: StatusData{
			Caller:  caller,
			Message: message,
			State:   pipeline.StateSubmitted,
			TxHash:  txHash,
		},
	}
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	return h
}

func register(h *Hub, sub Subscription) *Client {
	client := &Client{hub: h, send: make(chan []byte, 256), sub: sub}
	h.register <- client
	time.Sleep(50 * time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case msg := <-client.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("invalid event JSON %q: %v", msg, err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for broadcast")
	}
	return Event{}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true, Callers: []string{bob}}}

	if !h.shouldSend(client, statusEvent(alice, "create_escrow", "0x01")) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	if !h.shouldSend(&Client{}, statusEvent(alice, "create_escrow", "")) {
		t.Error("Empty subscription should match everything")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{EventTypes: []EventType{EventReceipt}}}

	status := statusEvent(alice, "create_escrow", "0x01")
	receipt := statusEvent(alice, "create_escrow", "0x01")
	receipt.Type = EventReceipt

	if h.shouldSend(client, status) {
		t.Error("Should NOT receive status events")
	}
	if !h.shouldSend(client, receipt) {
		t.Error("Should receive receipt events")
	}
}

func TestShouldSend_CallerFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Callers: []string{alice}}}

	if !h.shouldSend(client, statusEvent(alice, "create_escrow", "")) {
		t.Error("Should match on caller")
	}
	if h.shouldSend(client, statusEvent(bob, "create_escrow", "")) {
		t.Error("Should NOT match other callers")
	}
}

func TestShouldSend_TxHashFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{TxHashes: []string{"0xABCDEF"}}}

	if !h.shouldSend(client, statusEvent(alice, "create_escrow", "0xabcdef")) {
		t.Error("Should match hash regardless of case")
	}
	if h.shouldSend(client, statusEvent(alice, "create_escrow", "0x123456")) {
		t.Error("Should NOT match other hashes")
	}
	if h.shouldSend(client, statusEvent(alice, "create_escrow", "")) {
		t.Error("Should NOT match transitions before a hash is known")
	}
}

func TestShouldSend_MessageAndCallerCombined(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{
		Callers:  []string{alice},
		Messages: []string{"release_milestone"},
	}}

	if !h.shouldSend(client, statusEvent(alice, "release_milestone", "")) {
		t.Error("Should match caller and message")
	}
	if h.shouldSend(client, statusEvent(alice, "create_escrow", "")) {
		t.Error("Should NOT match other messages")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	stats := testHub().Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := runHub(t)
	client := register(h, Subscription{AllEvents: true})

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_PublishTransition(t *testing.T) {
	h := runHub(t)
	client := register(h, Subscription{})

	h.Publish(pipeline.Transition{
		Caller:  alice,
		Message: "create_escrow",
		State:   pipeline.StateSubmitted,
		TxHash:  "0xfeed",
		At:      time.Now(),
	})

	ev := receive(t, client)
	if ev.Type != EventTransactionStatus {
		t.Errorf("Expected transaction_status, got %s", ev.Type)
	}
	if ev.Data.State != pipeline.StateSubmitted || ev.Data.TxHash != "0xfeed" {
		t.Errorf("Unexpected data %+v", ev.Data)
	}
	if ev.Data.Receipt != nil {
		t.Error("Non-terminal transition should not carry a receipt")
	}

	select {
	case <-client.send:
		t.Error("Non-terminal transition should produce one event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_PublishTerminalAddsReceipt(t *testing.T) {
	h := runHub(t)
	client := register(h, Subscription{Callers: []string{alice}})

	h.Publish(pipeline.Transition{
		Caller:    alice,
		Message:   "create_escrow",
		State:     pipeline.StateFinalized,
		TxHash:    "0xfeed",
		BlockHash: "0xb10c",
		Receipt:   &chain.Receipt{Success: true, TransactionHash: "0xfeed", EscrowID: "escrow_3"},
		At:        time.Now(),
	})

	first := receive(t, client)
	second := receive(t, client)
	if first.Type != EventTransactionStatus || second.Type != EventReceipt {
		t.Fatalf("Expected status then receipt, got %s, %s", first.Type, second.Type)
	}
	if second.Data.Receipt == nil || second.Data.Receipt.EscrowID != "escrow_3" {
		t.Errorf("Receipt event missing receipt: %+v", second.Data)
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := runHub(t)
	client := register(h, Subscription{Callers: []string{bob}})

	h.Broadcast(statusEvent(alice, "create_escrow", ""))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive another caller's event")
	default:
	}

	h.Broadcast(statusEvent(bob, "create_escrow", ""))
	if ev := receive(t, client); ev.Data.Caller != bob {
		t.Errorf("Expected bob's event, got %+v", ev.Data)
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_WebSocketSubscription(t *testing.T) {
	h := runHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(Subscription{TxHashes: []string{"0xfeed"}}); err != nil {
		t.Fatalf("write subscription: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	h.Publish(pipeline.Transition{Caller: alice, Message: "create_escrow", State: pipeline.StateSubmitted, TxHash: "0xother", At: time.Now()})
	h.Publish(pipeline.Transition{Caller: alice, Message: "create_escrow", State: pipeline.StateInBlock, TxHash: "0xfeed", At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Data.TxHash != "0xfeed" || ev.Data.State != pipeline.StateInBlock {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestHub_RejectsAfterShutdown(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest("GET", "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after shutdown, got %d", w.Code)
	}
}
