package websocket

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"fundingbot/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{
		allowAll: true,
	}

	origins := []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	}

	for _, origin := range origins {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	// Hub без запущенного Run: канал заполнится и начнёт отбрасывать
	hub := NewHub(zap.NewNop())

	for i := 0; i < 1000; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if hub.DroppedMessages() == 0 {
		t.Error("expected dropped messages with full broadcast channel")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
		// OK - Run() exited
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_ClientReceivesPositionClosed(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client
	defer func() { hub.unregister <- client }()

	hub.PositionClosed(models.PositionClosedEvent{
		PositionID: "P-0001",
		Ticker:     "BTC",
		Profit:     1.5,
		Percent:    1.8,
		Success:    true,
		Mode:       models.FastMode,
		Reason:     models.CloseReasonFunding,
	})

	select {
	case raw := <-client.send:
		var msg PositionClosedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to unmarshal broadcast: %v", err)
		}
		if msg.Type != MessageTypePositionClosed {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypePositionClosed)
		}
		if msg.Data.PositionID != "P-0001" {
			t.Errorf("position id = %q, want P-0001", msg.Data.PositionID)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("client did not receive broadcast")
	}
}

func TestHub_SlowClientRemoved(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	// Клиент с крошечным буфером, который никто не вычитывает
	slow := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}
	hub.register <- slow

	for i := 0; i < 10; i++ {
		hub.PositionOpened(models.PositionOpenedEvent{PositionID: "P-0001", Success: true})
	}

	deadline := time.After(1 * time.Second)
	for hub.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("slow client was not removed")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ============================================================
// Benchmarks
// ============================================================

// BenchmarkHub_Broadcast тестирует скорость broadcast
func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	event := models.PositionClosedEvent{
		PositionID: "P-0001",
		Ticker:     "BTC",
		Profit:     1.5,
		Success:    true,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.PositionClosed(event)
	}
}

// BenchmarkOriginChecker_Check тестирует скорость проверки origin
func BenchmarkOriginChecker_Check(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		originChecker.Check("http://localhost:3000")
	}
}

// BenchmarkClientPool тестирует sync.Pool для клиентов
func BenchmarkClientPool(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		client := clientPool.Get().(*Client)
		clientPool.Put(client)
	}
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	// Concurrent broadcasts
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.PnlThreshold(models.PnlThresholdEvent{
					PositionID: "P-0001",
					Percent:    float64(id),
				})
			}
		}(i)
	}

	// Concurrent ClientCount reads
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
