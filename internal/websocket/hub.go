package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"fundingbot/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBufferPool убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Центральный менеджер broadcast-рассылки событий жизненного цикла
// позиций всем подключенным подписчикам. Одновременно является
// получателем событий оркестратора: PositionOpened, PositionClosed и
// PnlThreshold транслируются в типизированные сообщения.
//
// Использование:
//  1. Создать hub: hub := NewHub(log)
//  2. Запустить в горутине: go hub.Run()
//  3. Передать оркестратору как notifier
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	stop chan struct{}

	// Сообщения, отброшенные при переполненном broadcast канале
	droppedMessages int64

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		log:        log,
	}
}

// Stop останавливает главный цикл Hub
func (h *Hub) Stop() {
	close(h.stop)
}

// DroppedMessages возвращает число отброшенных broadcast сообщений
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.droppedMessages)
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("[FundingBot] ws client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("[FundingBot] ws client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock, отправляем
			// без блокировки, чтобы не тормозить register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает вычитывать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Warn("[FundingBot] removed slow ws clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total))
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам.
// Использует sync.Pool для буферов сериализации.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("[FundingBot] ws message marshal failed", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные, буфер возвращается в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	// Notifier не должен блокировать сагу: при переполненном канале
	// сообщение отбрасывается
	select {
	case h.broadcast <- msgCopy:
	default:
		atomic.AddInt64(&h.droppedMessages, 1)
	}
}

// PositionOpened транслирует исход открытия позиции
func (h *Hub) PositionOpened(event models.PositionOpenedEvent) {
	h.Broadcast(NewPositionOpenedMessage(event))
}

// PositionClosed транслирует исход закрытия позиции
func (h *Hub) PositionClosed(event models.PositionClosedEvent) {
	h.Broadcast(NewPositionClosedMessage(event))
}

// PnlThreshold транслирует уведомление о пороге P&L
func (h *Hub) PnlThreshold(event models.PnlThresholdEvent) {
	h.Broadcast(NewPnlThresholdMessage(event))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
