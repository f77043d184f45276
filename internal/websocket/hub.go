package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

const broadcastBufferSize = 256

// Hub управляет WebSocket соединениями и рассылает события риск-контроля
//
// Использование:
// 1. hub := NewHub(logger)
// 2. go hub.Run()
// 3. hub.BroadcastRiskEvent(ev) / hub.BroadcastLeverageChange(cmd)
// 4. hub.Stop() при завершении
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stopCh     chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	dropped atomic.Int64
	origins *OriginChecker

	logger *zap.Logger
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
		origins:    NewOriginChecker(nil),
		logger:     logger,
	}
}

// Run запускает главный цикл Hub до вызова Stop
//
// Список клиентов копируется под RLock, отправка идет без блокировки,
// медленные клиенты удаляются под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.SetWSClients(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(n)
			h.logger.Debug("websocket client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(n)
			h.logger.Debug("websocket client disconnected", zap.Int("clients", n))

		case message := <-h.broadcast:
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
				n := len(h.clients)
				h.mu.Unlock()
				metrics.SetWSClients(n)
				h.logger.Warn("removed slow websocket clients", zap.Int("removed", len(toRemove)), zap.Int("clients", n))
			}
		}
	}
}

// SetAllowedOrigins ограничивает Origin браузерных клиентов; пустой список или "*" разрешает все
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.origins = NewOriginChecker(origins)
}

// Stop останавливает Run и закрывает все соединения; повторный вызов безопасен
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
//
// Не блокируется: при переполненной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
		metrics.RecordBufferOverflow("websocket")
	}
}

// BroadcastRiskEvent отправляет событие риск-монитора
func (h *Hub) BroadcastRiskEvent(ev models.RiskEvent) {
	h.Broadcast(NewRiskEventMessage(ev))
}

// BroadcastLeverageChange отправляет изменение плеча
func (h *Hub) BroadcastLeverageChange(cmd models.LeverageCommand) {
	h.Broadcast(NewLeverageMessage(cmd))
}

// BroadcastPositions отправляет снимок книги позиций
func (h *Hub) BroadcastPositions(positions []models.Position) {
	h.Broadcast(NewPositionsMessage(positions))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число отброшенных из-за переполнения сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
