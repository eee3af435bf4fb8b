// filename: internal/models/message.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BroadcastRecipient адресат широковещательных сообщений
const BroadcastRecipient = "*/*"

// DataKey ключ payload, под которым лежат данные сообщения
const DataKey = "data"

// Message представляет сообщение шины между модулями
type Message struct {
	ID        string                 `json:"id"`
	Sender    string                 `json:"sender"`
	Recipient string                 `json:"recipient"`
	Command   string                 `json:"command"`
	Args      string                 `json:"args,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Reply     bool                   `json:"reply,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	TS        time.Time              `json:"ts"`
}

// NewMessage создает новое сообщение // v1.0
func NewMessage(sender, recipient, command, args string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Command:   command,
		Args:      args,
		Payload:   make(map[string]interface{}),
		TS:        time.Now(),
	}
}

// NewRequest создает сообщение, ожидающее ответа; RequestID служит токеном корреляции // v1.0
func NewRequest(sender, recipient, command, args string) *Message {
	msg := NewMessage(sender, recipient, command, args)
	msg.RequestID = uuid.New().String()
	return msg
}

// MessageFromJSON разбирает сообщение из JSON // v1.0
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Payload == nil {
		msg.Payload = make(map[string]interface{})
	}
	return &msg, nil
}

// ToJSON возвращает сообщение в JSON формате // v1.0
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate проверяет обязательные поля сообщения // v1.0
func (m *Message) Validate() error {
	if m.Sender == "" {
		return fmt.Errorf("message sender is required")
	}
	if m.Recipient == "" {
		return fmt.Errorf("message recipient is required")
	}
	if m.Command == "" {
		return fmt.Errorf("message command is required")
	}
	return nil
}

// Get возвращает значение из payload по ключу // v1.0
func (m *Message) Get(key string) interface{} {
	if m.Payload == nil {
		return nil
	}
	return m.Payload[key]
}

// GetString возвращает строковое значение из payload // v1.0
func (m *Message) GetString(key string) string {
	if val, ok := m.Get(key).(string); ok {
		return val
	}
	return ""
}

// Has проверяет наличие ключа в payload // v1.0
func (m *Message) Has(key string) bool {
	if m.Payload == nil {
		return false
	}
	_, ok := m.Payload[key]
	return ok
}

// Set записывает значение в payload // v1.0
func (m *Message) Set(key string, value interface{}) {
	if m.Payload == nil {
		m.Payload = make(map[string]interface{})
	}
	m.Payload[key] = value
}

// GetData возвращает данные сообщения // v1.0
func (m *Message) GetData() interface{} {
	return m.Get(DataKey)
}

// SetData записывает данные сообщения // v1.0
func (m *Message) SetData(value interface{}) {
	m.Set(DataKey, value)
}

// NewReply создает ответ на сообщение с тем же RequestID // v1.0
func (m *Message) NewReply(sender string) *Message {
	reply := NewMessage(sender, m.Sender, m.Command, m.Args)
	reply.RequestID = m.RequestID
	reply.Reply = true
	return reply
}

// IsBroadcast проверяет, адресовано ли сообщение всем модулям // v1.0
func (m *Message) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient
}

// SplitArgs делит аргументы по первому "/" // v1.0
func (m *Message) SplitArgs() (string, string) {
	head, tail, _ := strings.Cut(m.Args, "/")
	return head, tail
}

// String возвращает краткое представление для логов // v1.0
func (m *Message) String() string {
	return fmt.Sprintf("%s->%s %s(%s)", m.Sender, m.Recipient, m.Command, m.Args)
}
