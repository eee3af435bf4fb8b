// filename: internal/common/nats/client_test.go
package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		recipient string
		expected  string
	}{
		{"module", "myhouse", "controller/db", "myhouse.controller.db"},
		{"broadcast", "myhouse", "*/*", "myhouse.broadcast"},
		{"no prefix", "", "controller/hub", "controller.hub"},
		{"single segment", "myhouse", "chatbot", "myhouse.chatbot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SubjectFor(tt.prefix, tt.recipient))
		})
	}
}

func TestNewClient_NoURLs(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}

func TestNkeyOption_MissingFile(t *testing.T) {
	_, err := nkeyOption("/nonexistent/seed.nk")
	assert.Error(t, err)
}
