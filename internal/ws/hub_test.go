package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, empresaID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), EmpresaID: empresaID, Send: make(chan []byte, 4), Hub: h}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ws message")
	}
	return Message{}
}

func TestBroadcastToEmpresaIsScoped(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	empresaA, empresaB := uuid.New(), uuid.New()
	a := newTestClient(h, empresaA)
	b := newTestClient(h, empresaB)
	h.Register(a)
	h.Register(b)

	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	h.BroadcastToEmpresa(empresaA, EventNewMessage, map[string]string{"content": "hola"})

	m := receive(t, a)
	assert.Equal(t, EventNewMessage, m.Event)
	assert.Equal(t, empresaA.String(), m.EmpresaID)

	select {
	case <-b.Send:
		t.Fatal("client of another empresa received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	empresaID := uuid.New()
	c := newTestClient(h, empresaID)
	h.Register(c)
	require.Eventually(t, func() bool { return h.EmpresaClientCount(empresaID) == 1 }, time.Second, 10*time.Millisecond)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.EmpresaClientCount(empresaID) == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
}
