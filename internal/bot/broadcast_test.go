package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/session"
)

func seedOrder(t *testing.T, h *harness, code, eventID, phone string) {
	t.Helper()
	require.NoError(t, h.store.CreateOrder(context.Background(), &model.Order{
		Code: code, EventID: eventID, BuyerName: "X", BuyerPhone: phone, Quantity: 1, CreatedAt: time.Now(),
	}))
}

func bodiesTo(h *harness, phone string) []string {
	var out []string
	for _, m := range h.rec.To(phone) {
		out = append(out, m.Body)
	}
	return out
}

func TestBroadcastAll(t *testing.T) {
	h := newHarness(t)
	h.seedEvent(t, "ev1", "Sunset")
	h.seedEvent(t, "ev2", "Aurora")
	seedOrder(t, h, "A", "ev1", "5511000000001")
	seedOrder(t, h, "B", "ev1", "5511000000002")
	seedOrder(t, h, "C", "ev2", "5511000000001")

	h.pick(t, adminPhone, "admin:broadcast")
	assert.Equal(t, session.BroadcastChooseMode, h.state(adminPhone))
	h.pick(t, adminPhone, "admin:broadcast:mode:all")
	assert.Equal(t, session.BroadcastWriteText, h.state(adminPhone))
	h.text(t, adminPhone, "Portões abrem às 22h!")

	assert.Equal(t, []string{"Portões abrem às 22h!"}, bodiesTo(h, "5511000000001"))
	assert.Equal(t, []string{"Portões abrem às 22h!"}, bodiesTo(h, "5511000000002"))
	assert.Equal(t, "📣 Transmissão concluída: enviado para 2 de 2.", h.lastBody(adminPhone))
	assert.Equal(t, session.Idle, h.state(adminPhone))
}

func TestBroadcastOutlivesMessageDeadline(t *testing.T) {
	h := newHarness(t)
	h.seedEvent(t, "ev1", "Sunset")
	seedOrder(t, h, "A", "ev1", "5511000000001")
	seedOrder(t, h, "B", "ev1", "5511000000002")
	seedOrder(t, h, "C", "ev1", "5511000000003")

	h.pick(t, adminPhone, "admin:broadcast:mode:all")
	// At 20 msg/s three sends need ~100ms, well past this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, h.d.Dispatch(ctx, inbound.Message{ID: h.nextID(), From: adminPhone, Kind: inbound.KindText, Text: "Chegou a hora!"}))

	for _, phone := range []string{"5511000000001", "5511000000002", "5511000000003"} {
		assert.Equal(t, []string{"Chegou a hora!"}, bodiesTo(h, phone))
	}
	assert.Equal(t, "📣 Transmissão concluída: enviado para 3 de 3.", h.lastBody(adminPhone))
}

func TestBroadcastBudgetGrowsWithAudience(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, time.Minute, h.d.broadcastBudget(0))
	assert.Equal(t, 100*time.Second+time.Minute, h.d.broadcastBudget(2000))
}

func TestBroadcastByEvent(t *testing.T) {
	h := newHarness(t)
	h.seedEvent(t, "ev1", "Sunset")
	h.seedEvent(t, "ev2", "Aurora")
	seedOrder(t, h, "A", "ev1", "5511000000001")
	seedOrder(t, h, "B", "ev2", "5511000000002")

	h.pick(t, adminPhone, "admin:broadcast:mode:event")
	assert.Equal(t, "admin:broadcast:event:ev2", h.rec.Last().List.Sections[0].Rows[1].ID)
	h.pick(t, adminPhone, "admin:broadcast:event:ev2")
	require.Equal(t, session.BroadcastWriteText, h.state(adminPhone))
	h.text(t, adminPhone, "Aurora adiada")

	assert.Empty(t, bodiesTo(h, "5511000000001"))
	assert.Equal(t, []string{"Aurora adiada"}, bodiesTo(h, "5511000000002"))
	assert.Contains(t, h.lastBody(adminPhone), "1 de 1")
}

func TestBroadcastSinglePhone(t *testing.T) {
	h := newHarness(t)
	h.pick(t, adminPhone, "admin:broadcast:mode:phone")
	h.text(t, adminPhone, "123")
	assert.Equal(t, session.BroadcastAskTarget, h.state(adminPhone))
	assert.Contains(t, h.lastBody(adminPhone), "Número inválido")

	h.text(t, adminPhone, "+55 (34) 98888-7777")
	h.text(t, adminPhone, "Olá!")
	assert.Equal(t, []string{"Olá!"}, bodiesTo(h, userPhone))
	assert.Contains(t, h.lastBody(adminPhone), "1 de 1")
}

func TestBroadcastNoRecipients(t *testing.T) {
	h := newHarness(t)
	h.pick(t, adminPhone, "admin:broadcast:mode:all")
	h.text(t, adminPhone, "alguém?")
	assert.Contains(t, h.lastBody(adminPhone), "Nenhum destinatário")
}

func TestFanOutCountsOnlyDelivered(t *testing.T) {
	h := newHarness(t)
	to := []string{"5511000000001", "5511000000002", "5511000000003"}
	assert.Equal(t, 3, h.d.fanOut(context.Background(), to, "x"))

	h.rec.Err = errors.New("provider down")
	assert.Equal(t, 0, h.d.fanOut(context.Background(), to, "x"))
}
