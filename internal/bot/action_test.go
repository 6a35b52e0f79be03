package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		id    string
		kind  ActionKind
		param string
		field string
	}{
		{"menu:main", ActMenu, "", ""},
		{"menu:events", ActEvents, "", ""},
		{"events:view:ev-1", ActViewEvent, "ev-1", ""},
		{"tickets:resend:ABC123", ActResend, "ABC123", ""},
		{"buy:name:yes", ActNameYes, "", ""},
		{"support:cat:pagamento", ActSupportCat, "pagamento", ""},
		{"admin:ev:field:ev1:price", ActAdminEditField, "ev1", "price"},
		{"admin:ev:delete:ev1", ActAdminDelete, "ev1", ""},
		{"admin:ev:delete_confirm:ev1", ActAdminDeleteConfirm, "ev1", ""},
		{"admin:broadcast", ActAdminBroadcast, "", ""},
		{"admin:broadcast:mode:all", ActAdminBroadcastMode, "all", ""},
		{" admin:panel ", ActAdminPanel, "", ""},

		{"events:view:", ActMenu, "", ""},
		{"admin:ev:field:ev1", ActMenu, "", ""},
		{"admin:ev:field::price", ActMenu, "", ""},
		{"menu:mainx", ActMenu, "", ""},
		{"", ActMenu, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			a := ParseSelection(tt.id)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, tt.param, a.ID)
			assert.Equal(t, tt.field, a.Field)
		})
	}
}

func TestSelectionIDRoundTrip(t *testing.T) {
	for _, r := range routes {
		params := make([]string, r.params)
		for i := range params {
			params[i] = "p" + string(rune('a'+i))
		}
		id := SelectionID(r.kind, params...)
		a := ParseSelection(id)
		assert.Equal(t, r.kind, a.Kind, id)
	}
}

func TestAdminOnly(t *testing.T) {
	assert.True(t, ParseSelection("admin:panel").AdminOnly())
	assert.True(t, ParseSelection("admin:support:close:x").AdminOnly())
	assert.False(t, ParseSelection("events:view:x").AdminOnly())
	assert.False(t, ParseSelection("unknown").AdminOnly())
}

func TestSelectionIDPanicsOnUnknownKind(t *testing.T) {
	assert.Panics(t, func() { SelectionID(ActionKind("nope")) })
}
