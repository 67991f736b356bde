package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrder_PrimaryItem(t *testing.T) {
	tests := []struct {
		name      string
		items     []LineItem
		wantOK    bool
		wantCount int
		wantID    string
	}{
		{name: "no items", items: nil, wantOK: false},
		{name: "explicit count", items: []LineItem{{ID: "a", Count: 3}, {ID: "b", Count: 1}}, wantOK: true, wantCount: 3, wantID: "a"},
		{name: "missing count defaults to one", items: []LineItem{{ID: "a"}}, wantOK: true, wantCount: 1, wantID: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{ID: "o", Items: tt.items}
			item, ok := o.PrimaryItem()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantCount, item.Count)
				assert.Equal(t, tt.wantID, item.ID)
			}
			assert.Equal(t, tt.wantID, o.PrimaryItemID())
		})
	}
}

func TestReservationOutcome_String(t *testing.T) {
	assert.Equal(t, "reserved", ReservationReserved.String())
	assert.Equal(t, "insufficient", ReservationInsufficient.String())
	assert.Equal(t, "unknown", ReservationOutcome(0).String())
}
