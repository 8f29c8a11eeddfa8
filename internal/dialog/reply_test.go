package dialog

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pricebot/internal/model"
)

func TestBusinessChooser(t *testing.T) {
	reply := BusinessChooser([]model.Business{{ID: 1, Name: "Dia"}, {ID: 2, Name: "Coto"}})

	assert.Equal(t, msgPickBusiness, reply.Text)
	assert.Equal(t, []Row{
		{Label: "Dia", Payload: "set_business_1"},
		{Label: "Coto", Payload: "set_business_2"},
	}, reply.Rows)
	assert.True(t, reply.HasChooser())
}

func TestProductChooser(t *testing.T) {
	reply := ProductChooser([]model.Product{{ID: 5, Name: "Milk"}})

	assert.Equal(t, []Row{{Label: "Milk", Payload: "set_prod_5"}}, reply.Rows)
}

func TestEmptyChoosers(t *testing.T) {
	tests := []struct {
		reply Reply
		name  string
		hint  string
	}{
		{name: "businesses", reply: BusinessChooser(nil), hint: "/ab"},
		{name: "products", reply: ProductChooser(nil), hint: "/ap"},
		{name: "prices", reply: PriceChooser(nil), hint: "/up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.reply.HasChooser())
			assert.Contains(t, tt.reply.Text, "Empty")
			assert.Contains(t, tt.reply.Text, tt.hint)
		})
	}
}

func TestPriceChooser(t *testing.T) {
	prices := []model.LatestPrice{
		{
			Product:    model.Product{ID: 3, Name: "Milk"},
			Business:   model.Business{ID: 1, Name: "Dia"},
			Price:      decimal.RequireFromString("1.5"),
			ObservedAt: time.Now(),
			AgeDays:    0,
		},
		{
			Product:  model.Product{ID: 4, Name: "Bread"},
			Business: model.Business{ID: 2, Name: "Coto"},
			Price:    decimal.RequireFromString("12"),
			AgeDays:  6,
		},
	}

	reply := PriceChooser(prices)

	assert.Equal(t, []Row{
		{Label: "Milk, $ 1.50 [0] in Dia", Payload: "set_prod_3"},
		{Label: "Bread, $ 12.00 [6] in Coto", Payload: "set_prod_4"},
	}, reply.Rows)
}

func TestHistoryReplyTruncates(t *testing.T) {
	start := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	var history []model.PriceObservation
	for i := 0; i < 12; i++ {
		history = append(history, model.PriceObservation{
			Price:     decimal.NewFromInt(int64(20 - i)),
			CreatedAt: start.AddDate(0, 0, -i),
		})
	}

	reply := HistoryReply("Milk", "Dia", history)

	lines := strings.Split(reply.Text, "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "$ 20.00 on 2024-03-20", lines[1])
	assert.Equal(t, "$ 11.00 on 2024-03-11", lines[10])
	assert.Equal(t, "…and 2 older", lines[11])
	assert.Empty(t, reply.Rows)
}
