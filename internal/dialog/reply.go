package dialog

import (
	"fmt"
	"strings"

	"github.com/Veraticus/pricebot/internal/model"
)

// Row is one selectable line of a chooser.
type Row struct {
	Label   string
	Payload string
}

// Reply is what the bot sends back for a turn.
type Reply struct {
	Text string
	Rows []Row
}

// HasChooser reports whether the reply offers selectable rows.
func (r Reply) HasChooser() bool {
	return len(r.Rows) > 0
}

func textReply(format string, args ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}

// BusinessChooser lists businesses as selectable rows.
func BusinessChooser(businesses []model.Business) Reply {
	if len(businesses) == 0 {
		return Reply{Text: msgEmptyBusinesses}
	}

	rows := make([]Row, 0, len(businesses))
	for _, b := range businesses {
		rows = append(rows, Row{
			Label:   b.Name,
			Payload: Selection{Kind: SelectBusiness, ID: b.ID}.Payload(),
		})
	}
	return Reply{Text: msgPickBusiness, Rows: rows}
}

// ProductChooser lists products as selectable rows.
func ProductChooser(products []model.Product) Reply {
	if len(products) == 0 {
		return Reply{Text: msgEmptyProducts}
	}

	rows := make([]Row, 0, len(products))
	for _, p := range products {
		rows = append(rows, Row{
			Label:   p.Name,
			Payload: Selection{Kind: SelectProduct, ID: p.ID}.Payload(),
		})
	}
	return Reply{Text: msgPickProduct, Rows: rows}
}

// PriceChooser lists current prices; each row selects its product.
func PriceChooser(prices []model.LatestPrice) Reply {
	if len(prices) == 0 {
		return Reply{Text: msgEmptyPrices}
	}

	rows := make([]Row, 0, len(prices))
	for _, lp := range prices {
		rows = append(rows, Row{
			Label:   PriceLabel(lp),
			Payload: Selection{Kind: SelectProduct, ID: lp.Product.ID}.Payload(),
		})
	}
	return Reply{Text: msgPickPrice, Rows: rows}
}

// maxHistoryLines bounds the observations listed by HistoryReply.
const maxHistoryLines = 10

// HistoryReply lists observations newest first, one per line.
func HistoryReply(product, business string, history []model.PriceObservation) Reply {
	if len(history) == 0 {
		return textReply("No prices recorded for '%s' at '%s' yet. Use /up to add one.", product, business)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 Price history of '%s' at '%s':", product, business)
	for i, obs := range history {
		if i == maxHistoryLines {
			fmt.Fprintf(&b, "\n…and %d older", len(history)-maxHistoryLines)
			break
		}
		fmt.Fprintf(&b, "\n$ %s on %s", obs.Price.StringFixed(2), obs.CreatedAt.UTC().Format("2006-01-02"))
	}
	return Reply{Text: b.String()}
}

// PriceLabel renders a price row, e.g. "Milk, $ 1.50 [0] in Dia".
func PriceLabel(lp model.LatestPrice) string {
	return fmt.Sprintf("%s, $ %s [%d] in %s", lp.Product.Name, lp.Price.StringFixed(2), lp.AgeDays, lp.Business.Name)
}
