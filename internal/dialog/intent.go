package dialog

import (
	"strings"

	"github.com/Veraticus/pricebot/internal/model"
)

// intent is an Event decoded into what the user asked for.
type intent interface {
	isIntent()
}

type listTarget int

const (
	listBusinesses listTarget = iota
	listProducts
	listPrices
)

func (t listTarget) String() string {
	switch t {
	case listBusinesses:
		return "businesses"
	case listProducts:
		return "products"
	default:
		return "prices"
	}
}

type (
	helpIntent           struct{}
	renameIntent         struct{}
	setPriceIntent       struct{}
	cancelIntent         struct{}
	historyIntent        struct{}
	badButtonIntent      struct{}
	unknownCommandIntent struct{ command string }
	textIntent           struct{ text string }
	selectIntent         struct{ sel Selection }
	addIntent            struct {
		kind model.EntityKind
		name string
	}
	listIntent struct {
		filter string
		target listTarget
	}
)

func (helpIntent) isIntent()           {}
func (renameIntent) isIntent()         {}
func (setPriceIntent) isIntent()       {}
func (cancelIntent) isIntent()         {}
func (historyIntent) isIntent()        {}
func (badButtonIntent) isIntent()      {}
func (unknownCommandIntent) isIntent() {}
func (textIntent) isIntent()           {}
func (selectIntent) isIntent()         {}
func (addIntent) isIntent()            {}
func (listIntent) isIntent()           {}

// decodeIntent maps an event onto exactly one intent.
func decodeIntent(ev Event) intent {
	switch ev.Kind {
	case EventButton:
		sel, err := ParseSelection(ev.Payload)
		if err != nil {
			return badButtonIntent{}
		}
		return selectIntent{sel: sel}
	case EventText:
		return textIntent{text: ev.Text}
	}

	rest := strings.TrimSpace(strings.Join(ev.Args, " "))
	switch ev.Command {
	case "start", "h", "help":
		return helpIntent{}
	case "ab":
		return addIntent{kind: model.KindBusiness, name: rest}
	case "ap":
		return addIntent{kind: model.KindProduct, name: rest}
	case "lb":
		return listIntent{target: listBusinesses, filter: rest}
	case "lp":
		return listIntent{target: listProducts, filter: rest}
	case "lpp":
		return listIntent{target: listPrices, filter: rest}
	case "mp":
		return renameIntent{}
	case "up":
		return setPriceIntent{}
	case "cancel":
		return cancelIntent{}
	case "hp":
		return historyIntent{}
	default:
		return unknownCommandIntent{command: ev.Command}
	}
}
