package dialog

import "github.com/Veraticus/pricebot/internal/common"

const (
	msgEmptyBusinesses = "Empty 🥺 No businesses found. Add one with /ab <name>."
	msgEmptyProducts   = "Empty 🥺 No products found. Add one with /ap <name>."
	msgEmptyPrices     = "Empty 🥺 No prices found. Select a product and use /up to add one."
	msgPickBusiness    = "🏪 Select a business:"
	msgPickProduct     = "📦 Select a product:"
	msgPickPrice       = "💲 Latest prices (days since update). Tap one to select the product:"

	msgUsageAddBusiness = "Usage: /ab <business name>"
	msgUsageAddProduct  = "Usage: /ap <product name>"

	msgFailure        = common.DefaultUserMessage
	msgTimeout        = "⏳ That took too long. Please try again in a moment."
	msgBadButton      = "That button is no longer valid. Please re-select from a fresh list."
	msgNothingPending = "🤔 I wasn't expecting a message. Send /h to see what I can do."
	msgNothingToStop  = "There is nothing to cancel."
	msgCancelled      = "👌 Cancelled."

	msgNeedBusiness = "Select a business first with /lb."
	msgNeedProduct  = "Select a product first with /lp or /lpp."

	msgStaleBusiness = "That business no longer exists. Please re-select one with /lb."
	msgStaleProduct  = "That product no longer exists. Please re-select one with /lp."

	msgHelpCommands = `Commands:
/ab <name> - add or find a business
/ap <name> - add or find a product
/lb [filter] - list businesses
/lp [filter] - list products
/lpp [filter] - list latest prices
/hp - price history of the selected product at the selected business
/up - set the price of the selected product
/mp - rename the selected product
/cancel - forget the pending question
/h - show this help`
)
