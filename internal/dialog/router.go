package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/metrics"
	"github.com/Veraticus/pricebot/internal/model"
	"github.com/Veraticus/pricebot/internal/service"
	"github.com/Veraticus/pricebot/internal/session"
)

const defaultStoreTimeout = 5 * time.Second

// Config tunes how the router talks to the store.
type Config struct {
	Retry        common.RetryOptions
	StoreTimeout time.Duration
}

// Router is the dialog state machine. It is safe for concurrent use as long
// as turns for the same user are not run concurrently.
type Router struct {
	entities service.EntityStore
	prices   service.PriceResolver
	sessions session.Store
	logger   common.Logger
	cfg      Config
}

// NewRouter wires the router to its collaborators.
func NewRouter(entities service.EntityStore, prices service.PriceResolver, sessions session.Store, logger common.Logger, cfg Config) *Router {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &Router{
		entities: entities,
		prices:   prices,
		sessions: sessions,
		logger:   logger,
		cfg:      cfg,
	}
}

// Handle runs one turn. The user's context is saved only when the turn
// completes; a non-nil error means the context was left as it was. Such
// errors are *common.UserError values carrying the text to show the user.
func (r *Router) Handle(ctx context.Context, ev Event) (Reply, error) {
	sess, err := r.sessions.Load(ctx, ev.UserID)
	if err != nil {
		return Reply{}, failure(fmt.Errorf("failed to load session: %w", err))
	}

	reply, err := r.dispatch(ctx, &sess, decodeIntent(ev))
	if err != nil {
		r.logger.Error("Turn failed", common.Fields{
			"user_id": ev.UserID,
			"kind":    ev.Kind.String(),
			"error":   err,
		})
		return Reply{}, failure(err)
	}

	if err := r.sessions.Save(ctx, sess); err != nil {
		return Reply{}, failure(fmt.Errorf("failed to save session: %w", err))
	}
	return reply, nil
}

// failure attaches the user-facing text for a failed turn.
func failure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewUserError(msgTimeout, err)
	}
	return common.NewUserError(msgFailure, err)
}

// dispatch is the single transition point of the state machine.
func (r *Router) dispatch(ctx context.Context, sess *session.Context, in intent) (Reply, error) {
	switch in := in.(type) {
	case helpIntent:
		sess.Clear(session.FieldPending)
		return r.help(sess), nil
	case addIntent:
		sess.Clear(session.FieldPending)
		return r.add(ctx, in)
	case listIntent:
		return r.list(ctx, in)
	case renameIntent:
		return r.startRename(sess), nil
	case setPriceIntent:
		return r.startSetPrice(sess), nil
	case cancelIntent:
		return r.cancel(sess), nil
	case historyIntent:
		return r.history(ctx, sess)
	case selectIntent:
		return r.selectEntity(ctx, sess, in.sel)
	case badButtonIntent:
		return Reply{Text: msgBadButton}, nil
	case textIntent:
		return r.freeText(ctx, sess, in.text)
	case unknownCommandIntent:
		sess.Clear(session.FieldPending)
		return textReply("Unknown command /%s.\n\n%s", in.command, msgHelpCommands), nil
	default:
		return Reply{}, fmt.Errorf("unhandled intent %T", in)
	}
}

func (r *Router) help(sess *session.Context) Reply {
	business := "none yet"
	if sess.Business.IsSet() {
		business = sess.Business.Name
	}
	return textReply("👋 Hi! I track where things are cheapest.\nCurrent business: %s\n\n%s", business, msgHelpCommands)
}

func (r *Router) add(ctx context.Context, in addIntent) (Reply, error) {
	usage := msgUsageAddBusiness
	if in.kind == model.KindProduct {
		usage = msgUsageAddProduct
	}
	if in.name == "" {
		return Reply{Text: usage}, nil
	}

	var (
		entity  model.Entity
		created bool
	)
	err := r.call(ctx, "find_or_create_"+string(in.kind), true, func(ctx context.Context) error {
		if in.kind == model.KindBusiness {
			b, c, err := r.entities.FindOrCreateBusiness(ctx, in.name)
			if err == nil {
				entity, created = *b, c
			}
			return err
		}
		p, c, err := r.entities.FindOrCreateProduct(ctx, in.name)
		if err == nil {
			entity, created = *p, c
		}
		return err
	})
	if err != nil {
		if common.Classify(err) == common.KindValidation {
			return Reply{Text: usage}, nil
		}
		return Reply{}, err
	}

	sel := Selection{Kind: SelectBusiness, ID: entity.EntityID()}
	if in.kind == model.KindProduct {
		sel.Kind = SelectProduct
	}
	row := Row{Label: "Select " + entity.DisplayName(), Payload: sel.Payload()}

	if created {
		return Reply{
			Text: fmt.Sprintf("✨ Added new %s '%s' (ID: %d).", in.kind, entity.DisplayName(), entity.EntityID()),
			Rows: []Row{row},
		}, nil
	}
	return Reply{
		Text: fmt.Sprintf("✅ Found this %s: '%s'.", in.kind, entity.DisplayName()),
		Rows: []Row{row},
	}, nil
}

func (r *Router) list(ctx context.Context, in listIntent) (Reply, error) {
	var reply Reply
	err := r.call(ctx, "list_"+in.target.String(), true, func(ctx context.Context) error {
		switch in.target {
		case listBusinesses:
			businesses, err := r.entities.SearchBusinesses(ctx, in.filter)
			if err != nil {
				return err
			}
			reply = BusinessChooser(businesses)
		case listProducts:
			products, err := r.entities.SearchProducts(ctx, in.filter)
			if err != nil {
				return err
			}
			reply = ProductChooser(products)
		case listPrices:
			prices, err := r.prices.LatestPrices(ctx, in.filter)
			if err != nil {
				return err
			}
			reply = PriceChooser(prices)
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// history shows recorded prices for the selected pair. Like the list
// commands it leaves any pending question open.
func (r *Router) history(ctx context.Context, sess *session.Context) (Reply, error) {
	if !sess.Business.IsSet() {
		return Reply{Text: msgNeedBusiness}, nil
	}
	if !sess.Product.IsSet() {
		return Reply{Text: msgNeedProduct}, nil
	}

	var history []model.PriceObservation
	err := r.call(ctx, "price_history", true, func(ctx context.Context) error {
		var err error
		history, err = r.prices.PriceHistory(ctx, sess.Product.ID, sess.Business.ID)
		return err
	})
	if err != nil {
		return Reply{}, err
	}
	return HistoryReply(sess.Product.Name, sess.Business.Name, history), nil
}

func (r *Router) startRename(sess *session.Context) Reply {
	if !sess.Product.IsSet() {
		sess.Clear(session.FieldPending)
		return Reply{Text: msgNeedProduct}
	}
	sess.SetPendingAction(session.PendingRename)
	return textReply("✏️ Send the new name for '%s'.", sess.Product.Name)
}

func (r *Router) startSetPrice(sess *session.Context) Reply {
	sess.SetPendingAction(session.PendingPrice)
	return r.pricePrompt(sess)
}

// pricePrompt asks for whatever the price flow still needs.
func (r *Router) pricePrompt(sess *session.Context) Reply {
	switch {
	case !sess.Business.IsSet():
		return textReply("%s I'll ask for the price once it's selected.", msgNeedBusiness)
	case !sess.Product.IsSet():
		return textReply("%s I'll ask for the price once it's selected.", msgNeedProduct)
	default:
		return textReply("💰 Enter the price of '%s' at '%s':", sess.Product.Name, sess.Business.Name)
	}
}

func (r *Router) cancel(sess *session.Context) Reply {
	if sess.Pending == session.PendingNone {
		return Reply{Text: msgNothingToStop}
	}
	sess.Clear(session.FieldPending)
	return Reply{Text: msgCancelled}
}

func (r *Router) selectEntity(ctx context.Context, sess *session.Context, sel Selection) (Reply, error) {
	var entity model.Entity
	err := r.call(ctx, "get_"+string(sel.EntityKind()), true, func(ctx context.Context) error {
		var err error
		entity, err = r.entities.GetByID(ctx, sel.EntityKind(), sel.ID)
		return err
	})

	if err != nil {
		switch common.Classify(err) {
		case common.KindNotFound, common.KindValidation:
			if sel.Kind == SelectBusiness {
				sess.Clear(session.FieldBusiness)
				return Reply{Text: msgStaleBusiness}, nil
			}
			sess.Clear(session.FieldProduct)
			return Reply{Text: msgStaleProduct}, nil
		default:
			return Reply{}, err
		}
	}

	if sel.Kind == SelectBusiness {
		sess.SetBusiness(entity.EntityID(), entity.DisplayName())
	} else {
		sess.SetProduct(entity.EntityID(), entity.DisplayName())
	}

	switch sess.Pending {
	case session.PendingPrice:
		return r.pricePrompt(sess), nil
	case session.PendingRename:
		if sess.Product.IsSet() {
			return textReply("✏️ Send the new name for '%s'.", sess.Product.Name), nil
		}
	}

	if sel.Kind == SelectBusiness {
		return textReply("🏪 Business set to '%s'.\nNext: /lp or /lpp to pick a product, /up to set a price.", sess.Business.Name), nil
	}
	if !sess.Business.IsSet() {
		return textReply("📦 '%s' selected. %s", sess.Product.Name, msgNeedBusiness), nil
	}
	return textReply("📦 '%s' selected.\n/up to set its price at '%s'\n/mp to rename it\n/lpp %s to compare prices",
		sess.Product.Name, sess.Business.Name, sess.Product.Name), nil
}

func (r *Router) freeText(ctx context.Context, sess *session.Context, text string) (Reply, error) {
	switch sess.Pending {
	case session.PendingRename:
		return r.rename(ctx, sess, text)
	case session.PendingPrice:
		return r.setPrice(ctx, sess, text)
	default:
		return Reply{Text: msgNothingPending}, nil
	}
}

func (r *Router) rename(ctx context.Context, sess *session.Context, text string) (Reply, error) {
	if !sess.Product.IsSet() {
		return textReply("%s Then send the new name.", msgNeedProduct), nil
	}

	newName := strings.TrimSpace(text)
	if newName == "" {
		return textReply("The name cannot be empty. Send the new name for '%s'.", sess.Product.Name), nil
	}

	oldName := sess.Product.Name
	err := r.call(ctx, "rename_product", false, func(ctx context.Context) error {
		return r.entities.RenameProduct(ctx, sess.Product.ID, newName)
	})

	if err != nil {
		switch common.Classify(err) {
		case common.KindValidation:
			return textReply("That name is not valid. Send the new name for '%s'.", oldName), nil
		case common.KindConflict:
			return textReply("Another product is already called '%s'. Send a different name.", newName), nil
		case common.KindNotFound:
			sess.Clear(session.FieldProduct)
			sess.Clear(session.FieldPending)
			return Reply{Text: msgStaleProduct}, nil
		default:
			return Reply{}, err
		}
	}

	sess.Clear(session.FieldPending)
	sess.Clear(session.FieldProduct)
	return textReply("✏️ Renamed '%s' to '%s'.", oldName, newName), nil
}

func (r *Router) setPrice(ctx context.Context, sess *session.Context, text string) (Reply, error) {
	price, err := model.ParsePrice(text)
	if err != nil {
		return invalidPriceReply(text), nil
	}

	// A selection may have been cleared after the price was requested.
	if !sess.Business.IsSet() || !sess.Product.IsSet() {
		return r.pricePrompt(sess), nil
	}

	err = r.call(ctx, "append_price", false, func(ctx context.Context) error {
		_, err := r.entities.AppendPriceObservation(ctx, sess.Product.ID, sess.Business.ID, price)
		return err
	})

	if err != nil {
		switch common.Classify(err) {
		case common.KindValidation:
			return invalidPriceReply(text), nil
		case common.KindNotFound:
			var nf *common.NotFoundError
			if errors.As(err, &nf) && nf.Entity == string(model.KindBusiness) {
				sess.Clear(session.FieldBusiness)
				return Reply{Text: msgStaleBusiness}, nil
			}
			sess.Clear(session.FieldProduct)
			return Reply{Text: msgStaleProduct}, nil
		default:
			return Reply{}, err
		}
	}

	reply := textReply("💰 The price for '%s' at '%s' is set to $ %s.", sess.Product.Name, sess.Business.Name, price.StringFixed(2))
	sess.Clear(session.FieldPending)
	sess.Clear(session.FieldProduct)
	return reply, nil
}

// call runs one store operation under the per-call timeout, retrying
// idempotent operations on transient failures.
func (r *Router) call(ctx context.Context, op string, idempotent bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := func() error {
		opCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
		defer cancel()
		return fn(opCtx)
	}

	var err error
	if idempotent {
		err = common.WithRetry(ctx, attempt, r.cfg.Retry)
	} else {
		err = attempt()
	}

	outcome := "ok"
	if err != nil {
		outcome = common.Classify(err).String()
		r.logger.Debug("Store operation failed", common.Fields{"op": op, "outcome": outcome, "error": err})
	}
	metrics.ObserveStoreOperation(op, outcome, time.Since(start))
	return err
}

func invalidPriceReply(text string) Reply {
	return textReply("'%s' is not a valid price. Send a number greater than zero, like 1.50.", strings.TrimSpace(text))
}
