// Package worker implements the matching worker loop described in spec
// §4.7: pull from the publish ring, dispatch to insert or cancel, run the
// price-time-priority match loop against the opposing side, and maintain
// best-bid/best-ask.
package worker

import (
	"context"
	"runtime"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/pkg/lob/arena"
	"github.com/abdoElHodaky/lobcore/pkg/lob/deque"
	"github.com/abdoElHodaky/lobcore/pkg/lob/hazard"
	"github.com/abdoElHodaky/lobcore/pkg/lob/level"
	"github.com/abdoElHodaky/lobcore/pkg/lob/order"
	"github.com/abdoElHodaky/lobcore/pkg/lob/ring"
	"github.com/abdoElHodaky/lobcore/pkg/lob/symbol"
	"github.com/abdoElHodaky/lobcore/pkg/metrics"
)

// TradeReport is emitted at the execute_trade decrement step (spec §4.7
// "a trade-reporting hook MAY be injected"). Stamping a unique ID is the
// one place this engine reaches for google/uuid — trade IDs are the only
// identifiers that must be globally unique across workers without an
// encoding scheme the way order IDs have one.
type TradeReport struct {
	ID           string
	SymbolID     uint16
	PriceTicks   uint64
	Quantity     int64
	MakerOrderID uint64
	TakerOrderID uint64
}

// TradeSink receives a TradeReport for every maker/taker crossing. Workers
// never block on it: implementations are expected to be non-blocking
// (buffered channel, ring buffer) since a slow sink must never stall
// matching.
type TradeSink func(TradeReport)

// NodeArenaTable lets a worker route a foreign deque node's reclamation
// back to the worker that allocated it, indexed by worker id. Book builds
// one shared table and hands it to every worker at construction.
type NodeArenaTable []*arena.Arena[deque.Node]

// Config bundles the fixed parameters every worker needs beyond its own
// identity and arenas.
type Config struct {
	BacktrackTicks int
	TickPrecision  int64
}

// Worker owns one matching loop, its own node/price-level arenas, and one
// hazard-pointer row. Exactly one goroutine ever calls Run or Dispatch for
// a given Worker.
type Worker struct {
	id  int32
	cfg Config

	ring    *ring.Ring
	symbols *symbol.Registry

	hazard *hazard.Handle
	retire *hazard.RetireList

	nodeArena  *arena.Arena[deque.Node]
	levelArena *arena.Arena[level.PriceLevel]
	nodeArenas NodeArenaTable

	trades   TradeSink
	nextUUID func() string
	log      *zap.Logger
	mx       *metrics.Registry
}

// New constructs a worker. nodeArenas must already be sized to hold every
// worker id; New installs this worker's own nodeArena into the slot at
// id.
func New(
	id int32,
	cfg Config,
	r *ring.Ring,
	symbols *symbol.Registry,
	hz *hazard.Handle,
	retireThreshold int,
	nodeCapacity, levelCapacity int,
	nodeArenas NodeArenaTable,
	trades TradeSink,
	nextUUID func() string,
	log *zap.Logger,
	mx *metrics.Registry,
) *Worker {
	w := &Worker{
		id:         id,
		cfg:        cfg,
		ring:       r,
		symbols:    symbols,
		hazard:     hz,
		nodeArena:  arena.New[deque.Node](nodeCapacity),
		levelArena: arena.New[level.PriceLevel](levelCapacity),
		nodeArenas: nodeArenas,
		trades:     trades,
		nextUUID:   nextUUID,
		log:        log,
		mx:         mx,
	}
	w.retire = hazard.NewRetireList(hz, retireThreshold)
	w.nodeArenas[id] = w.nodeArena
	return w
}

func (w *Worker) ID() int32 { return w.id }

// NodeArenaDepth/LevelArenaDepth report this worker's own arenas'
// remote-free backlog, for Book's periodic arena_remote_free_depth
// sample (spec's metrics surface, not the matching path itself).
func (w *Worker) NodeArenaDepth() int  { return w.nodeArena.RemoteDepth() }
func (w *Worker) LevelArenaDepth() int { return w.levelArena.RemoteDepth() }

func (w *Worker) deleteNode(n *deque.Node) {
	if n.OwnerWorker == w.id {
		w.nodeArena.Free(n.Slot)
		return
	}
	owner := w.nodeArenas[n.OwnerWorker]
	for !owner.FreeRemote(n.Slot) {
		runtime.Gosched()
	}
}

func (w *Worker) dequeCtx() *deque.Ctx {
	return &deque.Ctx{
		Hazard:    w.hazard,
		Retire:    w.retire,
		NodeArena: w.nodeArena,
		WorkerID:  w.id,
		Delete:    w.deleteNode,
	}
}

// Run pulls from the ring until ctx is cancelled, dispatching each order
// and yielding when the ring is momentarily empty.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.retire.Drain()
			w.hazard.Release()
			return
		default:
		}

		o, ok := w.ring.Pull()
		if !ok {
			runtime.Gosched()
			continue
		}
		w.Dispatch(o)
		w.ring.OrderProcessed()
	}
}

// Dispatch runs one order through insert or cancel depending on its Op,
// timing the call for order_match_latency_seconds (spec's hot path never
// logs on this timer, but a histogram observe is cheap enough to keep on
// it per SPEC_FULL §3.4).
// Exported so tests can drive a Worker without a live ring goroutine.
func (w *Worker) Dispatch(o *order.Order) {
	start := time.Now()
	symbolID := o.SymbolID

	switch order.Op(o.Op.Load()) {
	case order.OpCancel:
		w.cancel(o)
	default:
		w.insert(o)
	}

	if sym := w.symbols.Get(symbolID); sym != nil {
		w.mx.ObserveMatchLatency(sym.Name, time.Since(start).Seconds())
	}
}

// insert runs the match loop, then rests any residual quantity (spec
// §4.7 insert).
func (w *Worker) insert(o *order.Order) {
	sym := w.symbols.Get(o.SymbolID)
	if sym == nil {
		w.freeOrder(o)
		return
	}

	w.match(o, sym)

	if o.RemainingQuantity() > 0 {
		lvl := w.resolveLevel(sym, o.Side, o.PriceTicks)
		if lvl == nil {
			w.freeOrder(o)
			return
		}
		n := lvl.Queue.PushRight(w.dequeCtx(), unsafe.Pointer(o))
		if n == nil {
			w.freeOrder(o)
			return
		}
		o.Node = unsafe.Pointer(n)
		lvl.Inc()
		o.State.Store(int32(order.StateResting))
		sym.RecordAccepted()
		w.updateBestPrices(sym, o.Side, o.PriceTicks)
		return
	}

	o.State.Store(int32(order.StateFilled))
	sym.RecordAccepted()
	sym.RecordFilled()
	w.freeOrder(o)
}

// cancel removes order's node from its resting price level (spec §4.7
// cancel).
func (w *Worker) cancel(o *order.Order) {
	if order.State(o.State.Load()) != order.StateResting {
		return
	}
	sym := w.symbols.Get(o.SymbolID)
	if sym == nil {
		return
	}
	lvl, ok := sym.TableFor(toSymbolSide(o.Side)).Lookup(int64(o.PriceTicks))
	if !ok {
		return
	}
	n := (*deque.Node)(o.Node)
	if n == nil {
		return
	}
	if v := lvl.Queue.RemoveNode(w.dequeCtx(), n); v != nil {
		lvl.Dec()
		o.State.Store(int32(order.StateCancelled))
		sym.RecordCancelled()
		w.mx.OrderCancelled(sym.Name)
		if lvl.Empty() {
			w.backtrackTop(sym, toSymbolSide(o.Side))
		}
	}
	w.freeOrder(o)
}

// match crosses order against the opposing side until it cannot cross
// anymore, walking the opposing price table best-to-worse (spec §4.7
// match/match_at_level).
func (w *Worker) match(o *order.Order, sym *symbol.Symbol) {
	oppSide := opposite(o.Side)
	oppTable := sym.TableFor(oppSide)

	for o.RemainingQuantity() > 0 {
		best := bestForSide(sym, oppSide)
		if !crosses(o.Side, o.PriceTicks, best) {
			return
		}

		lvl, active := oppTable.Lookup(int64(best))
		if !active {
			w.backtrackTop(sym, oppSide)
			continue
		}

		w.matchAtLevel(o, lvl, sym)

		if lvl.Empty() {
			w.backtrackTop(sym, oppSide)
		}
	}
}

// matchAtLevel repeatedly pops the level's oldest maker, crossing it
// against the taker until one side is exhausted (spec §4.7
// match_at_level). Trade price is always the maker's resting price
// (lvl.Ticks), never the taker's.
func (w *Worker) matchAtLevel(taker *order.Order, lvl *level.PriceLevel, sym *symbol.Symbol) {
	for taker.RemainingQuantity() > 0 && lvl.NumOrders() > 0 {
		v := lvl.Queue.PopLeft(w.dequeCtx())
		if v == nil {
			return
		}
		maker := (*order.Order)(v)

		takerQty := taker.RemainingQuantity()
		makerQty := maker.RemainingQuantity()

		if takerQty >= makerQty {
			taker.Fill(makerQty)
			maker.Fill(makerQty)
			lvl.Dec()
			maker.State.Store(int32(order.StateFilled))
			sym.RecordFilled()
			w.report(sym, uint64(lvl.Ticks), makerQty, maker.ID, taker.ID)
			w.freeOrder(maker)
		} else {
			maker.Fill(takerQty)
			taker.Fill(takerQty)
			n := lvl.Queue.PushLeft(w.dequeCtx(), unsafe.Pointer(maker))
			if n != nil {
				maker.Node = unsafe.Pointer(n)
			}
			w.report(sym, uint64(lvl.Ticks), takerQty, maker.ID, taker.ID)
		}
	}
}

func (w *Worker) report(sym *symbol.Symbol, ticks uint64, qty int64, makerID, takerID uint64) {
	w.mx.TradeExecuted(sym.Name)
	if w.trades == nil {
		return
	}
	id := ""
	if w.nextUUID != nil {
		id = w.nextUUID()
	}
	w.trades(TradeReport{
		ID:           id,
		SymbolID:     sym.ID,
		PriceTicks:   ticks,
		Quantity:     qty,
		MakerOrderID: makerID,
		TakerOrderID: takerID,
	})
}

// updateBestPrices spins a CAS loop raising/lowering the inside of the
// book (spec §4.7 update_best_prices).
func (w *Worker) updateBestPrices(sym *symbol.Symbol, side order.Side, ticks uint64) {
	if side == order.Buy {
		sym.UpdateBestBid(ticks)
	} else {
		sym.UpdateBestAsk(ticks)
	}
}

// backtrackTop walks up to BacktrackTicks ticks inward looking for an
// active, non-empty level, falling back to the empty sentinel (spec
// §4.7 backtrack_top).
func (w *Worker) backtrackTop(sym *symbol.Symbol, side symbol.Side) {
	for {
		prev := bestForSide(sym, side)

		next, ok := prev, false
		for i := 1; i <= w.cfg.BacktrackTicks; i++ {
			var candidate uint64
			if side == symbol.Buy {
				if prev < uint64(i) {
					break
				}
				candidate = prev - uint64(i)
			} else {
				candidate = prev + uint64(i)
			}
			if lvl, active := sym.TableFor(side).Lookup(int64(candidate)); active && !lvl.Empty() {
				next, ok = candidate, true
				break
			}
		}
		if !ok {
			if side == symbol.Buy {
				next = symbol.NoBid
			} else {
				next = symbol.NoAsk
			}
		}

		var swapped bool
		if side == symbol.Buy {
			swapped = sym.CompareAndSwapBestBid(prev, next)
		} else {
			swapped = sym.CompareAndSwapBestAsk(prev, next)
		}
		if swapped {
			return
		}
		// Lost the race to a concurrent update/backtrack: retry against
		// the fresh value (spec §4.7 backtrack_top).
	}
}

// resolveLevel looks up or installs the price level for (side, ticks),
// speculatively allocating from this worker's own level arena and
// reclaiming locally if the install race is lost.
func (w *Worker) resolveLevel(sym *symbol.Symbol, side order.Side, ticks uint64) *level.PriceLevel {
	table := sym.TableFor(toSymbolSide(side))
	if existing, ok := table.Lookup(int64(ticks)); ok {
		return existing
	}

	slot, idx, ok := w.levelArena.Allocate()
	if !ok {
		return nil
	}
	*slot = *level.New(int64(ticks))

	winner, installed := table.Install(int64(ticks), slot)
	if !installed {
		w.levelArena.Free(idx)
	}
	return winner
}

func toSymbolSide(s order.Side) symbol.Side {
	if s == order.Buy {
		return symbol.Buy
	}
	return symbol.Sell
}

func opposite(s order.Side) symbol.Side {
	if s == order.Buy {
		return symbol.Sell
	}
	return symbol.Buy
}

func bestForSide(sym *symbol.Symbol, side symbol.Side) uint64 {
	if side == symbol.Buy {
		return sym.BestBid()
	}
	return sym.BestAsk()
}

// crosses reports whether a taker on takerSide at takerTicks can trade
// against the opposing best price (spec §4.7 match: "BUY requires
// order.price >= best_ask", "SELL requires order.price <= best_bid").
func crosses(takerSide order.Side, takerTicks, best uint64) bool {
	if takerSide == order.Buy {
		if best == symbol.NoAsk {
			return false
		}
		return takerTicks >= best
	}
	if best == symbol.NoBid {
		return false
	}
	return takerTicks <= best
}

func (w *Worker) freeOrder(o *order.Order) {
	for !o.Arena.FreeRemote(o.Slot) {
		runtime.Gosched()
	}
}
