package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

const defaultListLimit = 20

// Dashboard serves the read-only views over cycles, trades, rewards and metrics.
type Dashboard struct {
	stores  storage.Stores
	assetID string
	log     *logrus.Entry
}

func NewDashboard(stores storage.Stores, assetID string, log *logrus.Entry) *Dashboard {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dashboard{stores: stores, assetID: assetID, log: log.WithField("component", "dashboard")}
}

func (d *Dashboard) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// ListCycles returns the most recent cycles, newest first.
func (d *Dashboard) ListCycles(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	cycles, err := d.stores.Cycles.ListRecent(c.Request.Context(), limit)
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cycles)
}

// GetCycle returns one cycle with every row linked to it.
func (d *Dashboard) GetCycle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	detail, err := d.cycleDetail(c.Request.Context(), uint(id))
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (d *Dashboard) cycleDetail(ctx context.Context, id uint) (*CycleDetail, error) {
	cycle, err := d.stores.Cycles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	trades, err := d.stores.Trades.ListByCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := d.stores.Liquidity.ListByCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	rewards, err := d.stores.Rewards.ListByCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CycleDetail{Cycle: cycle, Trades: trades, LiquidityEvents: events, Rewards: rewards}, nil
}

// MetricsSummary returns the running totals with cycle counts per status.
func (d *Dashboard) MetricsSummary(c *gin.Context) {
	ctx := c.Request.Context()
	m, err := d.stores.Metrics.Get(ctx)
	if err != nil {
		d.respondError(c, err)
		return
	}
	counts, err := d.stores.Cycles.CountByStatus(ctx)
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MetricsSummary{Metrics: m, CyclesByStatus: counts})
}

func (d *Dashboard) ListenerState(c *gin.Context) {
	st, err := d.stores.Listener.Get(c.Request.Context())
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListenerView{ListenerState: st, ThresholdMet: st.ThresholdMet()})
}

// RecentTrades lists trades of ?asset=, or of the configured asset.
func (d *Dashboard) RecentTrades(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	asset := c.DefaultQuery("asset", d.assetID)
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset is required"})
		return
	}
	trades, err := d.stores.Trades.ListRecent(c.Request.Context(), asset, limit)
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (d *Dashboard) RecentRewards(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rewards, err := d.stores.Rewards.ListRecent(c.Request.Context(), limit)
	if err != nil {
		d.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rewards)
}

// Reconcile recomputes totals from the trade and reward logs and compares them
// with the running metrics.
func (d *Dashboard) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	asset := c.DefaultQuery("asset", d.assetID)

	m, err := d.stores.Metrics.Get(ctx)
	if err != nil {
		d.respondError(c, err)
		return
	}
	buys, spent, err := d.stores.Trades.SumSystemBuys(ctx, asset)
	if err != nil {
		d.respondError(c, err)
		return
	}
	rewards, sent, err := d.stores.Rewards.SumSent(ctx)
	if err != nil {
		d.respondError(c, err)
		return
	}
	counts, err := d.stores.Cycles.CountByStatus(ctx)
	if err != nil {
		d.respondError(c, err)
		return
	}

	var finished int64
	for status, n := range counts {
		if status != models.CycleStatusPending {
			finished += n
		}
	}

	c.JSON(http.StatusOK, ReconcileReport{
		AssetID:        asset,
		Metrics:        m,
		CyclesByStatus: counts,
		SystemBuys:     buys,
		SystemBuySOL:   spent,
		RewardCount:    rewards,
		RewardSOL:      sent,
		CyclesMatch:    finished == m.TotalCycles,
		TradesMatch:    buys == m.TotalTrades && nearlyEqual(spent, m.TotalSolSpent),
		RewardsMatch:   nearlyEqual(sent, m.TotalRewardsSent),
	})
}

func (d *Dashboard) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		d.log.WithError(err).WithField("path", c.FullPath()).Error("dashboard query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// queryLimit parses ?limit=; it writes a 400 and returns false when the value is invalid.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	return limit, true
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
