package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dewei/AlphaRadar/pkg/backtest"
	"github.com/dewei/AlphaRadar/pkg/database"
	"github.com/dewei/AlphaRadar/pkg/engine"
	"github.com/dewei/AlphaRadar/pkg/feed"
	"github.com/dewei/AlphaRadar/pkg/messaging"
	"github.com/dewei/AlphaRadar/pkg/model"
)

// AlertStore 预警持久化依赖
type AlertStore interface {
	Create(alert *model.SmartAlert) error
	GetByID(alertID string) (*model.SmartAlert, error)
	List(ownerID string, status model.AlertStatus, limit, offset int) ([]*model.SmartAlert, int64, error)
	Update(alert *model.SmartAlert) error
	UpdateStatus(alertID string, status model.AlertStatus) error
	Delete(alertID string) error
	IncrementForkCount(alertID string) error
}

// EventStore 触发事件查询依赖
type EventStore interface {
	ListByAlert(alertID string, limit, offset int) ([]*model.TriggerEvent, int64, error)
}

// ControlPublisher 向引擎投递控制消息
type ControlPublisher interface {
	Publish(subject string, data interface{}) error
}

// BacktestDefaults 回测参数缺省值
type BacktestDefaults struct {
	MaxBars   int
	Horizon   int
	Threshold float64
}

// Handlers API处理程序
type Handlers struct {
	alerts    AlertStore
	events    EventStore
	control   ControlPublisher
	evaluator *engine.Evaluator
	lifecycle *engine.Lifecycle
	runner    *backtest.Runner
	btDefault BacktestDefaults
	log       *zap.Logger
}

// NewHandlers 创建新的API处理程序
func NewHandlers(
	alerts AlertStore,
	events EventStore,
	control ControlPublisher,
	btDefault BacktestDefaults,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		alerts:    alerts,
		events:    events,
		control:   control,
		evaluator: engine.NewEvaluator(),
		lifecycle: engine.NewLifecycle(),
		runner:    backtest.NewRunner(),
		btDefault: btDefault,
		log:       logger,
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ReadinessCheck 就绪检查处理程序
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// ValidateTreeRequest 条件树校验请求
type ValidateTreeRequest struct {
	Root *model.ConditionNode `json:"root" binding:"required"`
}

// ValidateTree 校验条件树处理程序，只检查不落库
func (h *Handlers) ValidateTree(c *gin.Context) {
	var req ValidateTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	result := engine.ValidateTree(req.Root)
	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// CreateAlertRequest 创建预警请求
type CreateAlertRequest struct {
	OwnerID     string               `json:"owner_id" binding:"required"`
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Root        *model.ConditionNode `json:"root" binding:"required"`
	Cooldown    int                  `json:"cooldown"`
	MaxTriggers int                  `json:"max_triggers"`
	ExpiresAt   *time.Time           `json:"expires_at"`
	Actions     []model.AlertAction  `json:"actions"`
	Public      bool                 `json:"public"`
}

// CreateAlert 创建预警处理程序
func (h *Handlers) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	if req.Cooldown < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "冷却时间不能为负"})
		return
	}
	if req.MaxTriggers < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "最大触发次数不能为负"})
		return
	}

	// 校验不通过时不落库
	result := engine.ValidateTree(req.Root)
	if !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "条件树校验失败",
			"details": result.Errors,
		})
		return
	}

	cooldown := req.Cooldown
	if cooldown == 0 {
		cooldown = 300
	}

	symbols := req.Root.Symbols()
	alert := &model.SmartAlert{
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		Symbol:      symbols[0],
		Root:        req.Root,
		Status:      model.StatusActive,
		Cooldown:    cooldown,
		MaxTriggers: req.MaxTriggers,
		ExpiresAt:   req.ExpiresAt,
		Actions:     req.Actions,
		Public:      req.Public,
	}

	if err := h.alerts.Create(alert); err != nil {
		h.log.Error("创建预警失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "创建预警失败",
		})
		return
	}

	h.publishControl(model.ControlUpsert, alert.ID)

	c.JSON(http.StatusCreated, gin.H{
		"data":       alert,
		"validation": result,
	})
}

// ListAlerts 查询预警列表处理程序
func (h *Handlers) ListAlerts(c *gin.Context) {
	ownerID := c.Query("owner_id")
	status := model.AlertStatus(c.Query("status"))
	page, pageSize := pagination(c)

	alerts, total, err := h.alerts.List(ownerID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.log.Error("查询预警列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "查询预警列表失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      alerts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetAlert 查询单条预警处理程序
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alert,
	})
}

// UpdateAlertRequest 更新预警请求，nil字段保持原值
type UpdateAlertRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Root        *model.ConditionNode `json:"root"`
	Cooldown    *int                 `json:"cooldown"`
	MaxTriggers *int                 `json:"max_triggers"`
	ExpiresAt   *time.Time           `json:"expires_at"`
	Actions     []model.AlertAction  `json:"actions"`
	Public      *bool                `json:"public"`
}

// UpdateAlert 更新预警处理程序
func (h *Handlers) UpdateAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	if alert.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "终态预警不可修改"})
		return
	}

	var req UpdateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	if req.Root != nil {
		result := engine.ValidateTree(req.Root)
		if !result.Valid {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "条件树校验失败",
				"details": result.Errors,
			})
			return
		}
		alert.Root = req.Root
		alert.Symbol = req.Root.Symbols()[0]
	}
	if req.Name != nil {
		alert.Name = *req.Name
	}
	if req.Description != nil {
		alert.Description = *req.Description
	}
	if req.Cooldown != nil {
		if *req.Cooldown < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "冷却时间不能为负"})
			return
		}
		alert.Cooldown = *req.Cooldown
	}
	if req.MaxTriggers != nil {
		if *req.MaxTriggers < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "最大触发次数不能为负"})
			return
		}
		alert.MaxTriggers = *req.MaxTriggers
	}
	if req.ExpiresAt != nil {
		alert.ExpiresAt = req.ExpiresAt
	}
	if req.Actions != nil {
		alert.Actions = req.Actions
	}
	if req.Public != nil {
		alert.Public = *req.Public
	}

	if err := h.alerts.Update(alert); err != nil {
		h.log.Error("更新预警失败", zap.Error(err), zap.String("alert_id", alert.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "更新预警失败",
		})
		return
	}

	// 引擎收到upsert后按更新时间识别定义变更并重置评估状态
	h.publishControl(model.ControlUpsert, alert.ID)

	c.JSON(http.StatusOK, gin.H{
		"data": alert,
	})
}

// DeleteAlert 删除预警处理程序
func (h *Handlers) DeleteAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	if err := h.alerts.Delete(alert.ID); err != nil {
		h.log.Error("删除预警失败", zap.Error(err), zap.String("alert_id", alert.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "删除预警失败",
		})
		return
	}

	h.publishControl(model.ControlDelete, alert.ID)

	c.JSON(http.StatusOK, gin.H{
		"status":   "deleted",
		"alert_id": alert.ID,
	})
}

// PauseAlert 暂停预警处理程序
func (h *Handlers) PauseAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Pause(alert, time.Now()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if err := h.alerts.UpdateStatus(alert.ID, model.StatusPaused); err != nil {
		h.log.Error("暂停预警失败", zap.Error(err), zap.String("alert_id", alert.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "暂停预警失败",
		})
		return
	}

	h.publishControl(model.ControlPause, alert.ID)

	c.JSON(http.StatusOK, gin.H{
		"data": alert,
	})
}

// ResumeAlert 恢复预警处理程序
func (h *Handlers) ResumeAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	if err := h.lifecycle.Resume(alert, time.Now()); err != nil {
		// 恢复时发现已过有效期，落库终态
		if alert.Status == model.StatusExpired {
			if uerr := h.alerts.UpdateStatus(alert.ID, model.StatusExpired); uerr != nil {
				h.log.Error("标记预警过期失败", zap.Error(uerr), zap.String("alert_id", alert.ID))
			}
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if err := h.alerts.UpdateStatus(alert.ID, model.StatusActive); err != nil {
		h.log.Error("恢复预警失败", zap.Error(err), zap.String("alert_id", alert.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "恢复预警失败",
		})
		return
	}

	h.publishControl(model.ControlResume, alert.ID)

	c.JSON(http.StatusOK, gin.H{
		"data": alert,
	})
}

// TestAlertRequest 试评估请求，读数键为 符号|指标键
type TestAlertRequest struct {
	Readings map[string]float64 `json:"readings" binding:"required"`
	Previous map[string]float64 `json:"previous"`
	At       *time.Time         `json:"at"`
}

// TestAlert 试评估处理程序，用给定读数走一遍条件树，无副作用
func (h *Handlers) TestAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	var req TestAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	now := time.Now()
	if req.At != nil {
		now = *req.At
	}

	// 临时状态，评估完即丢弃
	st := model.NewEvaluationState(alert.ID)

	// 先用上一拍读数建立基线，穿越类算子才有前值可比
	if len(req.Previous) > 0 {
		prevAt := now.Add(-time.Second)
		h.evaluator.Evaluate(alert.Root, prevAt, feed.MapDataFn(req.Previous, prevAt), st)
	}

	outcome := h.evaluator.Evaluate(alert.Root, now, feed.MapDataFn(req.Readings, now), st)

	// 在副本上走生命周期，不回写
	scratch := *alert
	decision := h.lifecycle.Apply(&scratch, now, outcome)

	c.JSON(http.StatusOK, gin.H{
		"verdict":    string(outcome.Verdict),
		"trace":      outcome.Trace,
		"would_fire": decision.Fired,
		"suppressed": decision.Suppressed,
	})
}

// ForkAlertRequest 复制预警请求
type ForkAlertRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	Name    string `json:"name"`
}

// ForkAlert 复制预警处理程序，把一条公开预警复制到自己名下
func (h *Handlers) ForkAlert(c *gin.Context) {
	source, ok := h.loadAlert(c)
	if !ok {
		return
	}

	var req ForkAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	if !source.Public && source.OwnerID != req.OwnerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "预警未公开，不可复制"})
		return
	}

	root, err := cloneNode(source.Root)
	if err != nil {
		h.log.Error("复制条件树失败", zap.Error(err), zap.String("alert_id", source.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "复制预警失败",
		})
		return
	}

	name := req.Name
	if name == "" {
		name = source.Name + " (副本)"
	}

	// 副本从暂停态起步，计数清零，默认私有
	fork := &model.SmartAlert{
		OwnerID:     req.OwnerID,
		Name:        name,
		Description: source.Description,
		Symbol:      source.Symbol,
		Root:        root,
		Status:      model.StatusPaused,
		Cooldown:    source.Cooldown,
		MaxTriggers: source.MaxTriggers,
		ExpiresAt:   source.ExpiresAt,
		Actions:     source.Actions,
		ForkedFrom:  source.ID,
	}

	if err := h.alerts.Create(fork); err != nil {
		h.log.Error("创建预警副本失败", zap.Error(err), zap.String("source_id", source.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "复制预警失败",
		})
		return
	}

	if err := h.alerts.IncrementForkCount(source.ID); err != nil {
		h.log.Warn("累加复制计数失败", zap.Error(err), zap.String("alert_id", source.ID))
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": fork,
	})
}

// BacktestRequest 回测请求
type BacktestRequest struct {
	Series   []model.HistoricalPoint `json:"series" binding:"required"`
	Settings model.BacktestSettings  `json:"settings"`
}

// BacktestAlert 回测处理程序，用历史序列回放预警
func (h *Handlers) BacktestAlert(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数: " + err.Error(),
		})
		return
	}

	if h.btDefault.MaxBars > 0 && len(req.Series) > h.btDefault.MaxBars {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "回测序列超出上限 " + strconv.Itoa(h.btDefault.MaxBars) + " 根柱",
		})
		return
	}

	// 未指定的参数继承预警自身配置
	settings := req.Settings
	if settings.Cooldown == 0 {
		settings.Cooldown = alert.Cooldown
	}
	if settings.MaxTriggers == 0 {
		settings.MaxTriggers = alert.MaxTriggers
	}
	if settings.Horizon == 0 {
		settings.Horizon = h.btDefault.Horizon
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = h.btDefault.Threshold
	}
	if settings.PriceKey == "" {
		settings.PriceKey = model.SeriesKey(alert.Symbol, model.MetricKey(model.DataPrice, "", nil))
	}

	report, err := h.runner.Run(c.Request.Context(), alert.Root, req.Series, settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": report,
	})
}

// ListTriggers 查询触发历史处理程序
func (h *Handlers) ListTriggers(c *gin.Context) {
	alert, ok := h.loadAlert(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	events, total, err := h.events.ListByAlert(alert.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		h.log.Error("查询触发历史失败", zap.Error(err), zap.String("alert_id", alert.ID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "查询触发历史失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// loadAlert 按路径参数取预警并处理404
func (h *Handlers) loadAlert(c *gin.Context) (*model.SmartAlert, bool) {
	alertID := c.Param("id")
	alert, err := h.alerts.GetByID(alertID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "预警不存在"})
		} else {
			h.log.Error("查询预警失败", zap.Error(err), zap.String("alert_id", alertID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "查询预警失败"})
		}
		return nil, false
	}
	return alert, true
}

// publishControl 投递控制消息，失败只告警，引擎靠定时对账兜底
func (h *Handlers) publishControl(op model.ControlOp, alertID string) {
	msg := model.ControlMessage{
		Op:      op,
		AlertID: alertID,
		SentAt:  time.Now(),
	}
	if err := h.control.Publish(messaging.SubjectControl, msg); err != nil {
		h.log.Warn("投递控制消息失败",
			zap.String("op", string(op)),
			zap.String("alert_id", alertID),
			zap.Error(err))
	}
}

// pagination 解析分页参数
func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// cloneNode 深拷贝条件树
func cloneNode(node *model.ConditionNode) (*model.ConditionNode, error) {
	data, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	var out model.ConditionNode
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
