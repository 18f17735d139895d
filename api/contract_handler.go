package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/contract"
	"escrowflow/milestone"
)

type ContractHandler struct {
	contracts  *contract.Service
	milestones *milestone.Service
	pool       *pgxpool.Pool
}

func NewContractHandler(contracts *contract.Service, milestones *milestone.Service, pool *pgxpool.Pool) *ContractHandler {
	return &ContractHandler{contracts: contracts, milestones: milestones, pool: pool}
}

type scheduleEntryRequest struct {
	Seq               int        `json:"seq"`
	Designation       string     `json:"designation"`
	Percent           float64    `json:"percent"`
	PlannedAt         *time.Time `json:"planned_at"`
	TriggerConditions []string   `json:"trigger_conditions"`
	Deliverables      []string   `json:"deliverables"`
}

type createContractRequest struct {
	Title        string                 `json:"title"`
	EnterpriseID string                 `json:"enterprise_id"`
	TotalPreTax  float64                `json:"total_pre_tax"`
	TaxRate      float64                `json:"tax_rate"`
	Schedule     []scheduleEntryRequest `json:"schedule"`
}

// Create signs a contract between the calling client and the named
// enterprise, together with its milestone schedule.
func (h *ContractHandler) Create(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	schedule := make([]contract.ScheduleEntry, 0, len(req.Schedule))
	for _, e := range req.Schedule {
		schedule = append(schedule, contract.ScheduleEntry{
			Seq:               e.Seq,
			Designation:       e.Designation,
			Percent:           e.Percent,
			PlannedAt:         e.PlannedAt,
			TriggerConditions: e.TriggerConditions,
			Deliverables:      e.Deliverables,
		})
	}

	rec, err := h.contracts.Create(c.Request.Context(), contract.CreateParams{
		Title:        req.Title,
		ClientID:     currentUserID(c),
		EnterpriseID: req.EnterpriseID,
		TotalPreTax:  req.TotalPreTax,
		TaxRate:      req.TaxRate,
		Schedule:     schedule,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, contractView(rec))
}

func (h *ContractHandler) Get(c *gin.Context) {
	rec, err := h.contracts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !rec.IsParty(currentUserID(c)) {
		respondError(c, http.StatusForbidden, "forbidden", errNotParty)
		return
	}
	respondOK(c, http.StatusOK, contractView(rec))
}

func (h *ContractHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.contracts.ListForUser(c.Request.Context(), h.pool, currentUserID(c), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	views := make([]gin.H, 0, len(list))
	for _, rec := range list {
		views = append(views, contractView(rec))
	}
	respondOK(c, http.StatusOK, gin.H{"contracts": views, "total": total, "page": page})
}

func (h *ContractHandler) Milestones(c *gin.Context) {
	rec, err := h.contracts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !rec.IsParty(currentUserID(c)) {
		respondError(c, http.StatusForbidden, "forbidden", errNotParty)
		return
	}
	list, err := h.milestones.ListByContract(c.Request.Context(), rec.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func contractView(rec contract.Contract) gin.H {
	return gin.H{
		"id":            rec.ID,
		"reference":     rec.Reference,
		"title":         rec.Title,
		"client_id":     rec.ClientID,
		"enterprise_id": rec.EnterpriseID,
		"total_pre_tax": rec.TotalPreTax,
		"tax_rate":      rec.TaxRate,
		"total":         rec.Total,
		"status":        rec.Status,
		"signed_at":     rec.SignedAt,
		"created_at":    rec.CreatedAt,
	}
}
