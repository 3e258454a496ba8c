package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/model"
)

type scanRequest struct {
	NationalID     string  `json:"national_id" binding:"required"`
	FirstName      string  `json:"first_name" binding:"required"`
	LastName       string  `json:"last_name" binding:"required"`
	UniversityCode string  `json:"university_code" binding:"required"`
	FacultyCode    string  `json:"faculty_code" binding:"required"`
	SchoolCode     string  `json:"school_code" binding:"required"`
	Type           string  `json:"type" binding:"required"`
	Timestamp      *string `json:"timestamp"`
	EntryMethod    string  `json:"entry_method"`
	Checkpoint     string  `json:"checkpoint"`
	GuardID        string  `json:"guard_id" binding:"required"`
	GuardName      string  `json:"guard_name" binding:"required"`
	ManualAuth     bool    `json:"manual_authorization"`
	State          string  `json:"state"`
	DecisionReason *string `json:"decision_reason"`
	Coordinates    *string `json:"coordinates"`
	LocationNote   *string `json:"location_note"`
}

// PostScan handles POST /api/attendance: one checkpoint action.
func (h *Handler) PostScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := &model.AttendanceRecord{
		NationalID:          req.NationalID,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		UniversityCode:      req.UniversityCode,
		FacultyCode:         req.FacultyCode,
		SchoolCode:          req.SchoolCode,
		Type:                req.Type,
		EntryMethod:         req.EntryMethod,
		Checkpoint:          req.Checkpoint,
		GuardID:             req.GuardID,
		GuardName:           req.GuardName,
		ManualAuthorization: req.ManualAuth,
		State:               req.State,
		DecisionReason:      req.DecisionReason,
		Coordinates:         req.Coordinates,
		LocationNote:        req.LocationNote,
	}

	if req.Timestamp != nil && *req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp, use RFC3339"})
			return
		}
		rec.Timestamp = ts
	}

	saved, err := h.service.RecordScan(c.Request.Context(), rec)
	if err != nil {
		// A presence conflict still leaves the scan on the log; report
		// the conflict together with the stored record.
		if saved != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "record": saved})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

type amendRequest struct {
	State          string  `json:"state" binding:"required"`
	DecisionReason *string `json:"decision_reason"`
}

// PutScanState handles PUT /api/attendance/:id/state: the decision
// correction path.
func (h *Handler) PutScanState(c *gin.Context) {
	var req amendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.State != model.StateAuthorized && req.State != model.StateDenied {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be authorized or denied"})
		return
	}

	amended, err := h.service.AmendDecision(c.Request.Context(), c.Param("id"), req.State, req.DecisionReason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, amended)
}

// GetAttendance handles GET /api/attendance.
func (h *Handler) GetAttendance(c *gin.Context) {
	recs, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetPersonAttendance handles GET /api/attendance/person/:nid.
func (h *Handler) GetPersonAttendance(c *gin.Context) {
	nid := c.Param("nid")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	recs, err := h.store.ListByPerson(c.Request.Context(), nid, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	var last *model.AttendanceRecord
	if len(recs) > 0 {
		last = &recs[0]
	}
	c.JSON(http.StatusOK, gin.H{
		"national_id": nid,
		"total":       len(recs),
		"last_record": last,
		"records":     recs,
	})
}

// GetLastValidType handles GET /api/attendance/person/:nid/last-type.
// Clients use it to offer the complementary scan type next.
func (h *Handler) GetLastValidType(c *gin.Context) {
	typ, err := h.store.LastValidType(c.Request.Context(), c.Param("nid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_type": typ})
}

// GetGuardAttendance handles GET /api/attendance/guard/:guard_id,
// returning the guard's scans from the last 24 hours.
func (h *Handler) GetGuardAttendance(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	recs, err := h.store.ListByGuardSince(c.Request.Context(), c.Param("guard_id"), since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetTodayStats handles GET /api/attendance/today.
func (h *Handler) GetTodayStats(c *gin.Context) {
	stats, err := h.store.CountToday(c.Request.Context(), h.loc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPerson handles GET /api/people/:code, a directory lookup by
// university code.
func (h *Handler) GetPerson(c *gin.Context) {
	person, err := h.store.FindPersonByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	c.JSON(http.StatusOK, person)
}
