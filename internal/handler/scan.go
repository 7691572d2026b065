package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shambascan/internal/domain"
	"shambascan/internal/middleware"
	"shambascan/internal/service"
)

// MaxUploadSize bounds scan photo uploads.
const MaxUploadSize = 10 << 20 // 10 MiB

// ScanHandler handles HTTP requests for plant scans.
type ScanHandler struct {
	scanService *service.ScanService
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(scanService *service.ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// ScanResponse is the HTTP response for scan operations.
type ScanResponse struct {
	ID          string    `json:"id"`
	ImageURL    string    `json:"image_url,omitempty"`
	ImageSHA1   string    `json:"image_sha1"`
	IsPlant     bool      `json:"is_plant"`
	CheckNote   string    `json:"check_note"`
	DiseaseID   string    `json:"disease_id"`
	DiseaseName string    `json:"disease_name"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

func toScanResponse(scan *domain.Scan) ScanResponse {
	return ScanResponse{
		ID:          scan.ID,
		ImageURL:    scan.ImageURL,
		ImageSHA1:   scan.ImageSHA1,
		IsPlant:     scan.IsPlant,
		CheckNote:   scan.CheckNote,
		DiseaseID:   scan.DiseaseID,
		DiseaseName: scan.DiseaseName,
		Confidence:  scan.Confidence,
		CreatedAt:   scan.CreatedAt,
	}
}

// Analyze handles POST /v1/scans
func (h *ScanHandler) Analyze(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "image file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image exceeds upload limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read image"})
		return
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image exceeds upload limit"})
		return
	}

	scan, err := h.scanService.Analyze(c.Request.Context(), userID, data)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toScanResponse(scan))
}

// GetScan handles GET /v1/scans/:id
func (h *ScanHandler) GetScan(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	scan, err := h.scanService.GetScan(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toScanResponse(scan))
}

// ListScans handles GET /v1/scans
func (h *ScanHandler) ListScans(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	scans, err := h.scanService.ListScans(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]ScanResponse, 0, len(scans))
	for _, scan := range scans {
		responses = append(responses, toScanResponse(scan))
	}
	respondJSON(c, http.StatusOK, responses)
}

// ListDiseases handles GET /v1/diseases
func (h *ScanHandler) ListDiseases(c *gin.Context) {
	respondJSON(c, http.StatusOK, service.DiseaseCatalog())
}
