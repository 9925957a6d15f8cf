package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"florapricing/internal"
	"florapricing/internal/display"
	"florapricing/internal/pipeline"
	"florapricing/internal/recompute"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	defaultMaxSessions = 64
	defaultSessionTTL  = 2 * time.Hour
)

// Handler serves processing sessions. A session keeps the parsed items of one
// upload in memory so rate and cost edits never touch the files again.
type Handler struct {
	processor *pipeline.ProcessingService
	uploadDir string
	logger    *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*sessionEntry
	maxSessions int
	sessionTTL  time.Duration
	now         func() time.Time
}

type sessionEntry struct {
	session  *recompute.Session
	lastUsed time.Time
}

func NewHandler(processor *pipeline.ProcessingService, uploadDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		uploadDir: uploadDir,
		logger:    logger,
		sessions:    map[string]*sessionEntry{},
		maxSessions: defaultMaxSessions,
		sessionTTL:  defaultSessionTTL,
		now:         time.Now,
	}
}

// addSession stores a session, first dropping idle ones and then the least
// recently used while the cap is reached.
func (h *Handler) addSession(id string, s *recompute.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for key, e := range h.sessions {
		if now.Sub(e.lastUsed) > h.sessionTTL {
			delete(h.sessions, key)
		}
	}
	for len(h.sessions) >= h.maxSessions {
		oldest := ""
		for key, e := range h.sessions {
			if oldest == "" || e.lastUsed.Before(h.sessions[oldest].lastUsed) {
				oldest = key
			}
		}
		h.logger.Info("session evicted", "session", oldest)
		delete(h.sessions, oldest)
	}
	h.sessions[id] = &sessionEntry{session: s, lastUsed: now}
}

func (h *Handler) lookupSession(id string) (*recompute.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	now := h.now()
	if now.Sub(e.lastUsed) > h.sessionTTL {
		delete(h.sessions, id)
		return nil, false
	}
	e.lastUsed = now
	return e.session, true
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/suppliers", h.ListSuppliers)
	router.GET("/products", h.ListProducts)

	router.POST("/sessions", h.CreateSession)
	router.GET("/sessions/:id", h.GetSession)
	router.PATCH("/sessions/:id", h.UpdateSession)
	router.PUT("/sessions/:id/table", h.ReplaceTable)
	router.GET("/sessions/:id/table.html", h.TableHTML)
	router.GET("/sessions/:id/export.xlsx", h.ExportXLSX)
}

type sessionResponse struct {
	ID      string              `json:"id"`
	Rate    decimal.Decimal     `json:"rate"`
	Rows    []internal.FinalRow `json:"rows"`
	Display []display.Row       `json:"display"`
	Logs    []string            `json:"logs,omitempty"`
}

func toSessionResponse(id string, s *recompute.Session) sessionResponse {
	rows := s.Rows()
	return sessionResponse{ID: id, Rate: s.Rate(), Rows: rows, Display: display.Format(rows)}
}

func (h *Handler) ListSuppliers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"suppliers":  h.processor.Suppliers(),
		"registered": h.processor.Registry().IDs(),
	})
}

func (h *Handler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.processor.Products()})
}

// CreateSession processes uploaded invoices.
// POST /api/sessions (multipart: files[], suppliers[], rate)
func (h *Handler) CreateSession(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["files"]
	suppliers := form.Value["suppliers"]

	rate, err := parseRate(c.PostForm("rate"), h.processor.DefaultRate())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, err := h.tempDir("upload-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(dir)

	docs := make([]pipeline.Document, 0, len(files))
	for i, fh := range files {
		path := filepath.Join(dir, strconv.Itoa(i), filepath.Base(fh.Filename))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := c.SaveUploadedFile(fh, path); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save upload failed"})
			return
		}
		supplier := ""
		if i < len(suppliers) {
			supplier = suppliers[i]
		}
		docs = append(docs, pipeline.Document{Path: path, Supplier: supplier})
	}

	res, err := h.processor.Run(c.Request.Context(), docs, rate, nil, "api")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	session := recompute.NewSession(res.Items, h.processor.Products(), rate)
	h.addSession(res.RunID, session)

	out := toSessionResponse(res.RunID, session)
	for _, r := range res.Results {
		out.Logs = append(out.Logs, r.Log())
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) session(c *gin.Context) (string, *recompute.Session, bool) {
	id := c.Param("id")
	s, ok := h.lookupSession(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%v: %s", ErrSessionNotFound, id)})
		return id, nil, false
	}
	return id, s, true
}

func (h *Handler) GetSession(c *gin.Context) {
	id, s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(id, s))
}

type costEdit struct {
	Product string          `json:"product"`
	Cost    decimal.Decimal `json:"cost"`
}

type updateSessionRequest struct {
	Rate  *decimal.Decimal `json:"rate"`
	Costs []costEdit       `json:"costs"`
	// Table replaces every cost with the cost column of a displayed table.
	Table []display.Row `json:"table"`
}

// UpdateSession recomputes with a new rate and/or costs.
// PATCH /api/sessions/:id
func (h *Handler) UpdateSession(c *gin.Context) {
	id, s, ok := h.session(c)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if req.Rate != nil && req.Rate.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate must not be negative"})
		return
	}
	edit := recompute.Edit{Rate: req.Rate}
	if req.Table != nil {
		edit.Costs = recompute.CostOverrides(req.Table)
		edit.Replace = true
	}
	for _, e := range req.Costs {
		if p := strings.TrimSpace(e.Product); p != "" {
			if edit.Costs == nil {
				edit.Costs = map[string]decimal.Decimal{}
			}
			edit.Costs[p] = e.Cost
		}
	}

	s.Update(edit)
	c.JSON(http.StatusOK, toSessionResponse(id, s))
}

// ReplaceTable takes an edited HTML table and recomputes from its cost column.
// PUT /api/sessions/:id/table
func (h *Handler) ReplaceTable(c *gin.Context) {
	id, s, ok := h.session(c)
	if !ok {
		return
	}
	rows, err := display.ReadHTML(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ApplyDisplayed(rows)
	c.JSON(http.StatusOK, toSessionResponse(id, s))
}

func (h *Handler) TableHTML(c *gin.Context) {
	_, s, ok := h.session(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := display.RenderHTML(c.Writer, s.Display()); err != nil {
		h.logger.Error("render table", "err", err)
	}
}

func (h *Handler) ExportXLSX(c *gin.Context) {
	id, s, ok := h.session(c)
	if !ok {
		return
	}
	dir, err := h.tempDir("export-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tabela.xlsx")
	if err := pipeline.ExportTableToXLSX(s.Rows(), s.Items(), path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(path, "tabela_"+id+".xlsx")
}

func (h *Handler) tempDir(prefix string) (string, error) {
	if h.uploadDir != "" {
		if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(h.uploadDir, prefix)
}

func parseRate(text string, fallback decimal.Decimal) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback, nil
	}
	rate, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q", text)
	}
	if rate.IsNegative() {
		return decimal.Zero, errors.New("rate must not be negative")
	}
	return rate, nil
}
