package handlers

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/errors"
	"github.com/dialworks/leadagent/pkg/middleware"
	"github.com/dialworks/leadagent/pkg/utils"
)

type ImportLeadsRequest struct {
	Leads []LeadImport `json:"leads" binding:"required"`
}

type LeadImport struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

// ImportLeads accepts either a JSON body with a leads array or a multipart
// CSV upload under the "file" field. Rows with no canonical phone number are
// reported back, not imported.
func (h *Handler) ImportLeads(c *gin.Context) {
	var imports []LeadImport
	var err error

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		imports, err = parseLeadsCSV(c)
		if err != nil {
			errors.BadRequest(c, err.Error())
			return
		}
	} else {
		var req ImportLeadsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.BadRequest(c, err.Error())
			return
		}
		imports = req.Leads
	}

	var leads []store.Lead
	var validationErrors []string
	for i, in := range imports {
		phone := utils.CanonicalPhone(in.Phone)
		if phone == "" {
			validationErrors = append(validationErrors, "lead "+strconv.Itoa(i)+": phone "+in.Phone+" has no canonical form")
			continue
		}
		leads = append(leads, store.Lead{
			Phone: phone,
			Name:  middleware.SanitizeString(in.Name),
			Email: middleware.SanitizeString(in.Email),
			Notes: middleware.SanitizeString(in.Notes),
		})
	}

	if len(leads) == 0 {
		errors.BadRequest(c, "no valid leads to import")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	imported, err := h.store.ImportLeads(ctx, leads)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	h.logger.Info("Leads imported",
		zap.Int("imported", imported),
		zap.Int("rejected", len(validationErrors)),
	)

	c.JSON(http.StatusCreated, gin.H{
		"imported": imported,
		"errors":   validationErrors,
	})
}

func parseLeadsCSV(c *gin.Context) ([]LeadImport, error) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var imports []LeadImport
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		imports = append(imports, LeadImport{
			Phone: field(row, "phone"),
			Name:  field(row, "name"),
			Email: field(row, "email"),
			Notes: field(row, "notes"),
		})
	}
	return imports, nil
}

func (h *Handler) ListLeads(c *gin.Context) {
	pagination := utils.ParsePagination(c)
	status := c.Query("status")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	offset := (pagination.Page - 1) * pagination.Limit
	leads, total, err := h.store.ListLeads(ctx, status, pagination.Limit, offset)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, utils.PaginatedResponse{
		Data:  leads,
		Page:  pagination.Page,
		Limit: pagination.Limit,
		Total: total,
		Count: len(leads),
	})
}

func (h *Handler) GetLead(c *gin.Context) {
	// canonical form set by ValidatePhoneParam
	phone := c.GetString("phone")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	lead, err := h.store.GetLead(ctx, phone)
	if err == store.ErrNotFound {
		errors.NotFound(c, "lead not found")
		return
	}
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, lead)
}

func (h *Handler) GetConversation(c *gin.Context) {
	phone := c.GetString("phone")
	pagination := utils.ParsePagination(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.store.ListConversation(ctx, phone, pagination.Limit)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phone":        phone,
		"conversation": entries,
		"count":        len(entries),
	})
}
