package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/user/marfanet-crm/internal/services/importer"
)

const maxImportSize = 32 << 20 // 32 MB

// ImportUsage accepts a usage export (JSON or XLSX), parses it into activity
// records and builds one invoice batch
func (h *Handler) ImportUsage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file upload named 'file' is required"})
		return
	}
	if fileHeader.Size > maxImportSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	var result *importer.Result
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".json":
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		result, err = h.importer.ParseJSON(data)
		if err != nil {
			h.importParseError(c, err)
			return
		}
	case ".xlsx":
		result, err = h.importer.ParseExcel(file)
		if err != nil {
			h.importParseError(c, err)
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type, expected .json or .xlsx"})
		return
	}

	log.Printf("[Import] %s: %d records processed, %d skipped",
		fileHeader.Filename, result.RecordsProcessed, result.RecordsSkipped)

	batch, err := h.invoice.BuildFromActivities(result.Activities, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records_processed": result.RecordsProcessed,
		"records_skipped":   result.RecordsSkipped,
		"batch":             batch,
	})
}

func (h *Handler) importParseError(c *gin.Context, err error) {
	if errors.Is(err, importer.ErrUnparseableFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
