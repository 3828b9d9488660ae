package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/services"
)

const (
	exportSheet   = "Complaints"
	exportPage    = 100
	maxExportRows = 5000
)

var exportColumns = []struct {
	Title string
	Width float64
}{
	{"ID", 20},
	{"Category", 16},
	{"Subcategory", 16},
	{"Title", 40},
	{"Priority", 10},
	{"Status", 12},
	{"Current Step", 20},
	{"Assigned Employee", 38},
	{"Citizen", 24},
	{"Address", 40},
	{"Zone", 14},
	{"SLA Deadline", 22},
	{"Escalations", 12},
	{"Created At", 22},
}

// ExportHandler downloads complaint listings as spreadsheets
type ExportHandler struct {
	complaints *services.ComplaintService
	logger     *logrus.Entry
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(complaints *services.ComplaintService, logger *logrus.Logger) *ExportHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExportHandler{complaints: complaints, logger: logger.WithField("component", "export-handler")}
}

// ExportComplaints downloads the filtered complaint list as xlsx
// @Summary Export complaints
// @Tags Complaints
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param category query string false "Category"
// @Param q query string false "Search in title and address"
// @Param sort query string false "newest, oldest or priority"
// @Success 200 {file} file
// @Router /api/v1/complaints/export [get]
func (h *ExportHandler) ExportComplaints(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	var rows []models.Complaint
	filter.Limit = exportPage
	for offset := 0; offset < maxExportRows; offset += exportPage {
		filter.Offset = offset
		page, total, err := h.complaints.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		rows = append(rows, page...)
		if int64(offset+exportPage) >= total || len(page) == 0 {
			break
		}
	}

	f, err := BuildComplaintWorkbook(rows)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("complaints_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	if err := f.Write(c.Writer); err != nil {
		h.logger.WithError(err).Error("Failed to write export")
	}
}

// BuildComplaintWorkbook renders complaints into a single-sheet workbook
func BuildComplaintWorkbook(complaints []models.Complaint) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, col.Title)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(exportSheet, colName, colName, col.Width)
	}

	for i, complaint := range complaints {
		row := i + 2
		values := []interface{}{
			complaint.ID,
			complaint.Category,
			complaint.Subcategory,
			complaint.Title,
			complaint.Priority,
			complaint.Status,
			complaint.CurrentStepID,
			"",
			complaint.Citizen.Name,
			complaint.Location.Address,
			complaint.Location.Zone,
			"",
			complaint.EscalationCount,
			complaint.CreatedAt.UTC().Format(time.RFC3339),
		}
		if complaint.IsAssigned() {
			values[7] = complaint.AssignedEmployeeID.String()
		}
		if complaint.SLADeadline != nil {
			values[11] = complaint.SLADeadline.UTC().Format(time.RFC3339)
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
