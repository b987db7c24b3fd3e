package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/service"
)

// ConfigExportHeader 配置清单导出表头
var ConfigExportHeader = []string{
	"Config ID",
	"Scope Type",
	"Scope ID",
	"Status",
	"Version",
	"Schema Version",
	"Validation Status",
	"Notes",
	"Created By",
	"Updated By",
	"Created At",
	"Updated At",
	"Published At",
}

// ExportConfigsExcel GET /config/api/v1/configs/export.xlsx
// 导出配置行清单（不含文档正文，正文走单行 JSON 导出）。
func (h *ConfigHandler) ExportConfigsExcel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.configs.ListConfigs(r.Context(), service.ListConfigsRequest{
		ScopeType:      q.Get("scope_type"),
		ScopeID:        q.Get("scope_id"),
		Status:         q.Get("status"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Page:           1,
		Size:           10000,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := GenerateConfigExport(resp.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=movement-configs.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateConfigExport 生成配置清单 Excel 文件
// items 为空则只生成表头
func GenerateConfigExport(items []*domain.ConfigRecord) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Movement Configs"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range ConfigExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	columnWidths := []float64{
		38, // Config ID
		15, // Scope Type
		24, // Scope ID
		10, // Status
		10, // Version
		14, // Schema Version
		16, // Validation Status
		40, // Notes
		15, // Created By
		15, // Updated By
		20, // Created At
		20, // Updated At
		20, // Published At
	}
	for i := 0; i < len(ConfigExportHeader); i++ {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(columnWidths) && columnWidths[i] > 0 {
			if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	// 写入数据
	for rowIdx, item := range items {
		row := rowIdx + 2 // 从第2行开始（第1行是表头）
		values := []any{
			item.ConfigID,
			item.ScopeType,
			item.ScopeID,
			item.Status,
			item.ConfigVersion,
			item.SchemaVersion,
			item.ValidationStatus,
			item.Notes,
			item.CreatedBy,
			item.UpdatedBy,
			formatExportTime(&item.CreatedAt),
			formatExportTime(&item.UpdatedAt),
			formatExportTime(item.PublishedAt),
		}
		for colIdx, value := range values {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// formatExportTime 时间列格式化；空值输出空串
func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
