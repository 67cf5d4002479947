package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
)

// ExportColumns is the fixed column order of lead exports.
var ExportColumns = []string{
	"id", "full_name", "company", "title", "location", "linkedin_url",
	"domain", "email", "email_verified", "ceo_name", "status", "created_at",
}

// LeadRecord renders l in ExportColumns order.
func LeadRecord(l model.Lead) []string {
	return []string{
		l.ID,
		l.FullName,
		l.Company,
		l.Title,
		l.Location,
		l.LinkedInURL,
		l.Domain,
		l.Email,
		strconv.FormatBool(l.EmailVerified()),
		l.CEOName,
		string(l.Status),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes a header row and one row per lead.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return eris.Wrap(err, "api: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(LeadRecord(l)); err != nil {
			return eris.Wrapf(err, "api: write csv row %s", l.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "api: flush csv")
}

// WriteXLSX writes the leads as a single-sheet workbook.
func WriteXLSX(w io.Writer, leads []model.Lead) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "api: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range ExportColumns {
		header.AddCell().SetString(col)
	}
	for _, l := range leads {
		row := sheet.AddRow()
		for _, v := range LeadRecord(l) {
			row.AddCell().SetString(v)
		}
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "api: write xlsx")
	}
	return nil
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	leads, ok := s.fileLeads(w, r)
	if !ok {
		return
	}
	fileID := chi.URLParam(r, "fileId")

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leads-%s.csv"`, fileID))
	w.WriteHeader(http.StatusOK)
	if err := WriteCSV(w, leads); err != nil {
		zap.L().Warn("api: csv export interrupted", zap.String("file_id", fileID), zap.Error(err))
	}
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	leads, ok := s.fileLeads(w, r)
	if !ok {
		return
	}
	fileID := chi.URLParam(r, "fileId")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leads-%s.xlsx"`, fileID))
	w.WriteHeader(http.StatusOK)
	if err := WriteXLSX(w, leads); err != nil {
		zap.L().Warn("api: xlsx export interrupted", zap.String("file_id", fileID), zap.Error(err))
	}
}
