package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/wellbeing/internal/checksum"
	"github.com/starford/wellbeing/internal/codec"
)

const maxUploadBytes = 50 << 20 // 50 MB

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export handles GET /api/export.
//
//	@Summary		Download every entry as JSON
//	@Tags			transfer
//	@Produce		json
//	@Param			If-None-Match	header	string	false	"ETag of a previous export"
//	@Success		200	{array}		models.Entry
//	@Success		304	"Unchanged since the given ETag"
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportData(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	tag := checksum.ETag(data)
	w.Header().Set("ETag", tag)
	if checksum.Matches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeAttachment(w, "application/json; charset=utf-8", codec.ExportFilename(h.now(), "json"), data)
}

// ExportXLSX handles GET /api/export.xlsx.
//
//	@Summary		Download every entry as a spreadsheet
//	@Tags			transfer
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Success		200	{file}	binary
//	@Security		BearerAuth
//	@Router			/export.xlsx [get]
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportXLSX(r.Context())
	if err != nil {
		writeError(w, "export xlsx", err)
		return
	}
	writeAttachment(w, xlsxContentType, codec.ExportFilename(h.now(), "xlsx"), data)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import handles POST /api/import. The payload is either a multipart form
// with a "file" field or the raw JSON export as the request body.
//
//	@Summary		Import a JSON export
//	@Tags			transfer
//	@Accept			json
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	false	"Export file"
//	@Success		200		{object}	CountResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
			return
		}
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	res := h.svc.ImportData(r.Context(), data)
	if !res.Success {
		writeError(w, "import", res.Err())
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: res.Count})
}
