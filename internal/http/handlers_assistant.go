package http

import (
	"io"
	"net/http"

	"financeflow/internal/assistant"
	"financeflow/internal/errs"
)

const maxReceiptBytes = 5 << 20

func (s *Server) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(r.Context(), w, errs.Validation("assistant is not configured"))
		return
	}
	user := userFrom(r.Context())

	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	answer, err := s.assistant.Chat(r.Context(), user.ID, req.Question)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleAssistantInsights(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(r.Context(), w, errs.Validation("assistant is not configured"))
		return
	}
	user := userFrom(r.Context())

	insights, err := s.assistant.Insights(r.Context(), user.ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"insights": insights})
}

// handleScanReceipt accepts a multipart upload under the "image" field and
// returns a proposed transaction the client can confirm or edit.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(r.Context(), w, errs.Validation("assistant is not configured"))
		return
	}

	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeError(r.Context(), w, errs.Validation("expected multipart form with an image field"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(r.Context(), w, errs.Validation("missing image field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxReceiptBytes))
	if err != nil {
		writeError(r.Context(), w, errs.Validation("failed to read image"))
		return
	}
	if len(data) == 0 {
		writeError(r.Context(), w, errs.Validation("empty image"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	proposal, err := s.assistant.ScanReceipt(r.Context(), assistant.Image{
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}
