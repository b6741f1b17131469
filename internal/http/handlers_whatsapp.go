package http

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// twimlResponse is the reply envelope the messaging provider expects.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWhatsAppWebhook receives inbound messages as form posts with From
// and Body fields and answers with a TwiML message. Dialogue errors are
// returned to the sender as text; only infrastructure failures become 500s.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" {
		http.Error(w, "missing From field", http.StatusBadRequest)
		return
	}

	reply, err := s.whatsapp.HandleInbound(r.Context(), from, body)
	if err != nil {
		slog.ErrorContext(r.Context(), "WhatsApp webhook failed", "error", err)
		reply = "Something went wrong on our side. Please try again in a moment."
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(twimlResponse{Message: reply})
}
