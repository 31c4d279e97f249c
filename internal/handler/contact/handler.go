package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/pkg/utils"
)

// Form kinds accepted by the relay.
const (
	FormContact = "contact"
	FormCareers = "careers"
)

// Submission is a contact or careers form post.
type Submission struct {
	Form         string `json:"form"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captchaToken"`
}

// Validate checks the fields the email endpoint needs.
func (s *Submission) Validate() error {
	s.Form = strings.ToLower(strings.TrimSpace(s.Form))
	if s.Form == "" {
		s.Form = FormContact
	}
	if s.Form != FormContact && s.Form != FormCareers {
		return fmt.Errorf("unknown form %q", s.Form)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		return fmt.Errorf("a valid email is required")
	}
	if strings.TrimSpace(s.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if strings.TrimSpace(s.CaptchaToken) == "" {
		return fmt.Errorf("captcha token is required")
	}
	return nil
}

// Handler relays form submissions to the outbound email endpoint.
type Handler struct {
	cfg    config.ContactConfig
	client *http.Client
	logger *zap.Logger
}

// New creates the relay handler.
func New(cfg config.ContactConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("contact"),
	}
}

// RegisterRoutes registers the form relay route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/contact", h.handleSubmit)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "contact form unavailable")
		return
	}

	var sub Submission
	if err := utils.DecodeJSON(w, r, &sub); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sub.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.forward(r.Context(), sub); err != nil {
		h.logger.Error("relay failed", zap.String("form", sub.Form), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "failed to send your message, please try again")
		return
	}

	h.logger.Info("form relayed", zap.String("form", sub.Form))
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) forward(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email endpoint returned %d", resp.StatusCode)
	}
	return nil
}
