package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/splax/moodjournal/internal/domain"
)

const (
	maxBodyBytes = 1 << 20

	msgMissingFields   = "Missing required fields"
	msgMissingLogin    = "Missing email or password"
	msgTextRequired    = "Text is required"
	msgInvalidJSONBody = "invalid JSON body"
)

// validationError is a client input error carrying its response message.
type validationError struct {
	message string
}

func (e validationError) Error() string {
	return e.message
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst zeroed.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return validationError{message: msgInvalidJSONBody}
	}
	return nil
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p signupRequest) validate() error {
	if blank(p.Name, p.Email, p.Password) {
		return validationError{message: msgMissingFields}
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p loginRequest) validate() error {
	if blank(p.Email, p.Password) {
		return validationError{message: msgMissingLogin}
	}
	return nil
}

type createEntryRequest struct {
	Text string `json:"text"`
}

func (p createEntryRequest) validate() error {
	if blank(p.Text) {
		return validationError{message: msgTextRequired}
	}
	return nil
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type userPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newUserPayload(u *domain.User) userPayload {
	return userPayload{ID: u.ID, Name: u.Name, Email: u.Email}
}

type loginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    userPayload `json:"user"`
}

type userResponse struct {
	Success bool        `json:"success"`
	User    userPayload `json:"user"`
}

type entryPayload struct {
	ID        int64   `json:"id"`
	Text      string  `json:"text"`
	Emotion   string  `json:"emotion"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt"`
}

func newEntryPayload(e domain.JournalEntry) entryPayload {
	return entryPayload{
		ID:        e.ID,
		Text:      e.Text,
		Emotion:   e.Emotion,
		Score:     e.Score,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type entryResponse struct {
	Success bool         `json:"success"`
	Entry   entryPayload `json:"entry"`
}

type entriesResponse struct {
	Success bool           `json:"success"`
	Entries []entryPayload `json:"entries"`
}
