package shared

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookieName carries one-time notifications between requests.
const FlashCookieName = "ibms_flash"

// FlashMessage represents a one-time notification shown on the next page load.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SetFlash queues a flash message for the next request.
func SetFlash(w http.ResponseWriter, secure bool, msg FlashMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// PopFlash reads and clears the pending flash message, if any.
func PopFlash(w http.ResponseWriter, r *http.Request) *FlashMessage {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var msg FlashMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	return &msg
}
