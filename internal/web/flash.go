package web

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

const flashCookie = "flash"

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a status message shown once on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Flashes stores a Flash in a signed cookie.
type Flashes struct {
	sc     *securecookie.SecureCookie
	secure bool
}

// NewFlashes signs cookies with hashKey.  An empty key gets a random one,
// which only lasts for the life of the process.
func NewFlashes(hashKey []byte, secure bool) *Flashes {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hashKey, nil)
	sc.MaxAge(300)
	return &Flashes{sc: sc, secure: secure}
}

// Set queues f for the next page.
func (f *Flashes) Set(c echo.Context, kind, message string) {
	v, err := f.sc.Encode(flashCookie, Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    v,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop returns the queued message, if any, and clears the cookie.
func (f *Flashes) Pop(c echo.Context) *Flash {
	ck, err := c.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	var fl Flash
	if err := f.sc.Decode(flashCookie, ck.Value, &fl); err != nil {
		return nil
	}
	return &fl
}
