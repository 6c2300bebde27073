package clientstore

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

// CookiesKey holds the HTTP cookies of the console client.
const CookiesKey = "processos.http.cookies"

// CookieJar is an http.CookieJar whose cookies outlive the process. Matching
// is left to net/http/cookiejar; every SetCookies is mirrored into Storage and
// replayed by NewCookieJar. Cookies without an expiry are kept too.
type CookieJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	storage Storage
	entries map[string]cookieEntry
	logger  *zap.SugaredLogger
	now     func() time.Time
}

type cookieEntry struct {
	URL      string        `json:"url"`
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  int64         `json:"expires,omitempty"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"httpOnly,omitempty"`
	SameSite http.SameSite `json:"sameSite,omitempty"`
}

// NewCookieJar restores the cookies kept in storage. A nil storage gives a
// jar that lives in memory only.
func NewCookieJar(storage Storage, logger *zap.SugaredLogger) (*CookieJar, error) {
	if logger == nil {
		logger = utilities.Nop()
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	j := &CookieJar{
		jar:     jar,
		storage: storage,
		entries: make(map[string]cookieEntry),
		logger:  logger,
		now:     time.Now,
	}
	j.restore()
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	origin := u.Scheme + "://" + u.Host
	for _, c := range cookies {
		key := origin + "|" + c.Domain + "|" + c.Path + "|" + c.Name
		var expires int64
		switch {
		case c.MaxAge < 0:
			delete(j.entries, key)
			continue
		case c.MaxAge > 0:
			expires = now.Add(time.Duration(c.MaxAge) * time.Second).Unix()
		case !c.Expires.IsZero():
			if !c.Expires.After(now) {
				delete(j.entries, key)
				continue
			}
			expires = c.Expires.Unix()
		}
		j.entries[key] = cookieEntry{
			URL:      origin + u.EscapedPath(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
	}
	j.persist()
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *CookieJar) restore() {
	if j.storage == nil {
		return
	}
	raw, ok := j.storage.GetItem(CookiesKey)
	if !ok || raw == "" {
		return
	}
	var saved []cookieEntry
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		j.logger.Warnw("discarding unreadable cookies", "key", CookiesKey, "err", err)
		_ = j.storage.RemoveItem(CookiesKey)
		return
	}

	now := j.now()
	for _, e := range saved {
		u, err := url.Parse(e.URL)
		if err != nil || u.Host == "" {
			continue
		}
		c := &http.Cookie{
			Name:     e.Name,
			Value:    e.Value,
			Path:     e.Path,
			Domain:   e.Domain,
			Secure:   e.Secure,
			HttpOnly: e.HttpOnly,
			SameSite: e.SameSite,
		}
		if e.Expires != 0 {
			c.Expires = time.Unix(e.Expires, 0)
			if !c.Expires.After(now) {
				continue
			}
		}
		j.jar.SetCookies(u, []*http.Cookie{c})
		j.entries[u.Scheme+"://"+u.Host+"|"+e.Domain+"|"+e.Path+"|"+e.Name] = e
	}
}

// persist must be called with mu held.
func (j *CookieJar) persist() {
	if j.storage == nil {
		return
	}
	if len(j.entries) == 0 {
		if err := j.storage.RemoveItem(CookiesKey); err != nil {
			j.logger.Warnw("failed to remove cookies", "err", err)
		}
		return
	}
	saved := make([]cookieEntry, 0, len(j.entries))
	for _, e := range j.entries {
		saved = append(saved, e)
	}
	b, err := json.Marshal(saved)
	if err != nil {
		j.logger.Warnw("failed to encode cookies", "err", err)
		return
	}
	if err := j.storage.SetItem(CookiesKey, string(b)); err != nil {
		j.logger.Warnw("failed to persist cookies", "err", err)
	}
}
