package authapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// storedCookie is the persisted form of one session cookie
type storedCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires_at"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	HostOnly bool   `json:"host_only"`
}

// PersistentCookieJar keeps BFF session cookies across restarts. The
// refresh endpoint correlates the session via cookies, so losing them
// would force a new interactive login on every start.
type PersistentCookieJar struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	cookies map[string]storedCookie
}

// NewPersistentCookieJar loads previously stored cookies from the database
func NewPersistentCookieJar(db *sql.DB, logger *zap.Logger) *PersistentCookieJar {
	jar := &PersistentCookieJar{
		db:      db,
		logger:  logger,
		cookies: make(map[string]storedCookie),
	}
	jar.load()
	return jar
}

// SetCookies implements http.CookieJar
func (j *PersistentCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	now := time.Now()

	j.mu.Lock()
	for _, c := range cookies {
		stored := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			HostOnly: c.Domain == "",
		}
		if stored.Domain == "" {
			stored.Domain = u.Hostname()
		}
		if stored.Path == "" {
			stored.Path = "/"
		}
		switch {
		case c.MaxAge > 0:
			stored.Expires = now.Add(time.Duration(c.MaxAge) * time.Second).UnixMilli()
		case c.MaxAge < 0:
			stored.Expires = 0 // delete marker
		case !c.Expires.IsZero():
			stored.Expires = c.Expires.UnixMilli()
		default:
			// Session cookie; keep until cleared
			stored.Expires = -1
		}

		key := stored.Name + "|" + stored.Domain + "|" + stored.Path
		if stored.Expires == 0 {
			delete(j.cookies, key)
			j.deleteRow(key)
			continue
		}
		j.cookies[key] = stored
		j.persistRow(key, stored)
	}
	j.mu.Unlock()
}

// Cookies implements http.CookieJar
func (j *PersistentCookieJar) Cookies(u *url.URL) []*http.Cookie {
	now := time.Now().UnixMilli()
	host := u.Hostname()
	path := u.Path
	if path == "" {
		path = "/"
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var result []*http.Cookie
	for key, c := range j.cookies {
		if c.Expires > 0 && c.Expires < now {
			delete(j.cookies, key)
			j.deleteRow(key)
			continue
		}
		if !domainMatches(host, c.Domain, c.HostOnly) {
			continue
		}
		if !pathMatches(path, c.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		result = append(result, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return result
}

// Clear drops every stored cookie, in memory and on disk. Called on
// logout so stale session-affinity material cannot survive it.
func (j *PersistentCookieJar) Clear() {
	j.mu.Lock()
	j.cookies = make(map[string]storedCookie)
	j.mu.Unlock()

	if _, err := j.db.ExecContext(context.Background(), `DELETE FROM auth_cookies`); err != nil {
		j.logger.Error("Failed to clear persisted cookies", zap.Error(err))
	}
}

func (j *PersistentCookieJar) load() {
	rows, err := j.db.Query(`SELECT key, cookie_json FROM auth_cookies`)
	if err != nil {
		j.logger.Error("Failed to load persisted cookies", zap.Error(err))
		return
	}
	defer rows.Close()

	now := time.Now().UnixMilli()
	for rows.Next() {
		var key, cookieJSON string
		if err := rows.Scan(&key, &cookieJSON); err != nil {
			continue
		}
		var c storedCookie
		if err := json.Unmarshal([]byte(cookieJSON), &c); err != nil {
			continue
		}
		if c.Expires > 0 && c.Expires < now {
			continue
		}
		j.cookies[key] = c
	}
}

func (j *PersistentCookieJar) persistRow(key string, c storedCookie) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	_, err = j.db.Exec(`
		INSERT INTO auth_cookies (key, cookie_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET cookie_json = excluded.cookie_json
	`, key, string(data))
	if err != nil {
		j.logger.Error("Failed to persist cookie", zap.Error(err))
	}
}

func (j *PersistentCookieJar) deleteRow(key string) {
	if _, err := j.db.Exec(`DELETE FROM auth_cookies WHERE key = ?`, key); err != nil {
		j.logger.Error("Failed to delete cookie", zap.Error(err))
	}
}

func domainMatches(host, domain string, hostOnly bool) bool {
	if host == domain {
		return true
	}
	if hostOnly {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatches(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") ||
			requestPath[len(cookiePath)] == '/'
	}
	return false
}
