// Package browser runs the storefront upload protocol against a real
// Chromium through chromedp. It owns the stored storefront login (cookies
// and local storage), opens a fresh browser context per upload attempt and
// implements storefront.Page on a live tab.
package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// ErrNoCookies marks a session artifact that cannot authenticate anything.
var ErrNoCookies = errors.New("session state has no cookies")

// StorageState is a saved login: the cookie jar plus per-origin local
// storage. The file layout matches the storage-state files written by
// common browser automation tools, so a session captured elsewhere loads
// unchanged.
type StorageState struct {
	Cookies []Cookie       `json:"cookies"`
	Origins []OriginValues `json:"origins"`
}

type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

type OriginValues struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadState reads a storage-state file.
func LoadState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse session state %s: %w", path, err)
	}
	return &st, nil
}

// Save writes the state to path, creating parent directories.
func (s *StorageState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the state can stand in for a login.
func (s *StorageState) Validate() error {
	if s == nil || len(s.Cookies) == 0 {
		return ErrNoCookies
	}
	return nil
}

// Expired lists cookies whose expiry has passed at now. Session cookies
// (non-positive expiry) never expire here.
func (s *StorageState) Expired(now time.Time) []string {
	var out []string
	for _, c := range s.Cookies {
		if c.Expires > 0 && time.Unix(int64(c.Expires), 0).Before(now) {
			out = append(out, c.Name)
		}
	}
	return out
}

func (s *StorageState) cookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		switch c.SameSite {
		case "Strict":
			p.SameSite = network.CookieSameSiteStrict
		case "Lax":
			p.SameSite = network.CookieSameSiteLax
		case "None":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(in []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	for _, c := range in {
		exp := c.Expires
		if c.Session {
			exp = -1
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  exp,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}

// localStorageScript restores the saved local storage of every origin as
// soon as a document of that origin starts loading.
func (s *StorageState) localStorageScript() (string, error) {
	values := make(map[string]map[string]string)
	for _, o := range s.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		m := make(map[string]string, len(o.LocalStorage))
		for _, kv := range o.LocalStorage {
			m[kv.Name] = kv.Value
		}
		values[o.Origin] = m
	}
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function(all){const v=all[location.origin];if(!v)return;for(const k in v){try{localStorage.setItem(k,v[k]);}catch(e){}}})(%s);`, data), nil
}
