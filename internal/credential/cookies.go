package credential

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Cookie is a browser cookie as persisted in the durable credential file.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
	SameSite string `json:"sameSite,omitempty"`
}

// CookieFile is the on-disk document. It is read and written wholesale.
type CookieFile struct {
	ExportedAt time.Time `json:"exportedAt"`
	Cookies    []Cookie  `json:"cookies"`
}

// FileStore persists cookie snapshots so later processes can reuse a session
// without launching a browser.
type FileStore struct {
	Path string
}

// Load reads the cookie file. A missing file returns an empty CookieFile
// and an error matching fs.ErrNotExist.
func (f FileStore) Load() (CookieFile, error) {
	if f.Path == "" {
		return CookieFile{}, errors.New("cookie file path is empty")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return CookieFile{}, err
	}
	var cf CookieFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return CookieFile{}, err
	}
	return cf, nil
}

// Save writes cookies atomically with 0600 permissions.
func (f FileStore) Save(cookies []Cookie, exportedAt time.Time) error {
	if f.Path == "" {
		return errors.New("cookie file path is empty")
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(CookieFile{
		ExportedAt: exportedAt.UTC(),
		Cookies:    cookies,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hrwatch-cookies-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.Path)
}
