package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/infra/fsx"
)

// Store 提供 <root>/cache/ 下的文件缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
// - TTL > 0 时，修改时间早于 now-TTL 的页面视为未命中
type Store struct {
	Root     string
	ReadOnly bool
	TTL      time.Duration

	now func() time.Time
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath: <root>/cache/pages/<host>/<sha1(url)>.html
func (s Store) PagePath(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("非法 URL：%q", rawURL)
	}
	host, err := cleanName(strings.ReplaceAll(u.Host, ":", "_"))
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(u.String()))
	return filepath.Join(s.Root, "cache", "pages", host, hex.EncodeToString(sum[:])+".html"), nil
}

// RecordPath: <root>/cache/records/<source>/<id>.json
func (s Store) RecordPath(source string, id domain.ExternalID) (string, error) {
	src, err := cleanName(source)
	if err != nil {
		return "", err
	}
	if _, ok := domain.ParseExternalID(string(id)); !ok {
		return "", fmt.Errorf("非法 id：%q", id)
	}
	return filepath.Join(s.Root, "cache", "records", src, string(id)+".json"), nil
}

func (s Store) ReadPage(rawURL string) ([]byte, bool, error) {
	path, err := s.PagePath(rawURL)
	if err != nil {
		return nil, false, err
	}
	return s.readFresh(path)
}

func (s Store) WritePage(rawURL string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(rawURL)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), html)
}

// ReadRecord 读取记录缓存；与页面缓存共用 TTL。
func (s Store) ReadRecord(source string, id domain.ExternalID) ([]byte, bool, error) {
	path, err := s.RecordPath(source, id)
	if err != nil {
		return nil, false, err
	}
	return s.readFresh(path)
}

func (s Store) WriteRecord(source string, id domain.ExternalID, json []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.RecordPath(source, id)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), json)
}

func (s Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// readFresh 在 TTL > 0 时把过期文件视为未命中。
func (s Store) readFresh(path string) ([]byte, bool, error) {
	if s.TTL > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		if s.clock().Sub(fi.ModTime()) > s.TTL {
			return nil, false, nil
		}
	}
	return readIfExists(path)
}

func readIfExists(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

var nameRE = regexp.MustCompile(`^[a-z0-9_.\-]+$`)

// cleanName 只做防路径穿越的最小约束。
func cleanName(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("名称不能为空")
	}
	if !nameRE.MatchString(p) || p == "." || p == ".." {
		return "", fmt.Errorf("非法名称：%q", p)
	}
	return p, nil
}
