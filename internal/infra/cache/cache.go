package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/John-Robertt/bgmtv/internal/infra/fsx"
)

// Store 提供 <root>/providers/ 下的原始响应缓存，前面挡一层进程内 TTL 缓存。
//
// 约束：
// - 缓存的是 provider 的原始响应（json/html），不是解码后的对象
// - ReadOnly=true 时只读磁盘，但读到的内容仍会进入内存层
// - TTL<=0 表示永不过期；TTL>0 时磁盘文件按修改时间判定过期
// - 并发安全
type Store struct {
	Root     string
	ReadOnly bool
	TTL      time.Duration

	mem *gocache.Cache
}

var ErrReadOnly = errors.New("cache: read-only")

const cleanupInterval = 10 * time.Minute

func New(root string, readOnly bool, ttl time.Duration) *Store {
	exp := gocache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	return &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		TTL:      ttl,
		mem:      gocache.New(exp, cleanupInterval),
	}
}

// Path 返回缓存文件的路径：<root>/providers/<provider>/<key>.<ext>。
func (s *Store) Path(provider, key, ext string) (string, error) {
	p, err := clean(providerNameRE, "provider", provider)
	if err != nil {
		return "", err
	}
	k, err := clean(keyRE, "key", key)
	if err != nil {
		return "", err
	}
	e, err := clean(providerNameRE, "ext", ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "providers", p, k+"."+e), nil
}

// Read 先查内存，再查磁盘；未命中（含过期）时 ok=false 且 err=nil。
func (s *Store) Read(provider, key, ext string) ([]byte, bool, error) {
	path, err := s.Path(provider, key, ext)
	if err != nil {
		return nil, false, err
	}
	if v, ok := s.mem.Get(path); ok {
		return v.([]byte), true, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if s.TTL > 0 && time.Since(fi.ModTime()) > s.TTL {
		return nil, false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	s.remember(path, b, fi.ModTime())
	return b, true, nil
}

// Write 原子写入磁盘并刷新内存层。调用方之后不得再修改 data。
func (s *Store) Write(provider, key, ext string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.Path(provider, key, ext)
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), data); err != nil {
		return err
	}
	s.mem.SetDefault(path, data)
	return nil
}

// remember 把磁盘内容放进内存层；过期时刻与磁盘一致（modTime+TTL），不从读取时刻重新计时。
func (s *Store) remember(path string, b []byte, modTime time.Time) {
	if s.TTL <= 0 {
		s.mem.Set(path, b, gocache.NoExpiration)
		return
	}
	left := s.TTL - time.Since(modTime)
	if left <= 0 {
		// go-cache 把 0 当作默认过期时间，这里直接不缓存。
		return
	}
	s.mem.Set(path, b, left)
}

var (
	providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	keyRE          = regexp.MustCompile(`^[a-z0-9_][a-z0-9_.]*$`)
)

// clean 只做最小约束：避免路径穿越。
func clean(re *regexp.Regexp, what, v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", fmt.Errorf("%s 不能为空", what)
	}
	if !re.MatchString(v) {
		return "", fmt.Errorf("非法 %s：%q", what, v)
	}
	return v, nil
}
