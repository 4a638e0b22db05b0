// Package decode 把 bangumi.tv API 形态不一的 JSON 映射到 internal/domain 的稳定模型。
//
// 约束：
// - 只读：没有任何反向序列化能力
// - 一次调用一次同步扫描；schema、Policy、转换器都是不可变的包级状态，可并发使用
// - 任何失败都是整体失败，不返回部分结果
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

// ErrUnsupportedShape 表示调用方请求了本包未声明 schema 的目标类型。
var ErrUnsupportedShape = errors.New("no schema for target shape")

// Shape 是可直接作为解码目标的类型集合。
type Shape interface {
	domain.Subject | []domain.Subject |
		domain.Episode | []domain.Episode |
		domain.Character | domain.Person |
		domain.User | domain.Collection | []domain.Collection |
		domain.Progress |
		domain.AttrMap[domain.Character, []domain.Person] |
		domain.AttrMap[domain.Person, []string]
}

// Decode 读完 r 并按 mode 解码为 T。
func Decode[T Shape](r io.Reader, mode Mode) (T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("读取响应失败：%w", err)
	}
	return DecodeBytes[T](data, mode)
}

// DecodeBytes 选择 mode 对应的 Policy，再按 T 的 schema 解码 data。
func DecodeBytes[T Shape](data []byte, mode Mode) (T, error) {
	var out T
	p := PolicyFor(mode)
	raw := bytes.TrimSpace(data)
	if err := checkDocument(raw); err != nil {
		return out, err
	}

	var err error
	switch v := any(&out).(type) {
	case *domain.Subject:
		err = decodeRawInto(raw, subjectSchema, p, v)
	case *[]domain.Subject:
		*v, err = decodeTopList(raw, subjectSchema, p)
	case *domain.Episode:
		err = decodeRawInto(raw, episodeSchema, p, v)
	case *[]domain.Episode:
		*v, err = decodeTopList(raw, episodeSchema, p)
	case *domain.Character:
		err = decodeRawInto(raw, characterSchema, p, v)
	case *domain.Person:
		err = decodeRawInto(raw, personSchema, p, v)
	case *domain.User:
		err = decodeRawInto(raw, userSchema, p, v)
	case *domain.Collection:
		err = decodeRawInto(raw, collectionSchema, p, v)
	case *[]domain.Collection:
		*v, err = decodeTopList(raw, collectionSchema, p)
	case *domain.Progress:
		*v, err = decodeProgress(raw, p)
	case *domain.AttrMap[domain.Character, []domain.Person]:
		*v, err = Sidecar[domain.Character, []domain.Person](raw, mode, SidecarActors)
	case *domain.AttrMap[domain.Person, []string]:
		*v, err = Sidecar[domain.Person, []string](raw, mode, SidecarJobs)
	default:
		err = &DecodeError{Kind: KindUnsupported, Type: fmt.Sprintf("%T", out), Err: ErrUnsupportedShape}
	}
	if err != nil {
		var zero T
		return zero, asDecodeError(err)
	}
	return out, nil
}

// decodeTopList 解码顶层数组；顶层 null 视为空列表。
func decodeTopList[T any](raw []byte, s *schema[T], p *Policy) ([]T, error) {
	if isNull(raw) {
		return []T{}, nil
	}
	return decodeRawList(raw, s, p)
}

// decodeProgress：用户从未标记过进度时 API 返回 null，得到空进度。
func decodeProgress(raw []byte, p *Policy) (domain.Progress, error) {
	out := domain.Progress{Episodes: map[uint32]domain.WatchStatus{}}
	if isNull(raw) {
		return out, nil
	}
	if err := decodeRawInto(raw, progressSchema, p, &out); err != nil {
		return domain.Progress{}, err
	}
	return out, nil
}

// DecodeSubject 是 DecodeBytes[domain.Subject] 的简写。
func DecodeSubject(data []byte, mode Mode) (domain.Subject, error) {
	return DecodeBytes[domain.Subject](data, mode)
}

// DecodeUser 解码用户对象（/user/{id} 与 /auth 的响应）。
func DecodeUser(data []byte) (domain.User, error) {
	return DecodeBytes[domain.User](data, ModeSimple)
}

// DecodeCollections 解码收藏列表；内嵌条目按 simple 形态解码。
func DecodeCollections(data []byte) ([]domain.Collection, error) {
	return DecodeBytes[[]domain.Collection](data, ModeSimple)
}

// DecodeProgress 解码条目的观看进度。
func DecodeProgress(data []byte) (domain.Progress, error) {
	return DecodeBytes[domain.Progress](data, ModeSimple)
}

// DecodeNotifyCount 解码 {"count":N}。
func DecodeNotifyCount(data []byte) (int, error) {
	raw := bytes.TrimSpace(data)
	if err := checkDocument(raw); err != nil {
		return 0, err
	}
	var n notifyCount
	if err := decodeRawInto(raw, notifySchema, SimplePolicy, &n); err != nil {
		return 0, asDecodeError(err)
	}
	return n.count, nil
}

// APIError 是 API 以 2xx 状态返回的错误信封：{"request":"/subject/0","code":404,"error":"Not Found"}。
type APIError struct {
	Request string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Request == "" {
		return fmt.Sprintf("bangumi api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("bangumi api error %d: %s (%s)", e.Code, e.Message, e.Request)
}

// DecodeAPIError 探测 data 是否是错误信封。不是信封（包括无法解析）时返回 nil, false。
func DecodeAPIError(data []byte) (*APIError, bool) {
	raw := bytes.TrimSpace(data)
	if !isObject(raw) || checkDocument(raw) != nil {
		return nil, false
	}
	var e APIError
	if err := decodeRawInto(raw, apiErrorSchema, SimplePolicy, &e); err != nil {
		return nil, false
	}
	if e.Code == 0 || e.Message == "" || e.Code == 200 {
		return nil, false
	}
	return &e, true
}
