package decode

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// KindMalformed 表示 token 类型或格式不符（例如期望整数却是字符串）。
	KindMalformed = "malformed"
	// KindUnrecognized 表示取值不在已知的封闭集合内（角色类型、性别等）。
	KindUnrecognized = "unrecognized"
	// KindMissing 表示缺少必填字段，或评分分布不足 10 档。
	KindMissing = "missing"
	// KindUnsupported 表示调用了只读转换器的反向（序列化）操作。
	KindUnsupported = "unsupported"
)

// ErrNotSupported 是只读转换器被要求序列化时返回的哨兵错误。
var ErrNotSupported = errors.New("serializing is not supported by a read-only converter")

// DecodeError 是映射层的结构化错误。任何 DecodeError 都意味着本次解码整体失败。
type DecodeError struct {
	Kind  string
	Type  string // 外层目标类型，例如 "Subject"
	Field string // 外部字段名，例如 "air_weekday"
	Path  string // 从根开始的字段路径，例如 "crt[0].actors[1].id"
	Want  string // 期望的形态（malformed 时）
	Value string // 出错的原始值（截断后）
	Err   error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "decode error"
	}
	var b strings.Builder
	b.WriteString("decode")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Type != "" || e.Field != "" {
		fmt.Fprintf(&b, " (%s.%s)", e.Type, e.Field)
	}
	b.WriteString(": ")
	switch e.Kind {
	case KindMalformed:
		b.WriteString("malformed value")
		if e.Want != "" {
			fmt.Fprintf(&b, ", want %s", e.Want)
		}
	case KindUnrecognized:
		b.WriteString("unrecognized value")
	case KindMissing:
		b.WriteString("missing required data")
	case KindUnsupported:
		b.WriteString("operation not supported")
	default:
		b.WriteString(e.Kind)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind 从 error 中提取 DecodeError.Kind；若不是 *DecodeError 则返回空串。
func Kind(err error) string {
	var e *DecodeError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

const maxValueLen = 64

func clip(raw []byte) string {
	s := string(raw)
	if len(s) > maxValueLen {
		return s[:maxValueLen] + "..."
	}
	return s
}

func malformed(want string, raw []byte, err error) *DecodeError {
	return &DecodeError{Kind: KindMalformed, Want: want, Value: clip(raw), Err: err}
}

func unrecognized(value string) *DecodeError {
	return &DecodeError{Kind: KindUnrecognized, Value: clip([]byte(value))}
}

// asDecodeError 把任意错误（包括 gojay 的语法错误）统一为 *DecodeError。
func asDecodeError(err error) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	return &DecodeError{Kind: KindMalformed, Err: err}
}

// atField 在错误向上传播时补全字段信息：最内层对象填 Type/Field，每一层在 Path 前追加自己的键。
func atField(typ, key string, err error) error {
	de := asDecodeError(err)
	if de.Type == "" {
		de.Type = typ
	}
	if de.Field == "" {
		de.Field = strings.Clone(key)
	}
	de.Path = joinPath(key, de.Path)
	return de
}

// atIndex 为数组元素的错误追加下标。
func atIndex(i int, err error) error {
	de := asDecodeError(err)
	idx := fmt.Sprintf("[%d]", i)
	if de.Path == "" || strings.HasPrefix(de.Path, "[") {
		de.Path = idx + de.Path
	} else {
		de.Path = idx + "." + de.Path
	}
	return de
}

func joinPath(key, rest string) string {
	switch {
	case rest == "":
		return key
	case strings.HasPrefix(rest, "["):
		return key + rest
	default:
		return key + "." + rest
	}
}
