package decode

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/francoispqt/gojay"
)

// 所有标量都先读成原始 token，再按首字节显式分派。
// 这样 token 类型不符时一定得到 KindMalformed，而不依赖解码器的宽松行为。

func readRaw(dec *gojay.Decoder) ([]byte, error) {
	var raw gojay.EmbeddedJSON
	if err := dec.EmbeddedJSON(&raw); err != nil {
		return nil, malformed("json value", nil, err)
	}
	return bytes.TrimSpace(raw), nil
}

func isNull(raw []byte) bool { return bytes.Equal(raw, []byte("null")) }

func isObject(raw []byte) bool { return len(raw) > 0 && raw[0] == '{' }

func isArray(raw []byte) bool { return len(raw) > 0 && raw[0] == '[' }

func isString(raw []byte) bool { return len(raw) > 0 && raw[0] == '"' }

// checkDocument 在分派之前校验整个文档。解码器读到缓冲区末尾就停，
// 不会报告仍未闭合的外层对象：截断在内层 } 处的响应体只能在这里拦下。
func checkDocument(raw []byte) error {
	if len(raw) == 0 || !json.Valid(raw) {
		return malformed("json document", raw, nil)
	}
	return nil
}

// 首尾字节都要检查：解码器遇到截断的对象或数组时不一定报错。
func unmarshalObject(raw []byte, v gojay.UnmarshalerJSONObject) error {
	if !isObject(raw) || raw[len(raw)-1] != '}' {
		return malformed("object", raw, nil)
	}
	return gojay.UnmarshalJSONObject(raw, v)
}

func unmarshalArray(raw []byte, v gojay.UnmarshalerJSONArray) error {
	if !isArray(raw) || raw[len(raw)-1] != ']' {
		return malformed("array", raw, nil)
	}
	return gojay.UnmarshalJSONArray(raw, v)
}

func parseInt(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, malformed("integer", raw, nil)
	}
	return n, nil
}

func parseUint32(raw []byte) (uint32, error) {
	n, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil {
		return 0, malformed("unsigned integer", raw, nil)
	}
	return uint32(n), nil
}

func parseFloat(raw []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, malformed("number", raw, nil)
	}
	return f, nil
}

func parseString(raw []byte) (string, error) {
	if !isString(raw) {
		return "", malformed("string", raw, nil)
	}
	var s string
	if err := gojay.Unmarshal(raw, &s); err != nil {
		return "", malformed("string", raw, err)
	}
	return s, nil
}

// 以下是字段级的便捷读取：null 视为零值。

func readString(dec *gojay.Decoder) (string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return "", err
	}
	return parseString(raw)
}

func readInt(dec *gojay.Decoder) (int, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return 0, err
	}
	n, err := parseInt(raw)
	return int(n), err
}

func readOptInt(dec *gojay.Decoder) (*int, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return nil, err
	}
	v := int(n)
	return &v, nil
}

func readUint32(dec *gojay.Decoder) (uint32, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return 0, err
	}
	return parseUint32(raw)
}

func readFloat(dec *gojay.Decoder) (float64, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return 0, err
	}
	return parseFloat(raw)
}

func readStrings(dec *gojay.Decoder) ([]string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	out := []string{}
	err = unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		s, err := readString(dec)
		if err != nil {
			return atIndex(len(out), err)
		}
		out = append(out, s)
		return nil
	}))
	return out, err
}

// readStringOrStrings 兼容 "x" 与 ["x","y"] 两种形态。
func readStringOrStrings(dec *gojay.Decoder) ([]string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	if isString(raw) {
		s, err := parseString(raw)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := []string{}
	err = unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		s, err := readString(dec)
		if err != nil {
			return atIndex(len(out), err)
		}
		out = append(out, s)
		return nil
	}))
	return out, err
}

// readStringMap 读取 {"k":"v"}；数组形态按下标作为键（"0"、"1"...）。
func readStringMap(dec *gojay.Decoder) (map[string]string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	out := map[string]string{}
	if isArray(raw) {
		err = unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
			i := strconv.Itoa(len(out))
			s, err := readString(dec)
			if err != nil {
				return atIndex(len(out), err)
			}
			out[i] = s
			return nil
		}))
		return out, err
	}
	err = unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, key string) error {
		s, err := readString(dec)
		if err != nil {
			return atField("", key, err)
		}
		out[strings.Clone(key)] = s
		return nil
	}))
	return out, err
}
