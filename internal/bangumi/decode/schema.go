package decode

import (
	"github.com/francoispqt/gojay"
)

// field 描述目标类型的一个逻辑字段。
type field[T any] struct {
	name     string // 逻辑字段名（Policy 以它为准）
	key      string // 声明的外部键；为空表示默认不绑定，由 Policy 决定
	required bool
	decode   func(dec *gojay.Decoder, p *Policy, v *T) error
}

// schema 是一个目标类型的字段表，构造时按每个 Policy 预先绑定好“外部键 -> 字段”。
// 绑定结果只读，可被并发解码共享。
type schema[T any] struct {
	name   string
	fields []field[T]
	bound  [modeCount]map[string]int
	finish func(p *Policy, v *T)
}

func newSchema[T any](name string, fields []field[T], finish func(p *Policy, v *T)) *schema[T] {
	s := &schema[T]{name: name, fields: fields, finish: finish}
	for _, p := range []*Policy{SimplePolicy, DetailedPolicy} {
		m := make(map[string]int, len(fields))
		for i, f := range fields {
			if k := p.Key(name, f.name, f.key); k != "" {
				m[k] = i
			}
		}
		s.bound[p.mode] = m
	}
	return s
}

// keyOf 返回字段在 p 下读取的外部键。
func (s *schema[T]) keyOf(p *Policy, i int) string {
	f := s.fields[i]
	return p.Key(s.name, f.name, f.key)
}

// object 是一次对象解码的状态：schema + policy + 目标 + 已出现字段。
type object[T any] struct {
	s    *schema[T]
	p    *Policy
	v    *T
	seen []bool
}

func newObject[T any](s *schema[T], p *Policy, v *T) *object[T] {
	return &object[T]{s: s, p: p, v: v, seen: make([]bool, len(s.fields))}
}

// UnmarshalJSONObject 按键（大小写敏感）分派到字段；未知键返回 nil，由解码器跳过。
func (o *object[T]) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	i, ok := o.s.bound[o.p.mode][key]
	if !ok {
		return nil
	}
	o.seen[i] = true
	if err := o.s.fields[i].decode(dec, o.p, o.v); err != nil {
		return atField(o.s.name, key, err)
	}
	return nil
}

// NKeys 返回 0：总是读完整个对象。
func (o *object[T]) NKeys() int { return 0 }

// done 检查必填字段并执行类型的收尾规则。
func (o *object[T]) done() error {
	for i, f := range o.s.fields {
		if f.required && !o.seen[i] {
			key := o.s.keyOf(o.p, i)
			return &DecodeError{Kind: KindMissing, Type: o.s.name, Field: key, Path: key}
		}
	}
	if o.s.finish != nil {
		o.s.finish(o.p, o.v)
	}
	return nil
}

// decodeInto 从 dec 的下一个值解码一个对象。null 时不调用任何字段，必填检查照常进行。
func decodeInto[T any](dec *gojay.Decoder, s *schema[T], p *Policy, v *T) error {
	raw, err := readRaw(dec)
	if err != nil {
		return err
	}
	return decodeRawInto(raw, s, p, v)
}

func decodeRawInto[T any](raw []byte, s *schema[T], p *Policy, v *T) error {
	o := newObject(s, p, v)
	if !isNull(raw) {
		if err := unmarshalObject(raw, o); err != nil {
			return err
		}
	}
	return o.done()
}

// decodeOptional 与 decodeInto 相同，但 null 得到 nil 而不是报缺字段。
func decodeOptional[T any](dec *gojay.Decoder, s *schema[T], p *Policy) (*T, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	v := new(T)
	if err := decodeRawInto(raw, s, p, v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeList 解码对象数组；null 得到 nil。
func decodeList[T any](dec *gojay.Decoder, s *schema[T], p *Policy) ([]T, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	return decodeRawList(raw, s, p)
}

func decodeRawList[T any](raw []byte, s *schema[T], p *Policy) ([]T, error) {
	out := []T{}
	err := unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		var v T
		if err := decodeInto(dec, s, p, &v); err != nil {
			return atIndex(len(out), err)
		}
		out = append(out, v)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// with 把标量转换器接到字段上。
func with[T, V any](c ScalarDecoder[V], set func(v *T, x V)) func(*gojay.Decoder, *Policy, *T) error {
	return func(dec *gojay.Decoder, _ *Policy, v *T) error {
		x, err := c.Decode(dec)
		if err != nil {
			return err
		}
		set(v, x)
		return nil
	}
}

// plain 把无需 Policy 的读取函数接到字段上。
func plain[T, V any](read func(*gojay.Decoder) (V, error), set func(v *T, x V)) func(*gojay.Decoder, *Policy, *T) error {
	return func(dec *gojay.Decoder, _ *Policy, v *T) error {
		x, err := read(dec)
		if err != nil {
			return err
		}
		set(v, x)
		return nil
	}
}
