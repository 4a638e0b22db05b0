package decode

import (
	"bytes"

	"github.com/francoispqt/gojay"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

const (
	// SidecarActors 是角色列表中附带声优列表的字段。
	SidecarActors = "actors"
	// SidecarJobs 是制作人员列表中附带职务列表的字段。
	SidecarJobs = "jobs"
)

// decodeAttrMap 把 [{实体字段..., <sidecar>: X}, ...] 解码为 实体 -> X 的映射。
//
// 每个元素只扫描一次：sidecar 键交给 value 解码，其余键按实体 schema 解码。
// 重复 ID 的处理由 domain.NewAttrMap 负责（后者覆盖前者）。null 得到空映射。
func decodeAttrMap[K domain.Identified, V any](
	dec *gojay.Decoder,
	p *Policy,
	ks *schema[K],
	sidecar string,
	value func(dec *gojay.Decoder, p *Policy) (V, error),
) (domain.AttrMap[K, V], error) {
	raw, err := readRaw(dec)
	if err != nil {
		return domain.AttrMap[K, V]{}, err
	}
	if isNull(raw) {
		return domain.NewAttrMap[K, V](nil), nil
	}
	var entries []domain.Entry[K, V]
	err = unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		e, err := decodeSidecarEntry(dec, p, ks, sidecar, value)
		if err != nil {
			return atIndex(len(entries), err)
		}
		entries = append(entries, e)
		return nil
	}))
	if err != nil {
		return domain.AttrMap[K, V]{}, err
	}
	return domain.NewAttrMap(entries), nil
}

func decodeSidecarEntry[K domain.Identified, V any](
	dec *gojay.Decoder,
	p *Policy,
	ks *schema[K],
	sidecar string,
	value func(dec *gojay.Decoder, p *Policy) (V, error),
) (domain.Entry[K, V], error) {
	var e domain.Entry[K, V]
	raw, err := readRaw(dec)
	if err != nil {
		return e, err
	}
	if isNull(raw) {
		return e, malformed("object", raw, nil)
	}
	key := newObject(ks, p, &e.Key)
	err = unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, k string) error {
		if k != sidecar {
			return key.UnmarshalJSONObject(dec, k)
		}
		v, err := value(dec, p)
		if err != nil {
			return atField(ks.name, k, err)
		}
		e.Value = v
		return nil
	}))
	if err != nil {
		return e, err
	}
	if err := key.done(); err != nil {
		return e, err
	}
	return e, nil
}

// Sidecar 是结构转换器的独立入口：按 K 的 schema 解码 data 中的数组。
// 目前支持 Character->[]Person（actors）与 Person->[]string（jobs）。
func Sidecar[K domain.Identified, V any](data []byte, mode Mode, sidecar string) (domain.AttrMap[K, V], error) {
	var (
		out domain.AttrMap[K, V]
		err error
	)
	if err := checkDocument(bytes.TrimSpace(data)); err != nil {
		return out, err
	}
	p := PolicyFor(mode)
	wrapped := append(append([]byte{'['}, data...), ']')
	n := 0
	derr := gojay.UnmarshalJSONArray(wrapped, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		n++
		if n > 1 {
			return malformed("single array", data, nil)
		}
		switch m := any(&out).(type) {
		case *domain.AttrMap[domain.Character, []domain.Person]:
			*m, err = decodeAttrMap(dec, p, characterSchema, sidecar, personList)
		case *domain.AttrMap[domain.Person, []string]:
			*m, err = decodeAttrMap(dec, p, personSchema, sidecar, stringList)
		default:
			return &DecodeError{Kind: KindUnsupported, Type: "AttrMap", Err: ErrUnsupportedShape}
		}
		return err
	}))
	if derr != nil {
		return domain.AttrMap[K, V]{}, asDecodeError(derr)
	}
	return out, nil
}

func personList(dec *gojay.Decoder, p *Policy) ([]domain.Person, error) {
	return decodeList(dec, personSchema, p)
}

func stringList(dec *gojay.Decoder, _ *Policy) ([]string, error) {
	return readStrings(dec)
}
