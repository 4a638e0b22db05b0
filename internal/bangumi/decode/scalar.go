package decode

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/francoispqt/gojay"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

// ScalarDecoder 把一个不规则的 JSON 值转换为强类型值。
type ScalarDecoder[T any] interface {
	Decode(dec *gojay.Decoder) (T, error)
}

// ScalarEncoder 是反向能力。本包中的转换器都不实现它：这些转换是有损或单向的
// （例如无法从 RoleLead 还原出原始的本地化字符串）。
type ScalarEncoder[T any] interface {
	Encode(v T) ([]byte, error)
}

// Encode 通过转换器把 v 序列化回 JSON。只读转换器一律返回 KindUnsupported。
func Encode[T any](c ScalarDecoder[T], v T) ([]byte, error) {
	if enc, ok := c.(ScalarEncoder[T]); ok {
		return enc.Encode(v)
	}
	return nil, &DecodeError{Kind: KindUnsupported, Type: fmt.Sprintf("%T", c), Err: ErrNotSupported}
}

// DecodeScalar 用转换器解析一段独立的 JSON 值（例如 `7`、`"主角"`）。
func DecodeScalar[T any](c ScalarDecoder[T], data []byte) (T, error) {
	var (
		out  T
		derr error
	)
	if err := checkDocument(bytes.TrimSpace(data)); err != nil {
		return out, err
	}
	// 包一层单元素数组，复用 Decoder 的 token 读取。
	wrapped := make([]byte, 0, len(data)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, ']')
	n := 0
	err := gojay.UnmarshalJSONArray(wrapped, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
		n++
		if n > 1 {
			return malformed("single value", data, nil)
		}
		out, derr = c.Decode(dec)
		return derr
	}))
	if err != nil {
		var zero T
		return zero, asDecodeError(err)
	}
	if n == 0 {
		var zero T
		return zero, malformed("value", data, nil)
	}
	return out, nil
}

var (
	// Timestamp: 秒级 Unix 时间戳。
	Timestamp ScalarDecoder[time.Time] = timestampConverter{}

	// Weekday: 1..7，7 为周日。
	Weekday ScalarDecoder[time.Weekday] = weekdayConverter{}

	// RatingHistogram: rating 对象，count 必须恰好 10 档。
	RatingHistogram ScalarDecoder[domain.Rating] = ratingConverter{}

	// Role: "主角" / "配角" / "客串"。
	Role ScalarDecoder[domain.RoleType] = roleConverter{}

	// Gender: "男" / "女"。
	Gender ScalarDecoder[*bool] = genderConverter{}

	Date ScalarDecoder[time.Time] = dateConverter{}

	Duration ScalarDecoder[time.Duration] = durationConverter{}

	SubjectKind ScalarDecoder[domain.SubjectType] = subjectTypeConverter{}

	EpisodeKind ScalarDecoder[domain.EpisodeKind] = episodeKindConverter{}

	AirStatus ScalarDecoder[domain.EpisodeStatus] = episodeStatusConverter{}

	CollectionStats ScalarDecoder[map[domain.CollectionStatus]uint32] = collectionStatsConverter{}
)

// timestampConverter: 秒级 Unix 时间戳 -> UTC 时间。
type timestampConverter struct{}

func (timestampConverter) Decode(dec *gojay.Decoder) (time.Time, error) {
	raw, err := readRaw(dec)
	if err != nil {
		return time.Time{}, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

// weekdayConverter: API 用 1..7 表示周一到周日；time.Weekday 的周日是 0。
type weekdayConverter struct{}

func (weekdayConverter) Decode(dec *gojay.Decoder) (time.Weekday, error) {
	raw, err := readRaw(dec)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return 0, err
	}
	switch {
	case n == 7:
		return time.Sunday, nil
	case n >= 1 && n <= 6:
		return time.Weekday(n), nil
	default:
		return 0, unrecognized(string(raw))
	}
}

// ratingConverter 读取 {"total":N,"score":F,"count":{...}}。
// count 的条目按出现顺序依次写入 0..9，必须恰好 10 条。
type ratingConverter struct{}

func (ratingConverter) Decode(dec *gojay.Decoder) (domain.Rating, error) {
	raw, err := readRaw(dec)
	if err != nil {
		return domain.Rating{}, err
	}
	var (
		r domain.Rating
		n int
	)
	if !isNull(raw) {
		err = unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, key string) error {
			var err error
			switch key {
			case "total":
				r.Total, err = readUint32(dec)
			case "score":
				r.Score, err = readFloat(dec)
			case "count":
				err = readBuckets(dec, &r.Count, &n)
			default:
				return nil
			}
			if err != nil {
				return atField("Rating", key, err)
			}
			return nil
		}))
		if err != nil {
			return domain.Rating{}, err
		}
	}
	if n != domain.HistogramSize {
		return domain.Rating{}, &DecodeError{
			Kind:  KindMissing,
			Type:  "Rating",
			Field: "count",
			Path:  "count",
			Value: fmt.Sprintf("%d of %d buckets", n, domain.HistogramSize),
		}
	}
	return r, nil
}

func readBuckets(dec *gojay.Decoder, h *domain.Histogram, n *int) error {
	raw, err := readRaw(dec)
	if err != nil {
		return err
	}
	put := func(dec *gojay.Decoder) error {
		if *n >= domain.HistogramSize {
			return malformed(fmt.Sprintf("at most %d buckets", domain.HistogramSize), nil, nil)
		}
		v, err := readUint32(dec)
		if err != nil {
			return err
		}
		h[*n] = v
		*n++
		return nil
	}
	switch {
	case isObject(raw):
		return unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, key string) error {
			if err := put(dec); err != nil {
				return atField("Rating", key, err)
			}
			return nil
		}))
	case isArray(raw):
		return unmarshalArray(raw, gojay.DecodeArrayFunc(func(dec *gojay.Decoder) error {
			i := *n
			if err := put(dec); err != nil {
				return atIndex(i, err)
			}
			return nil
		}))
	case isNull(raw):
		return nil
	default:
		return malformed("object or array", raw, nil)
	}
}

var roleNames = map[string]domain.RoleType{
	"主角": domain.RoleLead,
	"配角": domain.RoleSupporting,
	"客串": domain.RoleGuest,
}

// roleConverter: 本地化角色类型名 -> RoleType；null 视为未给出。
type roleConverter struct{}

func (roleConverter) Decode(dec *gojay.Decoder) (domain.RoleType, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return domain.RoleUnset, err
	}
	s, err := parseString(raw)
	if err != nil {
		return domain.RoleUnset, err
	}
	r, ok := roleNames[s]
	if !ok {
		return domain.RoleUnset, unrecognized(s)
	}
	return r, nil
}

var genderNames = map[string]bool{
	"男": false,
	"女": true,
}

// genderConverter: "男" -> false，"女" -> true；null 得到 nil。
type genderConverter struct{}

func (genderConverter) Decode(dec *gojay.Decoder) (*bool, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	s, err := parseString(raw)
	if err != nil {
		return nil, err
	}
	female, ok := genderNames[s]
	if !ok {
		return nil, unrecognized(s)
	}
	return &female, nil
}

// dateConverter: "2010-07-03" -> UTC 零点；""、"0000-00-00" 与 null 视为未知（零值）。
type dateConverter struct{}

func (dateConverter) Decode(dec *gojay.Decoder) (time.Time, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return time.Time{}, err
	}
	s, err := parseString(raw)
	if err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000") {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, malformed("date YYYY-MM-DD", raw, err)
	}
	return t, nil
}

// durationConverter 接受 "00:24:00"、"24:00"、"24m" 以及空串。
type durationConverter struct{}

func (durationConverter) Decode(dec *gojay.Decoder) (time.Duration, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return 0, err
	}
	s, err := parseString(raw)
	if err != nil {
		return 0, err
	}
	d, ok := parseClock(strings.TrimSpace(s))
	if !ok {
		return 0, malformed("duration", raw, nil)
	}
	return d, nil
}

func parseClock(s string) (time.Duration, bool) {
	if s == "" {
		return 0, true
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, false
		}
		var d time.Duration
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, false
			}
			d = d*60 + time.Duration(n)
		}
		// 两段按 MM:SS 解释。
		return d * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

type subjectTypeConverter struct{}

func (subjectTypeConverter) Decode(dec *gojay.Decoder) (domain.SubjectType, error) {
	raw, err := readRaw(dec)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return 0, err
	}
	switch t := domain.SubjectType(n); t {
	case domain.SubjectBooks, domain.SubjectAnimation, domain.SubjectMusic, domain.SubjectGame, domain.SubjectDrama:
		return t, nil
	default:
		return 0, unrecognized(string(raw))
	}
}

type episodeKindConverter struct{}

func (episodeKindConverter) Decode(dec *gojay.Decoder) (domain.EpisodeKind, error) {
	raw, err := readRaw(dec)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return 0, err
	}
	switch k := domain.EpisodeKind(n); k {
	case domain.EpisodeMain, domain.EpisodeSpecial, domain.EpisodeOpening, domain.EpisodeEnding:
		return k, nil
	default:
		return 0, unrecognized(string(raw))
	}
}

var episodeStatusNames = map[string]domain.EpisodeStatus{
	"NA":    domain.EpisodeNA,
	"Air":   domain.EpisodeAir,
	"Today": domain.EpisodeToday,
}

type episodeStatusConverter struct{}

func (episodeStatusConverter) Decode(dec *gojay.Decoder) (domain.EpisodeStatus, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return domain.EpisodeNA, err
	}
	s, err := parseString(raw)
	if err != nil {
		return 0, err
	}
	st, ok := episodeStatusNames[s]
	if !ok {
		return 0, unrecognized(s)
	}
	return st, nil
}

var collectionKeys = map[string]domain.CollectionStatus{
	"wish":    domain.CollectionWish,
	"collect": domain.CollectionCollect,
	"doing":   domain.CollectionDoing,
	"on_hold": domain.CollectionOnHold,
	"dropped": domain.CollectionDropped,
}

// collectionStatsConverter 读取 {"wish":1,"collect":2,...}；未知键忽略。
type collectionStatsConverter struct{}

func (collectionStatsConverter) Decode(dec *gojay.Decoder) (map[domain.CollectionStatus]uint32, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	out := make(map[domain.CollectionStatus]uint32, len(collectionKeys))
	err = unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, key string) error {
		st, ok := collectionKeys[key]
		if !ok {
			return nil
		}
		n, err := readUint32(dec)
		if err != nil {
			return atField("CollectionStats", key, err)
		}
		out[st] = n
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}
