package decode

import (
	"time"

	"github.com/francoispqt/gojay"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

// 各目标类型的字段表。键名与 API 保持一致（大小写敏感）。

var imageSchema = newSchema("ImageSource", []field[domain.ImageSource]{
	{name: "Large", key: "large", decode: plain(readString, func(v *domain.ImageSource, s string) { v.Large = s })},
	{name: "Common", key: "common", decode: plain(readString, func(v *domain.ImageSource, s string) { v.Common = s })},
	{name: "Medium", key: "medium", decode: plain(readString, func(v *domain.ImageSource, s string) { v.Medium = s })},
	{name: "Small", key: "small", decode: plain(readString, func(v *domain.ImageSource, s string) { v.Small = s })},
	{name: "Grid", key: "grid", decode: plain(readString, func(v *domain.ImageSource, s string) { v.Grid = s })},
}, nil)

func images[T any](set func(v *T, img domain.ImageSource)) func(*gojay.Decoder, *Policy, *T) error {
	return func(dec *gojay.Decoder, p *Policy, v *T) error {
		img, err := decodeOptional(dec, imageSchema, p)
		if err != nil || img == nil {
			return err
		}
		set(v, *img)
		return nil
	}
}

var personInfoSchema = newSchema("PersonInfo", []field[domain.PersonInfo]{
	{name: "ChineseName", key: "name_cn", decode: plain(readString, func(v *domain.PersonInfo, s string) { v.ChineseName = s })},
	{name: "Birthday", key: "birth", decode: plain(readText, func(v *domain.PersonInfo, s string) { v.Birthday = s })},
	{name: "Aliases", key: "alias", decode: plain(readStringMap, func(v *domain.PersonInfo, m map[string]string) { v.Aliases = m })},
	{name: "Gender", key: "gender", decode: with(Gender, func(v *domain.PersonInfo, g *bool) { v.Gender = g })},
	{name: "BloodType", key: "bloodtype", decode: plain(readInt, func(v *domain.PersonInfo, n int) { v.BloodType = n })},
	{name: "Height", key: "height", decode: plain(readText, func(v *domain.PersonInfo, s string) { v.Height = s })},
	{name: "Weight", key: "weight", decode: plain(readText, func(v *domain.PersonInfo, s string) { v.Weight = s })},
	{name: "BWH", key: "bwh", decode: plain(readText, func(v *domain.PersonInfo, s string) { v.BWH = s })},
	{name: "Source", key: "source", decode: plain(readStringOrStrings, func(v *domain.PersonInfo, s []string) { v.Source = s })},
}, nil)

func info[T any](set func(v *T, pi domain.PersonInfo)) func(*gojay.Decoder, *Policy, *T) error {
	return func(dec *gojay.Decoder, p *Policy, v *T) error {
		pi, err := decodeOptional(dec, personInfoSchema, p)
		if err != nil || pi == nil {
			return err
		}
		set(v, *pi)
		return nil
	}
}

var personSchema = newSchema("Person", []field[domain.Person]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Person, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Person, s string) { v.URL = s })},
	{name: "Name", key: "name", decode: plain(readString, func(v *domain.Person, s string) { v.Name = s })},
	{name: "ChineseName", key: "name_cn", decode: plain(readString, func(v *domain.Person, s string) { v.ChineseName = s })},
	{name: "Images", key: "images", decode: images(func(v *domain.Person, img domain.ImageSource) { v.Images = img })},
	{name: "CommentCount", key: "comment", decode: plain(readInt, func(v *domain.Person, n int) { v.CommentCount = n })},
	{name: "CollectCount", key: "collects", decode: plain(readInt, func(v *domain.Person, n int) { v.CollectCount = n })},
	{name: "Info", key: "info", decode: info(func(v *domain.Person, pi domain.PersonInfo) { v.Info = pi })},
}, nil)

var characterSchema = newSchema("Character", []field[domain.Character]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Character, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Character, s string) { v.URL = s })},
	{name: "Name", key: "name", decode: plain(readString, func(v *domain.Character, s string) { v.Name = s })},
	{name: "ChineseName", key: "name_cn", decode: plain(readString, func(v *domain.Character, s string) { v.ChineseName = s })},
	{name: "Role", key: "role_name", decode: with(Role, func(v *domain.Character, r domain.RoleType) { v.Role = r })},
	{name: "Images", key: "images", decode: images(func(v *domain.Character, img domain.ImageSource) { v.Images = img })},
	{name: "CommentCount", key: "comment", decode: plain(readInt, func(v *domain.Character, n int) { v.CommentCount = n })},
	{name: "CollectCount", key: "collects", decode: plain(readInt, func(v *domain.Character, n int) { v.CollectCount = n })},
	{name: "Info", key: "info", decode: info(func(v *domain.Character, pi domain.PersonInfo) { v.Info = pi })},
}, nil)

var userSchema = newSchema("User", []field[domain.User]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.User, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.User, s string) { v.URL = s })},
	{name: "UserName", key: "username", decode: plain(readString, func(v *domain.User, s string) { v.UserName = s })},
	{name: "NickName", key: "nickname", decode: plain(readString, func(v *domain.User, s string) { v.NickName = s })},
	{name: "Avatar", key: "avatar", decode: images(func(v *domain.User, img domain.ImageSource) { v.Avatar = img })},
	{name: "Sign", key: "sign", decode: plain(readString, func(v *domain.User, s string) { v.Sign = s })},
	{name: "UserGroup", key: "usergroup", decode: plain(readInt, func(v *domain.User, n int) { v.UserGroup = n })},
	{name: "Auth", key: "auth", decode: plain(readString, func(v *domain.User, s string) { v.Auth = s })},
	{name: "AuthEncoded", key: "auth_encode", decode: plain(readString, func(v *domain.User, s string) { v.AuthEncoded = s })},
}, nil)

func optionalUser[T any](set func(v *T, u *domain.User)) func(*gojay.Decoder, *Policy, *T) error {
	return func(dec *gojay.Decoder, p *Policy, v *T) error {
		u, err := decodeOptional(dec, userSchema, p)
		if err != nil {
			return err
		}
		set(v, u)
		return nil
	}
}

var episodeSchema = newSchema("Episode", []field[domain.Episode]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Episode, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Episode, s string) { v.URL = s })},
	{name: "Kind", key: "type", decode: with(EpisodeKind, func(v *domain.Episode, k domain.EpisodeKind) { v.Kind = k })},
	{name: "Sort", key: "sort", decode: plain(readFloat, func(v *domain.Episode, f float64) { v.Sort = f })},
	{name: "Name", key: "name", decode: plain(readString, func(v *domain.Episode, s string) { v.Name = s })},
	{name: "ChineseName", key: "name_cn", decode: plain(readString, func(v *domain.Episode, s string) { v.ChineseName = s })},
	{name: "Duration", key: "duration", decode: with(Duration, func(v *domain.Episode, d time.Duration) { v.Duration = d })},
	{name: "AirDate", key: "airdate", decode: with(Date, func(v *domain.Episode, t time.Time) { v.AirDate = t })},
	{name: "CommentCount", key: "comment", decode: plain(readInt, func(v *domain.Episode, n int) { v.CommentCount = n })},
	{name: "Description", key: "desc", decode: plain(readString, func(v *domain.Episode, s string) { v.Description = s })},
	{name: "Status", key: "status", decode: with(AirStatus, func(v *domain.Episode, s domain.EpisodeStatus) { v.Status = s })},
}, nil)

var topicSchema = newSchema("Topic", []field[domain.Topic]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Topic, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Topic, s string) { v.URL = s })},
	{name: "Title", key: "title", decode: plain(readString, func(v *domain.Topic, s string) { v.Title = s })},
	{name: "MainID", key: "main_id", decode: plain(readUint32, func(v *domain.Topic, n uint32) { v.MainID = n })},
	{name: "Timestamp", key: "timestamp", decode: with(Timestamp, func(v *domain.Topic, t time.Time) { v.Timestamp = t })},
	{name: "LastPost", key: "lastpost", decode: with(Timestamp, func(v *domain.Topic, t time.Time) { v.LastPost = t })},
	{name: "ReplyCount", key: "replies", decode: plain(readInt, func(v *domain.Topic, n int) { v.ReplyCount = n })},
	{name: "User", key: "user", decode: optionalUser(func(v *domain.Topic, u *domain.User) { v.User = u })},
}, nil)

var blogSchema = newSchema("Blog", []field[domain.Blog]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Blog, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Blog, s string) { v.URL = s })},
	{name: "Title", key: "title", decode: plain(readString, func(v *domain.Blog, s string) { v.Title = s })},
	{name: "Summary", key: "summary", decode: plain(readString, func(v *domain.Blog, s string) { v.Summary = s })},
	{name: "ThumbImage", key: "image", decode: plain(readString, func(v *domain.Blog, s string) { v.ThumbImage = s })},
	{name: "ReplyCount", key: "replies", decode: plain(readInt, func(v *domain.Blog, n int) { v.ReplyCount = n })},
	{name: "Timestamp", key: "timestamp", decode: with(Timestamp, func(v *domain.Blog, t time.Time) { v.Timestamp = t })},
	{name: "User", key: "user", decode: optionalUser(func(v *domain.Blog, u *domain.User) { v.User = u })},
}, nil)

var subjectSchema = newSchema("Subject", []field[domain.Subject]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *domain.Subject, n uint32) { v.ID = n })},
	{name: "URL", key: "url", decode: plain(readString, func(v *domain.Subject, s string) { v.URL = s })},
	{name: "Type", key: "type", decode: with(SubjectKind, func(v *domain.Subject, t domain.SubjectType) { v.Type = t })},
	{name: "Name", key: "name", decode: plain(readString, func(v *domain.Subject, s string) { v.Name = s })},
	{name: "ChineseName", key: "name_cn", decode: plain(readString, func(v *domain.Subject, s string) { v.ChineseName = s })},
	{name: "Summary", key: "summary", decode: plain(readString, func(v *domain.Subject, s string) { v.Summary = s })},
	// EpisodeCount 与 Episodes 没有默认键：由 Policy 决定 "eps" 喂给哪一个。
	{name: "EpisodeCount", decode: plain(readEpisodeCount, func(v *domain.Subject, n *int) { v.EpisodeCount = n })},
	{name: "Episodes", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Subject) error {
		eps, err := decodeList(dec, episodeSchema, p)
		if err != nil {
			return err
		}
		v.Episodes = eps
		return nil
	}},
	{name: "TotalEpisodes", key: "eps_count", decode: plain(readInt, func(v *domain.Subject, n int) { v.TotalEpisodes = n })},
	{name: "AirDate", key: "air_date", decode: with(Date, func(v *domain.Subject, t time.Time) { v.AirDate = t })},
	{name: "AirWeekday", key: "air_weekday", decode: with(Weekday, func(v *domain.Subject, d time.Weekday) { v.AirWeekday = d })},
	{name: "Rating", key: "rating", decode: with(RatingHistogram, func(v *domain.Subject, r domain.Rating) { v.Rating = r })},
	{name: "Rank", key: "rank", decode: plain(readUint32, func(v *domain.Subject, n uint32) { v.Rank = n })},
	{name: "Images", key: "images", decode: images(func(v *domain.Subject, img domain.ImageSource) { v.Images = img })},
	{name: "CollectionStats", key: "collection", decode: with(CollectionStats, func(v *domain.Subject, m map[domain.CollectionStatus]uint32) { v.CollectionStats = m })},
	{name: "Characters", key: "crt", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Subject) error {
		m, err := decodeAttrMap(dec, p, characterSchema, SidecarActors, personList)
		if err != nil {
			return err
		}
		v.Characters = m
		return nil
	}},
	{name: "Staff", key: "staff", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Subject) error {
		m, err := decodeAttrMap(dec, p, personSchema, SidecarJobs, stringList)
		if err != nil {
			return err
		}
		v.Staff = m
		return nil
	}},
	{name: "Topics", key: "topic", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Subject) error {
		ts, err := decodeList(dec, topicSchema, p)
		if err != nil {
			return err
		}
		v.Topics = ts
		return nil
	}},
	{name: "Blogs", key: "blog", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Subject) error {
		bs, err := decodeList(dec, blogSchema, p)
		if err != nil {
			return err
		}
		v.Blogs = bs
		return nil
	}},
}, finishSubject)

// finishSubject 保证当前模式对应的字段一定被填充，另一个一定为空：
// 即使 "eps" 缺失或为 null，也由模式而不是内容决定结果形态。
func finishSubject(p *Policy, v *domain.Subject) {
	switch p.Mode() {
	case ModeDetailed:
		v.EpisodeCount = nil
		if v.Episodes == nil {
			v.Episodes = []domain.Episode{}
		}
	default:
		v.Episodes = nil
		if v.EpisodeCount == nil {
			n := 0
			v.EpisodeCount = &n
		}
	}
}

// readEpisodeCount 读取 simple 模式下的 "eps"：只接受整数或 null。
// 绑定只由调用方给出的 mode 决定，内容是数组也不改读成列表长度。
func readEpisodeCount(dec *gojay.Decoder) (*int, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return nil, err
	}
	n, err := parseInt(raw)
	if err != nil {
		return nil, err
	}
	c := int(n)
	return &c, nil
}

var collectionSchema = newSchema("Collection", []field[domain.Collection]{
	{name: "SubjectID", key: "subject_id", decode: plain(readUint32, func(v *domain.Collection, n uint32) { v.SubjectID = n })},
	{name: "Name", key: "name", decode: plain(readString, func(v *domain.Collection, s string) { v.Name = s })},
	{name: "Subject", key: "subject", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Collection) error {
		s, err := decodeOptional(dec, subjectSchema, p)
		if err != nil {
			return err
		}
		v.Subject = s
		return nil
	}},
	{name: "Status", key: "status", decode: plain(readCollectionStatus, func(v *domain.Collection, s string) { v.Status = s })},
	{name: "Rating", key: "rating", decode: plain(readUint32, func(v *domain.Collection, n uint32) { v.Rating = n })},
	{name: "Comment", key: "comment", decode: plain(readString, func(v *domain.Collection, s string) { v.Comment = s })},
	{name: "Tags", key: "tag", decode: plain(readStrings, func(v *domain.Collection, s []string) { v.Tags = s })},
	{name: "EpStatus", key: "ep_status", decode: plain(readOptInt, func(v *domain.Collection, n *int) { v.EpStatus = n })},
	{name: "VolStatus", key: "vol_status", decode: plain(readOptInt, func(v *domain.Collection, n *int) { v.VolStatus = n })},
	{name: "LastTouch", key: "lasttouch", decode: with(Timestamp, func(v *domain.Collection, t time.Time) { v.LastTouch = t })},
	{name: "User", key: "user", decode: optionalUser(func(v *domain.Collection, u *domain.User) { v.User = u })},
}, nil)

// readCollectionStatus 兼容 "collect" 与 {"type":"collect","name":"看过"} 两种形态，取 type。
func readCollectionStatus(dec *gojay.Decoder) (string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return "", err
	}
	if isString(raw) {
		return parseString(raw)
	}
	var typ string
	err = unmarshalObject(raw, gojay.DecodeObjectFunc(func(dec *gojay.Decoder, key string) error {
		if key != "type" {
			return nil
		}
		s, err := readString(dec)
		if err != nil {
			return atField("CollectionStatus", key, err)
		}
		typ = s
		return nil
	}))
	return typ, err
}

// readText 读取字符串；数字按原样转为文本（例如身高偶尔以数字给出）。
func readText(dec *gojay.Decoder) (string, error) {
	raw, err := readRaw(dec)
	if err != nil || isNull(raw) {
		return "", err
	}
	if isString(raw) {
		return parseString(raw)
	}
	if _, err := parseFloat(raw); err != nil {
		return "", malformed("string or number", raw, nil)
	}
	return string(raw), nil
}

type watchEntry struct {
	id     uint32
	status domain.WatchStatus
}

var watchStatusSchema = newSchema("WatchStatus", []field[domain.WatchStatus]{
	{name: "ID", key: "id", required: true, decode: func(dec *gojay.Decoder, _ *Policy, v *domain.WatchStatus) error {
		raw, err := readRaw(dec)
		if err != nil {
			return err
		}
		n, err := parseInt(raw)
		if err != nil {
			return err
		}
		switch s := domain.WatchStatus(n); s {
		case domain.WatchQueue, domain.WatchWatched, domain.WatchDropped:
			*v = s
			return nil
		default:
			return unrecognized(string(raw))
		}
	}},
}, nil)

var watchEntrySchema = newSchema("EpisodeProgress", []field[watchEntry]{
	{name: "ID", key: "id", required: true, decode: plain(readUint32, func(v *watchEntry, n uint32) { v.id = n })},
	{name: "Status", key: "status", required: true, decode: func(dec *gojay.Decoder, p *Policy, v *watchEntry) error {
		return decodeInto(dec, watchStatusSchema, p, &v.status)
	}},
}, nil)

var progressSchema = newSchema("Progress", []field[domain.Progress]{
	{name: "SubjectID", key: "subject_id", decode: plain(readUint32, func(v *domain.Progress, n uint32) { v.SubjectID = n })},
	{name: "Episodes", key: "eps", decode: func(dec *gojay.Decoder, p *Policy, v *domain.Progress) error {
		entries, err := decodeList(dec, watchEntrySchema, p)
		if err != nil {
			return err
		}
		if v.Episodes == nil {
			v.Episodes = make(map[uint32]domain.WatchStatus, len(entries))
		}
		for _, e := range entries {
			v.Episodes[e.id] = e.status
		}
		return nil
	}},
}, nil)

type notifyCount struct{ count int }

var notifySchema = newSchema("NotifyCount", []field[notifyCount]{
	{name: "Count", key: "count", required: true, decode: plain(readInt, func(v *notifyCount, n int) { v.count = n })},
}, nil)

var apiErrorSchema = newSchema("APIError", []field[APIError]{
	{name: "Request", key: "request", decode: plain(readString, func(v *APIError, s string) { v.Request = s })},
	{name: "Code", key: "code", decode: plain(readInt, func(v *APIError, n int) { v.Code = n })},
	{name: "Message", key: "error", decode: plain(readText, func(v *APIError, s string) { v.Message = s })},
}, nil)
