package domain

import "time"

// User 是 bangumi 用户。
//
// Auth 仅在认证接口的响应中出现，是本次会话的认证串，不要写入日志。
type User struct {
	ID          uint32
	URL         string
	UserName    string
	NickName    string
	Avatar      ImageSource
	Sign        string
	UserGroup   int
	Auth        string
	AuthEncoded string
}

// Authenticated 报告该用户对象是否带有可用的认证串。
func (u User) Authenticated() bool { return u.ID != 0 && u.Auth != "" }

// Collection 是用户的一条收藏。
type Collection struct {
	SubjectID uint32
	Name      string
	Subject   *Subject

	Status    string
	Rating    uint32
	Comment   string
	Tags      []string
	EpStatus  *int // 看到的最新集数，未给出为 nil
	VolStatus *int
	LastTouch time.Time

	User *User
}
