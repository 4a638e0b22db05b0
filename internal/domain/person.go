package domain

import "fmt"

// RoleType 是角色在作品中的定位。零值表示数据中没有给出。
type RoleType int

const (
	RoleUnset RoleType = iota
	RoleLead
	RoleSupporting
	RoleGuest
)

func (r RoleType) String() string {
	switch r {
	case RoleUnset:
		return "unset"
	case RoleLead:
		return "lead"
	case RoleSupporting:
		return "supporting"
	case RoleGuest:
		return "guest"
	default:
		return fmt.Sprintf("RoleType(%d)", int(r))
	}
}

// PersonInfo 是角色/人物的附加资料。
type PersonInfo struct {
	ChineseName string
	Birthday    string
	Aliases     map[string]string // 例如 "romaji" -> "Tsuda Takatoshi"
	// Gender: nil 表示未给出；false 男，true 女。
	Gender    *bool
	BloodType int
	Height    string
	Weight    string
	BWH       string
	Source    []string
}

// Character 是作品中的虚构角色。
type Character struct {
	ID           uint32
	URL          string
	Name         string
	ChineseName  string
	Role         RoleType
	Images       ImageSource
	CommentCount int
	CollectCount int
	Info         PersonInfo
}

// Identity 实现 Identified。
func (c Character) Identity() uint32 { return c.ID }

// Person 是现实人物（声优、制作人员等）。
type Person struct {
	ID           uint32
	URL          string
	Name         string
	ChineseName  string
	Images       ImageSource
	CommentCount int
	CollectCount int
	Info         PersonInfo
}

// Identity 实现 Identified。
func (p Person) Identity() uint32 { return p.ID }
