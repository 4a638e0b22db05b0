package domain

// Identified 由可以作为 AttrMap 键的实体实现；相等性只看 Identity()。
type Identified interface {
	Identity() uint32
}

// Entry 是 AttrMap 中的一个键值对。
type Entry[K Identified, V any] struct {
	Key   K
	Value V
}

// AttrMap 是“实体 -> 附属属性”的只读映射（例如 角色 -> 声优列表、人物 -> 职务列表）。
//
// 约束：
// - 键的相等性由 Identity() 决定，而不是对象本身
// - 迭代顺序是首次出现的顺序；重复 ID 的后一条覆盖前一条（键与值都替换），位置不变
type AttrMap[K Identified, V any] struct {
	entries []Entry[K, V]
	index   map[uint32]int
}

// NewAttrMap 按顺序构造 AttrMap。
func NewAttrMap[K Identified, V any](entries []Entry[K, V]) AttrMap[K, V] {
	m := AttrMap[K, V]{
		entries: make([]Entry[K, V], 0, len(entries)),
		index:   make(map[uint32]int, len(entries)),
	}
	for _, e := range entries {
		id := e.Key.Identity()
		if i, ok := m.index[id]; ok {
			m.entries[i] = e
			continue
		}
		m.index[id] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m
}

// Len 返回不同键的数量。
func (m AttrMap[K, V]) Len() int { return len(m.entries) }

// Get 以 k.Identity() 查找。
func (m AttrMap[K, V]) Get(k K) (V, bool) {
	_, v, ok := m.Lookup(k.Identity())
	return v, ok
}

// Lookup 按 ID 查找键与值。
func (m AttrMap[K, V]) Lookup(id uint32) (K, V, bool) {
	i, ok := m.index[id]
	if !ok {
		var (
			k K
			v V
		)
		return k, v, false
	}
	e := m.entries[i]
	return e.Key, e.Value, true
}

// Keys 返回键的副本。
func (m AttrMap[K, V]) Keys() []K {
	out := make([]K, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Key
	}
	return out
}

// Entries 返回键值对的副本。
func (m AttrMap[K, V]) Entries() []Entry[K, V] {
	return append([]Entry[K, V](nil), m.entries...)
}

// Each 顺序遍历；fn 返回 false 时停止。
func (m AttrMap[K, V]) Each(fn func(K, V) bool) {
	for _, e := range m.entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}
