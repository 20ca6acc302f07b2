package model

// Group はユーザーが参加するリスニンググループを表す。
// Membersは順序を持たないユーザーID集合（重複なし）として扱う。
type Group struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Members []string `json:"members"`
}

// HasMember は指定ユーザーIDがメンバーに含まれるかを返す。
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
