package internal

// CharacterDetails 客戶端送來的角色外觀（欄位皆可缺省）
type CharacterDetails struct {
	Color *string `json:"color,omitempty"`
	Hat   *string `json:"hat,omitempty"`
	Eyes  *string `json:"eyes,omitempty"`
}

// Appearance 成員外觀，每個欄位都是不透明字串，缺省為空字串
type Appearance struct {
	Color string `json:"color"`
	Hat   string `json:"hat"`
	Eyes  string `json:"eyes"`
}

// Member 房間成員
//
// ConnectionID 同時代表網路端點與玩家身份；DisplayName 不要求唯一。
type Member struct {
	ConnectionID string
	DisplayName  string
	Appearance   Appearance
}

// MemberView 廣播用的成員投影（update-users 的元素）
type MemberView struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	CharacterDetails Appearance `json:"characterDetails"`
}

// NewMember 建立成員，在此統一處理外觀缺省值
func NewMember(connID, displayName string, details *CharacterDetails) Member {
	return Member{
		ConnectionID: connID,
		DisplayName:  displayName,
		Appearance:   resolveAppearance(details),
	}
}

func resolveAppearance(details *CharacterDetails) Appearance {
	if details == nil {
		return Appearance{}
	}
	return Appearance{
		Color: valueOrEmpty(details.Color),
		Hat:   valueOrEmpty(details.Hat),
		Eyes:  valueOrEmpty(details.Eyes),
	}
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m Member) view() MemberView {
	return MemberView{
		ID:               m.ConnectionID,
		Username:         m.DisplayName,
		CharacterDetails: m.Appearance,
	}
}
