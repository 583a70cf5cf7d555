package realtime

// Group is a broadcast target. It is a two-variant sum: the personal
// group of one user, or the single shared premium group. The zero Group
// is neither and matches no members.
type Group struct {
	kind   groupKind
	userID string
}

type groupKind int

const (
	groupNone groupKind = iota
	groupPersonal
	groupPremium
)

// Premium is the shared group of all sessions whose last-known premium
// flag is true.
var Premium = Group{kind: groupPremium}

// PersonalGroup is the group holding every live session of one user.
func PersonalGroup(userID string) Group {
	return Group{kind: groupPersonal, userID: userID}
}

func (g Group) String() string {
	switch g.kind {
	case groupPersonal:
		return "personal:" + g.userID
	case groupPremium:
		return "premium"
	}
	return "none"
}
