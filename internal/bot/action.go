package bot

import (
	"strconv"
	"strings"
)

// ActionKind is the closed set of inline button actions.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionBook
	ActionAdminAdd
	ActionAdminSelect
	ActionAdminQuickAdd
	ActionAdminSetQuantity
	ActionAdminDelete
	ActionAdminConfirmDelete
	ActionAdminCancelDelete
	ActionAdminBack
	ActionAdminCancel
)

// Action is a parsed callback token.
type Action struct {
	Kind ActionKind
	ID   int64
}

const adminPrefix = "admin_"

// Token prefixes. Longer prefixes must be matched before their own prefixes.
var idTokens = []struct {
	prefix string
	kind   ActionKind
}{
	{"book_", ActionBook},
	{"admin_select_", ActionAdminSelect},
	{"admin_add_5_", ActionAdminQuickAdd},
	{"admin_set_", ActionAdminSetQuantity},
	{"admin_del_yes_", ActionAdminConfirmDelete},
	{"admin_del_no_", ActionAdminCancelDelete},
	{"admin_del_", ActionAdminDelete},
}

var plainTokens = map[string]ActionKind{
	"admin_add":    ActionAdminAdd,
	"admin_back":   ActionAdminBack,
	"admin_cancel": ActionAdminCancel,
}

// ParseAction turns callback data into an Action. Malformed tokens yield
// ActionUnknown; they still count as admin actions if namespaced as such.
func ParseAction(token string) Action {
	if kind, ok := plainTokens[token]; ok {
		return Action{Kind: kind}
	}
	for _, t := range idTokens {
		rest, ok := strings.CutPrefix(token, t.prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return Action{Kind: ActionUnknown}
		}
		return Action{Kind: t.kind, ID: id}
	}
	return Action{Kind: ActionUnknown}
}

// IsAdminToken reports whether token is in the admin namespace, whether or
// not it parses.
func IsAdminToken(token string) bool {
	return strings.HasPrefix(token, adminPrefix)
}

// Token renders a for use as callback data.
func (a Action) Token() string {
	switch a.Kind {
	case ActionAdminAdd:
		return "admin_add"
	case ActionAdminBack:
		return "admin_back"
	case ActionAdminCancel:
		return "admin_cancel"
	}
	for _, t := range idTokens {
		if t.kind == a.Kind {
			return t.prefix + strconv.FormatInt(a.ID, 10)
		}
	}
	return ""
}

func bookToken(id int64) string { return Action{Kind: ActionBook, ID: id}.Token() }
