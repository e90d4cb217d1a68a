package templates

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/brattlof/userboard/internal/api"
)

// ViewData is everything the dashboard markup depends on. View and Version
// identify the page's view and the state revision being rendered.
type ViewData struct {
	View    string
	Version uint64
	Users   []api.User
	Loading bool
	Error   string
	Health  *api.Health
}

// Initial is the upper-cased first character of name, or "" for an empty name.
func Initial(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return ""
	}
	return strings.ToUpper(string(r))
}

func JoinedDate(u api.User, locale language.Tag) string {
	t, ok := u.Joined()
	if !ok {
		return "Invalid Date"
	}
	return FormatDate(t, locale)
}
