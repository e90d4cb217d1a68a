package dashboard

import (
	"github.com/brattlof/userboard/internal/api"
	"github.com/brattlof/userboard/internal/templates"
)

// State is the record the dashboard renders from. Error is empty when no
// error is shown. Error and a non-empty Users list may coexist: a failed
// refresh keeps the previous list visible. Version grows with every change
// so a browser can discard renders older than the one it already shows.
type State struct {
	Users   []api.User
	Loading bool
	Error   string
	Health  *api.Health
	Version uint64
}

func (s State) clone() State {
	out := s
	if s.Users != nil {
		out.Users = make([]api.User, len(s.Users))
		copy(out.Users, s.Users)
	}
	if s.Health != nil {
		h := *s.Health
		out.Health = &h
	}
	return out
}

func (s State) ViewData() templates.ViewData {
	return templates.ViewData{
		Users:   s.Users,
		Loading: s.Loading,
		Error:   s.Error,
		Health:  s.Health,
		Version: s.Version,
	}
}
