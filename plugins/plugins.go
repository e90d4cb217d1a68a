// Package plugins lists the plugins compiled into userboard binaries.
package plugins

import (
	"github.com/brattlof/userboard/pkg/plugin"
	"github.com/brattlof/userboard/plugins/basicauth"
	"github.com/brattlof/userboard/plugins/headers"
	"github.com/brattlof/userboard/plugins/ratelimit"
)

func Builtin() map[string]plugin.Factory {
	return map[string]plugin.Factory{
		"basicauth": func() plugin.Plugin { return basicauth.New() },
		"headers":   func() plugin.Plugin { return headers.New() },
		"ratelimit": func() plugin.Plugin { return ratelimit.New() },
	}
}
