// Package appfs exposes the app's embedded static files: goose migrations
// and email templates.
package appfs

import "embed"

//go:embed migrations templates templates/email/_base.txt templates/email/_base.gohtml
var FS embed.FS
