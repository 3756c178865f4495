// Package scaffold embeds the skeleton site written by "pubrender new".
package scaffold

import "embed"

// Templates holds the skeleton. Files ending in .tmpl are Go text/templates;
// everything else is copied as is.
//
//go:embed all:templates
var Templates embed.FS
