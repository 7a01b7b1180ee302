// Package ghrelease implements the optional archive-host API fast path:
// given a URL shaped like a release-hosting asset download, it asks the
// host's REST API whether the asset exists instead of paying for a full
// HTTP fetch. On rate-limit or auth failure it latches itself off for the
// rest of the process and the caller falls back to a raw HEAD.
package ghrelease

import (
	"regexp"
)

// assetURLPattern matches ".../<owner>/<repo>/releases/download/<tag>/<name>".
var assetURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/releases/download/([^/]+)/([^/]+)$`)

// AssetRef identifies one release asset.
type AssetRef struct {
	Owner string
	Repo  string
	Tag   string
	Name  string
}

// ParseAssetURL reports whether url is shaped like a GitHub release asset
// download URL, returning its components if so.
func ParseAssetURL(url string) (AssetRef, bool) {
	m := assetURLPattern.FindStringSubmatch(url)
	if m == nil {
		return AssetRef{}, false
	}
	return AssetRef{Owner: m[1], Repo: m[2], Tag: m[3], Name: m[4]}, true
}
