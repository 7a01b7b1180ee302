package resolver

import (
	"net/url"
	"strings"
)

// repositoryHost identifies a known release-hosting service so a
// sensible default pkg_url template set can be filled in when a
// package's metadata omits pkg_url entirely.
type repositoryHost int

const (
	hostUnknown repositoryHost = iota
	hostGitHub
	hostGitLab
	hostBitBucket
	hostSourceForge
)

// guessHost inspects repo's domain to classify it.
func guessHost(repo string) repositoryHost {
	u, err := url.Parse(repo)
	if err != nil || u.Host == "" {
		return hostUnknown
	}
	domain := strings.ToLower(u.Hostname())
	switch {
	case strings.HasPrefix(domain, "github"):
		return hostGitHub
	case strings.HasPrefix(domain, "gitlab"):
		return hostGitLab
	case domain == "bitbucket.org":
		return hostBitBucket
	case domain == "sourceforge.net":
		return hostSourceForge
	default:
		return hostUnknown
	}
}

// fullFilenames are asset name shapes that include both name and
// version; noVersionFilenames omit the version, for hosts/packages whose
// "latest" assets are unversioned.
var (
	fullFilenames = []string{
		"{ name }-{ target }-v{ version }.{ archive-format }",
		"{ name }-{ target }-{ version }.{ archive-format }",
		"{ name }-{ version }-{ target }.{ archive-format }",
		"{ name }-v{ version }-{ target }.{ archive-format }",
	}
	noVersionFilenames = []string{
		"{ name }-{ target }.{ archive-format }",
	}
)

// defaultURLTemplates fills in the fallback pkg_url candidates for
// repo's hosting service when a package's metadata doesn't supply its
// own. Returns nil for an unrecognized host, matching the original
// "no fallback possible" case.
func defaultURLTemplates(repo string) []string {
	switch guessHost(repo) {
	case hostGitHub:
		return applyFilenames(
			[]string{
				"{ repo }/releases/download/{ version }",
				"{ repo }/releases/download/v{ version }",
			},
			fullFilenames, noVersionFilenames,
		)
	case hostGitLab:
		return applyFilenames(
			[]string{
				"{ repo }/-/releases/{ version }/downloads/binaries",
				"{ repo }/-/releases/v{ version }/downloads/binaries",
			},
			fullFilenames, noVersionFilenames,
		)
	case hostBitBucket:
		return applyFilenames(
			[]string{"{ repo }/downloads"},
			fullFilenames,
		)
	case hostSourceForge:
		base := applyFilenames(
			[]string{
				"{ repo }/files/binaries/{ version }",
				"{ repo }/files/binaries/v{ version }",
			},
			fullFilenames, noVersionFilenames,
		)
		out := make([]string, len(base))
		for i, u := range base {
			out[i] = u + "/download"
		}
		return out
	default:
		return nil
	}
}

// applyFilenames cross-joins every path with every filename across all
// filename groups, path innermost: filenames within the first group are
// tried against every path before moving to the next group, so a
// versioned filename shape is always attempted before an unversioned one.
func applyFilenames(paths []string, filenameGroups ...[]string) []string {
	var out []string
	for _, group := range filenameGroups {
		for _, filename := range group {
			for _, path := range paths {
				out = append(out, path+"/"+filename)
			}
		}
	}
	return out
}
