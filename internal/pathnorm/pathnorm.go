// Package pathnorm implements the VZFS path normalizer (N): a pure
// function turning a (cwd, input) pair into a canonical absolute path.
// It has no dependency on the store or the tree.
package pathnorm

import (
	"strings"

	"github.com/dvanderweele/vzfs/internal/vzerr"
)

const op = "pathnorm.Normalize"

// allowed reports whether r is in the grammar [A-Za-z0-9_/.-].
func allowed(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '/' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}

// AbsPathToPieces splits a canonical absolute path into the plain
// segment list Normalize folds over, e.g. "/foo/bar/" -> ["foo","bar"],
// "/" -> nil. Used to seed cwdPieces when composing a relative path
// against a cwd.
func AbsPathToPieces(path string) []string {
	var pieces []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			pieces = append(pieces, seg)
		}
	}
	return pieces
}

// Normalize turns input (interpreted relative to cwdPieces when it is
// not itself absolute) into a canonical absolute path.
//
// Rules (see spec §4.1):
//  1. The exact strings "/.." and "" are rejected outright.
//  2. "/." is rewritten to "/"; an input ending in "/.." has a
//     trailing "/" appended so ".." is processed as its own segment.
//  3. The input is split on "/"; runs of empty interior segments
//     collapse (they carry no information and are dropped, like ".").
//     A leading empty segment marks the input absolute; a trailing
//     empty segment marks it as ending in "/" (a directory reference).
//  4. An absolute input starts folding from no pieces; a relative one
//     starts from cwdPieces.
//  5. Non-marker segments fold left to right: "." drops, ".." pops the
//     last accumulated segment (refusing to pop past the root is an
//     InvalidPath), anything else pushes.
//  6. The result is always absolute: "/" followed by the folded pieces
//     joined with "/", with a trailing "/" restored if the input ended
//     in one. The bare root is "/".
func Normalize(input string, cwdPieces []string) (string, error) {
	if input == "/.." || input == "" {
		return "", vzerr.New(vzerr.InvalidPath, op, nil)
	}
	for _, r := range input {
		if !allowed(r) {
			return "", vzerr.New(vzerr.InvalidPath, op, nil)
		}
	}

	if input == "/." {
		input = "/"
	} else {
		for strings.Contains(input, "/./") {
			input = strings.ReplaceAll(input, "/./", "/")
		}
		if strings.HasSuffix(input, "/..") {
			input += "/"
		}
	}

	rawSegments := strings.Split(input, "/")
	absolute := rawSegments[0] == ""
	trailingSlash := len(rawSegments) > 1 && rawSegments[len(rawSegments)-1] == ""

	var pieces []string
	if absolute {
		pieces = nil
	} else {
		pieces = append([]string(nil), cwdPieces...)
	}

	for _, seg := range rawSegments {
		switch seg {
		case "", ".":
			// Marker or no-op segment: carries no path information once
			// classified above, so it is dropped from the fold.
		case "..":
			if len(pieces) == 0 {
				return "", vzerr.New(vzerr.InvalidPath, op, nil)
			}
			pieces = pieces[:len(pieces)-1]
		default:
			pieces = append(pieces, seg)
		}
	}

	joined := "/" + strings.Join(pieces, "/")
	if trailingSlash && joined != "/" {
		joined += "/"
	}
	return joined, nil
}
