package sensor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// monthTokenRe matches the date-range token embedded in every export path,
// e.g. "20190801_20190831".
var monthTokenRe = regexp.MustCompile(`\d{8}_\d{8}`)

// Meta is the identity extracted from an export file path.
type Meta struct {
	ParticipantID string
	DeviceID      string
	Month         string
}

// PathError reports a file path that does not match the expected export
// layout. Malformed paths indicate a data-layout bug upstream, so callers
// must abort the file rather than guess.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %s does not match export layout: %s", e.Path, e.Reason)
}

// ExtractPathMeta derives participant, device and month identity from a path
// shaped like
//
//	.../Sensors_U02_ALLSITES_20190801_20190831/U02/FC/096/2M4Y4111FK/temp.csv
//
// The device ID is the segment directly above the filename; the participant
// ID is the lowercased site segment concatenated with the participant suffix
// between site and device.
func ExtractPathMeta(path string) (Meta, error) {
	month := monthTokenRe.FindString(path)
	if month == "" {
		return Meta{}, &PathError{Path: path, Reason: "no 8digit_8digit month token"}
	}

	segs := strings.Split(filepath.ToSlash(path), "/")
	// filename, device, ppt-suffix, site: four trailing segments minimum.
	if len(segs) < 4 {
		return Meta{}, &PathError{Path: path, Reason: "too few path segments"}
	}
	deviceID := segs[len(segs)-2]
	site := segs[len(segs)-4]
	suffix := segs[len(segs)-3]
	if deviceID == "" || site == "" || suffix == "" {
		return Meta{}, &PathError{Path: path, Reason: "empty path segment"}
	}

	return Meta{
		ParticipantID: strings.ToLower(site) + suffix,
		DeviceID:      deviceID,
		Month:         month,
	}, nil
}
