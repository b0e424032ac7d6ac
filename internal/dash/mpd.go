package dash

import "encoding/xml"

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName xml.Name `xml:"MPD"`
	Type    string   `xml:"type,attr"`
	Periods []Period `xml:"Period"`
}

// Period represents a media content period.
type Period struct {
	ID      string          `xml:"id,attr"`
	BaseURL string          `xml:"BaseURL"`
	Sets    []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID               string              `xml:"id,attr"`
	ContentType      string              `xml:"contentType,attr"`
	MimeType         string              `xml:"mimeType,attr"`
	SegmentAlignment bool                `xml:"segmentAlignment,attr"`
	Representations  []RepresentationXML `xml:"Representation"`
	SegmentTemplate  SegmentTemplate     `xml:"SegmentTemplate"`
}

// RepresentationXML is a specific media stream as declared in the manifest.
type RepresentationXML struct {
	ID        string `xml:"id,attr"`
	Bandwidth int    `xml:"bandwidth,attr"`
	Codecs    string `xml:"codecs,attr"`
	Width     int    `xml:"width,attr,omitempty"`
	Height    int    `xml:"height,attr,omitempty"`
}

// SegmentTemplate defines segment addressing and timing for a set.
// Duration and Timescale together yield the fixed segment duration.
type SegmentTemplate struct {
	Timescale      float64 `xml:"timescale,attr"`
	Duration       float64 `xml:"duration,attr"`
	Initialization string  `xml:"initialization,attr"`
	Media          string  `xml:"media,attr"`
}

// Mime types used to locate the adaptation sets this engine consumes.
const (
	MimeVideo = "video/mp4"
	MimeAudio = "audio/mp4"
)

// setsByMime returns all adaptation sets matching the given mime type,
// searching every period.
func (m *MPD) setsByMime(mime string) []*AdaptationSet {
	var sets []*AdaptationSet
	for i := range m.Periods {
		for j := range m.Periods[i].Sets {
			if m.Periods[i].Sets[j].MimeType == mime {
				sets = append(sets, &m.Periods[i].Sets[j])
			}
		}
	}
	return sets
}
