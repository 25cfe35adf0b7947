// Package cot encodes telemetry as Cursor-on-Target XML events carrying the
// TAK marker detail schema.
package cot

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/signalsfoundry/telemetry-generator/protocol"
)

// Schema defaults applied to every event built by this package.
const (
	Version                = "2.0"
	TypeFriendlyGroundUnit = "a-f-G-U-C"
	HowMachineGPS          = "m-g"

	// UnknownError is the CoT sentinel for an unknown circular/linear error.
	UnknownError = 9999999.0
)

// Event is a CoT <event> with a TAK marker <detail>.
type Event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr"`
	Type    string   `xml:"type,attr"`
	How     string   `xml:"how,attr"`
	Time    string   `xml:"time,attr,omitempty"`
	Start   string   `xml:"start,attr,omitempty"`
	Stale   string   `xml:"stale,attr,omitempty"`

	Point  Point  `xml:"point"`
	Detail Detail `xml:"detail"`
}

// Point is the event position. HAE is height above the WGS-84 ellipsoid.
type Point struct {
	Lat float64  `xml:"lat,attr"`
	Lon float64  `xml:"lon,attr"`
	HAE float32  `xml:"hae,attr"`
	CE  Accuracy `xml:"ce,attr"`
	LE  Accuracy `xml:"le,attr"`
}

// Accuracy is a circular or linear error in metres. It is written in plain
// decimal notation ("9999999.0") as TAK producers do.
type Accuracy float64

// MarshalXMLAttr implements xml.MarshalerAttr.
func (a Accuracy) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	v := strconv.FormatFloat(float64(a), 'f', -1, 64)
	if !strings.ContainsAny(v, ".NI") {
		v += ".0"
	}
	return xml.Attr{Name: name, Value: v}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (a *Accuracy) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
	if err != nil {
		return fmt.Errorf("cot: %s: %w", attr.Name.Local, err)
	}
	*a = Accuracy(v)
	return nil
}

// Detail is the TAK marker detail block.
type Detail struct {
	Contact           Contact           `xml:"contact"`
	Group             Group             `xml:"__group"`
	Status            Status            `xml:"status"`
	TakV              TakV              `xml:"takv"`
	Track             Track             `xml:"track"`
	PrecisionLocation PrecisionLocation `xml:"precisionlocation"`
	UID               DetailUID         `xml:"uid"`
}

type Contact struct {
	Callsign string `xml:"callsign,attr"`
	Endpoint string `xml:"endpoint,attr,omitempty"`
}

type Group struct {
	Name string `xml:"name,attr,omitempty"`
	Role string `xml:"role,attr,omitempty"`
}

type Status struct {
	Battery string `xml:"battery,attr,omitempty"`
}

type TakV struct {
	Device   string `xml:"device,attr,omitempty"`
	Platform string `xml:"platform,attr,omitempty"`
	OS       string `xml:"os,attr,omitempty"`
	Version  string `xml:"version,attr,omitempty"`
}

type Track struct {
	Course float64 `xml:"course,attr"`
	Speed  float64 `xml:"speed,attr"`
}

type PrecisionLocation struct {
	AltSrc      string `xml:"altsrc,attr,omitempty"`
	GeoPointSrc string `xml:"geopointsrc,attr,omitempty"`
}

type DetailUID struct {
	Droid string `xml:"Droid,attr,omitempty"`
}

// FromCoordinates returns an event carrying only the given position and the
// schema defaults.
func FromCoordinates(lat, lon float64, altHAE float32) Event {
	return Event{
		Version: Version,
		Type:    TypeFriendlyGroundUnit,
		How:     HowMachineGPS,
		Point: Point{
			Lat: lat,
			Lon: lon,
			HAE: altHAE,
			CE:  UnknownError,
			LE:  UnknownError,
		},
	}
}

// WithAgentID sets both the event uid and the contact callsign to id.
// The receiver is a value, so the caller's event is left unchanged.
func (e Event) WithAgentID(id string) protocol.Message {
	e.UID = id
	e.Detail.Contact.Callsign = id
	e.Detail.UID.Droid = id
	return e
}

// Bytes marshals the event as an XML document.
func (e Event) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode cot event: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses an XML document produced by Bytes (or any CoT event using
// the same detail schema).
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := xml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cot event: %w", err)
	}
	return &e, nil
}
