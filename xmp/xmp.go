// Package xmp implements the XMP collaborator spec.md §4.6/§9 treats
// as external: parsing and serializing the small, fixed slice of RDF
// properties this engine actually edits (tiff:Orientation,
// exif:DateTimeOriginal, exif:GPSLatitude/Longitude, xmp:Rating,
// dc:subject, MP:RegionPersonDisplayName). It does not attempt a
// general-purpose RDF/XML model: rdf:Description attributes it does not
// model are kept and written back out, while child elements other than
// dc:subject and MP:RegionPersonDisplayName are not kept.
package xmp

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

const (
	packetHeader = `<?xpacket begin="﻿" id="W5M0MpCehiHzreSzNTczkc9d"?>`
	packetFooter = `<?xpacket end="w"?>`

	rdfNS   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	xNS     = "adobe:ns:meta/"
	tiffNS  = "http://ns.adobe.com/tiff/1.0/"
	exifNS  = "http://ns.adobe.com/exif/1.0/"
	xmpNS   = "http://ns.adobe.com/xap/1.0/"
	dcNS    = "http://purl.org/dc/elements/1.1/"
	mpRegNS = "http://ns.microsoft.com/photo/1.2/"
)

// ErrInvalidXMP is returned when an input string isn't parseable as an
// XMP/RDF packet.
var ErrInvalidXMP = errors.New("xmp: invalid packet")

// Doc is the in-memory form of the properties this engine cares about.
// Every pointer field is nil when absent, matching the collaborator's
// set/delete semantics.
type Doc struct {
	Orientation      *int
	DateTimeOriginal *string
	GPSLatitude      *string
	GPSLongitude     *string
	Rating           *int
	Keywords         []string
	Persons          []string

	// unknownProps holds any rdf:Description attributes this package
	// doesn't model, written back out by Serialize. Unknown child
	// elements are not kept.
	unknownProps []xml.Attr
}

// Empty returns a Doc with no properties set, matching the
// collaborator's empty() constructor — used when an image carries no
// pre-existing XMP packet.
func Empty() *Doc {
	return &Doc{}
}

// rdfXMPMeta/rdfElement/rdfDescription/rdfBagElem/rdfSeqElem mirror just enough of the RDF/XML
// shape to decode a packet written by this package (or a compatible
// one) back into a Doc.
type rdfXMPMeta struct {
	XMLName xml.Name   `xml:"xmpmeta"`
	RDF     rdfElement `xml:"RDF"`
}

type rdfElement struct {
	Description rdfDescription `xml:"Description"`
}

type rdfDescription struct {
	Attrs   []xml.Attr  `xml:",any,attr"`
	Subject *rdfBagElem `xml:"subject"`
	Persons *rdfSeqElem `xml:"RegionPersonDisplayName"`
}

type rdfBagElem struct {
	Items []string `xml:"Bag>li"`
}

type rdfSeqElem struct {
	Items []string `xml:"Seq>li"`
}

// ParseFromString parses an existing XMP packet (with or without the
// <?xpacket?> wrapper) into a Doc.
func ParseFromString(s string) (*Doc, error) {
	body := stripPacketWrapper(s)
	var meta rdfXMPMeta
	if err := xml.Unmarshal([]byte(body), &meta); err != nil {
		return nil, errors.Wrap(ErrInvalidXMP, err.Error())
	}

	d := &Doc{}
	var kept []xml.Attr
	for _, a := range meta.RDF.Description.Attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			// Namespace declarations are emitted unconditionally by
			// Serialize; don't round-trip them as "unknown" properties.
			continue
		}
		switch a.Name.Local {
		case "about":
			// rdf:about is emitted unconditionally by Serialize; don't
			// round-trip it as an "unknown" property.
		case "Orientation":
			if v, err := strconv.Atoi(a.Value); err == nil {
				d.Orientation = &v
			}
		case "DateTimeOriginal":
			v := a.Value
			d.DateTimeOriginal = &v
		case "GPSLatitude":
			v := a.Value
			d.GPSLatitude = &v
		case "GPSLongitude":
			v := a.Value
			d.GPSLongitude = &v
		case "Rating":
			if v, err := strconv.Atoi(a.Value); err == nil {
				d.Rating = &v
			}
		default:
			kept = append(kept, a)
		}
	}
	d.unknownProps = kept
	if meta.RDF.Description.Subject != nil {
		d.Keywords = append([]string(nil), meta.RDF.Description.Subject.Items...)
	}
	if meta.RDF.Description.Persons != nil {
		d.Persons = append([]string(nil), meta.RDF.Description.Persons.Items...)
	}
	return d, nil
}

func stripPacketWrapper(s string) string {
	start := bytes.IndexByte([]byte(s), '<')
	if begin := bytesIndex(s, "<xmpmeta"); begin >= 0 {
		start = begin
	}
	end := len(s)
	if closeIdx := bytesLastIndex(s, "</xmpmeta>"); closeIdx >= 0 {
		end = closeIdx + len("</xmpmeta>")
	}
	if start < 0 || start >= end {
		return s
	}
	return s[start:end]
}

func bytesIndex(s, sub string) int    { return indexOf(s, sub, false) }
func bytesLastIndex(s, sub string) int { return indexOf(s, sub, true) }

func indexOf(s, sub string, last bool) int {
	found := -1
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			found = i
			if !last {
				return found
			}
		}
	}
	return found
}

// SetOrientation sets tiff:Orientation.
func (d *Doc) SetOrientation(v int) { d.Orientation = &v }

// SetDateTimeOriginal sets exif:DateTimeOriginal to an ISO-8601 string.
func (d *Doc) SetDateTimeOriginal(iso string) { d.DateTimeOriginal = &iso }

// DeleteDateTimeOriginal removes exif:DateTimeOriginal.
func (d *Doc) DeleteDateTimeOriginal() { d.DateTimeOriginal = nil }

// SetGPSCoordinates sets exif:GPSLatitude/GPSLongitude from pre-rendered
// DDM strings (gpsconv.LatitudeDDM/LongitudeDDM).
func (d *Doc) SetGPSCoordinates(latDDM, lonDDM string) {
	d.GPSLatitude = &latDDM
	d.GPSLongitude = &lonDDM
}

// DeleteGPSCoordinates removes both GPS properties.
func (d *Doc) DeleteGPSCoordinates() {
	d.GPSLatitude = nil
	d.GPSLongitude = nil
}

// SetRating sets xmp:Rating.
func (d *Doc) SetRating(v int) { d.Rating = &v }

// SetKeywords replaces the dc:subject bag.
func (d *Doc) SetKeywords(keywords []string) {
	d.Keywords = append([]string(nil), keywords...)
}

// DeleteKeywords clears dc:subject.
func (d *Doc) DeleteKeywords() { d.Keywords = nil }

// SetPersonsInImage replaces the MP:RegionPersonDisplayName sequence.
func (d *Doc) SetPersonsInImage(persons []string) {
	d.Persons = append([]string(nil), persons...)
}

// DeletePersonsInImage clears MP:RegionPersonDisplayName.
func (d *Doc) DeletePersonsInImage() { d.Persons = nil }

// SerializeOptions controls packet framing (spec.md §7: "packet wrapper
// omitted when embedding in JPEG/JXL, included when writing to
// sidecars").
type SerializeOptions struct {
	WritePacketWrapper bool
}

// Serialize renders the doc as compact RDF/XML, properties in a fixed,
// sorted attribute order for determinism.
func (d *Doc) Serialize(opts SerializeOptions) string {
	var attrs []xml.Attr
	if d.Orientation != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "tiff:Orientation"}, Value: strconv.Itoa(*d.Orientation)})
	}
	if d.DateTimeOriginal != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "exif:DateTimeOriginal"}, Value: *d.DateTimeOriginal})
	}
	if d.GPSLatitude != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "exif:GPSLatitude"}, Value: *d.GPSLatitude})
	}
	if d.GPSLongitude != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "exif:GPSLongitude"}, Value: *d.GPSLongitude})
	}
	if d.Rating != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmp:Rating"}, Value: strconv.Itoa(*d.Rating)})
	}
	attrs = append(attrs, d.unknownProps...)
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name.Local < attrs[j].Name.Local })

	var b bytes.Buffer
	if opts.WritePacketWrapper {
		b.WriteString(packetHeader)
	}
	b.WriteString(`<x:xmpmeta xmlns:x="` + xNS + `"><rdf:RDF xmlns:rdf="` + rdfNS + `">`)
	b.WriteString(`<rdf:Description rdf:about=""`)
	b.WriteString(` xmlns:tiff="` + tiffNS + `" xmlns:exif="` + exifNS + `" xmlns:xmp="` + xmpNS + `" xmlns:dc="` + dcNS + `" xmlns:MP="` + mpRegNS + `"`)
	for _, a := range attrs {
		b.WriteString(` ` + a.Name.Local + `="` + xmlEscape(a.Value) + `"`)
	}
	if len(d.Keywords) == 0 && len(d.Persons) == 0 {
		b.WriteString(`/>`)
	} else {
		b.WriteString(`>`)
		if len(d.Keywords) > 0 {
			b.WriteString(`<dc:subject><rdf:Bag>`)
			for _, k := range d.Keywords {
				b.WriteString(`<rdf:li>` + xmlEscape(k) + `</rdf:li>`)
			}
			b.WriteString(`</rdf:Bag></dc:subject>`)
		}
		if len(d.Persons) > 0 {
			b.WriteString(`<MP:RegionPersonDisplayName><rdf:Seq>`)
			for _, p := range d.Persons {
				b.WriteString(`<rdf:li>` + xmlEscape(p) + `</rdf:li>`)
			}
			b.WriteString(`</rdf:Seq></MP:RegionPersonDisplayName>`)
		}
		b.WriteString(`</rdf:Description>`)
	}
	b.WriteString(`</rdf:RDF></x:xmpmeta>`)
	if opts.WritePacketWrapper {
		b.WriteString(packetFooter)
	}
	return b.String()
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
