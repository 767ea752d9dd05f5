// Package cbl reads and writes ComicRack-compatible .cbl reading list
// files. The format is owned by ComicRack, so writes must round-trip
// through reads without losing any logical record.
package cbl

import (
	"encoding/xml"

	"github.com/lepinkainen/longbox/internal/comicvine"
)

// Book is one entry in a reading list. Volume holds the series start
// year and Year the issue's publication year, both as strings because
// ComicRack treats them as opaque attributes.
type Book struct {
	Series string `xml:"Series,attr"`
	Number string `xml:"Number,attr"`
	Volume string `xml:"Volume,attr"`
	Year   string `xml:"Year,attr"`
	Format string `xml:"Format,attr,omitempty"`
	ID     string `xml:"Id"`
}

// ReadingList is a named ordered list of books.
type ReadingList struct {
	Name  string
	Books []Book
}

// document is the on-disk shape of a .cbl file, including the schema
// namespace attributes ComicRack emits.
type document struct {
	XMLName  xml.Name `xml:"ReadingList"`
	XSD      string   `xml:"xmlns:xsd,attr"`
	XSI      string   `xml:"xmlns:xsi,attr"`
	Name     string   `xml:"Name"`
	Books    books    `xml:"Books"`
	Matchers struct{} `xml:"Matchers"`
}

type books struct {
	Book []Book `xml:"Book"`
}

// BookFromMatch converts a catalog match into a reading list entry.
func BookFromMatch(m *comicvine.MatchedBook) Book {
	return Book{
		Series: m.Series,
		Number: m.Number,
		Volume: m.Volume,
		Year:   m.Year,
		Format: m.Format,
		ID:     m.BookID,
	}
}
