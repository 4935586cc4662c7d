package models

import (
	"encoding/xml"
	"time"
)

// TrackingRecord is a single ADS-B observation of a flight. Records are owned by the
// ingestion side; reporting only reads them.
type TrackingRecord struct {
	XMLName      xml.Name  `xml:"record" json:"-"`
	ID           int64     `xml:"id,attr" json:"id"`
	FlightID     int64     `xml:"flight_id" json:"flight_id"`
	FlightNumber string    `xml:"flight_number" json:"flight_number"`
	ICAOAddress  string    `xml:"icao" json:"icao"`
	Latitude     float64   `xml:"latitude" json:"latitude"`
	Longitude    float64   `xml:"longitude" json:"longitude"`
	Altitude     int       `xml:"altitude" json:"altitude"`
	Speed        int       `xml:"speed" json:"speed"`
	Track        int       `xml:"track" json:"track"`
	VerticalRate int       `xml:"vertical_rate" json:"vertical_rate"`
	Squawk       string    `xml:"squawk,omitempty" json:"squawk,omitempty"`
	RecordDate   time.Time `xml:"record_date" json:"record_date"`
}

// ToXML returns the per-record element written into report data files.
func (r TrackingRecord) ToXML() ([]byte, error) {
	return xml.Marshal(r)
}
