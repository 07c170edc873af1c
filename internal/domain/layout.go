package domain

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	archiveSuffix     = ".tar.xz"
	siteMeterFilename = "smartmeter.csv"
)

// Dataset describes how many houses and appliances a conversion run covers.
// GeLaP has been published with different house counts, so neither count has a default.
type Dataset struct {
	Houses     int
	Appliances int

	// SiteMeter is the reserved meter number for the whole-building series.
	// Zero means one past the last appliance.
	SiteMeter int
}

// Validate reports whether the counts are usable and the site meter number
// does not collide with an appliance number.
func (d Dataset) Validate() error {
	if d.Houses < 1 {
		return errors.New("house count must be at least 1")
	}
	if d.Appliances < 1 {
		return errors.New("appliance count must be at least 1")
	}
	if d.SiteMeter != 0 && d.SiteMeter <= d.Appliances {
		return fmt.Errorf("site meter number %d collides with appliance numbers 1..%d", d.SiteMeter, d.Appliances)
	}
	return nil
}

// SiteMeterNumber returns the effective reserved meter number.
func (d Dataset) SiteMeterNumber() int {
	if d.SiteMeter != 0 {
		return d.SiteMeter
	}
	return d.Appliances + 1
}

// Keys lists every key a complete run writes, in write order: per house the
// site meter first, then appliances ascending.
func (d Dataset) Keys() []Key {
	keys := make([]Key, 0, d.Houses*(d.Appliances+1))
	for h := 1; h <= d.Houses; h++ {
		keys = append(keys, Key{Building: h, Meter: d.SiteMeterNumber()})
		for e := 1; e <= d.Appliances; e++ {
			keys = append(keys, Key{Building: h, Meter: e})
		}
	}
	return keys
}

// ArchivePath returns the compressed archive for a house, e.g. <root>/hh-03.tar.xz.
func ArchivePath(root string, house int) string {
	return filepath.Join(root, houseName(house)+archiveSuffix)
}

// HouseDir returns the extraction directory for a house, e.g. <root>/hh-03.
func HouseDir(root string, house int) string {
	return filepath.Join(root, houseName(house))
}

// SiteMeterPath returns the whole-building CSV inside a house directory.
func SiteMeterPath(houseDir string) string {
	return filepath.Join(houseDir, siteMeterFilename)
}

// AppliancePath returns the CSV for one appliance, e.g. <houseDir>/label_007.csv.
func AppliancePath(houseDir string, appliance int) string {
	return filepath.Join(houseDir, fmt.Sprintf("label_%03d.csv", appliance))
}

func houseName(house int) string {
	return fmt.Sprintf("hh-%02d", house)
}
