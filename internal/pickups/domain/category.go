// Package domain holds the pickup entities and lifecycle rules.
package domain

import "strings"

// Category is the plastic resin class of a pickup.
type Category string

const (
	CategoryPET   Category = "PET"
	CategoryHDPE  Category = "HDPE"
	CategoryLDPE  Category = "LDPE"
	CategoryPP    Category = "PP"
	CategoryPS    Category = "PS"
	CategoryOther Category = "Other"
)

// Categories lists the enum in display order.
var Categories = []Category{CategoryPET, CategoryHDPE, CategoryLDPE, CategoryPP, CategoryPS, CategoryOther}

// categoryAliases maps lower-cased spellings seen in free text to the enum.
var categoryAliases = map[string]Category{
	"pet":                           CategoryPET,
	"pete":                          CategoryPET,
	"1":                             CategoryPET,
	"polyethylene terephthalate":    CategoryPET,
	"hdpe":                          CategoryHDPE,
	"2":                             CategoryHDPE,
	"high-density polyethylene":     CategoryHDPE,
	"high density polyethylene":     CategoryHDPE,
	"ldpe":                          CategoryLDPE,
	"4":                             CategoryLDPE,
	"low-density polyethylene":      CategoryLDPE,
	"low density polyethylene":      CategoryLDPE,
	"pp":                            CategoryPP,
	"5":                             CategoryPP,
	"polypropylene":                 CategoryPP,
	"ps":                            CategoryPS,
	"6":                             CategoryPS,
	"polystyrene":                   CategoryPS,
	"other":                         CategoryOther,
	"7":                             CategoryOther,
	"mixed":                         CategoryOther,
}

// ParseCategory maps s case-insensitively onto the enum.
func ParseCategory(s string) (Category, bool) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// Valid reports whether c is an exact enum value.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }
