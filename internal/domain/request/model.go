package request

import (
	"fmt"
	"strings"
	"time"
)

type LookupKind string

const (
	LookupBuilding LookupKind = "building"
	LookupRoom     LookupKind = "room"
	LookupCategory LookupKind = "category"
)

// LookupKinds is the fixed set of reference tables kept by a lookup cache.
var LookupKinds = []LookupKind{LookupBuilding, LookupRoom, LookupCategory}

const (
	UnknownBuilding    = "Unknown Building"
	UnknownRoom        = "Unknown Room"
	UnknownCategory    = "Unknown Category"
	UnknownSubcategory = "Unknown Subcategory"
)

func ParseLookupKind(raw string) (LookupKind, error) {
	value := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s")
	if value == "categorie" {
		value = "category"
	}
	for _, kind := range LookupKinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLookup, raw)
}

// Sentinel is the display name used when an id of this kind cannot be resolved.
func (k LookupKind) Sentinel() string {
	switch k {
	case LookupBuilding:
		return UnknownBuilding
	case LookupRoom:
		return UnknownRoom
	case LookupCategory:
		return UnknownCategory
	default:
		return "Unknown"
	}
}

// Resolution is the outcome of resolving a reference id against a lookup table.
type Resolution struct {
	Name  string
	Found bool
}

func Resolved(name string) Resolution {
	return Resolution{Name: name, Found: true}
}

func NotFound() Resolution {
	return Resolution{}
}

// NameOr returns the resolved name, or sentinel when the reference was not found.
func (r Resolution) NameOr(sentinel string) string {
	if !r.Found {
		return sentinel
	}
	return r.Name
}

type LookupEntry struct {
	ID          string
	DisplayName string
	ParentID    string
	Active      bool
}

type RawRequest struct {
	ID             string
	RequestNo      string
	Description    string
	ImageRefs      []string
	BuildingID     string
	RoomID         string
	CategoryID     string
	SubcategoryID  string
	Priority       Priority
	Status         Status
	EstimatedStart *time.Time
	EstimatedEnd   *time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	CreatedOn      time.Time
	ServicerID     string
	SendBackReason string
}

type ProjectedRequest struct {
	RawRequest
	BuildingName    string
	RoomName        string
	CategoryName    string
	SubcategoryName string
}

type HistoryEntry struct {
	ID        string
	RequestID string
	Actor     string
	Action    string
	Body      string
	CreatedOn time.Time
}
