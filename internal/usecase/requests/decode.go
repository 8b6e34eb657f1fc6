package requests

import (
	"fmt"
	"strings"
	"time"

	"crms/internal/domain/request"
	"crms/internal/ports"
)

// Collection names in the document store.
const (
	CollectionBuildings  = "buildings"
	CollectionRooms      = "rooms"
	CollectionCategories = "categories"
	CollectionRequests   = "requests"
	CollectionHistory    = "request_history"
)

// Document field names.
const (
	fieldName   = "name"
	fieldParent = "parentId"
	fieldActive = "active"

	fieldRequestNo      = "requestNo"
	fieldDescription    = "description"
	fieldImageRefs      = "imageRefs"
	fieldBuildingID     = "buildingId"
	fieldRoomID         = "roomId"
	fieldCategoryID     = "categoryId"
	fieldSubcategoryID  = "subcategoryId"
	fieldPriority       = "priority"
	fieldStatus         = "status"
	fieldEstimatedStart = "estimatedStart"
	fieldEstimatedEnd   = "estimatedEnd"
	fieldActualStart    = "actualStart"
	fieldActualEnd      = "actualEnd"
	fieldCreatedOn      = "createdOn"
	fieldServicerID     = "servicerId"
	fieldSendBackReason = "sendBackReason"

	fieldRequestID = "requestId"
	fieldActor     = "actor"
	fieldAction    = "action"
	fieldBody      = "body"
)

// LookupCollection maps a lookup kind to the collection that stores it.
func LookupCollection(kind request.LookupKind) string {
	switch kind {
	case request.LookupBuilding:
		return CollectionBuildings
	case request.LookupRoom:
		return CollectionRooms
	case request.LookupCategory:
		return CollectionCategories
	default:
		return ""
	}
}

// DecodeLookupEntry requires a non-empty name. A missing active flag reads as active.
func DecodeLookupEntry(doc ports.Document) (request.LookupEntry, error) {
	name, err := requiredString(doc.Fields, fieldName)
	if err != nil {
		return request.LookupEntry{}, err
	}
	parent, err := optionalString(doc.Fields, fieldParent)
	if err != nil {
		return request.LookupEntry{}, err
	}
	active := true
	if raw, ok := doc.Fields[fieldActive]; ok && raw != nil {
		value, ok := raw.(bool)
		if !ok {
			return request.LookupEntry{}, fmt.Errorf("%w: %s", request.ErrInvalidField, fieldActive)
		}
		active = value
	}
	return request.LookupEntry{
		ID:          doc.ID,
		DisplayName: name,
		ParentID:    parent,
		Active:      active,
	}, nil
}

func EncodeLookupEntry(entry request.LookupEntry) map[string]any {
	fields := map[string]any{
		fieldName:   entry.DisplayName,
		fieldActive: entry.Active,
	}
	if entry.ParentID != "" {
		fields[fieldParent] = entry.ParentID
	}
	return fields
}

// DecodeRequest maps a requests document. requestNo, status, priority and
// createdOn are required; every other field may be absent.
func DecodeRequest(doc ports.Document) (request.RawRequest, error) {
	var (
		out request.RawRequest
		err error
	)
	out.ID = doc.ID
	if strings.TrimSpace(out.ID) == "" {
		return request.RawRequest{}, fmt.Errorf("%w: id", request.ErrMissingField)
	}
	if out.RequestNo, err = requiredString(doc.Fields, fieldRequestNo); err != nil {
		return request.RawRequest{}, err
	}

	rawStatus, err := requiredString(doc.Fields, fieldStatus)
	if err != nil {
		return request.RawRequest{}, err
	}
	if out.Status, err = request.ParseStatus(rawStatus); err != nil {
		return request.RawRequest{}, err
	}
	rawPriority, err := requiredString(doc.Fields, fieldPriority)
	if err != nil {
		return request.RawRequest{}, err
	}
	if out.Priority, err = request.ParsePriority(rawPriority); err != nil {
		return request.RawRequest{}, err
	}

	createdOn, err := optionalTime(doc.Fields, fieldCreatedOn)
	if err != nil {
		return request.RawRequest{}, err
	}
	if createdOn == nil {
		return request.RawRequest{}, fmt.Errorf("%w: %s", request.ErrMissingField, fieldCreatedOn)
	}
	out.CreatedOn = *createdOn

	textFields := []struct {
		field string
		dst   *string
	}{
		{fieldDescription, &out.Description},
		{fieldBuildingID, &out.BuildingID},
		{fieldRoomID, &out.RoomID},
		{fieldCategoryID, &out.CategoryID},
		{fieldSubcategoryID, &out.SubcategoryID},
		{fieldServicerID, &out.ServicerID},
		{fieldSendBackReason, &out.SendBackReason},
	}
	for _, item := range textFields {
		if *item.dst, err = optionalString(doc.Fields, item.field); err != nil {
			return request.RawRequest{}, err
		}
	}

	times := []struct {
		field string
		dst   **time.Time
	}{
		{fieldEstimatedStart, &out.EstimatedStart},
		{fieldEstimatedEnd, &out.EstimatedEnd},
		{fieldActualStart, &out.ActualStart},
		{fieldActualEnd, &out.ActualEnd},
	}
	for _, item := range times {
		if *item.dst, err = optionalTime(doc.Fields, item.field); err != nil {
			return request.RawRequest{}, err
		}
	}

	if out.ImageRefs, err = optionalStrings(doc.Fields, fieldImageRefs); err != nil {
		return request.RawRequest{}, err
	}
	return out, nil
}

// EncodeRequest produces the stored field map of r. New documents are active.
func EncodeRequest(r request.RawRequest) map[string]any {
	fields := map[string]any{
		fieldRequestNo:   r.RequestNo,
		fieldDescription: r.Description,
		fieldBuildingID:  r.BuildingID,
		fieldRoomID:      r.RoomID,
		fieldCategoryID:  r.CategoryID,
		fieldPriority:    string(r.Priority),
		fieldStatus:      string(r.Status),
		fieldCreatedOn:   EncodeTime(r.CreatedOn),
		fieldServicerID:  r.ServicerID,
		fieldActive:      true,
	}
	if r.SubcategoryID != "" {
		fields[fieldSubcategoryID] = r.SubcategoryID
	}
	if r.SendBackReason != "" {
		fields[fieldSendBackReason] = r.SendBackReason
	}
	refs := make([]any, 0, len(r.ImageRefs))
	for _, ref := range r.ImageRefs {
		refs = append(refs, ref)
	}
	fields[fieldImageRefs] = refs

	for field, value := range map[string]*time.Time{
		fieldEstimatedStart: r.EstimatedStart,
		fieldEstimatedEnd:   r.EstimatedEnd,
		fieldActualStart:    r.ActualStart,
		fieldActualEnd:      r.ActualEnd,
	} {
		if value != nil {
			fields[field] = EncodeTime(*value)
		}
	}
	return fields
}

func DecodeHistoryEntry(doc ports.Document) (request.HistoryEntry, error) {
	requestID, err := requiredString(doc.Fields, fieldRequestID)
	if err != nil {
		return request.HistoryEntry{}, err
	}
	action, err := requiredString(doc.Fields, fieldAction)
	if err != nil {
		return request.HistoryEntry{}, err
	}
	actor, err := optionalString(doc.Fields, fieldActor)
	if err != nil {
		return request.HistoryEntry{}, err
	}
	body, err := optionalString(doc.Fields, fieldBody)
	if err != nil {
		return request.HistoryEntry{}, err
	}
	createdOn, err := optionalTime(doc.Fields, fieldCreatedOn)
	if err != nil {
		return request.HistoryEntry{}, err
	}
	if createdOn == nil {
		return request.HistoryEntry{}, fmt.Errorf("%w: %s", request.ErrMissingField, fieldCreatedOn)
	}
	return request.HistoryEntry{
		ID:        doc.ID,
		RequestID: requestID,
		Actor:     actor,
		Action:    action,
		Body:      body,
		CreatedOn: *createdOn,
	}, nil
}

func encodeHistoryEntry(entry request.HistoryEntry) map[string]any {
	return map[string]any{
		fieldRequestID: entry.RequestID,
		fieldActor:     entry.Actor,
		fieldAction:    entry.Action,
		fieldBody:      entry.Body,
		fieldCreatedOn: EncodeTime(entry.CreatedOn),
	}
}

// EncodeTime is the stored timestamp form: RFC3339Nano in UTC.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func requiredString(fields map[string]any, field string) (string, error) {
	value, err := optionalString(fields, field)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", request.ErrMissingField, field)
	}
	return value, nil
}

func optionalString(fields map[string]any, field string) (string, error) {
	raw, ok := fields[field]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s", request.ErrInvalidField, field)
	}
	return value, nil
}

func optionalStrings(fields map[string]any, field string) ([]string, error) {
	raw, ok := fields[field]
	if !ok || raw == nil {
		return nil, nil
	}
	switch values := raw.(type) {
	case []string:
		return append([]string(nil), values...), nil
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			value, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", request.ErrInvalidField, field)
			}
			out = append(out, value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", request.ErrInvalidField, field)
	}
}

func optionalTime(fields map[string]any, field string) (*time.Time, error) {
	raw, ok := fields[field]
	if !ok || raw == nil {
		return nil, nil
	}
	switch value := raw.(type) {
	case time.Time:
		t := value
		return &t, nil
	case string:
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", request.ErrInvalidField, field, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("%w: %s", request.ErrInvalidField, field)
	}
}
