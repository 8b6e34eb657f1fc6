package httpapi

import (
	"time"

	"crms/internal/domain/request"
)

type requestDTO struct {
	ID              string   `json:"id"`
	RequestNo       string   `json:"requestNo"`
	Description     string   `json:"description"`
	ImageRefs       []string `json:"imageRefs"`
	BuildingID      string   `json:"buildingId"`
	BuildingName    string   `json:"buildingName"`
	RoomID          string   `json:"roomId"`
	RoomName        string   `json:"roomName"`
	CategoryID      string   `json:"categoryId"`
	CategoryName    string   `json:"categoryName"`
	SubcategoryID   string   `json:"subcategoryId,omitempty"`
	SubcategoryName string   `json:"subcategoryName"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	EstimatedStart  *string  `json:"estimatedStart,omitempty"`
	EstimatedEnd    *string  `json:"estimatedEnd,omitempty"`
	ActualStart     *string  `json:"actualStart,omitempty"`
	ActualEnd       *string  `json:"actualEnd,omitempty"`
	CreatedOn       string   `json:"createdOn"`
	ServicerID      string   `json:"servicerId"`
	SendBackReason  string   `json:"sendBackReason,omitempty"`
}

type historyDTO struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Body      string `json:"body,omitempty"`
	CreatedOn string `json:"createdOn"`
}

type listDTO struct {
	Requests []requestDTO `json:"requests"`
	Error    string       `json:"error,omitempty"`
}

type scheduleBody struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type sendBackBody struct {
	Reason string `json:"reason"`
}

func toRequestDTO(item request.ProjectedRequest) requestDTO {
	refs := item.ImageRefs
	if refs == nil {
		refs = []string{}
	}
	return requestDTO{
		ID:              item.ID,
		RequestNo:       item.RequestNo,
		Description:     item.Description,
		ImageRefs:       refs,
		BuildingID:      item.BuildingID,
		BuildingName:    item.BuildingName,
		RoomID:          item.RoomID,
		RoomName:        item.RoomName,
		CategoryID:      item.CategoryID,
		CategoryName:    item.CategoryName,
		SubcategoryID:   item.SubcategoryID,
		SubcategoryName: item.SubcategoryName,
		Priority:        string(item.Priority),
		Status:          string(item.Status),
		EstimatedStart:  formatOptional(item.EstimatedStart),
		EstimatedEnd:    formatOptional(item.EstimatedEnd),
		ActualStart:     formatOptional(item.ActualStart),
		ActualEnd:       formatOptional(item.ActualEnd),
		CreatedOn:       item.CreatedOn.UTC().Format(time.RFC3339),
		ServicerID:      item.ServicerID,
		SendBackReason:  item.SendBackReason,
	}
}

func toListDTO(items []request.ProjectedRequest, err error) listDTO {
	out := listDTO{Requests: make([]requestDTO, 0, len(items))}
	for _, item := range items {
		out.Requests = append(out.Requests, toRequestDTO(item))
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func toHistoryDTO(entries []request.HistoryEntry) []historyDTO {
	out := make([]historyDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyDTO{
			ID:        entry.ID,
			Actor:     entry.Actor,
			Action:    entry.Action,
			Body:      entry.Body,
			CreatedOn: entry.CreatedOn.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func formatOptional(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339)
	return &formatted
}
