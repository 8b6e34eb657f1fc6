package requests

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
)

// History actions.
const (
	ActionCreated    = "created"
	ActionScheduled  = "scheduled"
	ActionStarted    = "started"
	ActionCompleted  = "completed"
	ActionSentBack   = "sent_back"
	ActionAutoStatus = "auto_status"
)

const systemActor = "system"

var errActorRequired = errors.New("actor is required")

// Service runs one-shot reads and the manual request transitions. Every
// transition writes the request fields and a history entry in one unit of
// work.
type Service struct {
	store   ports.DocumentStore
	uow     ports.UnitOfWork
	lookups *LookupCache
	now     func() time.Time
}

func NewService(store ports.DocumentStore, uow ports.UnitOfWork, lookups *LookupCache) *Service {
	return &Service{
		store:   store,
		uow:     uow,
		lookups: lookups,
		now:     time.Now,
	}
}

// Lookups returns the shared lookup cache.
func (s *Service) Lookups() *LookupCache {
	return s.lookups
}

type CreateRequestInput struct {
	Description   string
	ImageRefs     []string
	BuildingID    string
	RoomID        string
	CategoryID    string
	SubcategoryID string
	Priority      string
	ServicerID    string
	Actor         string
}

type ScheduleInput struct {
	RequestID string
	From      time.Time
	To        time.Time
	Actor     string
}

type ActionInput struct {
	RequestID string
	Actor     string
}

type SendBackInput struct {
	RequestID string
	Reason    string
	Actor     string
}

// CreateRequest stores a submitted request with the next REQ-##### number.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (request.RawRequest, error) {
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		return request.RawRequest{}, errActorRequired
	}
	priority, err := request.ParsePriority(input.Priority)
	if err != nil {
		return request.RawRequest{}, err
	}
	for field, value := range map[string]string{
		fieldBuildingID: input.BuildingID,
		fieldRoomID:     input.RoomID,
		fieldCategoryID: input.CategoryID,
	} {
		if strings.TrimSpace(value) == "" {
			return request.RawRequest{}, fmt.Errorf("%w: %s", request.ErrMissingField, field)
		}
	}

	created := request.RawRequest{
		Description:   strings.TrimSpace(input.Description),
		ImageRefs:     append([]string(nil), input.ImageRefs...),
		BuildingID:    strings.TrimSpace(input.BuildingID),
		RoomID:        strings.TrimSpace(input.RoomID),
		CategoryID:    strings.TrimSpace(input.CategoryID),
		SubcategoryID: strings.TrimSpace(input.SubcategoryID),
		Priority:      priority,
		Status:        request.StatusSubmitted,
		CreatedOn:     s.now().UTC(),
		ServicerID:    strings.TrimSpace(input.ServicerID),
	}

	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		docs, err := s.store.Query(txCtx, CollectionRequests)
		if err != nil {
			return err
		}
		maxSeq := 0
		for _, doc := range docs {
			raw, _ := doc.Fields[fieldRequestNo].(string)
			if seq, ok := request.ParseRequestNo(raw); ok && seq > maxSeq {
				maxSeq = seq
			}
		}
		created.RequestNo = request.FormatRequestNo(maxSeq + 1)

		id, err := s.store.AddDocument(txCtx, CollectionRequests, EncodeRequest(created))
		if err != nil {
			return err
		}
		created.ID = id
		return s.appendHistory(txCtx, id, actor, ActionCreated, created.RequestNo)
	})
	if err != nil {
		return request.RawRequest{}, connectivityError("create request", err)
	}
	return created, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (request.RawRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return request.RawRequest{}, request.ErrRequestIDRequired
	}
	doc, err := s.store.GetDocument(ctx, CollectionRequests, requestID)
	if err != nil {
		return request.RawRequest{}, remoteError("get request", requestID, err)
	}
	item, err := DecodeRequest(doc)
	if err != nil {
		return request.RawRequest{}, errs.Wrapf(err, "decode request %s", requestID)
	}
	return item, nil
}

// GetProjected reads one request and resolves its names.
func (s *Service) GetProjected(ctx context.Context, requestID string) (request.ProjectedRequest, error) {
	item, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return request.ProjectedRequest{}, err
	}
	if err := s.ensureLookups(ctx); err != nil {
		return request.ProjectedRequest{}, err
	}
	return Project(item, s.lookups), nil
}

// ListProjected is the one-shot rendition of the live list: the technician's
// active requests, projected and filtered.
func (s *Service) ListProjected(ctx context.Context, technicianID string, state request.FilterState) ([]request.ProjectedRequest, error) {
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return nil, errors.New("technician id is required")
	}
	docs, err := s.store.Query(ctx, CollectionRequests,
		ports.Equal(fieldServicerID, technicianID),
		ports.Equal(fieldActive, true),
	)
	if err != nil {
		return nil, connectivityError("list requests", err)
	}
	if err := s.ensureLookups(ctx); err != nil {
		return nil, err
	}
	return request.Filter(Rebuild(DecodeRequests(ctx, docs), s.lookups), state), nil
}

// Schedule sets the estimated window. Status is left to the auto-status rule.
func (s *Service) Schedule(ctx context.Context, input ScheduleInput) error {
	if err := request.ValidateSchedule(input.From, input.To); err != nil {
		return err
	}
	body := fmt.Sprintf("%s .. %s", EncodeTime(input.From), EncodeTime(input.To))
	return s.transition(ctx, "schedule request", input.RequestID, input.Actor, ActionScheduled, body, map[string]any{
		fieldEstimatedStart: EncodeTime(input.From),
		fieldEstimatedEnd:   EncodeTime(input.To),
	})
}

func (s *Service) Start(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, "start request", input.RequestID, input.Actor, ActionStarted, "", map[string]any{
		fieldActualStart: EncodeTime(s.now()),
		fieldStatus:      string(request.StatusInProgress),
	})
}

func (s *Service) Complete(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, "complete request", input.RequestID, input.Actor, ActionCompleted, "", map[string]any{
		fieldActualEnd: EncodeTime(s.now()),
		fieldStatus:    string(request.StatusCompleted),
	})
}

func (s *Service) SendBack(ctx context.Context, input SendBackInput) error {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return request.ErrReasonRequired
	}
	return s.transition(ctx, "send back request", input.RequestID, input.Actor, ActionSentBack, reason, map[string]any{
		fieldStatus:         string(request.StatusOnHold),
		fieldSendBackReason: reason,
	})
}

// ApplyAutoStatus evaluates the time-window rule against the stored request
// and persists the new status when a transition is due.
func (s *Service) ApplyAutoStatus(ctx context.Context, requestID string) (request.Status, bool, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", false, request.ErrRequestIDRequired
	}

	var (
		next    request.Status
		changed bool
	)
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		doc, err := s.store.GetDocument(txCtx, CollectionRequests, requestID)
		if err != nil {
			return err
		}
		current, err := DecodeRequest(doc)
		if err != nil {
			return errs.Wrapf(err, "decode request %s", requestID)
		}

		next, changed = request.NextAutoStatus(current.Status, s.now(), current.EstimatedStart, current.EstimatedEnd)
		if !changed {
			return nil
		}
		if err := s.store.UpdateFields(txCtx, CollectionRequests, requestID, map[string]any{
			fieldStatus: string(next),
		}); err != nil {
			return err
		}
		return s.appendHistory(txCtx, requestID, systemActor, ActionAutoStatus, fmt.Sprintf("%s -> %s", current.Status, next))
	})
	if err != nil {
		if errors.Is(err, request.ErrMissingField) || errors.Is(err, request.ErrInvalidField) ||
			errors.Is(err, request.ErrInvalidStatus) || errors.Is(err, request.ErrInvalidPriority) {
			return "", false, err
		}
		return "", false, remoteError("apply auto status", requestID, err)
	}
	return next, changed, nil
}

// History returns the request's timeline, oldest first.
func (s *Service) History(ctx context.Context, requestID string) ([]request.HistoryEntry, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, request.ErrRequestIDRequired
	}
	docs, err := s.store.Query(ctx, CollectionHistory, ports.Equal(fieldRequestID, requestID))
	if err != nil {
		return nil, connectivityError("read history", err)
	}

	out := make([]request.HistoryEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := DecodeHistoryEntry(doc)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedOn.Before(out[j].CreatedOn)
	})
	return out, nil
}

func (s *Service) transition(ctx context.Context, op string, requestID string, actor string, action string, body string, fields map[string]any) error {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return request.ErrRequestIDRequired
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return errActorRequired
	}

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.store.UpdateFields(txCtx, CollectionRequests, requestID, fields); err != nil {
			return err
		}
		return s.appendHistory(txCtx, requestID, actor, action, body)
	})
	return remoteError(op, requestID, err)
}

func (s *Service) appendHistory(ctx context.Context, requestID string, actor string, action string, body string) error {
	_, err := s.store.AddDocument(ctx, CollectionHistory, encodeHistoryEntry(request.HistoryEntry{
		RequestID: requestID,
		Actor:     actor,
		Action:    action,
		Body:      body,
		CreatedOn: s.now(),
	}))
	return err
}

func (s *Service) ensureLookups(ctx context.Context) error {
	if s.lookups.Live() {
		return nil
	}
	return s.lookups.Refresh(ctx)
}
