package techconsole

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/ports"
	"crms/internal/usecase/requests"
)

const maxShownHistory = 5
const maxAuditLines = 6

const (
	dateLayout     = "2006-01-02"
	scheduleLayout = "2006-01-02T15:04"
)

type TechOptions struct {
	TechnicianID       string
	AutoStatusInterval time.Duration
	// Cache persists the filter between sessions. Nil disables persistence.
	Cache ports.Cache
}

type inputMode int

const (
	inputNone inputMode = iota
	inputSearch
	inputFromDate
	inputToDate
	inputSchedule
	inputSendBack
)

func (m inputMode) prompt() string {
	switch m {
	case inputSearch:
		return "search"
	case inputFromDate:
		return "from date (YYYY-MM-DD, empty clears)"
	case inputToDate:
		return "to date (YYYY-MM-DD, empty clears)"
	case inputSchedule:
		return "schedule (YYYY-MM-DDTHH:MM YYYY-MM-DDTHH:MM)"
	case inputSendBack:
		return "send back reason"
	default:
		return ""
	}
}

type techModel struct {
	ctx          context.Context
	service      *requests.Service
	updates      <-chan requests.ListUpdate
	cache        ports.Cache
	technicianID string
	autoInterval time.Duration

	all           []request.ProjectedRequest
	visible       []request.ProjectedRequest
	filter        request.FilterState
	selectedIndex int

	detail    *requests.Detail
	current   request.ProjectedRequest
	hasDetail bool
	history   []request.HistoryEntry

	mode   inputMode
	input  string
	status string
	remote string
	audit  []string
}

type listUpdateMsg struct {
	update requests.ListUpdate
	closed bool
}

type filterLoadedMsg struct {
	state request.FilterState
	found bool
	err   error
}

type filterSavedMsg struct {
	err error
}

type detailLoadedMsg struct {
	requestID string
	current   request.ProjectedRequest
	ok        bool
	history   []request.HistoryEntry
	err       error
}

type autoTickMsg struct{}

type actionDoneMsg struct {
	action    string
	requestID string
	err       error
}

// NewTechModel builds the console over a running coordinator's updates.
func NewTechModel(ctx context.Context, service *requests.Service, updates <-chan requests.ListUpdate, options TechOptions) tea.Model {
	interval := options.AutoStatusInterval
	if interval <= 0 {
		interval = requests.DefaultAutoStatusInterval
	}
	return &techModel{
		ctx:          ctx,
		service:      service,
		updates:      updates,
		cache:        options.Cache,
		technicianID: strings.TrimSpace(options.TechnicianID),
		autoInterval: interval,
		filter:       request.FilterState{Statuses: request.NewStatusSet()},
		status:       "waiting for requests",
	}
}

func (m *techModel) Init() tea.Cmd {
	return tea.Batch(m.loadFilterCmd(), m.waitForUpdateCmd(), m.autoTickCmd())
}

func (m *techModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case listUpdateMsg:
		if msg.closed {
			m.status = "live updates stopped"
			return m, nil
		}
		if msg.update.Err != nil {
			m.remote = msg.update.Err.Error()
		} else {
			m.remote = ""
		}
		m.all = msg.update.Requests
		return m, tea.Batch(m.applyFilter(), m.waitForUpdateCmd())
	case filterLoadedMsg:
		if msg.err != nil {
			m.status = "filter load failed: " + msg.err.Error()
			return m, nil
		}
		if msg.found {
			m.filter = msg.state
			return m, m.applyFilter()
		}
		return m, nil
	case filterSavedMsg:
		if msg.err != nil {
			m.status = "filter save failed: " + msg.err.Error()
		}
		return m, nil
	case detailLoadedMsg:
		if m.detail == nil || m.detail.RequestID() != msg.requestID {
			return m, nil
		}
		if msg.err != nil {
			m.status = "detail load failed: " + msg.err.Error()
		}
		if msg.ok {
			m.current = msg.current
			m.hasDetail = true
		}
		if msg.history != nil {
			m.history = msg.history
		}
		return m, nil
	case autoTickMsg:
		return m, tea.Batch(m.autoUpdateCmd(), m.autoTickCmd())
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s done", msg.action)
		}
		m.appendAuditLog(msg.action, msg.requestID, msg.err)
		return m, m.refreshDetailCmd()
	case tea.KeyMsg:
		if m.mode != inputNone {
			return m, m.handleInputKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *techModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.closeDetail()
		return tea.Quit
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
			return m.selectCurrent()
		}
		return nil
	case "down", "j":
		if m.selectedIndex < len(m.visible)-1 {
			m.selectedIndex++
			return m.selectCurrent()
		}
		return nil
	case "/":
		m.beginInput(inputSearch, m.filter.SearchText)
		return nil
	case "f":
		m.beginInput(inputFromDate, formatDate(m.filter.FromDate))
		return nil
	case "t":
		m.beginInput(inputToDate, formatDate(m.filter.ToDate))
		return nil
	case "x":
		m.filter = request.FilterState{Statuses: request.NewStatusSet()}
		m.status = "filters cleared"
		return tea.Batch(m.applyFilter(), m.saveFilterCmd())
	case "p":
		if m.detail == nil {
			m.status = "no request selected"
			return nil
		}
		m.beginInput(inputSchedule, "")
		return nil
	case "b":
		if m.detail == nil {
			m.status = "no request selected"
			return nil
		}
		m.beginInput(inputSendBack, "")
		return nil
	case "s":
		return m.actionCmd("start", func(ctx context.Context, d *requests.Detail) error { return d.Start(ctx) })
	case "c":
		return m.actionCmd("complete", func(ctx context.Context, d *requests.Detail) error { return d.Complete(ctx) })
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		index := int(key[0] - '1')
		if index < len(request.AllStatuses) {
			if m.filter.Statuses == nil {
				m.filter.Statuses = request.NewStatusSet()
			}
			m.filter.Statuses.Toggle(request.AllStatuses[index])
			return tea.Batch(m.applyFilter(), m.saveFilterCmd())
		}
	}
	return nil
}

func (m *techModel) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input = ""
		m.status = "cancelled"
		return nil
	case tea.KeyEnter:
		mode := m.mode
		value := strings.TrimSpace(m.input)
		m.mode = inputNone
		m.input = ""
		return m.commitInput(mode, value)
	case tea.KeyBackspace:
		if runes := []rune(m.input); len(runes) > 0 {
			m.input = string(runes[:len(runes)-1])
		}
		if m.mode == inputSearch {
			m.filter.SearchText = m.input
			return m.applyFilter()
		}
		return nil
	case tea.KeyRunes, tea.KeySpace:
		if msg.Type == tea.KeySpace {
			m.input += " "
		} else {
			m.input += string(msg.Runes)
		}
		if m.mode == inputSearch {
			m.filter.SearchText = m.input
			return m.applyFilter()
		}
		return nil
	}
	return nil
}

func (m *techModel) commitInput(mode inputMode, value string) tea.Cmd {
	switch mode {
	case inputSearch:
		m.filter.SearchText = value
		return tea.Batch(m.applyFilter(), m.saveFilterCmd())
	case inputFromDate, inputToDate:
		var date *time.Time
		if value != "" {
			parsed, err := time.ParseInLocation(dateLayout, value, time.Local)
			if err != nil {
				m.status = "invalid date: " + value
				return nil
			}
			date = &parsed
		}
		if mode == inputFromDate {
			m.filter.FromDate = date
		} else {
			m.filter.ToDate = date
		}
		return tea.Batch(m.applyFilter(), m.saveFilterCmd())
	case inputSchedule:
		from, to, err := parseSchedule(value)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		return m.actionCmd("schedule", func(ctx context.Context, d *requests.Detail) error { return d.Schedule(ctx, from, to) })
	case inputSendBack:
		return m.actionCmd("send back", func(ctx context.Context, d *requests.Detail) error { return d.SendBack(ctx, value) })
	}
	return nil
}

func (m *techModel) beginInput(mode inputMode, initial string) {
	m.mode = mode
	m.input = initial
	m.status = mode.prompt()
}

// applyFilter recomputes the visible list and keeps the selection on the
// same request when it is still visible.
func (m *techModel) applyFilter() tea.Cmd {
	selectedID := ""
	if m.selectedIndex >= 0 && m.selectedIndex < len(m.visible) {
		selectedID = m.visible[m.selectedIndex].ID
	}

	m.visible = request.Filter(m.all, normalizedFilter(m.filter))
	m.selectedIndex = 0
	for index, item := range m.visible {
		if item.ID == selectedID {
			m.selectedIndex = index
			break
		}
	}
	if len(m.visible) == 0 {
		m.closeDetail()
		return nil
	}
	if m.detail != nil && m.detail.RequestID() == m.visible[m.selectedIndex].ID {
		return m.refreshDetailCmd()
	}
	return m.selectCurrent()
}

func (m *techModel) selectCurrent() tea.Cmd {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.visible) {
		return nil
	}
	m.closeDetail()
	m.detail = requests.NewDetail(m.service, m.visible[m.selectedIndex].ID, m.technicianID)
	detail := m.detail
	return func() tea.Msg {
		err := detail.Load(m.ctx)
		return m.detailMsg(detail, err)
	}
}

func (m *techModel) closeDetail() {
	if m.detail != nil {
		m.detail.Close()
	}
	m.detail = nil
	m.hasDetail = false
	m.history = nil
}

func (m *techModel) refreshDetailCmd() tea.Cmd {
	detail := m.detail
	if detail == nil {
		return nil
	}
	return func() tea.Msg {
		err := detail.Load(m.ctx)
		if errors.Is(err, requests.ErrDetailClosed) {
			return nil
		}
		return m.detailMsg(detail, err)
	}
}

func (m *techModel) detailMsg(detail *requests.Detail, err error) detailLoadedMsg {
	current, ok := detail.Request()
	history, historyErr := m.service.History(m.ctx, detail.RequestID())
	if err == nil && historyErr != nil {
		err = historyErr
	}
	return detailLoadedMsg{
		requestID: detail.RequestID(),
		current:   current,
		ok:        ok,
		history:   history,
		err:       err,
	}
}

func (m *techModel) actionCmd(action string, run func(context.Context, *requests.Detail) error) tea.Cmd {
	detail := m.detail
	if detail == nil {
		m.status = "no request selected"
		return nil
	}
	m.status = action + " in progress"
	return func() tea.Msg {
		err := run(m.ctx, detail)
		return actionDoneMsg{action: action, requestID: detail.RequestID(), err: err}
	}
}

func (m *techModel) autoUpdateCmd() tea.Cmd {
	detail := m.detail
	if detail == nil {
		return nil
	}
	return func() tea.Msg {
		_, changed, err := detail.AutoUpdate(m.ctx)
		if err != nil || !changed {
			return nil
		}
		return m.detailMsg(detail, nil)
	}
}

func (m *techModel) autoTickCmd() tea.Cmd {
	return tea.Tick(m.autoInterval, func(time.Time) tea.Msg {
		return autoTickMsg{}
	})
}

func (m *techModel) waitForUpdateCmd() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	updates := m.updates
	return func() tea.Msg {
		select {
		case update, ok := <-updates:
			if !ok {
				return listUpdateMsg{closed: true}
			}
			return listUpdateMsg{update: update}
		case <-m.ctx.Done():
			return listUpdateMsg{closed: true}
		}
	}
}

func (m *techModel) loadFilterCmd() tea.Cmd {
	if m.cache == nil || m.technicianID == "" {
		return nil
	}
	return func() tea.Msg {
		raw, found, err := m.cache.Get(m.ctx, filterCacheKey(m.technicianID))
		if err != nil || !found {
			return filterLoadedMsg{err: err}
		}
		state, err := decodeFilterState(raw)
		if err != nil {
			return filterLoadedMsg{err: err}
		}
		return filterLoadedMsg{state: state, found: true}
	}
}

func (m *techModel) saveFilterCmd() tea.Cmd {
	if m.cache == nil || m.technicianID == "" {
		return nil
	}
	raw, err := encodeFilterState(m.filter)
	if err != nil {
		return func() tea.Msg { return filterSavedMsg{err: err} }
	}
	return func() tea.Msg {
		return filterSavedMsg{err: m.cache.Set(m.ctx, filterCacheKey(m.technicianID), raw, 0)}
	}
}

func (m *techModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("CRMS Technician Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"technician=%s search=%q statuses=%s from=%s to=%s shown=%d/%d",
		firstNonEmpty(m.technicianID, "-"),
		m.filter.SearchText,
		describeStatuses(m.filter.Statuses),
		firstNonEmpty(formatDate(m.filter.FromDate), "-"),
		firstNonEmpty(formatDate(m.filter.ToDate), "-"),
		len(m.visible),
		len(m.all),
	)))
	builder.WriteString("\n")
	if m.remote != "" {
		builder.WriteString(errorStyle.Render("connection problem: " + m.remote))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Requests"))
	builder.WriteString("\n")
	if len(m.visible) == 0 {
		builder.WriteString(dimStyle.Render("- no requests"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.visible {
			line := fmt.Sprintf(
				"%s [%s] %s / %s  %s  %s",
				item.RequestNo,
				item.Status.Label(),
				item.BuildingName,
				item.RoomName,
				item.CategoryName,
				item.CreatedOn.Local().Format("2006-01-02 15:04"),
			)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		current := m.current
		builder.WriteString(fmt.Sprintf("Request: %s (%s)\n", current.RequestNo, current.Priority))
		builder.WriteString(fmt.Sprintf("Status: %s\n", current.Status.Label()))
		builder.WriteString(fmt.Sprintf("Location: %s / %s\n", current.BuildingName, current.RoomName))
		builder.WriteString(fmt.Sprintf("Category: %s / %s\n", current.CategoryName, current.SubcategoryName))
		builder.WriteString(fmt.Sprintf("Description: %s\n", firstNonEmpty(current.Description, "-")))
		builder.WriteString(fmt.Sprintf("Estimated: %s .. %s\n", formatTime(current.EstimatedStart), formatTime(current.EstimatedEnd)))
		builder.WriteString(fmt.Sprintf("Actual: %s .. %s\n", formatTime(current.ActualStart), formatTime(current.ActualEnd)))
		if current.SendBackReason != "" {
			builder.WriteString(fmt.Sprintf("Sent back: %s\n", current.SendBackReason))
		}
		builder.WriteString("\nHistory:\n")
		if len(m.history) == 0 {
			builder.WriteString("- none\n")
		} else {
			start := len(m.history) - maxShownHistory
			if start < 0 {
				start = 0
			}
			for _, entry := range m.history[start:] {
				builder.WriteString(fmt.Sprintf("- %s %s %s %s\n",
					entry.CreatedOn.Local().Format("01-02 15:04"), entry.Actor, entry.Action, entry.Body))
			}
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	if m.mode != inputNone {
		builder.WriteString(fmt.Sprintf("- %s: %s_", m.mode.prompt(), m.input))
	} else {
		builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	}
	builder.WriteString("\n\n")

	if len(m.audit) > 0 {
		builder.WriteString(sectionStyle.Render("Recent Actions"))
		builder.WriteString("\n")
		for _, line := range m.audit {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  / search  1-7 status  f/t dates  x clear  p schedule  s start  c complete  b send back  q quit"))
	return builder.String()
}

func (m *techModel) appendAuditLog(action string, requestID string, opErr error) {
	outcome := "ok"
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s request=%s action=%s result=%s", timestamp, requestID, action, outcome)
	m.audit = append([]string{line}, m.audit...)
	if len(m.audit) > maxAuditLines {
		m.audit = m.audit[:maxAuditLines]
	}

	logging.Info(m.ctx, "tech console action",
		slog.String("technician_id", m.technicianID),
		slog.String("request_id", requestID),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

// normalizedFilter swaps an inverted date range before filtering.
func normalizedFilter(state request.FilterState) request.FilterState {
	if state.FromDate != nil && state.ToDate != nil && state.FromDate.After(*state.ToDate) {
		state.FromDate, state.ToDate = state.ToDate, state.FromDate
	}
	return state
}

func parseSchedule(value string) (time.Time, time.Time, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, errors.New("schedule needs two times")
	}
	from, err := time.ParseInLocation(scheduleLayout, parts[0], time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %s", parts[0])
	}
	to, err := time.ParseInLocation(scheduleLayout, parts[1], time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %s", parts[1])
	}
	return from, to, nil
}

func filterCacheKey(technicianID string) string {
	return "filter_state:" + technicianID
}

type storedFilter struct {
	SearchText string   `json:"searchText,omitempty"`
	Statuses   []string `json:"statuses,omitempty"`
	FromDate   string   `json:"fromDate,omitempty"`
	ToDate     string   `json:"toDate,omitempty"`
}

func encodeFilterState(state request.FilterState) (string, error) {
	stored := storedFilter{
		SearchText: state.SearchText,
		FromDate:   formatDate(state.FromDate),
		ToDate:     formatDate(state.ToDate),
	}
	for _, status := range state.Statuses.Sorted() {
		stored.Statuses = append(stored.Statuses, string(status))
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeFilterState(raw string) (request.FilterState, error) {
	var stored storedFilter
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return request.FilterState{}, err
	}
	state := request.FilterState{
		SearchText: stored.SearchText,
		Statuses:   request.NewStatusSet(),
	}
	for _, value := range stored.Statuses {
		status, err := request.ParseStatus(value)
		if err != nil {
			continue
		}
		state.Statuses[status] = struct{}{}
	}
	for _, item := range []struct {
		raw string
		dst **time.Time
	}{
		{stored.FromDate, &state.FromDate},
		{stored.ToDate, &state.ToDate},
	} {
		if item.raw == "" {
			continue
		}
		parsed, err := time.ParseInLocation(dateLayout, item.raw, time.Local)
		if err != nil {
			return request.FilterState{}, err
		}
		*item.dst = &parsed
	}
	return state, nil
}

func describeStatuses(set request.StatusSet) string {
	if len(set) == 0 {
		return "all"
	}
	labels := make([]string, 0, len(set))
	for _, status := range set.Sorted() {
		labels = append(labels, string(status))
	}
	return strings.Join(labels, ",")
}

func formatDate(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(dateLayout)
}

func formatTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
