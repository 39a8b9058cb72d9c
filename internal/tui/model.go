// Package tui is the interactive terminal shell of the browser. It renders
// navigator state and turns key presses into navigator and transfer calls.
//
// All state is owned by the bubbletea update loop. Background listing and
// transfer workers only post messages, which the loop applies in order.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/listing"
	"github.com/3leaps/nimbusurf/pkg/navigator"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/transfer"
)

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeGoTo
	modeProject
	modeConfirm
	modeTransfer
)

// navMsg carries a background listing result into the update loop.
type navMsg struct{ ev navigator.Event }

// transferMsg carries a bulk operation event into the update loop.
type transferMsg struct{ ev transfer.Event }

// Options configures a Model.
type Options struct {
	Provider provider.Provider
	Start    cloudpath.Path

	CacheSize       int
	CursorCacheSize int

	// Destination is the local root for downloads.
	Destination string
	RateLimit   float64

	Logger *zap.Logger

	// Send delivers messages from background goroutines to the update loop.
	// Run wires it to the program; tests supply their own.
	Send func(tea.Msg)
}

// Model is the bubbletea model of the browser.
type Model struct {
	opts Options
	log  *zap.Logger
	prov provider.Provider
	svc  *listing.Service
	nav  *navigator.Navigator
	ctx  context.Context

	view navigator.View
	mode mode

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	input    textinput.Model
	progress progress.Model

	lastSearch string
	status     string
	err        string

	confirm string
	job     *transfer.Job
	ctrl    *transfer.Controller
	done    int
	total   int
	current string

	width  int
	height int
}

// NewModel builds a browser positioned at opts.Start. Nothing is listed
// until Init runs.
func NewModel(ctx context.Context, opts Options) *Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Destination == "" {
		opts.Destination = "."
	}
	if opts.Send == nil {
		opts.Send = func(tea.Msg) {}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	ti := textinput.New()
	ti.CharLimit = 1024

	m := &Model{
		opts:     opts,
		log:      log,
		prov:     opts.Provider,
		ctx:      ctx,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		input:    ti,
		progress: progress.New(progress.WithDefaultGradient()),
		width:    80,
		height:   24,
	}
	m.svc = listing.New(opts.Provider, listing.Options{CacheSize: opts.CacheSize, Logger: log})
	m.nav = navigator.New(m.svc, opts.Start, navigator.Options{
		CursorCacheSize: opts.CursorCacheSize,
		Logger:          log,
		Post:            func(ev navigator.Event) { m.send(navMsg{ev: ev}) },
		OnSignal:        m.onSignal,
		OnRender:        func(v navigator.View) { m.view = v },
	})
	m.view = m.nav.View()
	return m
}

func (m *Model) send(msg tea.Msg) {
	m.opts.Send(msg)
}

// Navigator exposes the navigation state machine.
func (m *Model) Navigator() *navigator.Navigator { return m.nav }

// Close stops background work and waits for in-flight listings. It must
// not run on the update loop while the program is still receiving messages.
func (m *Model) Close() {
	m.stopTransfer()
	m.svc.Close()
}

func (m *Model) stopTransfer() {
	if m.ctrl != nil {
		m.ctrl.Close()
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.nav.RefreshContents()
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = max(10, min(60, msg.Width-20))
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case navMsg:
		m.nav.Handle(msg.ev)
		return m, nil

	case transferMsg:
		m.handleTransfer(msg.ev)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) onSignal(err error) {
	var forbidden *navigator.AccessForbidden
	var invalid *navigator.InvalidProject
	switch {
	case errors.As(err, &forbidden):
		m.err = forbidden.Error() + " (press p to switch project)"
	case errors.As(err, &invalid):
		m.err = invalid.Error()
		if m.mode == modeBrowse {
			m.openPrompt(modeProject, "project: ", m.prov.Project())
		}
	default:
		m.err = err.Error()
	}
	m.log.Debug("signal", zap.Error(err))
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSearch, modeGoTo, modeProject:
		return m.handlePrompt(msg)
	case modeConfirm:
		return m.handleConfirm(msg)
	case modeTransfer:
		return m.handleTransferKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.stopTransfer()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	m.status, m.err = "", ""
	switch {
	case key.Matches(msg, m.keys.Up):
		m.nav.MoveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.nav.MoveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.nav.MoveCursor(-m.pageSize())
	case key.Matches(msg, m.keys.PageDown):
		m.nav.MoveCursor(m.pageSize())
	case key.Matches(msg, m.keys.Home):
		m.nav.SetCursor(0)
	case key.Matches(msg, m.keys.End):
		m.nav.SetCursor(len(m.view.Entries) - 1)
	case key.Matches(msg, m.keys.Open):
		if entry, ok := m.nav.SelectedEntry(); ok && !m.nav.Select(entry) {
			m.status = describe(entry)
		}
	case key.Matches(msg, m.keys.Back):
		m.nav.Back()
	case key.Matches(msg, m.keys.Refresh):
		m.nav.RefreshContents()
	case key.Matches(msg, m.keys.Search):
		return m, m.openPrompt(modeSearch, "/", m.lastSearch)
	case key.Matches(msg, m.keys.Next):
		m.search(m.lastSearch)
	case key.Matches(msg, m.keys.GoTo):
		return m, m.openPrompt(modeGoTo, "go to: ", m.view.Location.String())
	case key.Matches(msg, m.keys.Project):
		if _, ok := m.prov.(provider.Reconfigurer); !ok {
			m.err = "this provider does not support switching projects"
			return m, nil
		}
		return m, m.openPrompt(modeProject, "project: ", m.prov.Project())
	case key.Matches(msg, m.keys.Download):
		m.prepare(transfer.KindDownload)
	case key.Matches(msg, m.keys.Delete):
		m.prepare(transfer.KindDelete)
	}
	return m, nil
}

func (m *Model) pageSize() int {
	return max(1, m.listHeight()-1)
}

func (m *Model) openPrompt(md mode, prompt, value string) tea.Cmd {
	m.mode = md
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closePrompt() {
	m.mode = modeBrowse
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) handlePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePrompt()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		md := m.mode
		m.closePrompt()
		m.submit(md, value)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(md mode, value string) {
	m.status, m.err = "", ""
	switch md {
	case modeSearch:
		m.lastSearch = value
		m.search(value)
	case modeGoTo:
		m.goTo(value)
	case modeProject:
		m.switchProject(value)
	}
}

func (m *Model) search(term string) {
	if term == "" {
		return
	}
	if !m.nav.Search(term) {
		m.status = fmt.Sprintf("no match for %q", term)
	}
}

func (m *Model) goTo(address string) {
	if address == "" {
		return
	}
	loc, err := cloudpath.Parse(address)
	if err != nil {
		m.err = err.Error()
		return
	}
	if loc.Scheme() != m.prov.Scheme() {
		m.err = fmt.Sprintf("this session browses %s:// locations", m.prov.Scheme())
		return
	}
	m.nav.GoTo(loc)
}

func (m *Model) switchProject(name string) {
	rc, ok := m.prov.(provider.Reconfigurer)
	if !ok || name == "" {
		return
	}
	rc.SetProject(name)
	m.log.Info("project switched", zap.String("project", name))
	m.nav.ClearCache()
	m.nav.GoTo(cloudpath.Root(m.prov.Scheme()))
}

// prepare validates a bulk operation on the highlighted entry and asks for
// confirmation.
func (m *Model) prepare(kind transfer.Kind) {
	if m.ctrl != nil && m.ctrl.Busy() {
		m.err = fmt.Sprintf("The previous %s is still stopping", m.ctrl.Job().Kind())
		return
	}
	target, ok := m.nav.SelectedEntry()
	if !ok {
		return
	}
	cfg := transfer.Config{
		Destination: m.opts.Destination,
		RateLimit:   m.opts.RateLimit,
		Logger:      m.log,
	}

	var job *transfer.Job
	var err error
	switch kind {
	case transfer.KindDownload:
		job, err = transfer.NewDownloader(m.prov, target, cfg)
		m.confirm = fmt.Sprintf("Download %s to %s?", target, m.opts.Destination)
	case transfer.KindDelete:
		job, err = transfer.NewDeleter(m.prov, target, cfg)
		if target.IsBlob() {
			m.confirm = fmt.Sprintf("Delete %s?", target)
		} else {
			m.confirm = fmt.Sprintf("Delete all objects under %s?", target)
		}
	}
	if err != nil {
		m.err = capitalize(err.Error())
		m.confirm = ""
		return
	}
	m.job = job
	m.mode = modeConfirm
}

func (m *Model) handleConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.start()
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.mode = modeBrowse
		m.job, m.confirm = nil, ""
	}
	return m, nil
}

func (m *Model) start() {
	m.ctrl = transfer.NewController(m.job, transfer.ControllerOptions{
		Logger: m.log,
		Post:   func(ev transfer.Event) { m.send(transferMsg{ev: ev}) },
	})
	m.done, m.total, m.current = 0, 0, ""
	if err := m.ctrl.Start(m.ctx); err != nil {
		m.err = err.Error()
		m.mode = modeBrowse
		return
	}
	m.mode = modeTransfer
}

func (m *Model) handleTransferKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.stopTransfer()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.mode = modeBrowse
		m.status = fmt.Sprintf("%s stopped after %d of %d objects", m.job.Kind(), m.done, m.total)
	}
	return m, nil
}

func (m *Model) handleTransfer(ev transfer.Event) {
	if m.ctrl == nil || !m.ctrl.Handle(ev) {
		return
	}
	switch e := ev.(type) {
	case transfer.ItemStarted:
		m.total = e.Total
		m.current = e.Item.String()
	case transfer.ItemDone:
		m.total = e.Total
		m.done = e.Index + 1
		if e.Err != nil {
			m.err = e.Err.Error()
		}
	case transfer.Done:
		m.finish(e)
	}
}

func (m *Model) finish(e transfer.Done) {
	kind := m.ctrl.Job().Kind()
	if m.mode == modeTransfer {
		m.mode = modeBrowse
	}
	m.current = ""
	if e.Err != nil {
		m.err = fmt.Sprintf("%s failed: %v", kind, e.Err)
		return
	}
	sum := e.Summary
	verb := map[transfer.Kind]string{transfer.KindDownload: "downloaded", transfer.KindDelete: "deleted"}[kind]
	m.status = fmt.Sprintf("%s %d of %d objects (%s)", verb, sum.Done, sum.Total, humanize.IBytes(uint64(sum.Bytes)))
	if sum.Failed > 0 {
		m.status += fmt.Sprintf(", %d failed", sum.Failed)
	}
	if sum.Stopped {
		m.status += ", stopped"
	}
	if kind == transfer.KindDelete && m.ctrl.State() == transfer.StateFinished {
		m.nav.ClearCache()
		m.nav.RefreshContents()
	}
}

func describe(p cloudpath.Path) string {
	size, _ := p.Size()
	s := fmt.Sprintf("%s  %s", p, humanize.IBytes(uint64(size)))
	if t, ok := p.UpdatedAt(); ok {
		s += "  " + t.Local().Format("2006-01-02 15:04:05")
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
