package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	EntryListView ViewState = iota
	TrackListView
	ConfirmView
	SyncView
	ResultView
)

type operation int

const (
	opSync operation = iota
	opCreate
	opImport
	opSyncAll
)

func (o operation) String() string {
	switch o {
	case opSync:
		return "sync"
	case opCreate:
		return "create"
	case opImport:
		return "import"
	case opSyncAll:
		return "sync all"
	default:
		return "unknown"
	}
}

// operationFor picks the reconciler operation the sync key runs for an entry.
func operationFor(e models.LibraryEntry) operation {
	switch e.Kind() {
	case models.EntryRemoteLinked:
		return opSync
	case models.EntryRemote:
		return opImport
	default:
		return opCreate
	}
}

// Library is the local playlist store read by the TUI.
type Library interface {
	List(ownerID string) ([]*models.Playlist, error)
	Get(ownerID, id string) (*models.Playlist, error)
}

// Options configures a [Model].
type Options struct {
	OwnerID    string
	Library    Library
	Remote     services.Catalog
	Reconciler *tasks.Reconciler
	State      *SessionState
	Logger     *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	ownerID    string
	library    Library
	remote     services.Catalog
	reconciler *tasks.Reconciler
	state      *SessionState
	logger     *log.Logger

	width     int
	height    int
	entries   []models.LibraryEntry
	entryList list.Model
	trackList list.Model
	playlist  *models.Playlist
	restored  bool

	pending      operation
	target       models.LibraryEntry
	returnView   ViewState
	progressChan chan tasks.ProgressUpdate
	doneChan     chan operationDoneMsg
	progress     tasks.ProgressUpdate
	done         *operationDoneMsg

	status string
	err    error
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.State == nil {
		opts.State = NewSessionState("", 0)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	entryList := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	entryList.Title = "Playlists"
	trackList := list.New(nil, list.NewDefaultDelegate(), 80, 20)

	return &Model{
		ctx:        ctx,
		view:       EntryListView,
		ownerID:    opts.OwnerID,
		library:    opts.Library,
		remote:     opts.Remote,
		reconciler: opts.Reconciler,
		state:      opts.State,
		logger:     opts.Logger,
		entryList:  entryList,
		trackList:  trackList,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init loads the merged playlist list.
func (m *Model) Init() tea.Cmd {
	return m.fetchEntries()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.entryList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.err != nil {
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		}
		switch m.view {
		case EntryListView:
			return m.handleEntryListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		return m, nil

	case entriesFetchedMsg:
		return m, m.entriesFetched(msg)

	case tracksFetchedMsg:
		if msg.err != nil {
			m.logger.Warn("failed to load playlist", "err", msg.err)
			m.status = fmt.Sprintf("Could not open playlist: %v", msg.err)
			m.view = EntryListView
			return m, nil
		}
		m.openPlaylist(msg.playlist)
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case operationDoneMsg:
		m.finish(msg)
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case EntryListView:
		return m.renderEntryList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) entriesFetched(msg entriesFetchedMsg) tea.Cmd {
	if msg.err != nil {
		m.err = msg.err
		return nil
	}

	m.entries = msg.entries
	m.status = ""
	if msg.remoteErr != nil {
		m.logger.Warn("failed to list spotify playlists", "err", msg.remoteErr)
		m.status = "Spotify is unreachable, showing local playlists only"
		if errors.Is(msg.remoteErr, shared.ErrAuth) {
			m.status = "Spotify rejected the saved credentials, run `crate auth login`"
		}
	}

	cmd := m.entryList.SetItems(entryItems(m.entries, m.state.Preferences.ShowRemote))
	m.selectEntry(m.state.SelectedID)

	if !m.restored {
		m.restored = true
		if m.state.View == TrackListView {
			if e := m.selectedEntry(); e != nil && e.EntryID() == m.state.SelectedID && e.Kind() != models.EntryRemote {
				return tea.Batch(cmd, m.fetchTracks(e.EntryID()))
			}
			m.state.Reset()
			m.persist()
		}
	}
	return cmd
}

func (m *Model) openPlaylist(p *models.Playlist) {
	m.playlist = p
	m.trackList.Title = fmt.Sprintf("Tracks in '%s'", p.Name)
	m.trackList.SetItems(trackItems(p.Tracks))
	m.trackList.Select(0)
	m.view = TrackListView

	m.state.View = TrackListView
	m.state.SelectedID = p.ID
	m.persist()
}

func (m *Model) handleEntryListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.entryList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		e := m.selectedEntry()
		if e == nil {
			return m, nil
		}
		if e.Kind() == models.EntryRemote {
			m.status = fmt.Sprintf("'%s' is not imported yet, press s to import it", e.Name())
			return m, nil
		}
		return m, m.fetchTracks(e.EntryID())
	case key.Matches(msg, m.keys.sync):
		if e := m.selectedEntry(); e != nil {
			return m, m.prepare(operationFor(e), e)
		}
		return m, nil
	case key.Matches(msg, m.keys.syncAll):
		return m, m.prepare(opSyncAll, nil)
	case key.Matches(msg, m.keys.remote):
		m.state.Preferences.ShowRemote = !m.state.Preferences.ShowRemote
		cmd := m.entryList.SetItems(entryItems(m.entries, m.state.Preferences.ShowRemote))
		m.selectEntry(m.state.SelectedID)
		m.persist()
		return m, cmd
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchEntries()
	}

	model, cmd := m.updateLists(msg)
	if e := m.selectedEntry(); e != nil && e.EntryID() != m.state.SelectedID {
		m.state.SelectedID = e.EntryID()
		m.persist()
	}
	return model, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = EntryListView
		m.state.View = EntryListView
		m.persist()
		return m, nil
	case key.Matches(msg, m.keys.sync):
		var e models.LibraryEntry = models.LocalEntry{Playlist: m.playlist}
		if m.playlist.Linked() {
			e = models.LinkedEntry{Playlist: m.playlist}
		}
		return m, m.prepare(operationFor(e), e)
	}

	return m.updateLists(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.start()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = m.returnView
		return m, nil
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.refresh):
		m.view = EntryListView
		m.state.View = EntryListView
		m.done = nil
		m.persist()
		return m, m.fetchEntries()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case EntryListView:
		m.entryList, cmd = m.entryList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedEntry() models.LibraryEntry {
	if item, ok := m.entryList.SelectedItem().(entryItem); ok {
		return item.entry
	}
	return nil
}

func (m *Model) selectEntry(id string) {
	if id == "" {
		return
	}
	for i, item := range m.entryList.Items() {
		if e, ok := item.(entryItem); ok && e.entry.EntryID() == id {
			m.entryList.Select(i)
			return
		}
	}
}

// persist saves the session state. Failures are logged and otherwise ignored.
func (m *Model) persist() {
	if err := m.state.Save(); err != nil {
		m.logger.Warn("failed to save session state", "err", err)
	}
}

// prepare queues op for target, asking for confirmation first when the preference is set.
func (m *Model) prepare(op operation, target models.LibraryEntry) tea.Cmd {
	m.pending = op
	m.target = target
	m.returnView = m.view
	if m.state.Preferences.ConfirmSync {
		m.view = ConfirmView
		return nil
	}
	return m.start()
}

func (m *Model) fetchEntries() tea.Cmd {
	ctx, owner, library, remote := m.ctx, m.ownerID, m.library, m.remote
	return func() tea.Msg {
		local, err := library.List(owner)
		if err != nil {
			return entriesFetchedMsg{err: err}
		}

		var remoteErr error
		var playlists []models.RemotePlaylist
		if remote != nil {
			playlists, remoteErr = remote.UserPlaylists(ctx)
		}
		return entriesFetchedMsg{entries: models.MergeEntries(local, playlists), remoteErr: remoteErr}
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	owner, library := m.ownerID, m.library
	return func() tea.Msg {
		playlist, err := library.Get(owner, playlistID)
		return tracksFetchedMsg{playlist: playlist, err: err}
	}
}

// start runs the pending operation in the background and streams its progress.
func (m *Model) start() tea.Cmd {
	m.view = SyncView
	m.progress = tasks.ProgressUpdate{}
	m.done = nil

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan operationDoneMsg, 1)
	m.progressChan, m.doneChan = progress, done

	op, target := m.pending, m.target
	m.logger.Info("starting operation", "op", op)
	go func() {
		done <- m.run(op, target, progress)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) run(op operation, target models.LibraryEntry, progress chan<- tasks.ProgressUpdate) operationDoneMsg {
	msg := operationDoneMsg{op: op}
	switch op {
	case opSync:
		msg.sync, msg.err = m.reconciler.Sync(m.ctx, m.ownerID, target.EntryID(), progress)
	case opCreate:
		msg.sync, msg.err = m.reconciler.CreateOnRemote(m.ctx, m.ownerID, target.EntryID(), progress)
	case opImport:
		msg.imported, msg.err = m.reconciler.Import(m.ctx, m.ownerID, target.EntryID(), progress)
	case opSyncAll:
		msg.all, msg.err = m.reconciler.SyncAll(m.ctx, m.ownerID, progress)
	}
	return msg
}

// waitForProgress delivers the next progress update, or the operation result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

func (m *Model) finish(msg operationDoneMsg) {
	m.done = &msg
	m.view = ResultView
	m.progressChan = nil
	m.doneChan = nil

	switch {
	case msg.err == nil:
		m.logger.Info("operation finished", "op", msg.op)
	case errors.Is(msg.err, shared.ErrAlreadyImported):
		m.logger.Info("playlist already imported", "op", msg.op)
	default:
		m.logger.Error("operation failed", "op", msg.op, "err", msg.err)
	}

	if msg.sync != nil {
		m.state.SelectedID = msg.sync.Playlist.ID
	} else if msg.imported != nil {
		m.state.SelectedID = msg.imported.Playlist.ID
	}
	m.persist()
}

func (m *Model) helpView(bindings ...key.Binding) string {
	return m.help.ShortHelpView(bindings)
}

func (m *Model) renderEntryList() string {
	var b strings.Builder
	b.WriteString(m.entryList.View())
	if m.status != "" {
		b.WriteString("\n" + styles.warn.Render(m.status))
	}
	b.WriteString("\n\n" + m.helpView(m.keys.enter, m.keys.sync, m.keys.syncAll, m.keys.remote, m.keys.refresh, m.keys.quit))
	return b.String()
}

func (m *Model) renderTrackList() string {
	syncKey := m.keys.sync
	if m.playlist != nil && !m.playlist.Linked() {
		syncKey = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "create on spotify"))
	}
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.helpView(syncKey, m.keys.back, m.keys.quit))
}

func (m *Model) renderConfirm() string {
	var question string
	switch m.pending {
	case opSync:
		question = fmt.Sprintf("Push '%s' to Spotify?", m.target.Name())
	case opCreate:
		question = fmt.Sprintf("Create '%s' on Spotify?", m.target.Name())
	case opImport:
		question = fmt.Sprintf("Import '%s' from Spotify?", m.target.Name())
	case opSyncAll:
		question = "Sync every linked playlist to Spotify?"
	}

	title := styles.title.Render(question)
	info := ""
	if m.target != nil {
		info = fmt.Sprintf("\nPlaylist: %s\nTracks: %d\n", m.target.Name(), m.target.TrackCount())
	}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.helpView(m.keys.yes, m.keys.no))
}

func (m *Model) renderSync() string {
	title := styles.title.Render(fmt.Sprintf("Running %s", m.pending))

	phase := phaseLabel(m.progress.Phase)
	if m.progress.Total > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}
	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, styles.help.Render(m.progress.Message))
}

func phaseLabel(p tasks.Phase) string {
	switch p {
	case tasks.ReadLocal:
		return "Reading local playlist..."
	case tasks.ReadRemote:
		return "Reading Spotify playlist..."
	case tasks.CreateRemote:
		return "Creating playlist on Spotify..."
	case tasks.AddItems:
		return "Adding tracks..."
	case tasks.RemoveItems:
		return "Removing tracks..."
	case tasks.ReplaceItems:
		return "Rewriting track order..."
	case tasks.UpdateMetadata:
		return "Updating details..."
	case tasks.Commit:
		return "Saving..."
	case tasks.Complete:
		return "Done"
	default:
		return "Processing..."
	}
}

func (m *Model) renderResult() string {
	footer := "\n\n" + m.helpView(m.keys.enter, m.keys.quit)
	if m.done == nil {
		return styles.err.Render("No result available") + footer
	}

	msg := m.done
	switch {
	case errors.Is(msg.err, shared.ErrAlreadyImported) && msg.imported != nil:
		return styles.warn.Render(fmt.Sprintf("'%s' is already imported", msg.imported.Playlist.Name)) + footer
	case msg.err != nil:
		text := fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		if phase, ok := tasks.PhaseOf(msg.err); ok {
			text = fmt.Sprintf("%s failed during %s: %v", msg.op, phase, errors.Unwrap(msg.err))
		}
		return styles.err.Render(text) + "\n\nNothing was marked as synced. It is safe to retry." + footer
	}

	var b strings.Builder
	switch {
	case msg.imported != nil:
		b.WriteString(styles.ok.Render("✓ Import Complete"))
		fmt.Fprintf(&b, "\n\nPlaylist: %s\nTracks imported: %d", msg.imported.Playlist.Name, msg.imported.ImportedTracks)
	case msg.sync != nil:
		b.WriteString(styles.ok.Render("✓ Sync Complete"))
		fmt.Fprintf(&b, "\n\nPlaylist: %s\nAdded: %d\nRemoved: %d", msg.sync.Playlist.Name, len(msg.sync.Added), len(msg.sync.Removed))
		if msg.sync.Skipped > 0 {
			b.WriteString("\n" + styles.warn.Render(fmt.Sprintf("Skipped %d tracks that are not on Spotify", msg.sync.Skipped)))
		}
		if msg.sync.MetadataUpdated {
			b.WriteString("\nDetails updated")
		}
	case msg.all != nil:
		b.WriteString(styles.ok.Render(fmt.Sprintf("✓ Synced %d playlists", msg.all.Succeeded)))
		if msg.all.Failed > 0 {
			b.WriteString("\n\n" + styles.warn.Render(fmt.Sprintf("%d failed:", msg.all.Failed)))
			for _, o := range msg.all.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(&b, "\n  • %s: %s", o.Name, o.Error)
				}
			}
		}
	}
	b.WriteString(footer)
	return b.String()
}
